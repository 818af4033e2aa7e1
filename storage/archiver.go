package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resonate/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/minio/minio-go/v7"
)

// Archiver mirrors newly created assets from the category directories to a
// MinIO bucket, driven by an fsnotify watch. Archival is best effort: a
// failed upload is logged and never fails the request that produced the
// asset.
type Archiver struct {
	store  *Store
	client *minio.Client
	bucket string
}

// NewArchiver creates an archiver for the store's public categories.
func NewArchiver(store *Store, client *minio.Client, bucket string) *Archiver {
	return &Archiver{store: store, client: client, bucket: bucket}
}

// Run watches the category directories until ctx is cancelled. New files are
// uploaded to the bucket under category/name keys.
func (a *Archiver) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, category := range []Category{CategoryAlbumArt, CategoryCompressed, CategoryProfilePics} {
		if err := watcher.Add(a.store.CategoryDir(category)); err != nil {
			return err
		}
	}

	logger.Info("asset archiver started", logger.String("bucket", a.bucket))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// Writes arrive in bursts while a file is still being
			// produced; only ship it once it has settled.
			go a.archiveWhenSettled(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("archiver watch error", logger.ErrorField(err))
		}
	}
}

func (a *Archiver) archiveWhenSettled(ctx context.Context, path string) {
	var lastSize int64 = -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}

		info, err := os.Stat(path)
		if err != nil {
			return // deleted before it settled
		}
		if info.Size() == lastSize {
			break
		}
		lastSize = info.Size()
	}

	a.archive(ctx, path)
}

func (a *Archiver) archive(ctx context.Context, path string) {
	rel, err := filepath.Rel(a.store.Root(), path)
	if err != nil {
		return
	}
	objectName := filepath.ToSlash(rel)

	uploadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err = a.client.FPutObject(uploadCtx, a.bucket, objectName, path, minio.PutObjectOptions{
		ContentType: contentTypeFor(path),
	})
	if err != nil {
		logger.Warn("asset archive upload failed",
			logger.String("object", objectName),
			logger.ErrorField(err))
		return
	}

	logger.Debug("asset archived", logger.String("object", objectName))
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
