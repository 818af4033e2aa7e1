// Package ingest orchestrates album creation: validate, allocate an album
// identifier, sanitize artwork, transcode each track, persist rows, and
// ensure the uploader's artist profile. Every side effect registers a
// compensating action as it completes; any fatal step runs the recorded
// compensations in reverse, so the operation is all-or-nothing from the
// caller's point of view even though it executes as a sequence of
// independent writes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"resonate/core/events"
	"resonate/core/ident"
	"resonate/core/media"
	"resonate/logger"
	"resonate/model"
	"resonate/repository"
	"resonate/storage"

	"golang.org/x/sync/errgroup"
)

// ErrValidation is returned for missing or malformed bundle fields. No side
// effects have occurred when it surfaces.
var ErrValidation = errors.New("invalid album bundle")

// Sanitizer strips identifying metadata from an image file.
type Sanitizer interface {
	Sanitize(sourcePath string) (string, error)
}

// Publisher receives per-step progress events for the uploading user. A nil
// publisher disables progress reporting.
type Publisher interface {
	Publish(userID int64, evt events.Event)
}

// UploadFile is one raw file handle inside a bundle.
type UploadFile struct {
	Name   string
	Reader io.Reader
}

// UploadTrack is one raw audio file plus its metadata overrides.
type UploadTrack struct {
	File   UploadFile
	Title  string // falls back to the file name
	Artist string // falls back to the album artist
}

// Bundle is the request-scoped input of one pipeline run. It is owned by
// exactly one CreateAlbum invocation and discarded when it returns.
type Bundle struct {
	UserID      int64
	Username    string
	Title       string
	Artist      string
	Description string
	IsExplicit  bool
	Artwork     *UploadFile
	Tracks      []UploadTrack
}

// Result carries the identifiers a successful run produced. Callers never
// see intermediate file paths.
type Result struct {
	AlbumID  int64
	TrackIDs []int64
}

// FirstTrackID returns the id of the first track, or 0 for a trackless
// album.
func (r *Result) FirstTrackID() int64 {
	if len(r.TrackIDs) == 0 {
		return 0
	}
	return r.TrackIDs[0]
}

// Pipeline wires the ingestion collaborators together. All dependencies are
// injected; nothing reaches for package-global state.
type Pipeline struct {
	store       *storage.Store
	sanitizer   Sanitizer
	transcoder  media.Transcoder
	albumRepo   repository.AlbumRepository
	trackRepo   repository.TrackRepository
	profileRepo repository.ProfileRepository
	albumAlloc  *ident.Allocator
	trackAlloc  *ident.Allocator
	sink        Publisher

	// parallelism bounds concurrent track transcodes within one album,
	// separate from the transcoder's system-wide process cap.
	parallelism int
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	store *storage.Store,
	sanitizer Sanitizer,
	transcoder media.Transcoder,
	albumRepo repository.AlbumRepository,
	trackRepo repository.TrackRepository,
	profileRepo repository.ProfileRepository,
	albumAlloc *ident.Allocator,
	trackAlloc *ident.Allocator,
	sink Publisher,
	parallelism int,
) *Pipeline {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Pipeline{
		store:       store,
		sanitizer:   sanitizer,
		transcoder:  transcoder,
		albumRepo:   albumRepo,
		trackRepo:   trackRepo,
		profileRepo: profileRepo,
		albumAlloc:  albumAlloc,
		trackAlloc:  trackAlloc,
		sink:        sink,
		parallelism: parallelism,
	}
}

// CreateAlbum runs the full ingestion for one bundle. Once accepted the run
// is not client-cancellable; it finishes or rolls itself back.
func (p *Pipeline) CreateAlbum(ctx context.Context, bundle *Bundle) (*Result, error) {
	// Step 1: validation, before any side effect.
	if bundle.Title == "" || bundle.Artist == "" {
		return nil, fmt.Errorf("album title and artist are required: %w", ErrValidation)
	}
	if bundle.UserID <= 0 {
		return nil, fmt.Errorf("bundle has no owner: %w", ErrValidation)
	}

	// The caller's context is usually a request context, which net/http
	// cancels when the client disconnects. An accepted run must not abort
	// mid-transcode for that, so only the context values survive here.
	ctx = context.WithoutCancel(ctx)

	run := &runState{}
	// Staged raw files are request-scoped and removed whether the run
	// succeeds or fails; compensations cover everything else.
	defer run.discardStaging(p.store)

	result, err := p.run(ctx, bundle, run)
	if err != nil {
		run.rollback()
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, bundle *Bundle, run *runState) (*Result, error) {
	// Step 2: allocate the album identifier. The row insert is the
	// authoritative uniqueness gate; a lost race draws again inside the
	// allocator.
	album := &model.Album{
		UserID:     bundle.UserID,
		Title:      bundle.Title,
		Artist:     bundle.Artist,
		IsExplicit: bundle.IsExplicit,
	}
	if bundle.Description != "" {
		album.Description.String = bundle.Description
		album.Description.Valid = true
	}

	albumID, err := p.albumAlloc.AllocateAndInsert(ctx, func(ctx context.Context, id int64) error {
		album.ID = id
		return p.albumRepo.CreateAlbum(ctx, album)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create album record: %w", err)
	}
	run.compensate(func(ctx context.Context) {
		if err := p.albumRepo.DeleteAlbum(ctx, albumID); err != nil {
			logger.Error("rollback: failed to delete album row",
				logger.Int64("albumId", albumID), logger.ErrorField(err))
		}
	})

	// Step 3: artwork. Once submitted it is not optional; a sanitizer
	// failure aborts the whole operation.
	if bundle.Artwork != nil {
		rawPath, err := p.store.SaveTo(storage.CategoryAlbumArt, bundle.Artwork.Reader, bundle.Artwork.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to store raw artwork: %w", err)
		}
		run.stage(rawPath)

		cleanedPath, err := p.sanitizer.Sanitize(rawPath)
		if err != nil {
			return nil, fmt.Errorf("failed to sanitize artwork: %w", err)
		}
		run.compensate(func(context.Context) {
			if err := p.store.Remove(cleanedPath); err != nil {
				logger.Error("rollback: failed to remove artwork", logger.ErrorField(err))
			}
		})

		if err := p.albumRepo.SetAlbumArt(ctx, albumID, cleanedPath); err != nil {
			return nil, fmt.Errorf("failed to record artwork path: %w", err)
		}
		p.notify(bundle.UserID, events.Event{Type: events.EventArtworkCleaned, AlbumID: albumID})
	}

	// Step 4: transcode and persist each track, independently, with
	// bounded parallelism. The first failure cancels the remainder.
	trackIDs, err := p.ingestTracks(ctx, bundle, albumID, run)
	if err != nil {
		return nil, err
	}

	// Step 5: ensure the uploader has an artist profile. Idempotent and
	// never overwrites an existing one.
	stageName := bundle.Username
	if stageName == "" {
		stageName = bundle.Artist
	}
	if err := p.profileRepo.EnsureArtistProfile(ctx, bundle.UserID, stageName); err != nil {
		return nil, fmt.Errorf("failed to ensure artist profile: %w", err)
	}

	logger.Info("album ingested",
		logger.Int64("albumId", albumID),
		logger.Int64("userId", bundle.UserID),
		logger.Int("tracks", len(trackIDs)))

	return &Result{AlbumID: albumID, TrackIDs: trackIDs}, nil
}

func (p *Pipeline) ingestTracks(ctx context.Context, bundle *Bundle, albumID int64, run *runState) ([]int64, error) {
	if len(bundle.Tracks) == 0 {
		return nil, nil
	}

	// Track rows are compensated wholesale: one delete covers however many
	// inserts completed before the failure.
	run.compensate(func(ctx context.Context) {
		if err := p.trackRepo.DeleteTracksByAlbumID(ctx, albumID); err != nil {
			logger.Error("rollback: failed to delete track rows",
				logger.Int64("albumId", albumID), logger.ErrorField(err))
		}
	})

	// Staging happens sequentially (the readers come from one multipart
	// body); transcoding fans out.
	staged := make([]string, len(bundle.Tracks))
	for i, track := range bundle.Tracks {
		path, err := p.store.Stage(track.File.Reader, track.File.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to stage track %d: %w", i, err)
		}
		run.stage(path)
		staged[i] = path
	}

	trackIDs := make([]int64, len(bundle.Tracks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i := range bundle.Tracks {
		g.Go(func() error {
			track := bundle.Tracks[i]

			outputPath, err := p.store.OutputPath(storage.CategoryCompressed, track.File.Name, "-compressed")
			if err != nil {
				return err
			}

			if err := p.transcoder.Transcode(gctx, staged[i], outputPath); err != nil {
				return fmt.Errorf("track %d (%s): %w", i, track.File.Name, err)
			}
			run.compensate(func(context.Context) {
				if err := p.store.Remove(outputPath); err != nil {
					logger.Error("rollback: failed to remove transcoded track", logger.ErrorField(err))
				}
			})

			size, err := fileSize(outputPath)
			if err != nil {
				return err
			}

			title := track.Title
			if title == "" {
				title = track.File.Name
			}
			artist := track.Artist
			if artist == "" {
				artist = bundle.Artist
			}

			id, err := p.trackAlloc.AllocateAndInsert(gctx, func(ctx context.Context, id int64) error {
				return p.trackRepo.CreateTrack(ctx, &model.Track{
					ID:        id,
					AlbumID:   albumID,
					Title:     title,
					Artist:    artist,
					FilePath:  outputPath,
					SizeBytes: size,
				})
			})
			if err != nil {
				return fmt.Errorf("failed to create track record for %s: %w", track.File.Name, err)
			}

			trackIDs[i] = id
			p.notify(bundle.UserID, events.Event{
				Type:    events.EventTrackTranscoded,
				AlbumID: albumID,
				TrackID: id,
				Detail:  title,
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trackIDs, nil
}

func (p *Pipeline) notify(userID int64, evt events.Event) {
	if p.sink != nil {
		p.sink.Publish(userID, evt)
	}
}

// runState accumulates the side effects of one pipeline run: staged raw
// files (always discarded) and compensations (run in reverse on failure).
// Compensations may be registered from the track fan-out, so registration
// is mutex-guarded.
type runState struct {
	mu            sync.Mutex
	stagedPaths   []string
	compensations []func(context.Context)
}

func (r *runState) stage(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stagedPaths = append(r.stagedPaths, path)
}

func (r *runState) compensate(fn func(context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compensations = append(r.compensations, fn)
}

// rollback runs recorded compensations in reverse order. It uses a fresh
// context so cleanup proceeds even when the triggering failure was a
// timeout.
func (r *runState) rollback() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r.mu.Lock()
	comps := r.compensations
	r.compensations = nil
	r.mu.Unlock()

	for i := len(comps) - 1; i >= 0; i-- {
		comps[i](ctx)
	}
}

// discardStaging removes raw staged uploads, success or failure alike.
func (r *runState) discardStaging(store *storage.Store) {
	r.mu.Lock()
	paths := r.stagedPaths
	r.stagedPaths = nil
	r.mu.Unlock()

	for _, path := range paths {
		if err := store.Remove(path); err != nil {
			logger.Warn("failed to discard staged upload", logger.ErrorField(err))
		}
	}
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.Size(), nil
}
