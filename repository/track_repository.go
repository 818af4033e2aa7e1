package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"resonate/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) error
	GetTrackByID(ctx context.Context, id int64) (*model.Track, error)
	GetTracksByAlbumID(ctx context.Context, albumID int64) ([]*model.Track, error)
	GetFirstTrackIDByAlbumID(ctx context.Context, albumID int64) (int64, error)
	DeleteTracksByAlbumID(ctx context.Context, albumID int64) error
	IDExists(ctx context.Context, id int64) (bool, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	db *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{db: db}
}

// CreateTrack inserts a track with its pre-allocated identifier.
func (r *mysqlTrackRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	query := `INSERT INTO tracks (id, album_id, title, artist, file_path, size_bytes, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		track.ID, track.AlbumID, track.Title, track.Artist, track.FilePath, track.SizeBytes, now, now)
	if err != nil {
		return fmt.Errorf("failed to execute CreateTrack: %w", err)
	}
	track.CreatedAt = now
	track.UpdatedAt = now
	return nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	query := `SELECT id, album_id, title, artist, file_path, size_bytes, created_at, updated_at
	           FROM tracks WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	track := &model.Track{}
	err := row.Scan(&track.ID, &track.AlbumID, &track.Title, &track.Artist, &track.FilePath,
		&track.SizeBytes, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetTracksByAlbumID retrieves all tracks belonging to an album.
func (r *mysqlTrackRepository) GetTracksByAlbumID(ctx context.Context, albumID int64) ([]*model.Track, error) {
	query := `SELECT id, album_id, title, artist, file_path, size_bytes, created_at, updated_at
	           FROM tracks WHERE album_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for album ID %d: %w", albumID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track := &model.Track{}
		err := rows.Scan(&track.ID, &track.AlbumID, &track.Title, &track.Artist, &track.FilePath,
			&track.SizeBytes, &track.CreatedAt, &track.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetTracksByAlbumID: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetTracksByAlbumID: %w", err)
	}

	return tracks, nil
}

// GetFirstTrackIDByAlbumID returns the id of the album's first track, or 0
// if the album has no tracks.
func (r *mysqlTrackRepository) GetFirstTrackIDByAlbumID(ctx context.Context, albumID int64) (int64, error) {
	var id int64
	query := `SELECT id FROM tracks WHERE album_id = ? ORDER BY created_at ASC, id ASC LIMIT 1`
	err := r.db.QueryRowContext(ctx, query, albumID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get first track for album ID %d: %w", albumID, err)
	}
	return id, nil
}

// DeleteTracksByAlbumID removes all track rows for an album. Used by the
// ingestion rollback path.
func (r *mysqlTrackRepository) DeleteTracksByAlbumID(ctx context.Context, albumID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tracks WHERE album_id = ?`, albumID); err != nil {
		return fmt.Errorf("failed to delete tracks for album ID %d: %w", albumID, err)
	}
	return nil
}

// IDExists reports whether a live track row holds the given identifier.
func (r *mysqlTrackRepository) IDExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tracks WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check track id %d: %w", id, err)
	}
	return exists, nil
}
