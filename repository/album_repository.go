package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"resonate/model"
)

// AlbumRepository defines the interface for album data operations.
type AlbumRepository interface {
	CreateAlbum(ctx context.Context, album *model.Album) error
	GetAlbumByID(ctx context.Context, id int64) (*model.Album, error)
	GetAlbumByIDAndUserID(ctx context.Context, id, userID int64) (*model.Album, error)
	GetAlbumsByUserID(ctx context.Context, userID int64) ([]*model.Album, error)
	UpdateAlbum(ctx context.Context, album *model.Album) error
	SetAlbumArt(ctx context.Context, id int64, artPath string) error
	DeleteAlbum(ctx context.Context, id int64) error
	IDExists(ctx context.Context, id int64) (bool, error)
}

// mysqlAlbumRepository implements AlbumRepository for MySQL.
type mysqlAlbumRepository struct {
	db *sql.DB
}

// NewMySQLAlbumRepository creates a new instance of mysqlAlbumRepository.
func NewMySQLAlbumRepository(db *sql.DB) AlbumRepository {
	return &mysqlAlbumRepository{db: db}
}

// CreateAlbum inserts an album with its pre-allocated identifier. The primary
// key constraint rejects a concurrent duplicate; callers route that through
// the allocator's retry contract.
func (r *mysqlAlbumRepository) CreateAlbum(ctx context.Context, album *model.Album) error {
	query := `INSERT INTO albums (id, user_id, title, artist, description, album_art, is_explicit, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		album.ID, album.UserID, album.Title, album.Artist, album.Description, album.AlbumArt, album.IsExplicit, now, now)
	if err != nil {
		return fmt.Errorf("failed to execute CreateAlbum: %w", err)
	}
	album.CreatedAt = now
	album.UpdatedAt = now
	return nil
}

func scanAlbum(row *sql.Row) (*model.Album, error) {
	album := &model.Album{}
	err := row.Scan(&album.ID, &album.UserID, &album.Title, &album.Artist, &album.Description,
		&album.AlbumArt, &album.IsExplicit, &album.CreatedAt, &album.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Album not found
		}
		return nil, fmt.Errorf("failed to scan album: %w", err)
	}
	return album, nil
}

// GetAlbumByID retrieves an album by its ID.
func (r *mysqlAlbumRepository) GetAlbumByID(ctx context.Context, id int64) (*model.Album, error) {
	query := `SELECT id, user_id, title, artist, description, album_art, is_explicit, created_at, updated_at
	           FROM albums WHERE id = ?`
	return scanAlbum(r.db.QueryRowContext(ctx, query, id))
}

// GetAlbumByIDAndUserID retrieves an album only if it is owned by userID.
func (r *mysqlAlbumRepository) GetAlbumByIDAndUserID(ctx context.Context, id, userID int64) (*model.Album, error) {
	query := `SELECT id, user_id, title, artist, description, album_art, is_explicit, created_at, updated_at
	           FROM albums WHERE id = ? AND user_id = ?`
	return scanAlbum(r.db.QueryRowContext(ctx, query, id, userID))
}

// GetAlbumsByUserID retrieves all albums uploaded by a user.
func (r *mysqlAlbumRepository) GetAlbumsByUserID(ctx context.Context, userID int64) ([]*model.Album, error) {
	query := `SELECT id, user_id, title, artist, description, album_art, is_explicit, created_at, updated_at
	           FROM albums WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query albums for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	albums := make([]*model.Album, 0)
	for rows.Next() {
		album := &model.Album{}
		err := rows.Scan(&album.ID, &album.UserID, &album.Title, &album.Artist, &album.Description,
			&album.AlbumArt, &album.IsExplicit, &album.CreatedAt, &album.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan album in GetAlbumsByUserID: %w", err)
		}
		albums = append(albums, album)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAlbumsByUserID: %w", err)
	}

	return albums, nil
}

// UpdateAlbum updates the mutable album fields.
func (r *mysqlAlbumRepository) UpdateAlbum(ctx context.Context, album *model.Album) error {
	query := `UPDATE albums SET title = ?, artist = ?, description = ?, is_explicit = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query,
		album.Title, album.Artist, album.Description, album.IsExplicit, time.Now(), album.ID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateAlbum for album ID %d: %w", album.ID, err)
	}
	return nil
}

// SetAlbumArt updates the stored artwork path for an album.
func (r *mysqlAlbumRepository) SetAlbumArt(ctx context.Context, id int64, artPath string) error {
	query := `UPDATE albums SET album_art = ?, updated_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, artPath, time.Now(), id); err != nil {
		return fmt.Errorf("failed to execute SetAlbumArt for album ID %d: %w", id, err)
	}
	return nil
}

// DeleteAlbum removes the album row, retiring its identifier. Track rows go
// with it via the foreign key cascade.
func (r *mysqlAlbumRepository) DeleteAlbum(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM albums WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to execute DeleteAlbum for album ID %d: %w", id, err)
	}
	return nil
}

// IDExists reports whether a live album row holds the given identifier.
func (r *mysqlAlbumRepository) IDExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM albums WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check album id %d: %w", id, err)
	}
	return exists, nil
}
