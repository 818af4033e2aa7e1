package repository

import (
	"context"
	"errors"
	"fmt"

	"resonate/model"

	"gorm.io/gorm"
)

// ProfileRepository manages artist profiles. Backed by GORM, which also owns
// the artist_profiles migration.
type ProfileRepository interface {
	EnsureArtistProfile(ctx context.Context, userID int64, stageName string) error
	GetArtistProfile(ctx context.Context, userID int64) (*model.ArtistProfile, error)
}

type gormProfileRepository struct {
	db *gorm.DB
}

// NewGormProfileRepository creates a new instance of gormProfileRepository.
func NewGormProfileRepository(db *gorm.DB) ProfileRepository {
	return &gormProfileRepository{db: db}
}

// EnsureArtistProfile creates a default profile for the user if none exists.
// Idempotent: an existing profile is never overwritten, and a concurrent
// create losing the unique-index race is treated as success.
func (r *gormProfileRepository) EnsureArtistProfile(ctx context.Context, userID int64, stageName string) error {
	var existing model.ArtistProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up artist profile for user %d: %w", userID, err)
	}

	profile := model.ArtistProfile{
		UserID:    userID,
		StageName: stageName,
	}
	if err := r.db.WithContext(ctx).Create(&profile).Error; err != nil {
		if IsDuplicateEntry(err) {
			return nil
		}
		return fmt.Errorf("failed to create artist profile for user %d: %w", userID, err)
	}
	return nil
}

// GetArtistProfile retrieves a user's artist profile, nil if absent.
func (r *gormProfileRepository) GetArtistProfile(ctx context.Context, userID int64) (*model.ArtistProfile, error) {
	var profile model.ArtistProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artist profile for user %d: %w", userID, err)
	}
	return &profile, nil
}
