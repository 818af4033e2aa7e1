package model

import "time"

// Track represents one audio track inside an album.
// FilePath points at the compressed copy produced by the transcoder;
// raw uploads are never persisted past ingestion.
type Track struct {
	ID        int64     `json:"id"`
	AlbumID   int64     `json:"albumId"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	FilePath  string    `json:"-"` // Disk path of the compressed audio, not exposed in API directly
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
