package model

import (
	"database/sql"
	"time"
)

// Album 表示一张专辑
type Album struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"userId"`
	Title       string         `json:"title"`
	Artist      string         `json:"artist"`
	Description sql.NullString `json:"description"`
	AlbumArt    string         `json:"albumArt"` // Relative path inside the albumArt category
	IsExplicit  bool           `json:"isExplicit"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// AlbumWithTracks 包含专辑信息和其包含的歌曲
type AlbumWithTracks struct {
	Album  Album    `json:"album"`
	Tracks []*Track `json:"tracks"`
}
