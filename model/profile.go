package model

import "time"

// ArtistProfile 表示上传者的艺术家资料
// 首次成功创建专辑时自动生成默认资料，之后不会被覆盖
type ArtistProfile struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"userId"`
	StageName string    `gorm:"size:100" json:"stageName"`
	Bio       string    `gorm:"type:text" json:"bio"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (ArtistProfile) TableName() string {
	return "artist_profiles"
}
