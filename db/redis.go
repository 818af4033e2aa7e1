package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"resonate/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient 是全局Redis客户端
var RedisClient *redis.Client

// ConnectRedis 初始化Redis连接
func ConnectRedis(cfg *config.Config) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		RedisClient.Close()
		RedisClient = nil
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// TrackMeta 缓存曲目文件的路径和大小，供流媒体处理器使用
// 避免每次 Range 请求都查询数据库
type TrackMeta struct {
	TrackID   int64  `json:"trackId"`
	FilePath  string `json:"filePath"`
	SizeBytes int64  `json:"sizeBytes"`
}

const trackMetaTTL = 30 * time.Minute

// trackMetaKey 根据曲目ID生成Redis键
func trackMetaKey(trackID int64) string {
	return fmt.Sprintf("trackmeta:%d", trackID)
}

// CacheTrackMeta 缓存曲目文件元数据
func CacheTrackMeta(ctx context.Context, meta TrackMeta) error {
	if RedisClient == nil {
		return nil
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal track meta: %w", err)
	}

	if err := RedisClient.Set(ctx, trackMetaKey(meta.TrackID), data, trackMetaTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache track meta: %w", err)
	}
	return nil
}

// GetTrackMeta 获取缓存的曲目元数据，未命中时返回 nil
func GetTrackMeta(ctx context.Context, trackID int64) (*TrackMeta, error) {
	if RedisClient == nil {
		return nil, nil
	}

	data, err := RedisClient.Get(ctx, trackMetaKey(trackID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track meta: %w", err)
	}

	var meta TrackMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal track meta: %w", err)
	}
	return &meta, nil
}

// InvalidateTrackMeta 删除缓存的曲目元数据（曲目被删除时调用）
func InvalidateTrackMeta(ctx context.Context, trackID int64) error {
	if RedisClient == nil {
		return nil
	}
	return RedisClient.Del(ctx, trackMetaKey(trackID)).Err()
}
