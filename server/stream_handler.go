package server

import (
	"errors"
	"net/http"
	"os"

	"resonate/core/stream"
	"resonate/db"
	"resonate/logger"
)

// StreamTrackHandler 按字节范围流式返回一条音轨。
//
// 路径元数据优先走 Redis，未命中再查数据库并回填。实际的
// 200/206/416 状态机在 stream 包里。
func (h *APIHandler) StreamTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := pathID(r, "trackId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid track id")
		return
	}

	ctx := r.Context()

	meta, err := db.GetTrackMeta(ctx, trackID)
	if err != nil {
		logger.Warn("track meta cache lookup failed",
			logger.Int64("trackId", trackID), logger.ErrorField(err))
	}
	if meta == nil {
		track, err := h.trackRepo.GetTrackByID(ctx, trackID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to load track")
			return
		}
		if track == nil {
			respondError(w, http.StatusNotFound, "Track not found")
			return
		}
		meta = &db.TrackMeta{
			TrackID:   track.ID,
			FilePath:  track.FilePath,
			SizeBytes: track.SizeBytes,
		}
		if err := db.CacheTrackMeta(ctx, *meta); err != nil {
			logger.Warn("failed to cache track meta",
				logger.Int64("trackId", trackID), logger.ErrorField(err))
		}
	}

	// A row pointing at a missing file means the asset was removed out of
	// band; drop the stale cache entry too.
	if _, err := os.Stat(meta.FilePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if cerr := db.InvalidateTrackMeta(ctx, trackID); cerr != nil {
				logger.Warn("failed to invalidate track cache", logger.ErrorField(cerr))
			}
			respondError(w, http.StatusNotFound, "Track file not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to open track file")
		return
	}

	if err := h.streamer.Serve(w, r, meta.FilePath, meta.SizeBytes); err != nil {
		if errors.Is(err, stream.ErrUnsatisfiableRange) {
			// 响应已写出（416），这里只记录
			logger.Debug("unsatisfiable range request",
				logger.Int64("trackId", trackID),
				logger.String("range", r.Header.Get("Range")))
			return
		}
		// Headers may already be sent; nothing more to write.
		logger.Warn("stream aborted",
			logger.Int64("trackId", trackID), logger.ErrorField(err))
	}
}
