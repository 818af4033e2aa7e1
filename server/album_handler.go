package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"resonate/core/events"
	"resonate/core/ident"
	"resonate/core/ingest"
	"resonate/core/media"
	"resonate/db"
	"resonate/logger"
	"resonate/model"

	"github.com/gorilla/mux"
)

// maxUploadMemory bounds the in-memory portion of a multipart parse; larger
// parts spill to temp files.
const maxUploadMemory = 32 << 20

// CreateAlbumHandler 接收一个专辑包（元数据 + 封面 + 音轨）并整体摄取。
// 任一环节失败则回滚全部副作用，客户端只会看到全有或全无。
func (h *APIHandler) CreateAlbumHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	username, _ := GetUsernameFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	bundle := &ingest.Bundle{
		UserID:      userID,
		Username:    username,
		Title:       strings.TrimSpace(r.FormValue("title")),
		Artist:      strings.TrimSpace(r.FormValue("artist")),
		Description: strings.TrimSpace(r.FormValue("description")),
		IsExplicit:  r.FormValue("isExplicit") == "true",
	}

	if artHeaders := r.MultipartForm.File["albumArt"]; len(artHeaders) > 0 {
		file, err := artHeaders[0].Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read album art")
			return
		}
		defer file.Close()
		bundle.Artwork = &ingest.UploadFile{Name: artHeaders[0].Filename, Reader: file}
	}

	trackTitles := r.MultipartForm.Value["trackTitles"]
	trackArtists := r.MultipartForm.Value["trackArtists"]
	for i, header := range r.MultipartForm.File["tracks"] {
		file, err := header.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read track upload")
			return
		}
		defer file.Close()

		track := ingest.UploadTrack{File: ingest.UploadFile{Name: header.Filename, Reader: file}}
		if i < len(trackTitles) {
			track.Title = strings.TrimSpace(trackTitles[i])
		}
		if i < len(trackArtists) {
			track.Artist = strings.TrimSpace(trackArtists[i])
		}
		bundle.Tracks = append(bundle.Tracks, track)
	}

	h.hub.Publish(userID, events.Event{
		Type:   events.EventIngestStarted,
		Detail: bundle.Title,
	})

	result, err := h.pipeline.CreateAlbum(r.Context(), bundle)
	if err != nil {
		h.hub.Publish(userID, events.Event{
			Type:   events.EventIngestFailed,
			Detail: bundle.Title,
		})
		status, message := ingestErrorStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error("album ingestion failed",
				logger.Int64("userId", userID), logger.ErrorField(err))
		}
		respondError(w, status, message)
		return
	}

	h.hub.Publish(userID, events.Event{
		Type:    events.EventIngestCompleted,
		AlbumID: result.AlbumID,
		Detail:  bundle.Title,
	})

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"albumId": result.AlbumID,
		"trackId": result.FirstTrackID(),
	})
}

// ingestErrorStatus maps pipeline failures onto HTTP statuses.
func ingestErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ingest.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, media.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "Album art must be a JPEG or PNG image"
	case errors.Is(err, media.ErrTranscodeFailed):
		return http.StatusUnprocessableEntity, "Audio transcoding failed"
	case errors.Is(err, ident.ErrCapacityExhausted):
		return http.StatusServiceUnavailable, "Identifier space exhausted, try again later"
	default:
		return http.StatusInternalServerError, "Failed to create album"
	}
}

// GetAlbumHandler 公开接口，返回专辑及其音轨
func (h *APIHandler) GetAlbumHandler(w http.ResponseWriter, r *http.Request) {
	albumID, err := pathID(r, "albumId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid album id")
		return
	}

	album, err := h.albumRepo.GetAlbumByID(r.Context(), albumID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load album")
		return
	}
	if album == nil {
		respondError(w, http.StatusNotFound, "Album not found")
		return
	}

	tracks, err := h.trackRepo.GetTracksByAlbumID(r.Context(), albumID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load tracks")
		return
	}

	respondJSON(w, http.StatusOK, model.AlbumWithTracks{Album: *album, Tracks: tracks})
}

// GetUserAlbumsHandler 返回当前用户的全部专辑
func (h *APIHandler) GetUserAlbumsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	albums, err := h.albumRepo.GetAlbumsByUserID(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load albums")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"albums": albums})
}

type updateAlbumRequest struct {
	Title       *string `json:"title"`
	Artist      *string `json:"artist"`
	Description *string `json:"description"`
	IsExplicit  *bool   `json:"isExplicit"`
}

// UpdateAlbumHandler 仅允许专辑拥有者修改元数据
func (h *APIHandler) UpdateAlbumHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	albumID, err := pathID(r, "albumId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid album id")
		return
	}

	album, err := h.albumRepo.GetAlbumByIDAndUserID(r.Context(), albumID, userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load album")
		return
	}
	if album == nil {
		respondError(w, http.StatusNotFound, "Album not found")
		return
	}

	var req updateAlbumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			respondError(w, http.StatusBadRequest, "Title cannot be empty")
			return
		}
		album.Title = strings.TrimSpace(*req.Title)
	}
	if req.Artist != nil {
		if strings.TrimSpace(*req.Artist) == "" {
			respondError(w, http.StatusBadRequest, "Artist cannot be empty")
			return
		}
		album.Artist = strings.TrimSpace(*req.Artist)
	}
	if req.Description != nil {
		album.Description.String = *req.Description
		album.Description.Valid = *req.Description != ""
	}
	if req.IsExplicit != nil {
		album.IsExplicit = *req.IsExplicit
	}

	if err := h.albumRepo.UpdateAlbum(r.Context(), album); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update album")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"album": album})
}

// DeleteAlbumHandler 删除专辑：先清存储资产，再删行。硬删除会把专辑ID
// 和音轨ID放回各自的号段。
func (h *APIHandler) DeleteAlbumHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	albumID, err := pathID(r, "albumId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid album id")
		return
	}

	ctx := r.Context()
	album, err := h.albumRepo.GetAlbumByIDAndUserID(ctx, albumID, userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load album")
		return
	}
	if album == nil {
		respondError(w, http.StatusNotFound, "Album not found")
		return
	}

	tracks, err := h.trackRepo.GetTracksByAlbumID(ctx, albumID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load tracks")
		return
	}

	// Asset removal is best effort: an orphaned file is recoverable, a row
	// pointing at a deleted file is not.
	for _, track := range tracks {
		if err := h.store.Remove(track.FilePath); err != nil {
			logger.Warn("failed to remove track file",
				logger.Int64("trackId", track.ID), logger.ErrorField(err))
		}
		if err := db.InvalidateTrackMeta(ctx, track.ID); err != nil {
			logger.Warn("failed to invalidate track cache",
				logger.Int64("trackId", track.ID), logger.ErrorField(err))
		}
	}
	if album.AlbumArt != "" {
		if err := h.store.Remove(album.AlbumArt); err != nil {
			logger.Warn("failed to remove album art", logger.ErrorField(err))
		}
	}

	if err := h.albumRepo.DeleteAlbum(ctx, albumID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete album")
		return
	}

	logger.Info("album deleted",
		logger.Int64("albumId", albumID), logger.Int64("userId", userID))
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": albumID})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}
