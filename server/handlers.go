package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"resonate/config"
	"resonate/core/auth"
	"resonate/core/events"
	"resonate/core/ingest"
	"resonate/core/stream"
	"resonate/logger"
	"resonate/repository"
	"resonate/storage"
)

type contextKey string

const (
	ctxKeyUserID   contextKey = "userID"
	ctxKeyUsername contextKey = "username"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	userRepo    repository.UserRepository
	albumRepo   repository.AlbumRepository
	trackRepo   repository.TrackRepository
	profileRepo repository.ProfileRepository
	pipeline    *ingest.Pipeline
	streamer    *stream.Streamer
	store       *storage.Store
	hub         *events.Hub
	userAlloc   userAllocator
	cfg         *config.Config
}

// userAllocator is the slice of the id allocator the account handlers need.
type userAllocator interface {
	AllocateAndInsert(ctx context.Context, insert func(ctx context.Context, id int64) error) (int64, error)
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	userRepo repository.UserRepository,
	albumRepo repository.AlbumRepository,
	trackRepo repository.TrackRepository,
	profileRepo repository.ProfileRepository,
	pipeline *ingest.Pipeline,
	streamer *stream.Streamer,
	store *storage.Store,
	hub *events.Hub,
	userAlloc userAllocator,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		userRepo:    userRepo,
		albumRepo:   albumRepo,
		trackRepo:   trackRepo,
		profileRepo: profileRepo,
		pipeline:    pipeline,
		streamer:    streamer,
		store:       store,
		hub:         hub,
		userAlloc:   userAlloc,
		cfg:         cfg,
	}
}

// respondJSON writes v as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

// respondError writes a JSON error body.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// AuthMiddleware is a middleware function that checks for a valid JWT token.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		// Parse and validate the token
		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxKeyUsername, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext 从请求上下文中取出已认证的用户ID
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKeyUserID).(int64)
	return id, ok
}

// GetUsernameFromContext 从请求上下文中取出已认证的用户名
func GetUsernameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(ctxKeyUsername).(string)
	return name, ok
}
