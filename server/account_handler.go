package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"resonate/core/auth"
	"resonate/core/ident"
	"resonate/logger"
	"resonate/model"
	"resonate/repository"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"` // username or email
	Password   string `json:"password"`
}

type authResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// RegisterHandler 用户注册。用户ID由分配器在六位号段内随机分配。
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || len(req.Password) < 6 {
		respondError(w, http.StatusBadRequest, "Username, email and a password of at least 6 characters are required")
		return
	}

	ctx := r.Context()

	// Friendlier errors than a raw duplicate-key failure.
	if existing, err := h.userRepo.GetUserByUsername(ctx, req.Username); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to check username")
		return
	} else if existing != nil {
		respondError(w, http.StatusConflict, "Username already taken")
		return
	}
	if existing, err := h.userRepo.GetUserByEmail(ctx, req.Email); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to check email")
		return
	} else if existing != nil {
		respondError(w, http.StatusConflict, "Email already registered")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("[Register] 密码哈希失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}
	userID, err := h.userAlloc.AllocateAndInsert(ctx, func(ctx context.Context, id int64) error {
		user.ID = id
		return h.userRepo.CreateUser(ctx, user)
	})
	if err != nil {
		if errors.Is(err, ident.ErrCapacityExhausted) {
			respondError(w, http.StatusServiceUnavailable, "User id space exhausted")
			return
		}
		// 与预检查并发注册同名/同邮箱时，唯一索引在插入时才拒绝。
		if repository.IsDuplicateEntry(err) {
			respondError(w, http.StatusConflict, "Username or email already taken")
			return
		}
		logger.Error("[Register] 创建用户失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	// 生成JWT token
	token, err := auth.GenerateToken(userID, user.Username)
	if err != nil {
		logger.Error("[Register] 生成Token失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	logger.Info("user registered",
		logger.Int64("userId", userID),
		logger.String("username", user.Username))
	respondJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

// LoginHandler 用户登录，支持用户名或邮箱
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Identifier and password are required")
		return
	}

	ctx := r.Context()
	user, err := h.userRepo.GetUserByUsername(ctx, req.Identifier)
	if err == nil && user == nil && strings.Contains(req.Identifier, "@") {
		user, err = h.userRepo.GetUserByEmail(ctx, req.Identifier)
	}
	if err != nil {
		logger.Error("[Login] 查询用户失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	// 生成JWT token
	token, err := auth.GenerateToken(user.ID, user.Username)
	if err != nil {
		logger.Error("[Login] 生成Token失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}
