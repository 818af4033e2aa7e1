package server

import (
	"errors"
	"net/http"

	"resonate/logger"
	"resonate/storage"

	"github.com/gorilla/mux"
)

// ImageHandler 提供按目录白名单的公共文件读取。目录集合与存储布局一致，
// 路径合法性由 storage 层把关。
func (h *APIHandler) ImageHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	category := storage.Category(vars["category"])
	name := vars["name"]

	path, err := h.store.PublicPath(category, name)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidCategory):
			respondError(w, http.StatusBadRequest, "Unknown image category")
		case errors.Is(err, storage.ErrInvalidPath):
			respondError(w, http.StatusBadRequest, "Invalid file name")
		default:
			logger.Error("image path resolution failed", logger.ErrorField(err))
			respondError(w, http.StatusInternalServerError, "Failed to resolve image")
		}
		return
	}

	// http.ServeFile handles Content-Type, ranges and 404 for missing files.
	http.ServeFile(w, r, path)
}
