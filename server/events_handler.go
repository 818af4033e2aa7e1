package server

import (
	"net/http"

	"resonate/core/auth"
	"resonate/core/events"
	"resonate/logger"

	"github.com/gorilla/websocket"
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// IngestEventsHandler 升级为 WebSocket 并订阅当前用户的摄取进度。
// WebSocket 无法通过 header 传递 token，改走查询参数。
func (h *APIHandler) IngestEventsHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusUnauthorized, "Token required")
		return
	}
	claims, err := auth.ParseToken(token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := events.NewClient(h.hub, conn, claims.UserID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
