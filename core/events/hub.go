package events

import (
	"encoding/json"
	"sync"
	"time"

	"resonate/logger"

	"github.com/gorilla/websocket"
)

// EventType 事件类型
type EventType string

const (
	EventIngestStarted   EventType = "ingest_started"   // 专辑开始处理
	EventArtworkCleaned  EventType = "artwork_cleaned"  // 封面清洗完成
	EventTrackTranscoded EventType = "track_transcoded" // 单曲转码完成
	EventIngestCompleted EventType = "ingest_completed" // 专辑处理完成
	EventIngestFailed    EventType = "ingest_failed"    // 专辑处理失败
)

// Event 推送给上传者的进度事件
type Event struct {
	Type      EventType       `json:"type"`
	AlbumID   int64           `json:"albumId,omitempty"`
	TrackID   int64           `json:"trackId,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client 一个已连接的上传者
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID int64
}

// NewClient wraps an upgraded connection. The caller starts the pumps.
func NewClient(hub *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 64),
		userID: userID,
	}
}

// Hub 按用户分发摄取进度事件
type Hub struct {
	// 用户 -> 客户端集合（同一用户可开多个标签页）
	clients map[int64]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	publish    chan *targetedEvent

	mu   sync.RWMutex
	done chan struct{}
}

type targetedEvent struct {
	userID  int64
	payload []byte
}

// NewHub 创建事件中心
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan *targetedEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case evt := <-h.publish:
			h.deliver(evt)
		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止主循环并断开所有客户端
func (h *Hub) Stop() {
	close(h.done)
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish 向某个用户的全部连接推送一条事件。无人在线时静默丢弃。
func (h *Hub) Publish(userID int64, evt Event) {
	evt.Timestamp = time.Now().UnixMilli()
	payload, err := json.Marshal(evt)
	if err != nil {
		logger.Warn("failed to marshal ingest event", logger.ErrorField(err))
		return
	}
	select {
	case h.publish <- &targetedEvent{userID: userID, payload: payload}:
	case <-h.done:
	default:
		logger.Warn("ingest event queue full, dropping event",
			logger.Int64("userId", userID), logger.String("type", string(evt.Type)))
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true

	logger.Info("ingest event client connected", logger.Int64("userId", client.userID))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.clients[client.userID]; ok {
		if _, ok := set[client]; ok {
			delete(set, client)
			close(client.send)
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		}
	}
}

func (h *Hub) deliver(evt *targetedEvent) {
	h.mu.RLock()
	set, ok := h.clients[evt.userID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	clientList := make([]*Client, 0, len(set))
	for client := range set {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		select {
		case client.send <- evt.payload:
		default:
			// 发送缓冲区满，直接移除该连接。deliver 运行在 Run 的
			// 主循环里，不能再往 unregister 通道发，否则自己堵死自己。
			h.removeClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, set := range h.clients {
		for client := range set {
			close(client.send)
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WritePump 将事件写入连接，定期发送心跳
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump 消费入站帧。客户端不发业务消息，读循环只维护心跳和关闭检测。
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
