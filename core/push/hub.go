package push

import (
	"encoding/json"
	"sync"
	"time"

	"AuraFM/core/playback"
	"AuraFM/logger"
	"AuraFM/model"
)

// 推送事件类型
const (
	EventJobUpdate = "job_update" // 下载任务状态变更
	EventFallback  = "fallback"   // 播放回退已触发
	EventPlayback  = "playback"   // 播放会话快照变更
)

// Event WebSocket 推送消息结构
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Hub 按用户管理 WebSocket 连接并推送事件
// 同一用户允许多个连接（多开页面），事件发给该用户的所有连接
type Hub struct {
	mu    sync.RWMutex
	users map[int64]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub 创建推送中心
func NewHub() *Hub {
	return &Hub{
		users:      make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	close(h.done)
}

// Register 注册客户端连接
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端连接
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// PublishJobUpdate 推送下载任务状态变更，实现 download.JobNotifier
func (h *Hub) PublishJobUpdate(userID int64, job *model.DownloadJob) {
	h.publish(userID, &Event{Type: EventJobUpdate, Data: job})
}

// PublishPlayback 推送播放会话快照，实现 playback.Notifier
func (h *Hub) PublishPlayback(userID int64, snap *playback.Snapshot) {
	h.publish(userID, &Event{Type: EventPlayback, Data: snap})
}

// PublishFallback 推送回退触发事件，实现 playback.Notifier
func (h *Hub) PublishFallback(userID int64, plan *playback.FallbackPlan) {
	h.publish(userID, &Event{Type: EventFallback, Data: plan})
}

func (h *Hub) publish(userID int64, event *Event) {
	event.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("推送事件序列化失败",
			logger.String("type", event.Type),
			logger.ErrorField(err))
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.users[userID]))
	for client := range h.users[userID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// 发送缓冲满视为连接已死，异步注销避免阻塞发布方
			go h.Unregister(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.users[client.userID] == nil {
		h.users[client.userID] = make(map[*Client]bool)
	}
	h.users[client.userID][client] = true

	logger.Info("推送连接已建立",
		logger.Int64("user", client.userID),
		logger.Int("connections", len(h.users[client.userID])))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.users[client.userID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.users, client.userID)
	}

	logger.Info("推送连接已断开", logger.Int64("user", client.userID))
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.users {
		for client := range clients {
			close(client.send)
		}
	}
	h.users = make(map[int64]map[*Client]bool)
}

// ConnectionCount 用户当前的连接数
func (h *Hub) ConnectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}
