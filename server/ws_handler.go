package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"AuraFM/core/auth"
	"AuraFM/core/push"
	"AuraFM/logger"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketHandler GET /api/ws?token=...
// 浏览器的WebSocket拿不到自定义请求头，token 走查询参数
func (h *APIHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusUnauthorized, "token query parameter is required")
		return
	}

	claims, err := auth.ParseToken(h.cfg, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := push.NewClient(h.hub, conn, claims.UserID)
	h.hub.Register(client)

	logger.Debug("websocket client connected", logger.Int64("userId", claims.UserID))
	go client.WritePump()
	go client.ReadPump()
}
