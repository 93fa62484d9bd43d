package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"AuraFM/config"
	"AuraFM/core/auth"
	"AuraFM/core/catalog"
	"AuraFM/core/download"
	"AuraFM/core/playback"
	"AuraFM/core/push"
	"AuraFM/logger"
	"AuraFM/repository"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg         *config.Config
	userRepo    repository.UserRepository
	libraryRepo repository.LibraryRepository
	historyRepo repository.HistoryRepository
	sessions    *playback.SessionManager
	downloads   *download.Manager
	catalog     *catalog.Client
	hub         *push.Hub
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	cfg *config.Config,
	userRepo repository.UserRepository,
	libraryRepo repository.LibraryRepository,
	historyRepo repository.HistoryRepository,
	sessions *playback.SessionManager,
	downloads *download.Manager,
	catalogClient *catalog.Client,
	hub *push.Hub,
) *APIHandler {
	return &APIHandler{
		cfg:         cfg,
		userRepo:    userRepo,
		libraryRepo: libraryRepo,
		historyRepo: historyRepo,
		sessions:    sessions,
		downloads:   downloads,
		catalog:     catalogClient,
		hub:         hub,
	}
}

// respondJSON 写出JSON响应
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("写出响应失败", logger.ErrorField(err))
	}
}

// respondError 按统一信封写出错误响应
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

type contextKey string

const (
	contextKeyUserID   contextKey = "userID"
	contextKeyUsername contextKey = "username"
)

// AuthMiddleware 校验 Bearer token 并把用户信息放进请求上下文
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := auth.ParseToken(h.cfg, parts[1])
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUserID, claims.UserID)
		ctx = context.WithValue(ctx, contextKeyUsername, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(contextKeyUserID).(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context.
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value(contextKeyUsername).(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}
