package playback

import (
	"context"
	"sync"

	"AuraFM/logger"
)

// SessionManager 按用户缓存播放会话，首次访问时从存储恢复
type SessionManager struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	store           SessionStore
	notifier        Notifier
	fallbackQuality string
}

// NewSessionManager 创建会话管理器
func NewSessionManager(store SessionStore, notifier Notifier, fallbackQuality string) *SessionManager {
	return &SessionManager{
		sessions:        make(map[int64]*Session),
		store:           store,
		notifier:        notifier,
		fallbackQuality: fallbackQuality,
	}
}

// Session 返回用户的会话，不存在时先尝试从存储恢复，恢复失败则新建空会话
func (m *SessionManager) Session(ctx context.Context, userID int64) *Session {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return s
	}
	m.mu.Unlock()

	// 恢复在锁外做，存储往返不阻塞其他用户
	var snap *Snapshot
	if m.store != nil {
		var err error
		snap, err = m.store.Load(ctx, userID)
		if err != nil {
			logger.Warn("恢复播放会话失败，新建空会话",
				logger.Int64("userId", userID),
				logger.ErrorField(err))
			snap = nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s
	}
	s := NewSession(userID, m.store, m.notifier, m.fallbackQuality)
	if snap != nil {
		s.hydrate(snap)
	}
	m.sessions[userID] = s
	return s
}
