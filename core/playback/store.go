package playback

import "context"

// SessionStore 会话快照的窄持久化接口
// 存储故障（配额、损坏、连接断开）在实现内部收敛为 error，只在这一层处理一次
type SessionStore interface {
	// Load 读取用户的会话快照，不存在时返回 (nil, nil)
	Load(ctx context.Context, userID int64) (*Snapshot, error)
	// Save 覆盖写入用户的会话快照
	Save(ctx context.Context, userID int64, snap *Snapshot) error
}

// Notifier 向客户端推送播放侧事件
type Notifier interface {
	PublishPlayback(userID int64, snap *Snapshot)
	PublishFallback(userID int64, plan *FallbackPlan)
}
