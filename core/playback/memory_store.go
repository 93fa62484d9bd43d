package playback

import (
	"context"
	"sync"

	"AuraFM/model"
)

// MemorySessionStore 进程内会话存储，Redis 未启用时的退化实现
type MemorySessionStore struct {
	mu    sync.RWMutex
	snaps map[int64]*Snapshot
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{snaps: make(map[int64]*Snapshot)}
}

func (s *MemorySessionStore) Load(ctx context.Context, userID int64) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[userID]
	if !ok {
		return nil, nil
	}
	return cloneSnapshot(snap), nil
}

func (s *MemorySessionStore) Save(ctx context.Context, userID int64, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[userID] = cloneSnapshot(snap)
	return nil
}

// cloneSnapshot 深拷贝快照，避免存储与会话共享底层切片
func cloneSnapshot(snap *Snapshot) *Snapshot {
	if snap == nil {
		return nil
	}
	out := *snap
	if snap.Queue != nil {
		out.Queue = make([]model.Track, len(snap.Queue))
		copy(out.Queue, snap.Queue)
	}
	if snap.Current != nil {
		cur := *snap.Current
		out.Current = &cur
	}
	return &out
}
