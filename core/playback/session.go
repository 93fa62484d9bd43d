package playback

import (
	"context"
	"sync"

	"AuraFM/logger"
	"AuraFM/model"
)

// MediaErrorReport 客户端上报的媒体错误
// play() 拒绝带 name/message，媒体元素错误带 code/detail，两者互斥
type MediaErrorReport struct {
	Code    int    `json:"code,omitempty"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Session 单个用户的播放会话，队列、状态机和回退控制器的组合门面
// 所有复合操作经外层互斥量串行化，每次变更后尽力持久化并推送最新快照
type Session struct {
	mu     sync.Mutex
	userID int64
	dash   bool

	queue      *Coordinator
	machine    *Machine
	controller *Controller

	store    SessionStore
	notifier Notifier
}

// NewSession 创建空会话，store 和 notifier 可以为 nil
func NewSession(userID int64, store SessionStore, notifier Notifier, fallbackQuality string) *Session {
	s := &Session{
		userID:   userID,
		store:    store,
		notifier: notifier,
	}
	s.machine = NewMachine(func(trackID int64) {
		// 切曲目时重新武装该曲目的回退守卫
		s.controller.ResetForTrack(trackID)
	})
	s.queue = NewCoordinator(s.machine.CurrentTrack)
	s.controller = NewController(ControllerConfig{
		FallbackQuality:     fallbackQuality,
		Loader:              s.loadFallback,
		OnFallbackRequested: s.notifyFallback,
		CurrentGeneration:   s.machine.Generation,
	})
	return s
}

// SetQueue 整体替换队列
func (s *Session) SetQueue(ctx context.Context, tracks []model.Track, startIndex int) Snapshot {
	s.mu.Lock()
	qs := s.queue.SetQueue(tracks, startIndex)
	s.syncMachineLocked(qs)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap)
	return snap
}

// Enqueue 追加到队尾
func (s *Session) Enqueue(ctx context.Context, track model.Track) Snapshot {
	s.mu.Lock()
	qs := s.queue.Enqueue(track)
	s.syncMachineLocked(qs)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap)
	return snap
}

// EnqueueNext 插入到当前曲目之后
func (s *Session) EnqueueNext(ctx context.Context, track model.Track) Snapshot {
	s.mu.Lock()
	qs := s.queue.EnqueueNext(track)
	s.syncMachineLocked(qs)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap)
	return snap
}

// RemoveFromQueue 按下标移除
func (s *Session) RemoveFromQueue(ctx context.Context, index int) Snapshot {
	s.mu.Lock()
	qs := s.queue.RemoveFromQueue(index)
	s.syncMachineLocked(qs)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap)
	return snap
}

// ClearQueue 清空队列并停止播放
func (s *Session) ClearQueue(ctx context.Context) Snapshot {
	s.mu.Lock()
	qs := s.queue.ClearQueue()
	s.syncMachineLocked(qs)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap)
	return snap
}

// ShuffleQueue 洗牌，当前曲目固定到 0 号位
func (s *Session) ShuffleQueue(ctx context.Context) Snapshot {
	s.mu.Lock()
	qs := s.queue.ShuffleQueue()
	s.syncMachineLocked(qs)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap)
	return snap
}

// Next 切到下一首，末尾不回绕
func (s *Session) Next(ctx context.Context) Snapshot {
	s.mu.Lock()
	qs := s.queue.Next()
	s.syncMachineLocked(qs)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap)
	return snap
}

// Previous 切到上一首，开头不回绕
func (s *Session) Previous(ctx context.Context) Snapshot {
	s.mu.Lock()
	qs := s.queue.Previous()
	s.syncMachineLocked(qs)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap)
	return snap
}

// Apply 派发客户端事件
// 只接受客户端驱动的事件类型，媒体错误走 ReportMediaError
func (s *Session) Apply(ctx context.Context, ev Event) Snapshot {
	switch ev.Type {
	case EventLoadTrack, EventPlay, EventPause, EventStop, EventSeek, EventReset:
	default:
		logger.Debug("忽略非客户端播放事件", logger.String("type", string(ev.Type)))
		return s.Snapshot()
	}

	s.mu.Lock()
	if ev.Type == EventLoadTrack && ev.Track != nil {
		// 加载的曲目在队列里时把游标对齐过去
		s.queue.Select(ev.Track.ID)
	}
	s.machine.Dispatch(ev)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap)
	return snap
}

// ReportMediaError 处理客户端上报的媒体错误
// 中断类错误被吞掉，可回退的错误产出并执行回退提案，其余进入 error 状态
// 无法识别的错误码返回 error，由边界层拒绝
func (s *Session) ReportMediaError(ctx context.Context, report MediaErrorReport) (Snapshot, error) {
	if report.Name != "" {
		playErr := &PlayError{Name: report.Name, Message: report.Message}
		s.machine.Dispatch(Event{Type: EventError, Err: playErr})
		snap := s.Snapshot()
		s.commit(ctx, snap)
		return snap, nil
	}

	code, err := ParseMediaErrCode(report.Code)
	if err != nil {
		return Snapshot{}, err
	}
	mediaErr := &MediaError{Code: code, Detail: report.Detail}

	s.mu.Lock()
	ms := s.machine.State()
	pctx := PlaybackContext{
		DASHActive: s.dash,
		Generation: ms.Generation,
	}
	if ms.Track != nil {
		pctx.TrackID = ms.Track.ID
		pctx.Quality = ms.Track.Quality
	}
	plan := s.controller.PlanFallback(mediaErr, pctx)
	s.mu.Unlock()

	if plan == nil {
		s.machine.Dispatch(Event{Type: EventError, Err: mediaErr})
	} else if err := s.controller.ExecuteFallback(ctx, plan); err != nil {
		logger.Error("执行播放回退失败",
			logger.Int64("trackId", plan.TrackID),
			logger.ErrorField(err))
		s.machine.Dispatch(Event{Type: EventError, Err: mediaErr})
	}

	snap := s.Snapshot()
	s.commit(ctx, snap)
	return snap, nil
}

// SetDASH 标记当前播放是否走 DASH 管线
func (s *Session) SetDASH(ctx context.Context, active bool) Snapshot {
	s.mu.Lock()
	s.dash = active
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.commit(ctx, snap)
	return snap
}

// Snapshot 返回会话当前的完整快照
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// CanPlay 当前是否可以开始播放
func (s *Session) CanPlay() bool { return s.machine.CanPlay() }

// CanPause 当前是否可以暂停
func (s *Session) CanPause() bool { return s.machine.CanPause() }

// IsPlaying 是否正在播放
func (s *Session) IsPlaying() bool { return s.machine.IsPlaying() }

// loadFallback 是回退控制器的加载器：让状态机以回退音质重载当前曲目
func (s *Session) loadFallback(ctx context.Context, plan *FallbackPlan) error {
	s.machine.Dispatch(Event{
		Type:    EventFallbackRequested,
		Quality: plan.Quality,
		Reason:  plan.Reason,
		Token:   plan.Token,
	})
	return nil
}

// notifyFallback 回退发生后的恰好一次通知
func (s *Session) notifyFallback(plan *FallbackPlan) {
	logger.Info("播放回退已触发",
		logger.Int64("userId", s.userID),
		logger.Int64("trackId", plan.TrackID),
		logger.String("quality", plan.Quality),
		logger.String("reason", plan.Reason))
	if s.notifier != nil {
		s.notifier.PublishFallback(s.userID, plan)
	}
}

// syncMachineLocked 让状态机跟随队列游标
// 队列清空时停止播放，当前曲目身份变化时加载新曲目；机器空闲时不自动起播
func (s *Session) syncMachineLocked(qs QueueState) {
	ms := s.machine.State()
	if qs.Current == nil {
		if ms.Track != nil {
			s.machine.Dispatch(Event{Type: EventStop})
		}
		return
	}
	if ms.Track != nil && ms.Track.ID != qs.Current.ID {
		cur := *qs.Current
		s.machine.Dispatch(Event{Type: EventLoadTrack, Track: &cur})
	}
}

// snapshotLocked 把队列和状态机的快照拼成会话镜像
// 机器上有曲目时以它为准，空闲时回落到队列游标指向的曲目
func (s *Session) snapshotLocked() Snapshot {
	qs := s.queue.State()
	ms := s.machine.State()
	snap := Snapshot{
		Queue:      qs.Tracks,
		Index:      qs.Index,
		Current:    qs.Current,
		Status:     ms.Status,
		Position:   ms.Position,
		Error:      ms.Error,
		CanRetry:   ms.CanRetry,
		DASH:       s.dash,
		Generation: ms.Generation,
	}
	if ms.Track != nil {
		snap.Current = ms.Track
	}
	return snap
}

// commit 软校验不变量后尽力持久化并推送快照，存储失败只记日志不阻断播放
func (s *Session) commit(ctx context.Context, snap Snapshot) {
	ValidatePlaybackState(&snap)
	if s.store != nil {
		if err := s.store.Save(ctx, s.userID, &snap); err != nil {
			logger.Warn("保存播放会话失败",
				logger.Int64("userId", s.userID),
				logger.ErrorField(err))
		}
	}
	if s.notifier != nil {
		s.notifier.PublishPlayback(s.userID, &snap)
	}
}

// hydrate 从持久化快照恢复会话
func (s *Session) hydrate(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.SetQueue(snap.Queue, snap.Index)
	s.machine.restore(snap)
	s.dash = snap.DASH
}
