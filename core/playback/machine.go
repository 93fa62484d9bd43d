package playback

import (
	"sync"

	"AuraFM/logger"
	"AuraFM/model"
)

// EventType 状态机事件类型
type EventType string

const (
	EventLoadTrack         EventType = "LOAD_TRACK"
	EventPlay              EventType = "PLAY"
	EventPause             EventType = "PAUSE"
	EventStop              EventType = "STOP"
	EventSeek              EventType = "SEEK"
	EventError             EventType = "ERROR"
	EventReset             EventType = "RESET"
	EventFallbackRequested EventType = "FALLBACK_REQUESTED"
)

// Event 状态机事件，字段按事件类型选用
type Event struct {
	Type     EventType
	Track    *model.Track // LOAD_TRACK
	Position float64      // SEEK
	Err      error        // ERROR
	Quality  string       // FALLBACK_REQUESTED
	Reason   string       // FALLBACK_REQUESTED
	Token    uint64       // FALLBACK_REQUESTED 的 attempt token，0 表示不校验
}

// Machine 播放状态机
// idle → loading → playing ⇄ paused，任何状态出错进入 error，RESET 回到 idle
// 状态只通过 Dispatch 变更，派生查询从当前状态计算，不另存副本
type Machine struct {
	mu         sync.Mutex
	status     Status
	track      *model.Track
	position   float64
	errMsg     string
	canRetry   bool
	generation uint64

	// onTrackLoad 在 LOAD_TRACK 提交后触发，会话用它重置回退守卫
	onTrackLoad func(trackID int64)
}

// NewMachine 创建状态机，onTrackLoad 可以为 nil
func NewMachine(onTrackLoad func(trackID int64)) *Machine {
	return &Machine{
		status:      StatusIdle,
		onTrackLoad: onTrackLoad,
	}
}

// Dispatch 处理一个事件并返回提交后的快照
// 非法时机的事件是空操作而不是错误，合法时机可以用 CanPlay/CanPause 预先查询
func (m *Machine) Dispatch(ev Event) MachineState {
	var loadedID int64
	var fireLoad bool

	m.mu.Lock()
	switch ev.Type {
	case EventLoadTrack:
		if ev.Track == nil {
			break
		}
		t := *ev.Track
		m.status = StatusLoading
		m.track = &t
		m.position = 0
		m.errMsg = ""
		m.canRetry = false
		m.generation++
		loadedID, fireLoad = t.ID, true

	case EventPlay:
		if m.status == StatusLoading || m.status == StatusPaused {
			m.status = StatusPlaying
		}

	case EventPause:
		if m.status == StatusPlaying {
			m.status = StatusPaused
		}

	case EventStop:
		m.status = StatusIdle
		m.track = nil
		m.position = 0
		m.errMsg = ""
		m.canRetry = false

	case EventSeek:
		if m.status == StatusPlaying || m.status == StatusPaused {
			m.position = clampPosition(ev.Position, m.durationLocked())
		}

	case EventError:
		if IsPlayAbortError(ev.Err) {
			// 新加载打断 play() 属于预期中断，吞掉，状态不变
			logger.Debug("忽略播放中断错误", logger.String("error", ev.Err.Error()))
			break
		}
		if ev.Err != nil {
			m.status = StatusError
			m.errMsg = ev.Err.Error()
			m.canRetry = true
		}

	case EventReset:
		if m.status == StatusError {
			m.status = StatusIdle
			m.track = nil
			m.position = 0
			m.errMsg = ""
			m.canRetry = false
		}

	case EventFallbackRequested:
		if ev.Token != 0 && ev.Token != m.generation {
			break
		}
		if m.track != nil {
			t := *m.track
			if ev.Quality != "" {
				t.Quality = ev.Quality
			}
			m.track = &t
			m.status = StatusLoading
			m.position = 0
			m.errMsg = ""
			// 回退属于同一次播放尝试：不重置守卫，也不递增 generation
		}
	}
	st := m.stateLocked()
	m.mu.Unlock()

	if fireLoad && m.onTrackLoad != nil {
		m.onTrackLoad(loadedID)
	}
	return st
}

// CanPlay 当前是否可以开始播放
func (m *Machine) CanPlay() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (m.status == StatusLoading || m.status == StatusPaused) && m.track != nil
}

// CanPause 当前是否可以暂停
func (m *Machine) CanPause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusPlaying
}

// IsPlaying 是否正在播放
func (m *Machine) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusPlaying
}

// CurrentTrack 当前曲目，返回副本
func (m *Machine) CurrentTrack() *model.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.track == nil {
		return nil
	}
	t := *m.track
	return &t
}

// Generation 当前的 attempt token
func (m *Machine) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// State 返回当前快照
func (m *Machine) State() MachineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Machine) stateLocked() MachineState {
	st := MachineState{
		Status:     m.status,
		Position:   m.position,
		Error:      m.errMsg,
		CanRetry:   m.canRetry,
		Generation: m.generation,
	}
	if m.track != nil {
		t := *m.track
		st.Track = &t
	}
	return st
}

// restore 从持久化快照恢复状态
// 进程重启后客户端不可能仍在播放，playing/loading 降级为 paused
func (m *Machine) restore(snap *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation = snap.Generation
	m.position = snap.Position
	m.errMsg = snap.Error
	m.canRetry = snap.CanRetry
	if snap.Current != nil {
		t := *snap.Current
		m.track = &t
	} else {
		m.track = nil
	}

	switch snap.Status {
	case StatusPlaying, StatusLoading:
		if m.track != nil {
			m.status = StatusPaused
		} else {
			m.status = StatusIdle
		}
	case StatusPaused:
		if m.track != nil {
			m.status = StatusPaused
		} else {
			m.status = StatusIdle
		}
	default:
		m.status = snap.Status
	}
}

func (m *Machine) durationLocked() float64 {
	if m.track == nil {
		return 0
	}
	return m.track.Duration
}

func clampPosition(pos, duration float64) float64 {
	if pos < 0 {
		return 0
	}
	if duration > 0 && pos > duration {
		return duration
	}
	return pos
}
