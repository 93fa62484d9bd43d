package playback

import (
	"encoding/json"
	"fmt"

	"AuraFM/model"
)

// Status 播放状态机的状态
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusPlaying
	StatusPaused
	StatusError
)

var statusNames = map[Status]string{
	StatusIdle:    "idle",
	StatusLoading: "loading",
	StatusPlaying: "playing",
	StatusPaused:  "paused",
	StatusError:   "error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ParseStatus 从字符串解析状态，未知值返回错误
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return StatusIdle, fmt.Errorf("unknown playback status: %q", name)
}

// MarshalJSON 以小写名称序列化状态
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON 从小写名称反序列化状态
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// QueueState 队列协调器对外可见的快照
type QueueState struct {
	Tracks  []model.Track `json:"tracks"`
	Index   int           `json:"index"`
	Current *model.Track  `json:"current,omitempty"`
}

// MachineState 状态机对外可见的快照
type MachineState struct {
	Status     Status       `json:"status"`
	Track      *model.Track `json:"track,omitempty"`
	Position   float64      `json:"position"`
	Error      string       `json:"error,omitempty"`
	CanRetry   bool         `json:"canRetry,omitempty"`
	Generation uint64       `json:"generation"`
}

// Snapshot 整个播放会话的持久化镜像，经会话存储落盘并在重启后恢复
type Snapshot struct {
	Queue      []model.Track `json:"queue"`
	Index      int           `json:"index"`
	Current    *model.Track  `json:"current,omitempty"`
	Status     Status        `json:"status"`
	Position   float64       `json:"position"`
	Error      string        `json:"error,omitempty"`
	CanRetry   bool          `json:"canRetry,omitempty"`
	DASH       bool          `json:"dash,omitempty"`
	Generation uint64        `json:"generation"`
}
