package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"AuraFM/core/playback"
	"AuraFM/model"
)

// GetPlaybackHandler GET /api/playback
func (h *APIHandler) GetPlaybackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session := h.sessions.Session(r.Context(), userID)
	respondSnapshot(w, session.Snapshot())
}

// SetQueueRequest 整体替换队列的请求体
type SetQueueRequest struct {
	Tracks     []model.Track `json:"tracks"`
	StartIndex int           `json:"startIndex"`
}

// SetQueueHandler POST /api/playback/queue
func (h *APIHandler) SetQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SetQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session := h.sessions.Session(r.Context(), userID)
	respondSnapshot(w, session.SetQueue(r.Context(), req.Tracks, req.StartIndex))
}

// EnqueueRequest 入队请求体，next 为 true 时插到当前曲目之后
type EnqueueRequest struct {
	Track model.Track `json:"track"`
	Next  bool        `json:"next,omitempty"`
}

// EnqueueHandler POST /api/playback/queue/tracks
func (h *APIHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Track.ID <= 0 {
		respondError(w, http.StatusBadRequest, "track.id is required")
		return
	}

	session := h.sessions.Session(r.Context(), userID)
	var snap playback.Snapshot
	if req.Next {
		snap = session.EnqueueNext(r.Context(), req.Track)
	} else {
		snap = session.Enqueue(r.Context(), req.Track)
	}
	respondSnapshot(w, snap)
}

// RemoveFromQueueHandler DELETE /api/playback/queue/tracks/{index}
// 越界下标按协调器语义降级为无操作，返回当前快照而不是错误
func (h *APIHandler) RemoveFromQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid queue index")
		return
	}

	session := h.sessions.Session(r.Context(), userID)
	respondSnapshot(w, session.RemoveFromQueue(r.Context(), index))
}

// ClearQueueHandler DELETE /api/playback/queue
func (h *APIHandler) ClearQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session := h.sessions.Session(r.Context(), userID)
	respondSnapshot(w, session.ClearQueue(r.Context()))
}

// ShuffleQueueHandler POST /api/playback/queue/shuffle
func (h *APIHandler) ShuffleQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session := h.sessions.Session(r.Context(), userID)
	respondSnapshot(w, session.ShuffleQueue(r.Context()))
}

// NextTrackHandler POST /api/playback/next
func (h *APIHandler) NextTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session := h.sessions.Session(r.Context(), userID)
	respondSnapshot(w, session.Next(r.Context()))
}

// PreviousTrackHandler POST /api/playback/previous
func (h *APIHandler) PreviousTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session := h.sessions.Session(r.Context(), userID)
	respondSnapshot(w, session.Previous(r.Context()))
}

// PlaybackEventRequest 客户端上报的播放事件
type PlaybackEventRequest struct {
	Type     string                     `json:"type"`
	Track    *model.Track               `json:"track,omitempty"`
	Position float64                    `json:"position,omitempty"`
	Error    *playback.MediaErrorReport `json:"error,omitempty"`
	DASH     *bool                      `json:"dash,omitempty"`
}

// eventTypes 客户端事件名到状态机事件的映射
var eventTypes = map[string]playback.EventType{
	"load":  playback.EventLoadTrack,
	"play":  playback.EventPlay,
	"pause": playback.EventPause,
	"stop":  playback.EventStop,
	"seek":  playback.EventSeek,
	"reset": playback.EventReset,
}

// PlaybackEventHandler POST /api/playback/events
// 媒体错误先过回退控制器，其余事件直接派发给状态机
func (h *APIHandler) PlaybackEventHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req PlaybackEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session := h.sessions.Session(r.Context(), userID)
	if req.DASH != nil {
		session.SetDASH(r.Context(), *req.DASH)
	}

	if req.Type == "error" {
		if req.Error == nil {
			respondError(w, http.StatusBadRequest, "error report is required for error events")
			return
		}
		snap, err := session.ReportMediaError(r.Context(), *req.Error)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondSnapshot(w, snap)
		return
	}

	evType, ok := eventTypes[req.Type]
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown event type: "+req.Type)
		return
	}
	if evType == playback.EventLoadTrack && req.Track == nil {
		respondError(w, http.StatusBadRequest, "track is required for load events")
		return
	}

	snap := session.Apply(r.Context(), playback.Event{
		Type:     evType,
		Track:    req.Track,
		Position: req.Position,
	})
	respondSnapshot(w, snap)
}

func respondSnapshot(w http.ResponseWriter, snap playback.Snapshot) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"playback": snap,
	})
}
