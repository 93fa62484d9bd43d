package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"AuraFM/core/download"
	"AuraFM/logger"
)

// SubmitDownloadRequest 下载任务提交请求体
type SubmitDownloadRequest struct {
	Type           string `json:"type"`
	TrackID        int64  `json:"trackId,omitempty"`
	AlbumID        int64  `json:"albumId,omitempty"`
	Quality        string `json:"quality"`
	Destination    string `json:"destination,omitempty"`
	Priority       int    `json:"priority,omitempty"`
	MaxRetries     *int   `json:"maxRetries,omitempty"`
	CheckDuplicate bool   `json:"checkDuplicate,omitempty"`
}

// SubmitDownloadHandler POST /api/download-queue
func (h *APIHandler) SubmitDownloadHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SubmitDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.downloads.Submit(r.Context(), download.SubmitRequest{
		UserID:         userID,
		Type:           req.Type,
		TrackID:        req.TrackID,
		AlbumID:        req.AlbumID,
		Quality:        req.Quality,
		Destination:    req.Destination,
		Priority:       req.Priority,
		MaxRetries:     req.MaxRetries,
		CheckDuplicate: req.CheckDuplicate,
	})
	if err != nil {
		h.respondDownloadError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"jobId":   job.ID,
		"job":     job,
	})
}

// ListDownloadsHandler GET /api/download-queue?status=...
func (h *APIHandler) ListDownloadsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	jobs, err := h.downloads.List(r.Context(), userID, r.URL.Query().Get("status"))
	if err != nil {
		h.respondDownloadError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"jobs":    jobs,
	})
}

// GetDownloadHandler GET /api/download-queue/{jobId}
func (h *APIHandler) GetDownloadHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	jobID := mux.Vars(r)["jobId"]
	job, err := h.downloads.Get(r.Context(), userID, jobID)
	if err != nil {
		h.respondDownloadError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"job":     job,
	})
}

// CancelDownloadHandler DELETE /api/download-queue/{jobId}
// 协作式取消：排队任务立刻终结，处理中任务由工作协程在下个检查点观察到终态
func (h *APIHandler) CancelDownloadHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	jobID := mux.Vars(r)["jobId"]
	if err := h.downloads.Cancel(r.Context(), userID, jobID); err != nil {
		h.respondDownloadError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// respondDownloadError 把下载域的哨兵错误映射为HTTP状态码
func (h *APIHandler) respondDownloadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, download.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, download.ErrJobNotFound):
		respondError(w, http.StatusNotFound, "download job not found")
	case errors.Is(err, download.ErrDuplicateJob):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, download.ErrStatusConflict):
		respondError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("下载队列请求失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
