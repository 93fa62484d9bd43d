package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AuraFM/config"
	"AuraFM/core/download"
	"AuraFM/core/playback"
)

func newTestHandler() *APIHandler {
	cfg := &config.Config{FallbackQuality: "standard"}
	sessions := playback.NewSessionManager(playback.NewMemorySessionStore(), nil, cfg.FallbackQuality)
	downloads := download.NewManager(download.ManagerConfig{}, download.ManagerDeps{
		Store: download.NewMemoryJobStore(),
	})
	return NewAPIHandler(cfg, nil, nil, nil, sessions, downloads, nil, nil)
}

// withUser 绕过JWT中间件，直接把用户身份写进请求上下文
func withUser(userID int64, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextKeyUserID, userID)
		ctx = context.WithValue(ctx, contextKeyUsername, "tester")
		next(w, r.WithContext(ctx))
	}
}

func newTestRouter(h *APIHandler, userID int64) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/download-queue", withUser(userID, h.SubmitDownloadHandler)).Methods(http.MethodPost)
	r.HandleFunc("/api/download-queue", withUser(userID, h.ListDownloadsHandler)).Methods(http.MethodGet)
	r.HandleFunc("/api/download-queue/{jobId}", withUser(userID, h.GetDownloadHandler)).Methods(http.MethodGet)
	r.HandleFunc("/api/download-queue/{jobId}", withUser(userID, h.CancelDownloadHandler)).Methods(http.MethodDelete)

	r.HandleFunc("/api/playback", withUser(userID, h.GetPlaybackHandler)).Methods(http.MethodGet)
	r.HandleFunc("/api/playback/queue", withUser(userID, h.SetQueueHandler)).Methods(http.MethodPost)
	r.HandleFunc("/api/playback/queue", withUser(userID, h.ClearQueueHandler)).Methods(http.MethodDelete)
	r.HandleFunc("/api/playback/queue/tracks", withUser(userID, h.EnqueueHandler)).Methods(http.MethodPost)
	r.HandleFunc("/api/playback/queue/tracks/{index}", withUser(userID, h.RemoveFromQueueHandler)).Methods(http.MethodDelete)
	r.HandleFunc("/api/playback/queue/shuffle", withUser(userID, h.ShuffleQueueHandler)).Methods(http.MethodPost)
	r.HandleFunc("/api/playback/next", withUser(userID, h.NextTrackHandler)).Methods(http.MethodPost)
	r.HandleFunc("/api/playback/previous", withUser(userID, h.PreviousTrackHandler)).Methods(http.MethodPost)
	r.HandleFunc("/api/playback/events", withUser(userID, h.PlaybackEventHandler)).Methods(http.MethodPost)
	return r
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestSubmitDownloadValidation(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
		wantSubstr string
	}{
		{
			name:       "missing trackId",
			body:       map[string]interface{}{"type": "track", "quality": "lossless"},
			wantStatus: http.StatusBadRequest,
			wantSubstr: "trackId",
		},
		{
			name:       "missing quality",
			body:       map[string]interface{}{"type": "track", "trackId": 42},
			wantStatus: http.StatusBadRequest,
			wantSubstr: "quality",
		},
		{
			name:       "missing albumId",
			body:       map[string]interface{}{"type": "album", "quality": "lossless"},
			wantStatus: http.StatusBadRequest,
			wantSubstr: "albumId",
		},
		{
			name:       "unknown type",
			body:       map[string]interface{}{"type": "playlist", "quality": "lossless"},
			wantStatus: http.StatusBadRequest,
			wantSubstr: "type",
		},
		{
			name:       "unknown quality",
			body:       map[string]interface{}{"type": "track", "trackId": 42, "quality": "ultra"},
			wantStatus: http.StatusBadRequest,
			wantSubstr: "quality",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := doJSON(t, router, http.MethodPost, "/api/download-queue", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, false, resp["success"])
			assert.Contains(t, resp["error"], tt.wantSubstr)
		})
	}
}

func TestSubmitDownloadSuccess(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/download-queue", map[string]interface{}{
		"type":    "track",
		"trackId": 42,
		"quality": "lossless",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, resp["success"])
	jobID, _ := resp["jobId"].(string)
	require.NotEmpty(t, jobID)

	rec, resp = doJSON(t, router, http.MethodGet, "/api/download-queue/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job := resp["job"].(map[string]interface{})
	assert.Equal(t, "queued", job["status"])
	assert.Equal(t, float64(42), job["trackId"])
}

func TestSubmitDownloadDuplicate(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	body := map[string]interface{}{
		"type":           "track",
		"trackId":        42,
		"quality":        "lossless",
		"checkDuplicate": true,
	}
	rec, _ := doJSON(t, router, http.MethodPost, "/api/download-queue", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/download-queue", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, resp["success"])
}

func TestGetDownloadNotFound(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/download-queue/no-such-job", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, resp["success"])
}

func TestDownloadOwnership(t *testing.T) {
	h := newTestHandler()
	owner := newTestRouter(h, 1)
	other := newTestRouter(h, 2)

	rec, resp := doJSON(t, owner, http.MethodPost, "/api/download-queue", map[string]interface{}{
		"type":    "track",
		"trackId": 42,
		"quality": "lossless",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := resp["jobId"].(string)

	// 其他用户看不到这个任务，404 而不是 403，避免泄露任务是否存在
	rec, _ = doJSON(t, other, http.MethodGet, "/api/download-queue/"+jobID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, other, http.MethodDelete, "/api/download-queue/"+jobID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelDownload(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/download-queue", map[string]interface{}{
		"type":    "track",
		"trackId": 42,
		"quality": "lossless",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := resp["jobId"].(string)

	rec, resp = doJSON(t, router, http.MethodDelete, "/api/download-queue/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])

	// 已终结的任务再次取消是状态冲突
	rec, resp = doJSON(t, router, http.MethodDelete, "/api/download-queue/"+jobID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, resp["success"])
}

func TestListDownloadsFiltersByStatus(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	for _, trackID := range []int{11, 12} {
		rec, _ := doJSON(t, router, http.MethodPost, "/api/download-queue", map[string]interface{}{
			"type":    "track",
			"trackId": trackID,
			"quality": "lossless",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, resp := doJSON(t, router, http.MethodGet, "/api/download-queue?status=queued", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp["jobs"], 2)

	rec, resp = doJSON(t, router, http.MethodGet, "/api/download-queue?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp["jobs"])
}
