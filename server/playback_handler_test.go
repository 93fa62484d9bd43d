package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AuraFM/model"
)

func queueBody(ids ...int64) map[string]interface{} {
	tracks := make([]model.Track, 0, len(ids))
	for _, id := range ids {
		tracks = append(tracks, model.Track{ID: id, Title: "Track", Artist: "Artist"})
	}
	return map[string]interface{}{"tracks": tracks, "startIndex": 0}
}

func playbackOf(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	require.Equal(t, true, resp["success"])
	snap, ok := resp["playback"].(map[string]interface{})
	require.True(t, ok, "response should carry a playback snapshot")
	return snap
}

func TestSetQueueAndGetPlayback(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	body := queueBody(1, 2, 3)
	body["startIndex"] = 1
	rec, resp := doJSON(t, router, http.MethodPost, "/api/playback/queue", body)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := playbackOf(t, resp)
	assert.Len(t, snap["queue"], 3)
	assert.Equal(t, float64(1), snap["index"])

	rec, resp = doJSON(t, router, http.MethodGet, "/api/playback", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap = playbackOf(t, resp)
	assert.Len(t, snap["queue"], 3)
	assert.Equal(t, float64(1), snap["index"])
}

func TestEnqueueNextInsertsAfterCurrent(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/playback/queue", queueBody(1, 2))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/playback/queue/tracks", map[string]interface{}{
		"track": model.Track{ID: 9, Title: "Inserted"},
		"next":  true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	snap := playbackOf(t, resp)
	queue := snap["queue"].([]interface{})
	require.Len(t, queue, 3)
	second := queue[1].(map[string]interface{})
	assert.Equal(t, float64(9), second["id"])
}

func TestEnqueueRejectsMissingTrackID(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/playback/queue/tracks", map[string]interface{}{
		"track": map[string]interface{}{"title": "No ID"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp["error"], "track.id")
}

func TestRemoveFromQueue(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/playback/queue", queueBody(1, 2, 3))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := doJSON(t, router, http.MethodDelete, "/api/playback/queue/tracks/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := playbackOf(t, resp)
	assert.Len(t, snap["queue"], 2)

	// 越界下标是无操作，不是错误
	rec, resp = doJSON(t, router, http.MethodDelete, "/api/playback/queue/tracks/99", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap = playbackOf(t, resp)
	assert.Len(t, snap["queue"], 2)

	rec, resp = doJSON(t, router, http.MethodDelete, "/api/playback/queue/tracks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp["error"], "index")
}

func TestNextAndPreviousClampAtEdges(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/playback/queue", queueBody(1, 2))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/playback/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), playbackOf(t, resp)["index"])

	// 已在末尾，再前进停在原地
	rec, resp = doJSON(t, router, http.MethodPost, "/api/playback/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), playbackOf(t, resp)["index"])

	rec, resp = doJSON(t, router, http.MethodPost, "/api/playback/previous", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), playbackOf(t, resp)["index"])

	rec, resp = doJSON(t, router, http.MethodPost, "/api/playback/previous", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), playbackOf(t, resp)["index"])
}

func TestPlaybackEventLifecycle(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/playback/events", map[string]interface{}{
		"type":  "load",
		"track": model.Track{ID: 7, Title: "Song"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "loading", playbackOf(t, resp)["status"])

	rec, resp = doJSON(t, router, http.MethodPost, "/api/playback/events", map[string]interface{}{"type": "play"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "playing", playbackOf(t, resp)["status"])

	rec, resp = doJSON(t, router, http.MethodPost, "/api/playback/events", map[string]interface{}{"type": "pause"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paused", playbackOf(t, resp)["status"])

	rec, resp = doJSON(t, router, http.MethodPost, "/api/playback/events", map[string]interface{}{"type": "stop"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", playbackOf(t, resp)["status"])
}

func TestPlaybackEventRejectsBadInput(t *testing.T) {
	h := newTestHandler()
	router := newTestRouter(h, 1)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/playback/events", map[string]interface{}{"type": "rewind"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp["error"], "rewind")

	rec, resp = doJSON(t, router, http.MethodPost, "/api/playback/events", map[string]interface{}{"type": "load"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp["error"], "track")

	rec, resp = doJSON(t, router, http.MethodPost, "/api/playback/events", map[string]interface{}{"type": "error"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp["error"], "error report")
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	h := newTestHandler()
	alice := newTestRouter(h, 1)
	bob := newTestRouter(h, 2)

	rec, _ := doJSON(t, alice, http.MethodPost, "/api/playback/queue", queueBody(1, 2, 3))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := doJSON(t, bob, http.MethodGet, "/api/playback", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, playbackOf(t, resp)["queue"])
}
