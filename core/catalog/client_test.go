package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AuraFM/model"
)

// catalogStub 可编程的上游曲库假服务
type catalogStub struct {
	mu          sync.Mutex
	available   map[string]bool // level -> 是否有货
	levelsAsked []string
	detailHits  int
	mediaBytes  []byte
	lastAuth    string
}

func newCatalogStub() *catalogStub {
	return &catalogStub{
		available:  map[string]bool{},
		mediaBytes: []byte("audio-bytes"),
	}
}

func (s *catalogStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.lastAuth = r.Header.Get("Authorization")
		s.mu.Unlock()

		switch r.URL.Path {
		case "/track/url":
			level := r.URL.Query().Get("level")
			s.mu.Lock()
			s.levelsAsked = append(s.levelsAsked, level)
			ok := s.available[level]
			s.mu.Unlock()

			if !ok {
				fmt.Fprintf(w, `{"code":200,"data":[{"id":5,"url":""}]}`)
				return
			}
			typ := "MP3"
			if model.IsLosslessQuality(level) {
				typ = "FLAC"
			}
			fmt.Fprintf(w, `{"code":200,"data":[{"id":5,"url":"http://%s/media/5","level":%q,"type":%q,"size":1024}]}`,
				r.Host, level, typ)

		case "/track/detail":
			s.mu.Lock()
			s.detailHits++
			s.mu.Unlock()
			fmt.Fprint(w, `{"code":200,"tracks":[{"id":5,"name":"Nightfall","artists":[{"name":"Aurora"}],"album":{"id":9,"name":"Dawn","picUrl":"http://img/9.jpg"},"duration":215000,"maxLevel":"hires"}]}`)

		case "/album/tracks":
			fmt.Fprint(w, `{"code":200,"tracks":[
				{"id":11,"name":"First","artists":[{"name":"Aurora"}],"album":{"id":9,"name":"Dawn"},"duration":180000},
				{"id":12,"name":"Second","artists":[{"name":"Aurora"}],"album":{"id":9,"name":"Dawn"},"duration":200000}
			]}`)

		case "/media/5":
			s.mu.Lock()
			data := s.mediaBytes
			s.mu.Unlock()
			w.Write(data)

		default:
			http.NotFound(w, r)
		}
	}
}

func (s *catalogStub) askedLevels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.levelsAsked...)
}

func (s *catalogStub) details() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detailHits
}

func TestFetchTrackDowngradesUntilAvailable(t *testing.T) {
	t.Parallel()

	stub := newCatalogStub()
	stub.available[model.QualityExhigh] = true
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	ctx := context.Background()

	payload, err := c.FetchTrack(ctx, 5, model.QualityLossless)
	require.NoError(t, err)

	assert.Equal(t, []string{model.QualityLossless, model.QualityExhigh}, stub.askedLevels(),
		"ladder is walked top down from the requested tier")
	assert.Equal(t, model.QualityExhigh, payload.Quality, "payload carries the quality actually served")
	assert.Equal(t, "mp3", payload.Format)
	assert.Equal(t, "Aurora - Nightfall.mp3", payload.Filename)
	assert.Equal(t, []byte("audio-bytes"), payload.Data)
	assert.Equal(t, "Dawn", payload.Album)
}

func TestFetchTrackFailsWhenNoTierHasStream(t *testing.T) {
	t.Parallel()

	stub := newCatalogStub()
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.FetchTrack(context.Background(), 5, model.QualityExhigh)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stream available")
	assert.Equal(t,
		[]string{model.QualityExhigh, model.QualityHigher, model.QualityStandard},
		stub.askedLevels())
}

func TestTrackDetailIsCached(t *testing.T) {
	t.Parallel()

	stub := newCatalogStub()
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	ctx := context.Background()

	first, err := c.TrackDetail(ctx, 5)
	require.NoError(t, err)
	second, err := c.TrackDetail(ctx, 5)
	require.NoError(t, err)

	assert.Equal(t, 1, stub.details(), "second lookup is served from the cache")
	assert.Equal(t, first.Title, second.Title)
	assert.InDelta(t, 215.0, first.Duration, 0.001, "duration converts from milliseconds to seconds")
}

func TestFetchAlbumTracksPrimesDetailCache(t *testing.T) {
	t.Parallel()

	stub := newCatalogStub()
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	ctx := context.Background()

	tracks, err := c.FetchAlbumTracks(ctx, 9)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "First", tracks[0].Title)
	assert.Equal(t, int64(9), tracks[0].AlbumID)

	_, err = c.TrackDetail(ctx, 11)
	require.NoError(t, err)
	assert.Zero(t, stub.details(), "album listing already primed the metadata cache")
}

func TestClientSendsBearerToken(t *testing.T) {
	t.Parallel()

	stub := newCatalogStub()
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "sekrit", time.Second)
	_, err := c.TrackDetail(context.Background(), 5)
	require.NoError(t, err)

	stub.mu.Lock()
	auth := stub.lastAuth
	stub.mu.Unlock()
	assert.Equal(t, "Bearer sekrit", auth)
}

func TestCatalogErrorCodeSurfaces(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":502,"msg":"upstream offline","data":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.FetchTrack(context.Background(), 5, model.QualityStandard)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream offline")
	assert.Contains(t, err.Error(), "502")
}
