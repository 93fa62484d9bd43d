package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"AuraFM/logger"
	"AuraFM/model"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	metadataCacheSize = 512

	// 音频文件下载比元数据请求慢得多，单独给宽限
	mediaTimeout = 10 * time.Minute
)

// qualityLadder 从高到低的降级尝试顺序
var qualityLadder = []string{
	model.QualityHires,
	model.QualityLossless,
	model.QualityExhigh,
	model.QualityHigher,
	model.QualityStandard,
}

// Client 上游曲库API客户端
// 实现 download.Source：按请求音质解析下载地址，该档无货时逐档降级，
// 取回的 payload 里带的是实际到手的音质
type Client struct {
	baseURL string
	token   string

	httpClient  *http.Client
	mediaClient *http.Client

	detail *lru.Cache[int64, model.Track]
}

// NewClient 创建曲库客户端
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cache, _ := lru.New[int64, model.Track](metadataCacheSize)
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		httpClient:  &http.Client{Timeout: timeout},
		mediaClient: &http.Client{Timeout: mediaTimeout},
		detail:      cache,
	}
}

// catalogTrack 上游返回的曲目结构
type catalogTrack struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		PicURL string `json:"picUrl"`
	} `json:"album"`
	Duration   int      `json:"duration"` // 毫秒
	MaxLevel   string   `json:"maxLevel,omitempty"`
	AudioModes []string `json:"audioModes,omitempty"`
}

func (t catalogTrack) toModel() model.Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return model.Track{
		ID:         t.ID,
		Title:      t.Name,
		Artist:     strings.Join(names, ", "),
		Album:      t.Album.Name,
		AlbumID:    t.Album.ID,
		Duration:   float64(t.Duration) / 1000.0,
		Quality:    t.MaxLevel,
		AudioModes: t.AudioModes,
		CoverURL:   t.Album.PicURL,
	}
}

type streamInfo struct {
	URL    string
	Level  string
	Format string
	Size   int64
}

func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return nil
}

// resolveStream 解析曲目在指定音质档的下载地址
// 该档无货（空URL）时沿阶梯降级，全部落空才报错
func (c *Client) resolveStream(ctx context.Context, trackID int64, quality string) (*streamInfo, error) {
	for _, level := range downgradeFrom(quality) {
		endpoint := fmt.Sprintf("%s/track/url?id=%d&level=%s", c.baseURL, trackID, level)

		var result struct {
			Data []struct {
				ID    int64  `json:"id"`
				URL   string `json:"url"`
				Level string `json:"level"`
				Type  string `json:"type"`
				Size  int64  `json:"size"`
			} `json:"data"`
			Code int    `json:"code"`
			Msg  string `json:"msg,omitempty"`
		}
		if err := c.getJSON(ctx, endpoint, &result); err != nil {
			return nil, err
		}
		if result.Code != http.StatusOK {
			return nil, fmt.Errorf("catalog error: %s (code %d)", result.Msg, result.Code)
		}
		if len(result.Data) == 0 || result.Data[0].URL == "" {
			logger.Debug("该音质档无可用地址，尝试降级",
				logger.Int64("trackId", trackID),
				logger.String("level", level))
			continue
		}

		d := result.Data[0]
		actual := d.Level
		if actual == "" {
			actual = level
		}
		format := strings.ToLower(d.Type)
		if format == "" {
			format = formatForQuality(actual)
		}
		return &streamInfo{URL: d.URL, Level: actual, Format: format, Size: d.Size}, nil
	}
	return nil, fmt.Errorf("no stream available for track %d at quality %s or below", trackID, quality)
}

// TrackDetail 获取曲目元数据，走LRU缓存
func (c *Client) TrackDetail(ctx context.Context, trackID int64) (*model.Track, error) {
	if cached, ok := c.detail.Get(trackID); ok {
		return &cached, nil
	}

	endpoint := fmt.Sprintf("%s/track/detail?ids=%d", c.baseURL, trackID)
	var result struct {
		Tracks []catalogTrack `json:"tracks"`
		Code   int            `json:"code"`
	}
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if len(result.Tracks) == 0 {
		return nil, fmt.Errorf("track %d not found in catalog", trackID)
	}

	track := result.Tracks[0].toModel()
	c.detail.Add(trackID, track)
	return &track, nil
}

// FetchTrack 取回曲目文件，payload.Quality 为实际到手的音质
func (c *Client) FetchTrack(ctx context.Context, trackID int64, quality string) (*model.TrackPayload, error) {
	stream, err := c.resolveStream(ctx, trackID, quality)
	if err != nil {
		return nil, err
	}
	if stream.Level != quality {
		logger.Info("上游降级了音质",
			logger.Int64("trackId", trackID),
			logger.String("requested", quality),
			logger.String("actual", stream.Level))
	}

	track, err := c.TrackDetail(ctx, trackID)
	if err != nil {
		// 拿不到详情不拦下载，用占位元数据继续
		logger.Warn("获取曲目详情失败",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		track = &model.Track{ID: trackID, Title: fmt.Sprintf("track-%d", trackID)}
	}

	data, err := c.downloadBytes(ctx, stream.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download track %d: %w", trackID, err)
	}

	return &model.TrackPayload{
		TrackID:  trackID,
		Title:    track.Title,
		Artist:   track.Artist,
		Album:    track.Album,
		Quality:  stream.Level,
		Format:   stream.Format,
		Filename: buildFilename(track, stream.Format),
		Data:     data,
	}, nil
}

// FetchAlbumTracks 展开专辑的曲目列表，顺手填充元数据缓存
func (c *Client) FetchAlbumTracks(ctx context.Context, albumID int64) ([]model.Track, error) {
	endpoint := fmt.Sprintf("%s/album/tracks?id=%d", c.baseURL, albumID)
	var result struct {
		Tracks []catalogTrack `json:"tracks"`
		Code   int            `json:"code"`
		Msg    string         `json:"msg,omitempty"`
	}
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if result.Code != http.StatusOK {
		return nil, fmt.Errorf("catalog error: %s (code %d)", result.Msg, result.Code)
	}

	out := make([]model.Track, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		m := t.toModel()
		if m.AlbumID == 0 {
			m.AlbumID = albumID
		}
		c.detail.Add(m.ID, m)
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) downloadBytes(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.mediaClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media server returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// downgradeFrom 返回从请求档开始的降级序列，未知档当作 standard
func downgradeFrom(quality string) []string {
	for i, level := range qualityLadder {
		if level == quality {
			return qualityLadder[i:]
		}
	}
	return qualityLadder[len(qualityLadder)-1:]
}

func formatForQuality(quality string) string {
	if model.IsLosslessQuality(quality) {
		return "flac"
	}
	return "mp3"
}

func buildFilename(track *model.Track, format string) string {
	title := strings.TrimSpace(track.Title)
	if title == "" {
		title = fmt.Sprintf("track-%d", track.ID)
	}
	artist := strings.TrimSpace(track.Artist)
	if artist == "" {
		return fmt.Sprintf("%s.%s", title, format)
	}
	return fmt.Sprintf("%s - %s.%s", artist, title, format)
}
