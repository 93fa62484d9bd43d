package download

import (
	"context"

	"AuraFM/model"
)

// Source 上游曲库，负责解析并拉取曲目音频
type Source interface {
	// FetchTrack 拉取曲目音频，实际音质可能低于请求音质，以返回的 payload.Quality 为准
	FetchTrack(ctx context.Context, trackID int64, quality string) (*model.TrackPayload, error)
	// FetchAlbumTracks 列出专辑内的全部曲目
	FetchAlbumTracks(ctx context.Context, albumID int64) ([]model.Track, error)
}

// Transcoder 按需转码，目标格式已匹配时原样返回
type Transcoder interface {
	ConvertIfNeeded(ctx context.Context, payload *model.TrackPayload, targetFormat string) (*model.TrackPayload, error)
}

// Recorder 下载成功后的登记回调，媒体库与下载历史在这里入库
type Recorder interface {
	RecordCompleted(ctx context.Context, job *model.DownloadJob, payload *model.TrackPayload, result *model.DownloadResult)
}
