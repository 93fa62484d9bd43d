package repository

import (
	"context"
	"time"

	"AuraFM/logger"
	"AuraFM/model"
)

// DownloadRecorder 把下载成功的曲目登记进媒体库
// 登记失败只记日志，不影响任务终态：文件已经落盘，丢一条登记不值得整单重来
type DownloadRecorder struct {
	library LibraryRepository
}

// NewDownloadRecorder creates a new DownloadRecorder.
func NewDownloadRecorder(library LibraryRepository) *DownloadRecorder {
	return &DownloadRecorder{library: library}
}

// RecordCompleted 注册一条媒体库记录，按目标位置填 object key 或本地路径
func (r *DownloadRecorder) RecordCompleted(ctx context.Context, job *model.DownloadJob, payload *model.TrackPayload, result *model.DownloadResult) {
	if r.library == nil || job == nil || payload == nil || result == nil {
		return
	}

	track := &model.LibraryTrack{
		UserID:       job.UserID,
		TrackID:      payload.TrackID,
		Title:        payload.Title,
		Artist:       payload.Artist,
		Album:        payload.Album,
		Quality:      payload.Quality,
		Format:       payload.Format,
		Location:     job.Destination,
		Size:         result.Size,
		DownloadedAt: time.Now(),
	}
	if job.Destination == model.DestinationServer {
		track.ObjectKey = result.Location
	} else {
		track.FilePath = result.Location
	}

	if _, err := r.library.Add(ctx, track); err != nil {
		logger.Warn("登记媒体库记录失败",
			logger.String("jobId", job.ID),
			logger.Int64("trackId", payload.TrackID),
			logger.ErrorField(err))
		return
	}
	logger.Debug("媒体库记录已登记",
		logger.Int64("userId", job.UserID),
		logger.Int64("trackId", payload.TrackID),
		logger.String("quality", payload.Quality))
}
