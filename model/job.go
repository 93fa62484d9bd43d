package model

import (
	"fmt"
	"time"
)

// JobType 下载任务类型
type JobType string

const (
	JobTypeTrack JobType = "track"
	JobTypeAlbum JobType = "album"
)

// JobStatus 下载任务状态
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal 判断状态是否为终态
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValidJobStatus 判断状态参数是否合法
func IsValidJobStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// 下载目标位置
const (
	DestinationServer = "server" // 写入对象存储
	DestinationLocal  = "local"  // 写入本地下载目录
)

// DownloadJob 持久化的下载任务
// 状态流转：queued → processing → completed|failed，failed 在重试限额内回到 queued
type DownloadJob struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"userId,omitempty"`
	Type        JobType   `json:"type"`
	TrackID     int64     `json:"trackId,omitempty"`
	AlbumID     int64     `json:"albumId,omitempty"`
	Quality     string    `json:"quality"`
	Destination string    `json:"destination,omitempty"`
	Status      JobStatus `json:"status"`
	Priority    int       `json:"priority,omitempty"`
	RetryCount  int       `json:"retryCount"`
	MaxRetries  int       `json:"maxRetries"`
	// CancelRequested 区分用户取消与下载失败，被取消的任务不参与重试回队
	CancelRequested bool `json:"cancelRequested,omitempty"`

	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	HeartbeatAt *time.Time `json:"heartbeatAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TargetKey 去重用的目标标识：同类型、同目标、同音质的任务视为重复
func (j *DownloadJob) TargetKey() string {
	if j.Type == JobTypeAlbum {
		return fmt.Sprintf("album:%d:%s", j.AlbumID, j.Quality)
	}
	return fmt.Sprintf("track:%d:%s", j.TrackID, j.Quality)
}

// Clone 返回任务的深拷贝，存储层对外只交出副本
func (j *DownloadJob) Clone() *DownloadJob {
	if j == nil {
		return nil
	}
	cp := *j
	cp.StartedAt = copyTime(j.StartedAt)
	cp.HeartbeatAt = copyTime(j.HeartbeatAt)
	cp.CompletedAt = copyTime(j.CompletedAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
