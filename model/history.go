package model

import "time"

// DownloadHistory 下载任务的终态留档，经 GORM 写入 MySQL
type DownloadHistory struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	JobID      string    `json:"jobId" gorm:"size:64;index"`
	UserID     int64     `json:"userId" gorm:"index"`
	Type       string    `json:"type" gorm:"size:16"`
	TrackID    int64     `json:"trackId,omitempty"`
	AlbumID    int64     `json:"albumId,omitempty"`
	Quality    string    `json:"quality" gorm:"size:16"`
	Status     string    `json:"status" gorm:"size:16;index"`
	RetryCount int       `json:"retryCount"`
	Error      string    `json:"error,omitempty" gorm:"type:text"`
	FinishedAt time.Time `json:"finishedAt"`
}

// TableName 指定表名
func (DownloadHistory) TableName() string {
	return "download_history"
}
