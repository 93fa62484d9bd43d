package model

import "time"

// LibraryTrack 已完成下载并登记入库的曲目
// Location 区分对象存储与本地目录，ObjectKey/FilePath 按 Location 二选一有效
type LibraryTrack struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	TrackID      int64     `json:"trackId"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Album        string    `json:"album,omitempty"`
	Quality      string    `json:"quality"`
	Format       string    `json:"format"`
	Location     string    `json:"location"` // server | local
	ObjectKey    string    `json:"objectKey,omitempty"`
	FilePath     string    `json:"-"`
	Size         int64     `json:"size,omitempty"`
	DownloadedAt time.Time `json:"downloadedAt"`
}
