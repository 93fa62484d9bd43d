package model

// 音质等级，与上游曲库的档位一致
const (
	QualityStandard = "standard"
	QualityHigher   = "higher"
	QualityExhigh   = "exhigh"
	QualityLossless = "lossless"
	QualityHires    = "hires"
)

// IsValidQuality 判断音质参数是否为已知档位
func IsValidQuality(q string) bool {
	switch q {
	case QualityStandard, QualityHigher, QualityExhigh, QualityLossless, QualityHires:
		return true
	}
	return false
}

// IsLosslessQuality 判断音质是否属于无损档位
func IsLosslessQuality(q string) bool {
	return q == QualityLossless || q == QualityHires
}

// Track 可播放的曲目，构造后不再修改
type Track struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Artist     string   `json:"artist"`
	Album      string   `json:"album,omitempty"`
	AlbumID    int64    `json:"albumId,omitempty"`
	Duration   float64  `json:"duration,omitempty"` // 时长（秒）
	Quality    string   `json:"quality,omitempty"`
	AudioModes []string `json:"audioModes,omitempty"`
	CoverURL   string   `json:"coverUrl,omitempty"`
}

// TrackPayload 从上游取回的曲目文件
type TrackPayload struct {
	TrackID  int64  `json:"trackId"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Quality  string `json:"quality"` // 实际取到的音质，可能低于请求音质
	Format   string `json:"format"`  // 文件格式，如 flac、mp3
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
}

// DownloadResult 写入结果，预期内的失败通过 Success/Error 表达而不是 Go error
type DownloadResult struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename,omitempty"`
	Location string `json:"location,omitempty"` // 对象存储 key 或本地路径
	Size     int64  `json:"size,omitempty"`
	Error    string `json:"error,omitempty"`
}
