package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"AuraFM/logger"
	"AuraFM/model"
)

// LocalSink 把下载产物写进服务器侧的本地下载目录
type LocalSink struct {
	dir string
}

func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{dir: dir}
}

func (s *LocalSink) Save(ctx context.Context, payload *model.TrackPayload) *model.DownloadResult {
	if err := ctx.Err(); err != nil {
		return &model.DownloadResult{Error: err.Error()}
	}

	filename := SanitizeFilename(payload.Filename)
	if filename == "" {
		filename = fmt.Sprintf("track-%d", payload.TrackID)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &model.DownloadResult{Error: fmt.Sprintf("failed to create download dir: %v", err)}
	}

	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, payload.Data, 0o644); err != nil {
		return &model.DownloadResult{Error: fmt.Sprintf("failed to write file: %v", err)}
	}

	logger.Debug("曲目已写入本地目录",
		logger.Int64("trackId", payload.TrackID),
		logger.String("path", path))

	return &model.DownloadResult{
		Success:  true,
		Filename: filename,
		Location: path,
		Size:     int64(len(payload.Data)),
	}
}

// SanitizeFilename 去掉路径分隔符和文件系统不接受的字符
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	return replacer.Replace(name)
}
