package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"AuraFM/logger"
	"AuraFM/model"
)

// Transcoder 基于 ffmpeg 的格式转换器，实现 download.Transcoder
type Transcoder struct {
	ffmpegPath string
}

// NewTranscoder 创建转换器，路径为空时使用 PATH 里的 ffmpeg
func NewTranscoder(ffmpegPath string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{ffmpegPath: ffmpegPath}
}

// ConvertIfNeeded 目标格式与来源一致时原样返回，需要时经 ffmpeg 转换
// 有损转无损不做，只会放大文件不会找回细节
func (t *Transcoder) ConvertIfNeeded(ctx context.Context, payload *model.TrackPayload, targetFormat string) (*model.TrackPayload, error) {
	source := strings.ToLower(payload.Format)
	target := strings.ToLower(targetFormat)

	if target == "" || source == target {
		return payload, nil
	}
	if source != "flac" && target == "flac" {
		logger.Debug("跳过有损到无损的升格转码",
			logger.Int64("trackId", payload.TrackID),
			logger.String("source", source))
		return payload, nil
	}

	converted, err := t.convert(ctx, payload.Data, source, target)
	if err != nil {
		return nil, fmt.Errorf("failed to convert track %d to %s: %w", payload.TrackID, target, err)
	}

	out := *payload
	out.Format = target
	out.Data = converted
	out.Filename = replaceExt(payload.Filename, target)

	logger.Info("格式转换完成",
		logger.Int64("trackId", payload.TrackID),
		logger.String("from", source),
		logger.String("to", target),
		logger.Int("bytes", len(converted)))
	return &out, nil
}

func (t *Transcoder) convert(ctx context.Context, data []byte, source, target string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "aurafm-convert-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inPath := filepath.Join(tmpDir, "input."+source)
	outPath := filepath.Join(tmpDir, "output."+target)
	if err := os.WriteFile(inPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp input: %w", err)
	}

	args := []string{"-y", "-i", inPath}
	switch target {
	case "mp3":
		args = append(args, "-c:a", "libmp3lame", "-b:a", "320k")
	case "flac":
		args = append(args, "-c:a", "flac")
	case "aac", "m4a":
		args = append(args, "-c:a", "aac", "-b:a", "256k")
	default:
		return nil, fmt.Errorf("unsupported target format %q", target)
	}
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// 任务取消时 ffmpeg 被杀，对上层报取消而不是执行失败
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg execution failed: %w\nFFmpeg Error: %s", err, stderr.String())
	}

	return os.ReadFile(outPath)
}

func replaceExt(filename, target string) string {
	if filename == "" {
		return filename
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return base + "." + target
}
