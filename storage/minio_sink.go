package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"

	"AuraFM/logger"
	"AuraFM/model"
)

// MinioSink 把下载产物上传到对象存储，对象键按曲目分层
type MinioSink struct {
	client *minio.Client
	bucket string
}

func NewMinioSink(client *minio.Client, bucket string) *MinioSink {
	return &MinioSink{client: client, bucket: bucket}
}

func (s *MinioSink) Save(ctx context.Context, payload *model.TrackPayload) *model.DownloadResult {
	if s.client == nil {
		return &model.DownloadResult{Error: "object storage is not initialized"}
	}

	filename := SanitizeFilename(payload.Filename)
	if filename == "" {
		filename = fmt.Sprintf("track-%d.%s", payload.TrackID, payload.Format)
	}
	objectKey := fmt.Sprintf("tracks/%d/%s/%s", payload.TrackID, payload.Quality, filename)

	info, err := s.client.PutObject(ctx, s.bucket, objectKey,
		bytes.NewReader(payload.Data), int64(len(payload.Data)),
		minio.PutObjectOptions{ContentType: inferContentType(filename)})
	if err != nil {
		return &model.DownloadResult{Error: fmt.Sprintf("failed to upload object: %v", err)}
	}

	logger.Debug("曲目已上传到对象存储",
		logger.Int64("trackId", payload.TrackID),
		logger.String("objectKey", objectKey),
		logger.Int64("size", info.Size))

	return &model.DownloadResult{
		Success:  true,
		Filename: filename,
		Location: objectKey,
		Size:     info.Size,
	}
}
