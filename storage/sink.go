package storage

import (
	"context"

	"AuraFM/model"
)

// Sink 下载产物的落盘端
// 预期内的失败（磁盘满、权限不足、存储桶缺失）写进结果而不是返回 error，
// 调用方根据结果决定任务终态
type Sink interface {
	Save(ctx context.Context, payload *model.TrackPayload) *model.DownloadResult
}
