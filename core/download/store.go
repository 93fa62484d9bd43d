package download

import (
	"context"
	"errors"
	"time"

	"AuraFM/model"
)

var (
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = errors.New("download job not found")
	// ErrDuplicateJob 同目标已有未完结任务
	ErrDuplicateJob = errors.New("duplicate download job for target")
	// ErrStatusConflict 条件更新时状态已被其他写入者改走
	ErrStatusConflict = errors.New("download job status conflict")
)

// JobStore 下载任务的窄持久化接口
// 多写入者（处理器、工作协程、恢复循环）并发访问，状态变更必须走条件更新，
// 盲写会破坏先提交者获胜的冲突策略
type JobStore interface {
	// Create 写入新任务，去重检查由管理器在提交时按需执行
	Create(ctx context.Context, job *model.DownloadJob) error

	// Get 按 id 读取任务
	Get(ctx context.Context, id string) (*model.DownloadJob, error)

	// List 列出用户的任务，status 为空表示全部，按创建时间倒序
	List(ctx context.Context, userID int64, status model.JobStatus) ([]*model.DownloadJob, error)

	// FindActive 查找用户在同一目标上的未完结任务，没有时返回 (nil, nil)
	FindActive(ctx context.Context, userID int64, targetKey string) (*model.DownloadJob, error)

	// Claim 原子领取一个排队任务：优先级高者先出，同优先级按创建时间先进先出
	// 领取即转入 processing 并记录 startedAt/heartbeatAt，队列为空时返回 (nil, nil)
	Claim(ctx context.Context) (*model.DownloadJob, error)

	// Heartbeat 刷新处理中任务的心跳时间
	Heartbeat(ctx context.Context, id string, at time.Time) error

	// UpdateStatus 条件状态更新：仅当任务仍处于 from 状态时应用 to 与 mutate，
	// 否则返回 ErrStatusConflict。成功时返回更新后的任务
	UpdateStatus(ctx context.Context, id string, from, to model.JobStatus, mutate func(*model.DownloadJob)) (*model.DownloadJob, error)

	// RecoverStale 把心跳早于 cutoff 的 processing 任务收回 queued
	// 租约过期不算任务失败，不消耗重试次数
	RecoverStale(ctx context.Context, cutoff time.Time) ([]*model.DownloadJob, error)

	// RequeueFailed 把更新时间早于 before、重试额度未耗尽且非用户取消的
	// failed 任务转回 queued，重试计数加一
	RequeueFailed(ctx context.Context, before time.Time) ([]*model.DownloadJob, error)

	// Delete 删除任务记录
	Delete(ctx context.Context, id string) error
}
