package cache

import (
	"context"
	"fmt"
	"time"
)

// QueueStats 下载队列的管理视图，给命令行巡检用
type QueueStats struct {
	Pending        int64
	Processing     int64
	FailedAwaiting int64
	HeadPending    *time.Time // 队首任务（下一个被领取）的入队时间
	OldestLease    *time.Time // 心跳最旧的处理中任务
}

// Stats 汇总各索引集合的规模与最旧条目
func (s *RedisJobStore) Stats(ctx context.Context) (*QueueStats, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	stats := &QueueStats{}
	var err error
	if stats.Pending, err = s.client.ZCard(ctx, downloadPendingKey).Result(); err != nil {
		return nil, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	if stats.Processing, err = s.client.ZCard(ctx, downloadLeaseKey).Result(); err != nil {
		return nil, fmt.Errorf("failed to count processing jobs: %w", err)
	}
	if stats.FailedAwaiting, err = s.client.ZCard(ctx, downloadRetryKey).Result(); err != nil {
		return nil, fmt.Errorf("failed to count failed jobs: %w", err)
	}

	// pending 分数混入了优先级，入队时间从队首任务记录里读
	if ids, err := s.client.ZRange(ctx, downloadPendingKey, 0, 0).Result(); err == nil && len(ids) > 0 {
		if job, err := getJob(ctx, s.client, ids[0]); err == nil {
			t := job.CreatedAt
			stats.HeadPending = &t
		}
	}
	if entries, err := s.client.ZRangeWithScores(ctx, downloadLeaseKey, 0, 0).Result(); err == nil && len(entries) > 0 {
		t := time.UnixMilli(int64(entries[0].Score))
		stats.OldestLease = &t
	}
	return stats, nil
}
