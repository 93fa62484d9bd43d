package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"AuraFM/core/download"
	"AuraFM/model"

	"github.com/go-redis/redis/v8"
)

const (
	downloadJobKey     = "download:job:%s"    // String: DownloadJob JSON
	downloadPendingKey = "download:pending"   // Sorted Set: 待领取任务，分数编码优先级与入队顺序
	downloadLeaseKey   = "download:lease"     // Sorted Set: 处理中任务，分数为心跳毫秒
	downloadRetryKey   = "download:retry"     // Sorted Set: 失败任务，分数为失败时刻毫秒
	downloadUserKey    = "download:user:%d"   // Sorted Set: 用户任务索引，分数为创建毫秒
	downloadTargetKey  = "download:target:%d" // Hash: targetKey -> 最近一个活跃任务ID

	// 终态任务保留一段时间供前端查询，活跃任务不设过期
	downloadRetentionTTL = 7 * 24 * time.Hour

	casMaxRetries = 3

	// pending 分数两级编码：负优先级为主项，创建毫秒为次项
	// 毫秒时间戳在 1e13 以内，两级不会互相污染
	priorityScoreSpan = 1e13
)

// RedisJobStore 基于 Redis 的下载任务存储
// 条件更新走 WATCH 事务，多实例并发写同一任务时先提交者获胜
type RedisJobStore struct {
	client *redis.Client
}

// NewRedisJobStore 创建 Redis 任务存储
func NewRedisJobStore(client *redis.Client) *RedisJobStore {
	return &RedisJobStore{client: client}
}

func pendingScore(job *model.DownloadJob) float64 {
	return float64(-job.Priority)*priorityScoreSpan + float64(job.CreatedAt.UnixMilli())
}

func leaseScore(job *model.DownloadJob) float64 {
	last := job.HeartbeatAt
	if last == nil {
		last = job.StartedAt
	}
	if last == nil {
		return float64(job.UpdatedAt.UnixMilli())
	}
	return float64(last.UnixMilli())
}

func getJob(ctx context.Context, c redis.Cmdable, id string) (*model.DownloadJob, error) {
	data, err := c.Get(ctx, fmt.Sprintf(downloadJobKey, id)).Result()
	if err == redis.Nil {
		return nil, download.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download job: %w", err)
	}

	var job model.DownloadJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal download job: %w", err)
	}
	return &job, nil
}

// syncIndexes 按任务当前状态维护各索引集合的成员关系
func syncIndexes(ctx context.Context, pipe redis.Pipeliner, job *model.DownloadJob, clearTarget bool) {
	id := job.ID
	switch job.Status {
	case model.JobStatusQueued:
		pipe.ZAdd(ctx, downloadPendingKey, &redis.Z{Score: pendingScore(job), Member: id})
		pipe.ZRem(ctx, downloadLeaseKey, id)
		pipe.ZRem(ctx, downloadRetryKey, id)
	case model.JobStatusProcessing:
		pipe.ZRem(ctx, downloadPendingKey, id)
		pipe.ZAdd(ctx, downloadLeaseKey, &redis.Z{Score: leaseScore(job), Member: id})
		pipe.ZRem(ctx, downloadRetryKey, id)
	case model.JobStatusFailed:
		pipe.ZRem(ctx, downloadPendingKey, id)
		pipe.ZRem(ctx, downloadLeaseKey, id)
		pipe.ZAdd(ctx, downloadRetryKey, &redis.Z{Score: float64(job.UpdatedAt.UnixMilli()), Member: id})
	case model.JobStatusCompleted:
		pipe.ZRem(ctx, downloadPendingKey, id)
		pipe.ZRem(ctx, downloadLeaseKey, id)
		pipe.ZRem(ctx, downloadRetryKey, id)
	}

	hashKey := fmt.Sprintf(downloadTargetKey, job.UserID)
	if job.Status == model.JobStatusQueued {
		pipe.HSet(ctx, hashKey, job.TargetKey(), id)
	} else if clearTarget {
		pipe.HDel(ctx, hashKey, job.TargetKey())
	}
}

// casUpdate 条件状态更新：WATCH 任务键，状态不再是 from 时返回 ErrStatusConflict
func (s *RedisJobStore) casUpdate(ctx context.Context, id string, from, to model.JobStatus, mutate func(*model.DownloadJob)) (*model.DownloadJob, error) {
	key := fmt.Sprintf(downloadJobKey, id)
	var updated *model.DownloadJob

	txn := func(tx *redis.Tx) error {
		job, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if job.Status != from {
			return download.ErrStatusConflict
		}

		job.Status = to
		if mutate != nil {
			mutate(job)
		}
		now := time.Now()
		job.UpdatedAt = now
		if to.IsTerminal() {
			done := now
			job.CompletedAt = &done
		}

		clearTarget := false
		if to.IsTerminal() {
			owner, err := tx.HGet(ctx, fmt.Sprintf(downloadTargetKey, job.UserID), job.TargetKey()).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			clearTarget = owner == id
		}

		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal download job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			var ttl time.Duration
			if to.IsTerminal() {
				ttl = downloadRetentionTTL
			}
			pipe.Set(ctx, key, data, ttl)
			syncIndexes(ctx, pipe, job, clearTarget)
			return nil
		})
		if err != nil {
			return err
		}

		updated = job
		return nil
	}

	for i := 0; i < casMaxRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, download.ErrStatusConflict
}

func (s *RedisJobStore) Create(ctx context.Context, job *model.DownloadJob) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	cp := job.Clone()
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal download job: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, fmt.Sprintf(downloadJobKey, cp.ID), data, 0)
	pipe.ZAdd(ctx, fmt.Sprintf(downloadUserKey, cp.UserID), &redis.Z{
		Score:  float64(cp.CreatedAt.UnixMilli()),
		Member: cp.ID,
	})
	syncIndexes(ctx, pipe, cp, false)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create download job: %w", err)
	}
	return nil
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.DownloadJob, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}
	return getJob(ctx, s.client, id)
}

func (s *RedisJobStore) List(ctx context.Context, userID int64, status model.JobStatus) ([]*model.DownloadJob, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	// 用户索引按创建毫秒排序，倒着取即最新在前
	ids, err := s.client.ZRevRange(ctx, fmt.Sprintf(downloadUserKey, userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list download jobs: %w", err)
	}
	if len(ids) == 0 {
		return []*model.DownloadJob{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprintf(downloadJobKey, id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load download jobs: %w", err)
	}

	out := make([]*model.DownloadJob, 0, len(vals))
	for _, v := range vals {
		data, ok := v.(string)
		if !ok {
			// 任务记录已过期，索引条目滞后，跳过
			continue
		}
		var job model.DownloadJob
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, &job)
	}
	return out, nil
}

func (s *RedisJobStore) FindActive(ctx context.Context, userID int64, targetKey string) (*model.DownloadJob, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	hashKey := fmt.Sprintf(downloadTargetKey, userID)
	id, err := s.client.HGet(ctx, hashKey, targetKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up active job: %w", err)
	}

	job, err := getJob(ctx, s.client, id)
	if errors.Is(err, download.ErrJobNotFound) {
		s.client.HDel(ctx, hashKey, targetKey)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		// 映射滞后于终态提交，顺手清掉
		s.client.HDel(ctx, hashKey, targetKey)
		return nil, nil
	}
	return job, nil
}

func (s *RedisJobStore) Claim(ctx context.Context) (*model.DownloadJob, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	// ZPopMin 保证一个条目只会被一个工作协程取走，
	// 领取后的状态转换仍走条件更新，拦下弹出与转换之间被取消的任务
	for {
		popped, err := s.client.ZPopMin(ctx, downloadPendingKey, 1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to pop pending job: %w", err)
		}
		if len(popped) == 0 {
			return nil, nil
		}
		id, _ := popped[0].Member.(string)

		now := time.Now()
		job, err := s.casUpdate(ctx, id, model.JobStatusQueued, model.JobStatusProcessing, func(j *model.DownloadJob) {
			started := now
			hb := now
			j.StartedAt = &started
			j.HeartbeatAt = &hb
		})
		switch {
		case err == nil:
			return job, nil
		case errors.Is(err, download.ErrStatusConflict), errors.Is(err, download.ErrJobNotFound):
			// 弹出的条目已失效，继续取下一个
			continue
		default:
			return nil, err
		}
	}
}

func (s *RedisJobStore) Heartbeat(ctx context.Context, id string, at time.Time) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	_, err := s.casUpdate(ctx, id, model.JobStatusProcessing, model.JobStatusProcessing, func(j *model.DownloadJob) {
		hb := at
		j.HeartbeatAt = &hb
	})
	return err
}

func (s *RedisJobStore) UpdateStatus(ctx context.Context, id string, from, to model.JobStatus, mutate func(*model.DownloadJob)) (*model.DownloadJob, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}
	return s.casUpdate(ctx, id, from, to, mutate)
}

func (s *RedisJobStore) RecoverStale(ctx context.Context, cutoff time.Time) ([]*model.DownloadJob, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	ids, err := s.client.ZRangeByScore(ctx, downloadLeaseKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", cutoff.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan stale leases: %w", err)
	}

	var recovered []*model.DownloadJob
	for _, id := range ids {
		// 租约过期不算失败，不动重试计数
		job, err := s.casUpdate(ctx, id, model.JobStatusProcessing, model.JobStatusQueued, func(j *model.DownloadJob) {
			j.StartedAt = nil
			j.HeartbeatAt = nil
		})
		switch {
		case err == nil:
			recovered = append(recovered, job)
		case errors.Is(err, download.ErrStatusConflict), errors.Is(err, download.ErrJobNotFound):
			// 任务已被别处提交终态或删除，摘掉残留的租约条目
			s.client.ZRem(ctx, downloadLeaseKey, id)
		default:
			return recovered, err
		}
	}
	return recovered, nil
}

func (s *RedisJobStore) RequeueFailed(ctx context.Context, before time.Time) ([]*model.DownloadJob, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	ids, err := s.client.ZRangeByScore(ctx, downloadRetryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", before.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan failed jobs: %w", err)
	}

	var requeued []*model.DownloadJob
	for _, id := range ids {
		job, err := getJob(ctx, s.client, id)
		if errors.Is(err, download.ErrJobNotFound) {
			s.client.ZRem(ctx, downloadRetryKey, id)
			continue
		}
		if err != nil {
			return requeued, err
		}
		if job.Status != model.JobStatusFailed ||
			job.CancelRequested ||
			job.RetryCount >= job.MaxRetries {
			// 永远不会再有回队资格，从重试集合摘除
			s.client.ZRem(ctx, downloadRetryKey, id)
			continue
		}

		updated, err := s.casUpdate(ctx, id, model.JobStatusFailed, model.JobStatusQueued, func(j *model.DownloadJob) {
			j.RetryCount++
			j.StartedAt = nil
			j.HeartbeatAt = nil
			j.CompletedAt = nil
		})
		switch {
		case err == nil:
			requeued = append(requeued, updated)
		case errors.Is(err, download.ErrStatusConflict), errors.Is(err, download.ErrJobNotFound):
			continue
		default:
			return requeued, err
		}
	}
	return requeued, nil
}

func (s *RedisJobStore) Delete(ctx context.Context, id string) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	job, err := getJob(ctx, s.client, id)
	if err != nil {
		return err
	}

	hashKey := fmt.Sprintf(downloadTargetKey, job.UserID)
	owner, err := s.client.HGet(ctx, hashKey, job.TargetKey()).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to look up target mapping: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, fmt.Sprintf(downloadJobKey, id))
	pipe.ZRem(ctx, downloadPendingKey, id)
	pipe.ZRem(ctx, downloadLeaseKey, id)
	pipe.ZRem(ctx, downloadRetryKey, id)
	pipe.ZRem(ctx, fmt.Sprintf(downloadUserKey, job.UserID), id)
	if owner == id {
		pipe.HDel(ctx, hashKey, job.TargetKey())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete download job: %w", err)
	}
	return nil
}
