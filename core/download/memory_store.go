package download

import (
	"context"
	"sort"
	"sync"
	"time"

	"AuraFM/model"
)

// MemoryJobStore 进程内任务存储，测试与未启用 Redis 的退化模式使用
// 单把互斥锁保证所有条件更新的原子性
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.DownloadJob
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*model.DownloadJob)}
}

func (s *MemoryJobStore) Create(ctx context.Context, job *model.DownloadJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := job.Clone()
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.jobs[cp.ID] = cp
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (*model.DownloadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryJobStore) List(ctx context.Context, userID int64, status model.JobStatus) ([]*model.DownloadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.DownloadJob, 0)
	for _, job := range s.jobs {
		if job.UserID != userID {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryJobStore) FindActive(ctx context.Context, userID int64, targetKey string) (*model.DownloadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.UserID == userID && !job.Status.IsTerminal() && job.TargetKey() == targetKey {
			return job.Clone(), nil
		}
	}
	return nil, nil
}

func (s *MemoryJobStore) Claim(ctx context.Context) (*model.DownloadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.DownloadJob
	for _, job := range s.jobs {
		if job.Status != model.JobStatusQueued {
			continue
		}
		if best == nil || claimBefore(job, best) {
			best = job
		}
	}
	if best == nil {
		return nil, nil
	}

	now := time.Now()
	best.Status = model.JobStatusProcessing
	best.StartedAt = &now
	best.HeartbeatAt = &now
	best.UpdatedAt = now
	return best.Clone(), nil
}

// claimBefore 领取顺序：优先级高者先出，同优先级按创建时间先进先出
func claimBefore(a, b *model.DownloadJob) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (s *MemoryJobStore) Heartbeat(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != model.JobStatusProcessing {
		return ErrStatusConflict
	}
	hb := at
	job.HeartbeatAt = &hb
	job.UpdatedAt = at
	return nil
}

func (s *MemoryJobStore) UpdateStatus(ctx context.Context, id string, from, to model.JobStatus, mutate func(*model.DownloadJob)) (*model.DownloadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Status != from {
		return nil, ErrStatusConflict
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
	return job.Clone(), nil
}

func (s *MemoryJobStore) RecoverStale(ctx context.Context, cutoff time.Time) ([]*model.DownloadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recovered []*model.DownloadJob
	for _, job := range s.jobs {
		if job.Status != model.JobStatusProcessing {
			continue
		}
		last := job.HeartbeatAt
		if last == nil {
			last = job.StartedAt
		}
		if last == nil || last.Before(cutoff) {
			job.Status = model.JobStatusQueued
			job.StartedAt = nil
			job.HeartbeatAt = nil
			job.UpdatedAt = time.Now()
			recovered = append(recovered, job.Clone())
		}
	}
	return recovered, nil
}

func (s *MemoryJobStore) RequeueFailed(ctx context.Context, before time.Time) ([]*model.DownloadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var requeued []*model.DownloadJob
	for _, job := range s.jobs {
		if job.Status != model.JobStatusFailed || job.CancelRequested {
			continue
		}
		if job.RetryCount >= job.MaxRetries {
			continue
		}
		if job.UpdatedAt.After(before) {
			continue
		}
		job.Status = model.JobStatusQueued
		job.RetryCount++
		job.StartedAt = nil
		job.HeartbeatAt = nil
		job.CompletedAt = nil
		job.UpdatedAt = time.Now()
		requeued = append(requeued, job.Clone())
	}
	return requeued, nil
}

func (s *MemoryJobStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}
