package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"AuraFM/logger"
	"AuraFM/model"
	"AuraFM/storage"
)

// ErrInvalidRequest 提交参数校验失败
var ErrInvalidRequest = errors.New("invalid download request")

// JobNotifier 任务状态推送
type JobNotifier interface {
	PublishJobUpdate(userID int64, job *model.DownloadJob)
}

// ManagerConfig 下载管理器配置
type ManagerConfig struct {
	Workers           int
	DefaultMaxRetries int
	RetryDelay        time.Duration // 失败任务重新入队前的等待
	LeaseTTL          time.Duration // 心跳早于该租约的任务被判定失联
	HeartbeatInterval time.Duration
	PollInterval      time.Duration // 队列为空时工作协程的休眠间隔
}

func (c *ManagerConfig) normalize() {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.DefaultMaxRetries < 0 {
		c.DefaultMaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 60 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
}

// SubmitRequest 下载任务提交参数
type SubmitRequest struct {
	UserID         int64
	Type           string
	TrackID        int64
	AlbumID        int64
	Quality        string
	Destination    string
	Priority       int
	MaxRetries     *int
	CheckDuplicate bool
}

// Manager 下载队列管理器
// 校验并入队任务、运行工作协程池、回收失联任务、按额度重试失败任务
type Manager struct {
	cfg        ManagerConfig
	store      JobStore
	source     Source
	transcoder Transcoder
	localSink  storage.Sink
	serverSink storage.Sink
	recorder   Recorder
	notifier   JobNotifier

	// 运行中任务的取消函数，DELETE 通过它打断在途下载
	active sync.Map // jobID → context.CancelFunc

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ManagerDeps 管理器的注入依赖，recorder 和 notifier 可以为 nil
type ManagerDeps struct {
	Store      JobStore
	Source     Source
	Transcoder Transcoder
	LocalSink  storage.Sink
	ServerSink storage.Sink
	Recorder   Recorder
	Notifier   JobNotifier
}

// NewManager 创建下载管理器
func NewManager(cfg ManagerConfig, deps ManagerDeps) *Manager {
	cfg.normalize()
	return &Manager{
		cfg:        cfg,
		store:      deps.Store,
		source:     deps.Source,
		transcoder: deps.Transcoder,
		localSink:  deps.LocalSink,
		serverSink: deps.ServerSink,
		recorder:   deps.Recorder,
		notifier:   deps.Notifier,
	}
}

// Submit 校验并入队一个下载任务
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*model.DownloadJob, error) {
	if err := validateSubmit(req); err != nil {
		return nil, err
	}

	job := &model.DownloadJob{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Type:        model.JobType(req.Type),
		TrackID:     req.TrackID,
		AlbumID:     req.AlbumID,
		Quality:     req.Quality,
		Destination: req.Destination,
		Status:      model.JobStatusQueued,
		Priority:    req.Priority,
		MaxRetries:  m.cfg.DefaultMaxRetries,
		CreatedAt:   time.Now(),
	}
	if job.Destination == "" {
		job.Destination = model.DestinationLocal
	}
	if req.MaxRetries != nil {
		job.MaxRetries = *req.MaxRetries
	}

	if req.CheckDuplicate {
		existing, err := m.store.FindActive(ctx, req.UserID, job.TargetKey())
		if err != nil {
			return nil, fmt.Errorf("failed to check for duplicate job: %w", err)
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, existing.ID)
		}
	}

	if err := m.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create download job: %w", err)
	}

	logger.Info("下载任务已入队",
		logger.String("jobId", job.ID),
		logger.Int64("userId", job.UserID),
		logger.String("type", string(job.Type)),
		logger.String("quality", job.Quality))
	m.notify(job)
	return job, nil
}

// validateSubmit 校验提交参数，错误消息点名出错的字段
func validateSubmit(req SubmitRequest) error {
	switch model.JobType(req.Type) {
	case model.JobTypeTrack:
		if req.TrackID <= 0 {
			return fmt.Errorf("%w: trackId is required for track jobs", ErrInvalidRequest)
		}
	case model.JobTypeAlbum:
		if req.AlbumID <= 0 {
			return fmt.Errorf("%w: albumId is required for album jobs", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: type must be %q or %q", ErrInvalidRequest, model.JobTypeTrack, model.JobTypeAlbum)
	}

	if req.Quality == "" {
		return fmt.Errorf("%w: quality is required", ErrInvalidRequest)
	}
	if !model.IsValidQuality(req.Quality) {
		return fmt.Errorf("%w: unknown quality %q", ErrInvalidRequest, req.Quality)
	}

	if req.Destination != "" && req.Destination != model.DestinationLocal && req.Destination != model.DestinationServer {
		return fmt.Errorf("%w: destination must be %q or %q", ErrInvalidRequest, model.DestinationLocal, model.DestinationServer)
	}
	if req.MaxRetries != nil && *req.MaxRetries < 0 {
		return fmt.Errorf("%w: maxRetries must not be negative", ErrInvalidRequest)
	}
	return nil
}

// Get 读取用户自己的任务
func (m *Manager) Get(ctx context.Context, userID int64, jobID string) (*model.DownloadJob, error) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		// 不泄露他人任务的存在性
		return nil, ErrJobNotFound
	}
	return job, nil
}

// List 列出用户的任务，statusFilter 为空表示全部
func (m *Manager) List(ctx context.Context, userID int64, statusFilter string) ([]*model.DownloadJob, error) {
	if statusFilter != "" && !model.IsValidJobStatus(statusFilter) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, statusFilter)
	}
	return m.store.List(ctx, userID, model.JobStatus(statusFilter))
}

// Cancel 取消任务：排队任务直接终结，处理中任务先抢占终态再打断在途工作
// 任务已有终态时取消失败，先提交的终态写入获胜
func (m *Manager) Cancel(ctx context.Context, userID int64, jobID string) error {
	job, err := m.Get(ctx, userID, jobID)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: job already %s", ErrStatusConflict, job.Status)
		}

		updated, err := m.store.UpdateStatus(ctx, jobID, job.Status, model.JobStatusFailed, func(j *model.DownloadJob) {
			j.CancelRequested = true
			j.Error = "canceled by user"
		})
		if err == nil {
			if cancel, ok := m.active.Load(jobID); ok {
				cancel.(context.CancelFunc)()
			}
			logger.Info("下载任务已取消", logger.String("jobId", jobID))
			m.notify(updated)
			return nil
		}
		if !errors.Is(err, ErrStatusConflict) {
			return err
		}

		// 状态被其他写入者改走了，拿最新状态重试
		job, err = m.store.Get(ctx, jobID)
		if err != nil {
			return err
		}
	}
	return ErrStatusConflict
}

// Start 启动工作协程池与后台维护循环
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("download manager already started")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started = true

	// 启动时先回收上次崩溃残留的失联任务
	m.recoverStale()

	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.workerLoop(i)
	}
	m.wg.Add(2)
	go m.recoveryLoop()
	go m.requeueLoop()

	logger.Info("下载管理器已启动",
		logger.Int("workers", m.cfg.Workers),
		logger.Duration("leaseTTL", m.cfg.LeaseTTL))
	return nil
}

// Stop 取消所有在途任务并等待工作协程退出
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	logger.Info("下载管理器已停止")
}

// recoveryLoop 周期性回收心跳过期的 processing 任务
func (m *Manager) recoveryLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.LeaseTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.recoverStale()
		}
	}
}

func (m *Manager) recoverStale() {
	cutoff := time.Now().Add(-m.cfg.LeaseTTL)
	jobs, err := m.store.RecoverStale(m.ctx, cutoff)
	if err != nil {
		logger.Warn("回收失联任务失败", logger.ErrorField(err))
		return
	}
	for _, job := range jobs {
		logger.Warn("回收失联任务重新入队",
			logger.String("jobId", job.ID),
			logger.Int("retryCount", job.RetryCount))
		m.notify(job)
	}
}

// requeueLoop 周期性把重试额度未耗尽的失败任务送回队列
func (m *Manager) requeueLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.RetryDelay)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.requeueFailed()
		}
	}
}

func (m *Manager) requeueFailed() {
	before := time.Now().Add(-m.cfg.RetryDelay)
	jobs, err := m.store.RequeueFailed(m.ctx, before)
	if err != nil {
		logger.Warn("失败任务重新入队失败", logger.ErrorField(err))
		return
	}
	for _, job := range jobs {
		logger.Info("失败任务重新入队",
			logger.String("jobId", job.ID),
			logger.Int("retryCount", job.RetryCount),
			logger.Int("maxRetries", job.MaxRetries))
		m.notify(job)
	}
}

func (m *Manager) notify(job *model.DownloadJob) {
	if m.notifier != nil && job != nil {
		m.notifier.PublishJobUpdate(job.UserID, job)
	}
}
