package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"AuraFM/logger"
	"AuraFM/model"
	"AuraFM/storage"
)

func (m *Manager) workerLoop(id int) {
	defer m.wg.Done()
	logger.Debug("下载工作协程启动", logger.Int("worker", id))

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		job, err := m.store.Claim(m.ctx)
		if err != nil {
			logger.Warn("领取任务失败", logger.Int("worker", id), logger.ErrorField(err))
			m.sleep(m.cfg.PollInterval)
			continue
		}
		if job == nil {
			m.sleep(m.cfg.PollInterval)
			continue
		}

		logger.Info("开始处理下载任务",
			logger.Int("worker", id),
			logger.String("jobId", job.ID),
			logger.String("type", string(job.Type)))
		m.process(job)
	}
}

func (m *Manager) sleep(d time.Duration) {
	select {
	case <-m.ctx.Done():
	case <-time.After(d):
	}
}

// process 执行一个已领取的任务并提交终态
// 终态提交走条件更新：取消或回收抢先改掉状态时放弃本次结果
func (m *Manager) process(job *model.DownloadJob) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.active.Store(job.ID, cancel)
	defer func() {
		m.active.Delete(job.ID)
		cancel()
	}()

	m.notify(job)
	stopHeartbeat := m.startHeartbeat(ctx, cancel, job.ID)
	err := m.runJob(ctx, job)
	stopHeartbeat()

	switch {
	case err == nil:
		updated, uerr := m.store.UpdateStatus(m.ctx, job.ID, model.JobStatusProcessing, model.JobStatusCompleted, func(j *model.DownloadJob) {
			j.Error = ""
		})
		if uerr != nil {
			m.logCommitConflict(job.ID, uerr)
			return
		}
		logger.Info("下载任务完成", logger.String("jobId", job.ID))
		m.notify(updated)

	case errors.Is(err, context.Canceled):
		// 取消方已经提交了终态，这里不再写
		logger.Info("下载任务中止", logger.String("jobId", job.ID))

	default:
		updated, uerr := m.store.UpdateStatus(m.ctx, job.ID, model.JobStatusProcessing, model.JobStatusFailed, func(j *model.DownloadJob) {
			j.Error = err.Error()
		})
		if uerr != nil {
			m.logCommitConflict(job.ID, uerr)
			return
		}
		logger.Warn("下载任务失败",
			logger.String("jobId", job.ID),
			logger.Int("retryCount", updated.RetryCount),
			logger.ErrorField(err))
		m.notify(updated)
	}
}

func (m *Manager) logCommitConflict(jobID string, err error) {
	if errors.Is(err, ErrStatusConflict) {
		// 先提交者获胜，本次结果作废
		logger.Debug("任务终态已被其他写入者提交", logger.String("jobId", jobID))
		return
	}
	logger.Error("提交任务终态失败", logger.String("jobId", jobID), logger.ErrorField(err))
}

// startHeartbeat 周期续租
// 心跳发现状态冲突说明任务已被取消或回收，立即打断在途工作
func (m *Manager) startHeartbeat(ctx context.Context, interrupt context.CancelFunc, jobID string) func() {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(m.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.store.Heartbeat(ctx, jobID, time.Now()); err != nil {
					if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrJobNotFound) {
						logger.Debug("任务租约已失效，打断在途工作", logger.String("jobId", jobID))
						interrupt()
						return
					}
					logger.Warn("任务心跳失败", logger.String("jobId", jobID), logger.ErrorField(err))
				}
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

func (m *Manager) runJob(ctx context.Context, job *model.DownloadJob) error {
	switch job.Type {
	case model.JobTypeTrack:
		return m.downloadTrack(ctx, job, job.TrackID)

	case model.JobTypeAlbum:
		tracks, err := m.source.FetchAlbumTracks(ctx, job.AlbumID)
		if err != nil {
			return fmt.Errorf("failed to list album tracks: %w", err)
		}
		if len(tracks) == 0 {
			return fmt.Errorf("album %d has no tracks", job.AlbumID)
		}
		for _, t := range tracks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m.downloadTrack(ctx, job, t.ID); err != nil {
				return fmt.Errorf("track %d in album %d: %w", t.ID, job.AlbumID, err)
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported job type: %s", job.Type)
	}
}

// downloadTrack 拉取、按需转码并落盘一首曲目，阶段之间检查取消
func (m *Manager) downloadTrack(ctx context.Context, job *model.DownloadJob, trackID int64) error {
	payload, err := m.source.FetchTrack(ctx, trackID, job.Quality)
	if err != nil {
		return fmt.Errorf("failed to fetch track %d: %w", trackID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.transcoder != nil {
		payload, err = m.transcoder.ConvertIfNeeded(ctx, payload, targetFormat(payload.Quality))
		if err != nil {
			return fmt.Errorf("failed to convert track %d: %w", trackID, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	sink := m.sinkFor(job.Destination)
	if sink == nil {
		return fmt.Errorf("no sink configured for destination %q", job.Destination)
	}
	result := sink.Save(ctx, payload)
	if !result.Success {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("failed to save track %d: %s", trackID, result.Error)
	}

	if m.recorder != nil {
		m.recorder.RecordCompleted(ctx, job, payload, result)
	}
	return nil
}

func (m *Manager) sinkFor(destination string) storage.Sink {
	if destination == model.DestinationServer {
		return m.serverSink
	}
	return m.localSink
}

// targetFormat 音质档位决定落盘格式：无损档保持 flac，串流档统一 mp3
func targetFormat(quality string) string {
	if model.IsLosslessQuality(quality) {
		return "flac"
	}
	return "mp3"
}
