package playback

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"AuraFM/logger"
	"AuraFM/model"
)

// 回退原因标签，每条原因对每首曲目在其播放生命周期内至多触发一次
const (
	ReasonLosslessPlayback = "lossless-playback"
	reasonDASHPrefix       = "dash-playback:"
)

// DASHReason 构造 DASH 回退的原因标签
func DASHReason(detail string) string {
	return reasonDASHPrefix + detail
}

// FallbackPlan 一次回退提案，由控制器产出、执行器消费一次
type FallbackPlan struct {
	TrackID int64  `json:"trackId"`
	Quality string `json:"quality"` // 回退后的目标音质
	Reason  string `json:"reason"`
	Token   uint64 `json:"token"` // 产出时的 attempt token，过期提案会被丢弃
}

// PlaybackContext 回退决策需要的播放上下文
type PlaybackContext struct {
	TrackID    int64
	Quality    string // 当前播放音质
	DASHActive bool   // 是否走 DASH 管线
	Generation uint64
}

// 每首曲目的守卫状态：fired 表示该类回退已产出过提案，executed 表示副作用已发出
type trackGuards struct {
	losslessFired    bool
	dashFired        bool
	losslessExecuted bool
	dashExecuted     bool
}

// ControllerConfig 控制器的依赖注入配置
type ControllerConfig struct {
	// FallbackQuality 无损播放失败后回退到的串流音质，为空表示环境不支持无损回退
	FallbackQuality string
	// Loader 以回退音质重新加载当前曲目
	Loader func(ctx context.Context, plan *FallbackPlan) error
	// OnFallbackRequested 回退发生后的通知副作用，同一守卫代内恰好调用一次
	OnFallbackRequested func(plan *FallbackPlan)
	// CurrentGeneration 返回状态机当前的 attempt token
	CurrentGeneration func() uint64
}

// Controller 回退决策引擎
// 媒体元素会为同一次底层故障连发多个错误事件，守卫保证每类补救动作至多执行一次
type Controller struct {
	mu     sync.Mutex
	guards map[int64]*trackGuards

	fallbackQuality     string
	loader              func(ctx context.Context, plan *FallbackPlan) error
	onFallbackRequested func(plan *FallbackPlan)
	currentGen          func() uint64
}

// NewController 创建回退控制器
func NewController(cfg ControllerConfig) *Controller {
	return &Controller{
		guards:              make(map[int64]*trackGuards),
		fallbackQuality:     cfg.FallbackQuality,
		loader:              cfg.Loader,
		onFallbackRequested: cfg.OnFallbackRequested,
		currentGen:          cfg.CurrentGeneration,
	}
}

// ResetForTrack 切换曲目时清掉该曲目的守卫，已耗尽的错误类在新曲目上重新武装
func (c *Controller) ResetForTrack(trackID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.guards, trackID)
}

// PlanFallback 根据媒体错误和播放上下文决定是否回退
// ABORTED 永远不触发回退，非无损音质没有可回退的空间
func (c *Controller) PlanFallback(mediaErr *MediaError, pctx PlaybackContext) *FallbackPlan {
	if mediaErr == nil {
		return nil
	}
	if mediaErr.Code == MediaErrAborted {
		return nil
	}
	// 只有解码类与源不支持类错误值得回退，网络错误进入错误态交给用户重试
	if mediaErr.Code != MediaErrDecode && mediaErr.Code != MediaErrSrcNotSupported {
		return nil
	}
	if !model.IsLosslessQuality(pctx.Quality) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.guardsForLocked(pctx.TrackID)

	if pctx.DASHActive && mediaErr.Code == MediaErrDecode && !g.dashFired {
		g.dashFired = true
		detail := mediaErr.Detail
		if detail == "" {
			detail = mediaErr.Code.String()
		}
		return &FallbackPlan{
			TrackID: pctx.TrackID,
			Quality: pctx.Quality, // 换管线不降音质
			Reason:  DASHReason(detail),
			Token:   pctx.Generation,
		}
	}

	if !g.losslessFired && c.fallbackQuality != "" {
		g.losslessFired = true
		return &FallbackPlan{
			TrackID: pctx.TrackID,
			Quality: c.fallbackQuality,
			Reason:  ReasonLosslessPlayback,
			Token:   pctx.Generation,
		}
	}

	return nil
}

// ExecuteFallback 执行回退提案
// 同一守卫代内无论并发调用多少次，加载器和通知回调都只会执行一次
// 提案的 attempt token 与当前代不一致时整个副作用被丢弃
func (c *Controller) ExecuteFallback(ctx context.Context, plan *FallbackPlan) error {
	if plan == nil {
		return nil
	}

	c.mu.Lock()
	g := c.guardsForLocked(plan.TrackID)
	executed := &g.losslessExecuted
	if strings.HasPrefix(plan.Reason, reasonDASHPrefix) {
		executed = &g.dashExecuted
	}
	if *executed {
		c.mu.Unlock()
		return nil
	}
	if c.currentGen != nil && c.currentGen() != plan.Token {
		c.mu.Unlock()
		logger.Debug("丢弃过期的回退提案",
			logger.Int64("trackId", plan.TrackID),
			logger.String("reason", plan.Reason),
			logger.Uint64("token", plan.Token))
		return nil
	}
	*executed = true
	c.mu.Unlock()

	if c.loader != nil {
		if err := c.loader(ctx, plan); err != nil {
			return fmt.Errorf("fallback load failed: %w", err)
		}
	}

	// 加载完成后复核 token，期间被新的加载取代则放弃通知
	if c.currentGen != nil && c.currentGen() != plan.Token {
		logger.Debug("回退完成时 token 已过期，放弃通知",
			logger.Int64("trackId", plan.TrackID),
			logger.String("reason", plan.Reason))
		return nil
	}
	if c.onFallbackRequested != nil {
		c.onFallbackRequested(plan)
	}
	return nil
}

func (c *Controller) guardsForLocked(trackID int64) *trackGuards {
	g, ok := c.guards[trackID]
	if !ok {
		g = &trackGuards{}
		c.guards[trackID] = g
	}
	return g
}
