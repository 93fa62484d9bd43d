package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AuraFM/model"
)

func losslessContext(trackID int64) PlaybackContext {
	return PlaybackContext{
		TrackID:    trackID,
		Quality:    model.QualityLossless,
		Generation: 1,
	}
}

func TestPlanFallbackFiltersErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		mediaErr *MediaError
		pctx     PlaybackContext
		wantPlan bool
	}{
		{name: "nil error never plans", mediaErr: nil, pctx: losslessContext(1), wantPlan: false},
		{name: "aborted never plans", mediaErr: &MediaError{Code: MediaErrAborted}, pctx: losslessContext(1), wantPlan: false},
		{name: "network never plans", mediaErr: &MediaError{Code: MediaErrNetwork}, pctx: losslessContext(1), wantPlan: false},
		{name: "decode on lossless plans", mediaErr: &MediaError{Code: MediaErrDecode}, pctx: losslessContext(1), wantPlan: true},
		{name: "src not supported on lossless plans", mediaErr: &MediaError{Code: MediaErrSrcNotSupported}, pctx: losslessContext(1), wantPlan: true},
		{name: "decode on hires plans", mediaErr: &MediaError{Code: MediaErrDecode}, pctx: PlaybackContext{TrackID: 1, Quality: model.QualityHires}, wantPlan: true},
		{name: "decode on streaming quality has no room left", mediaErr: &MediaError{Code: MediaErrDecode}, pctx: PlaybackContext{TrackID: 1, Quality: model.QualityExhigh}, wantPlan: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := NewController(ControllerConfig{FallbackQuality: model.QualityExhigh})
			plan := c.PlanFallback(tc.mediaErr, tc.pctx)

			if tc.wantPlan {
				require.NotNil(t, plan)
				assert.Equal(t, ReasonLosslessPlayback, plan.Reason)
				assert.Equal(t, model.QualityExhigh, plan.Quality)
			} else {
				assert.Nil(t, plan)
			}
		})
	}
}

func TestPlanFallbackLosslessAtMostOncePerTrack(t *testing.T) {
	t.Parallel()

	c := NewController(ControllerConfig{FallbackQuality: model.QualityExhigh})
	decode := &MediaError{Code: MediaErrDecode}

	first := c.PlanFallback(decode, losslessContext(1))
	require.NotNil(t, first)

	second := c.PlanFallback(decode, losslessContext(1))
	assert.Nil(t, second, "same track must not plan lossless fallback twice")

	other := c.PlanFallback(decode, losslessContext(2))
	require.NotNil(t, other, "guards are per track")
}

func TestResetForTrackRearmsGuards(t *testing.T) {
	t.Parallel()

	c := NewController(ControllerConfig{FallbackQuality: model.QualityExhigh})
	decode := &MediaError{Code: MediaErrDecode}

	require.NotNil(t, c.PlanFallback(decode, losslessContext(1)))
	require.Nil(t, c.PlanFallback(decode, losslessContext(1)))

	c.ResetForTrack(1)

	assert.NotNil(t, c.PlanFallback(decode, losslessContext(1)), "reset re-arms the exhausted guard")
}

func TestPlanFallbackDASHBranch(t *testing.T) {
	t.Parallel()

	c := NewController(ControllerConfig{FallbackQuality: model.QualityExhigh})
	pctx := losslessContext(1)
	pctx.DASHActive = true

	plan := c.PlanFallback(&MediaError{Code: MediaErrDecode, Detail: "segment parse failed"}, pctx)
	require.NotNil(t, plan)
	assert.Equal(t, "dash-playback:segment parse failed", plan.Reason)
	assert.Equal(t, model.QualityLossless, plan.Quality, "pipeline switch keeps the same quality")

	// DASH 守卫耗尽后的下一次解码错误走无损降级
	next := c.PlanFallback(&MediaError{Code: MediaErrDecode}, pctx)
	require.NotNil(t, next)
	assert.Equal(t, ReasonLosslessPlayback, next.Reason)
	assert.Equal(t, model.QualityExhigh, next.Quality)

	// 两类守卫都耗尽
	assert.Nil(t, c.PlanFallback(&MediaError{Code: MediaErrDecode}, pctx))
}

func TestPlanFallbackDASHDetailDefaultsToCodeName(t *testing.T) {
	t.Parallel()

	c := NewController(ControllerConfig{FallbackQuality: model.QualityExhigh})
	pctx := losslessContext(1)
	pctx.DASHActive = true

	plan := c.PlanFallback(&MediaError{Code: MediaErrDecode}, pctx)
	require.NotNil(t, plan)
	assert.Equal(t, "dash-playback:MEDIA_ERR_DECODE", plan.Reason)
}

func TestPlanFallbackSrcNotSupportedSkipsDASHBranch(t *testing.T) {
	t.Parallel()

	c := NewController(ControllerConfig{FallbackQuality: model.QualityExhigh})
	pctx := losslessContext(1)
	pctx.DASHActive = true

	plan := c.PlanFallback(&MediaError{Code: MediaErrSrcNotSupported}, pctx)
	require.NotNil(t, plan)
	assert.Equal(t, ReasonLosslessPlayback, plan.Reason, "only decode errors blame the DASH pipeline")
}

func TestPlanFallbackWithoutConfiguredQuality(t *testing.T) {
	t.Parallel()

	c := NewController(ControllerConfig{})
	plan := c.PlanFallback(&MediaError{Code: MediaErrDecode}, losslessContext(1))
	assert.Nil(t, plan, "no fallback quality configured means no lossless fallback")
}

func TestExecuteFallbackRunsSideEffectsOnce(t *testing.T) {
	t.Parallel()

	var loads, notifies int
	c := NewController(ControllerConfig{
		FallbackQuality: model.QualityExhigh,
		Loader: func(ctx context.Context, plan *FallbackPlan) error {
			loads++
			return nil
		},
		OnFallbackRequested: func(plan *FallbackPlan) { notifies++ },
		CurrentGeneration:   func() uint64 { return 1 },
	})

	plan := c.PlanFallback(&MediaError{Code: MediaErrDecode}, losslessContext(1))
	require.NotNil(t, plan)

	require.NoError(t, c.ExecuteFallback(context.Background(), plan))
	require.NoError(t, c.ExecuteFallback(context.Background(), plan))

	assert.Equal(t, 1, loads)
	assert.Equal(t, 1, notifies)
}

func TestExecuteFallbackExactlyOnceUnderConcurrency(t *testing.T) {
	t.Parallel()

	var loads, notifies atomic.Int32
	c := NewController(ControllerConfig{
		FallbackQuality: model.QualityExhigh,
		Loader: func(ctx context.Context, plan *FallbackPlan) error {
			loads.Add(1)
			return nil
		},
		OnFallbackRequested: func(plan *FallbackPlan) { notifies.Add(1) },
		CurrentGeneration:   func() uint64 { return 1 },
	})

	plan := c.PlanFallback(&MediaError{Code: MediaErrDecode}, losslessContext(1))
	require.NotNil(t, plan)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.ExecuteFallback(context.Background(), plan)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, int32(1), notifies.Load())
}

func TestExecuteFallbackDropsStalePlan(t *testing.T) {
	t.Parallel()

	var loads int
	c := NewController(ControllerConfig{
		FallbackQuality: model.QualityExhigh,
		Loader: func(ctx context.Context, plan *FallbackPlan) error {
			loads++
			return nil
		},
		CurrentGeneration: func() uint64 { return 5 },
	})

	stale := &FallbackPlan{TrackID: 1, Quality: model.QualityExhigh, Reason: ReasonLosslessPlayback, Token: 4}
	require.NoError(t, c.ExecuteFallback(context.Background(), stale))

	assert.Zero(t, loads, "stale plan must not reach the loader")
}

func TestExecuteFallbackSkipsNotifyWhenTokenExpiresDuringLoad(t *testing.T) {
	t.Parallel()

	// 加载器运行期间来了新的加载请求，通知被放弃
	var gen atomic.Uint64
	gen.Store(1)
	var notifies int

	c := NewController(ControllerConfig{
		FallbackQuality: model.QualityExhigh,
		Loader: func(ctx context.Context, plan *FallbackPlan) error {
			gen.Store(2)
			return nil
		},
		OnFallbackRequested: func(plan *FallbackPlan) { notifies++ },
		CurrentGeneration:   gen.Load,
	})

	plan := &FallbackPlan{TrackID: 1, Quality: model.QualityExhigh, Reason: ReasonLosslessPlayback, Token: 1}
	require.NoError(t, c.ExecuteFallback(context.Background(), plan))

	assert.Zero(t, notifies)
}

func TestExecuteFallbackWrapsLoaderError(t *testing.T) {
	t.Parallel()

	var notifies int
	c := NewController(ControllerConfig{
		FallbackQuality: model.QualityExhigh,
		Loader: func(ctx context.Context, plan *FallbackPlan) error {
			return assert.AnError
		},
		OnFallbackRequested: func(plan *FallbackPlan) { notifies++ },
		CurrentGeneration:   func() uint64 { return 1 },
	})

	plan := &FallbackPlan{TrackID: 1, Quality: model.QualityExhigh, Reason: ReasonLosslessPlayback, Token: 1}
	err := c.ExecuteFallback(context.Background(), plan)

	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "fallback load failed")
	assert.Zero(t, notifies, "failed load must not notify")
}

func TestExecuteFallbackNilPlanIsNoOp(t *testing.T) {
	t.Parallel()

	c := NewController(ControllerConfig{FallbackQuality: model.QualityExhigh})
	assert.NoError(t, c.ExecuteFallback(context.Background(), nil))
}
