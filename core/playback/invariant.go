package playback

import (
	"fmt"
	"strings"

	"AuraFM/logger"
)

// 结构不变量检查
// Assert 变体视违规为程序缺陷，立即 panic，用于测试和开发环境
// Validate 变体记录日志后继续执行，用于生产路径上的漂移检测

func checkState(snap *Snapshot, forbidLoadingWithoutTrack bool) []string {
	var violations []string
	if snap == nil {
		return []string{"snapshot is nil"}
	}

	n := len(snap.Queue)
	if n == 0 && snap.Index != -1 {
		violations = append(violations, fmt.Sprintf("empty queue requires index -1, got %d", snap.Index))
	}
	if n > 0 && (snap.Index < 0 || snap.Index >= n) {
		violations = append(violations, fmt.Sprintf("index %d out of bounds for queue of %d", snap.Index, n))
	}

	if snap.Status == StatusPlaying && snap.Current == nil {
		violations = append(violations, "playing without a current track")
	}
	if forbidLoadingWithoutTrack && snap.Status == StatusLoading && snap.Current == nil {
		violations = append(violations, "loading without a current track")
	}

	// 队列当前项与 currentTrack 的一致性只在两者都有定义时检查
	if snap.Current != nil && n > 0 && snap.Index >= 0 && snap.Index < n {
		if snap.Queue[snap.Index].ID != snap.Current.ID {
			violations = append(violations,
				fmt.Sprintf("current track %d does not match queue[%d] = %d",
					snap.Current.ID, snap.Index, snap.Queue[snap.Index].ID))
		}
	}

	return violations
}

// AssertPlaybackState 校验播放快照的结构一致性，违规即 panic
func AssertPlaybackState(snap *Snapshot) {
	if violations := checkState(snap, false); len(violations) > 0 {
		panic("playback state invariant violated: " + strings.Join(violations, "; "))
	}
}

// AssertPlayableState 在 AssertPlaybackState 基础上额外禁止无曲目的 loading 状态
func AssertPlayableState(snap *Snapshot) {
	if violations := checkState(snap, true); len(violations) > 0 {
		panic("playable state invariant violated: " + strings.Join(violations, "; "))
	}
}

// ValidatePlaybackState 软校验，记录每一条违规并返回，不中断执行
func ValidatePlaybackState(snap *Snapshot) []string {
	violations := checkState(snap, false)
	for _, v := range violations {
		logger.Warn("播放状态不变量被破坏", logger.String("violation", v))
	}
	return violations
}

// ValidatePlayableState 软校验的 playable 变体
func ValidatePlayableState(snap *Snapshot) []string {
	violations := checkState(snap, true)
	for _, v := range violations {
		logger.Warn("播放状态不变量被破坏", logger.String("violation", v))
	}
	return violations
}
