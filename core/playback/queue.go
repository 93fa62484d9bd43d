package playback

import (
	"math/rand"
	"sync"

	"AuraFM/model"
)

// Coordinator 维护播放队列与当前下标，所有操作都提交一份新的一致快照
// 非法输入一律降级为空操作或收敛到边界值，队列操作永远不会让播放崩溃
type Coordinator struct {
	mu     sync.Mutex
	tracks []model.Track
	index  int

	// 队列为空时 Enqueue/EnqueueNext 用它补上正在播放的曲目，保证续播
	currentFn func() *model.Track
}

// NewCoordinator 创建队列协调器，currentFn 可以为 nil
func NewCoordinator(currentFn func() *model.Track) *Coordinator {
	return &Coordinator{
		tracks:    []model.Track{},
		index:     -1,
		currentFn: currentFn,
	}
}

// SetQueue 整体替换队列，startIndex 收敛到 [0, len-1]，空队列时为 -1
func (c *Coordinator) SetQueue(tracks []model.Track, startIndex int) QueueState {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tracks = make([]model.Track, len(tracks))
	copy(c.tracks, tracks)

	if len(c.tracks) == 0 {
		c.index = -1
	} else {
		c.index = clampIndex(startIndex, len(c.tracks))
	}
	return c.stateLocked()
}

// Enqueue 追加曲目，空队列时用当前播放曲目加新曲目重建，保持播放连续性
func (c *Coordinator) Enqueue(track model.Track) QueueState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.tracks) == 0 {
		c.seedLocked(track)
		return c.stateLocked()
	}
	c.tracks = append(c.tracks, track)
	return c.stateLocked()
}

// EnqueueNext 把曲目插到当前曲目之后，空队列或下标失效时同 Enqueue 的种子逻辑
func (c *Coordinator) EnqueueNext(track model.Track) QueueState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.tracks) == 0 || c.index < 0 || c.index >= len(c.tracks) {
		c.seedLocked(track)
		return c.stateLocked()
	}

	pos := c.index + 1
	next := make([]model.Track, 0, len(c.tracks)+1)
	next = append(next, c.tracks[:pos]...)
	next = append(next, track)
	next = append(next, c.tracks[pos:]...)
	c.tracks = next
	return c.stateLocked()
}

// RemoveFromQueue 删除指定下标的曲目，越界时为空操作
// 删除当前曲目时下标收敛到新边界内，当前曲目顺延为下一首，这是刻意保留的策略
func (c *Coordinator) RemoveFromQueue(index int) QueueState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.tracks) {
		return c.stateLocked()
	}

	c.tracks = append(c.tracks[:index], c.tracks[index+1:]...)

	switch {
	case len(c.tracks) == 0:
		c.index = -1
	case index < c.index:
		c.index--
	case index == c.index:
		if c.index >= len(c.tracks) {
			c.index = len(c.tracks) - 1
		}
	}
	return c.stateLocked()
}

// ClearQueue 清空队列
func (c *Coordinator) ClearQueue() QueueState {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tracks = []model.Track{}
	c.index = -1
	return c.stateLocked()
}

// ShuffleQueue 洗牌，当前曲目固定在第 0 位，洗牌永远不会打断正在播放的曲目
func (c *Coordinator) ShuffleQueue() QueueState {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.tracks)
	if n <= 1 {
		return c.stateLocked()
	}

	cur := c.shuffleAnchorLocked()
	if cur < 0 || cur >= n {
		// 没有可固定的当前曲目，整体洗牌
		for i := n - 1; i > 0; i-- {
			j := rand.Intn(i + 1)
			c.tracks[i], c.tracks[j] = c.tracks[j], c.tracks[i]
		}
		c.index = 0
		return c.stateLocked()
	}

	current := c.tracks[cur]
	pool := make([]model.Track, 0, n-1)
	pool = append(pool, c.tracks[:cur]...)
	pool = append(pool, c.tracks[cur+1:]...)

	// Fisher–Yates
	for i := len(pool) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}

	c.tracks = append([]model.Track{current}, pool...)
	c.index = 0
	return c.stateLocked()
}

// Next 前进一位，已到末尾时返回原快照，不回绕
func (c *Coordinator) Next() QueueState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.index+1 < len(c.tracks) {
		c.index++
	}
	return c.stateLocked()
}

// Previous 后退一位，已到开头时返回原快照，不回绕
func (c *Coordinator) Previous() QueueState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.index > 0 {
		c.index--
	}
	return c.stateLocked()
}

// Select 把游标移到队列中指定曲目的位置
// 曲目不在队列里时游标不动，第二个返回值为 false
func (c *Coordinator) Select(trackID int64) (QueueState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, t := range c.tracks {
		if t.ID == trackID {
			c.index = i
			return c.stateLocked(), true
		}
	}
	return c.stateLocked(), false
}

// State 返回当前快照
func (c *Coordinator) State() QueueState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// seedLocked 空队列播种：有正在播放的曲目时排在新曲目前面
func (c *Coordinator) seedLocked(track model.Track) {
	if c.currentFn != nil {
		if cur := c.currentFn(); cur != nil {
			c.tracks = []model.Track{*cur, track}
			c.index = 0
			return
		}
	}
	c.tracks = []model.Track{track}
	c.index = 0
}

// shuffleAnchorLocked 确定洗牌时固定的曲目下标，优先按当前播放曲目的 id 匹配
func (c *Coordinator) shuffleAnchorLocked() int {
	if c.currentFn != nil {
		if cur := c.currentFn(); cur != nil {
			for i := range c.tracks {
				if c.tracks[i].ID == cur.ID {
					return i
				}
			}
		}
	}
	return c.index
}

func (c *Coordinator) stateLocked() QueueState {
	tracks := make([]model.Track, len(c.tracks))
	copy(tracks, c.tracks)

	st := QueueState{Tracks: tracks, Index: c.index}
	if c.index >= 0 && c.index < len(tracks) {
		t := tracks[c.index]
		st.Current = &t
	}
	return st
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
