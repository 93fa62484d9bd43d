package playback

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AuraFM/model"
)

func testTracks(ids ...int64) []model.Track {
	out := make([]model.Track, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Track{
			ID:       id,
			Title:    fmt.Sprintf("Track %d", id),
			Artist:   "Test Artist",
			Quality:  model.QualityExhigh,
			Duration: 240,
		})
	}
	return out
}

func queueIDs(qs QueueState) []int64 {
	out := make([]int64, 0, len(qs.Tracks))
	for _, t := range qs.Tracks {
		out = append(out, t.ID)
	}
	return out
}

func TestSetQueueClampsStartIndex(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		tracks     []model.Track
		startIndex int
		wantIndex  int
	}{
		{name: "valid index kept", tracks: testTracks(1, 2, 3), startIndex: 1, wantIndex: 1},
		{name: "negative clamps to zero", tracks: testTracks(1, 2, 3), startIndex: -5, wantIndex: 0},
		{name: "past end clamps to last", tracks: testTracks(1, 2, 3), startIndex: 99, wantIndex: 2},
		{name: "empty queue forces -1", tracks: nil, startIndex: 0, wantIndex: -1},
		{name: "empty queue ignores index", tracks: nil, startIndex: 7, wantIndex: -1},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := NewCoordinator(nil)
			qs := c.SetQueue(tc.tracks, tc.startIndex)

			assert.Equal(t, tc.wantIndex, qs.Index)
			assert.Len(t, qs.Tracks, len(tc.tracks))
			if tc.wantIndex >= 0 {
				require.NotNil(t, qs.Current)
				assert.Equal(t, tc.tracks[tc.wantIndex].ID, qs.Current.ID)
			} else {
				assert.Nil(t, qs.Current)
			}
		})
	}
}

func TestSetQueueCopiesInput(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	in := testTracks(1, 2, 3)
	c.SetQueue(in, 0)

	in[0].ID = 999
	qs := c.State()
	assert.Equal(t, int64(1), qs.Tracks[0].ID, "coordinator must not share the caller's slice")
}

func TestEnqueueAppendsToNonEmptyQueue(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	c.SetQueue(testTracks(1, 2), 1)

	qs := c.Enqueue(testTracks(3)[0])

	assert.Equal(t, []int64{1, 2, 3}, queueIDs(qs))
	assert.Equal(t, 1, qs.Index, "append must not move the cursor")
}

func TestEnqueueSeedsEmptyQueueFromCurrent(t *testing.T) {
	t.Parallel()

	playing := model.Track{ID: 7, Title: "Now Playing", Quality: model.QualityLossless}
	c := NewCoordinator(func() *model.Track { return &playing })

	qs := c.Enqueue(testTracks(9)[0])

	assert.Equal(t, []int64{7, 9}, queueIDs(qs), "current track seeds ahead of the new one")
	assert.Equal(t, 0, qs.Index)
	require.NotNil(t, qs.Current)
	assert.Equal(t, int64(7), qs.Current.ID)
}

func TestEnqueueSeedsEmptyQueueWithoutCurrent(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(func() *model.Track { return nil })

	qs := c.Enqueue(testTracks(9)[0])

	assert.Equal(t, []int64{9}, queueIDs(qs))
	assert.Equal(t, 0, qs.Index)
}

func TestEnqueueNextInsertsAfterCurrent(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	c.SetQueue(testTracks(1, 2, 3), 1)

	qs := c.EnqueueNext(testTracks(9)[0])

	assert.Equal(t, []int64{1, 2, 9, 3}, queueIDs(qs))
	assert.Equal(t, 1, qs.Index)
}

func TestEnqueueNextSeedsEmptyQueue(t *testing.T) {
	t.Parallel()

	playing := model.Track{ID: 7}
	c := NewCoordinator(func() *model.Track { return &playing })

	qs := c.EnqueueNext(testTracks(9)[0])

	assert.Equal(t, []int64{7, 9}, queueIDs(qs))
	assert.Equal(t, 0, qs.Index)
}

func TestRemoveFromQueue(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		start     []int64
		index     int
		remove    int
		wantIDs   []int64
		wantIndex int
	}{
		{name: "before current shifts index down", start: []int64{1, 2, 3}, index: 2, remove: 0, wantIDs: []int64{2, 3}, wantIndex: 1},
		{name: "after current keeps index", start: []int64{1, 2, 3}, index: 0, remove: 2, wantIDs: []int64{1, 2}, wantIndex: 0},
		{name: "current in middle advances to next", start: []int64{1, 2, 3}, index: 1, remove: 1, wantIDs: []int64{1, 3}, wantIndex: 1},
		{name: "current at end clamps to new last", start: []int64{1, 2, 3}, index: 2, remove: 2, wantIDs: []int64{1, 2}, wantIndex: 1},
		{name: "only element empties queue", start: []int64{1}, index: 0, remove: 0, wantIDs: []int64{}, wantIndex: -1},
		{name: "negative index is a no-op", start: []int64{1, 2}, index: 1, remove: -1, wantIDs: []int64{1, 2}, wantIndex: 1},
		{name: "out of bounds is a no-op", start: []int64{1, 2}, index: 1, remove: 5, wantIDs: []int64{1, 2}, wantIndex: 1},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := NewCoordinator(nil)
			c.SetQueue(testTracks(tc.start...), tc.index)

			qs := c.RemoveFromQueue(tc.remove)

			assert.Equal(t, tc.wantIDs, queueIDs(qs))
			assert.Equal(t, tc.wantIndex, qs.Index)
		})
	}
}

func TestClearQueue(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	c.SetQueue(testTracks(1, 2, 3), 1)

	qs := c.ClearQueue()

	assert.Empty(t, qs.Tracks)
	assert.Equal(t, -1, qs.Index)
	assert.Nil(t, qs.Current)
}

func TestShuffleQueuePinsCurrentAtHead(t *testing.T) {
	t.Parallel()

	// 多轮洗牌验证：当前曲目总在 0 号位，其余曲目只是换了顺序
	for round := 0; round < 10; round++ {
		c := NewCoordinator(nil)
		c.SetQueue(testTracks(1, 2, 3, 4, 5), 2)

		qs := c.ShuffleQueue()

		require.Len(t, qs.Tracks, 5)
		assert.Equal(t, 0, qs.Index)
		assert.Equal(t, int64(3), qs.Tracks[0].ID, "previous current track must stay at position 0")
		assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5}, queueIDs(qs))
	}
}

func TestShuffleQueueAnchorsOnPlayingTrack(t *testing.T) {
	t.Parallel()

	// 正在播放的曲目和队列游标不一致时，以播放中的曲目为锚
	playing := model.Track{ID: 4}
	c := NewCoordinator(func() *model.Track { return &playing })
	c.SetQueue(testTracks(1, 2, 3, 4, 5), 0)

	qs := c.ShuffleQueue()

	assert.Equal(t, 0, qs.Index)
	assert.Equal(t, int64(4), qs.Tracks[0].ID)
}

func TestShuffleQueueSmallQueuesAreNoOps(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)

	qs := c.ShuffleQueue()
	assert.Empty(t, qs.Tracks)
	assert.Equal(t, -1, qs.Index)

	c.SetQueue(testTracks(1), 0)
	qs = c.ShuffleQueue()
	assert.Equal(t, []int64{1}, queueIDs(qs))
	assert.Equal(t, 0, qs.Index)
}

func TestNextStopsAtEnd(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	c.SetQueue(testTracks(1, 2), 0)

	qs := c.Next()
	assert.Equal(t, 1, qs.Index)

	qs = c.Next()
	assert.Equal(t, 1, qs.Index, "no wrap-around at the end")
}

func TestPreviousStopsAtStart(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	c.SetQueue(testTracks(1, 2), 1)

	qs := c.Previous()
	assert.Equal(t, 0, qs.Index)

	qs = c.Previous()
	assert.Equal(t, 0, qs.Index, "no wrap-around at the start")
}

func TestSelectMovesCursorToTrack(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	c.SetQueue(testTracks(1, 2, 3), 0)

	qs, ok := c.Select(3)
	assert.True(t, ok)
	assert.Equal(t, 2, qs.Index)

	qs, ok = c.Select(42)
	assert.False(t, ok)
	assert.Equal(t, 2, qs.Index, "unknown track leaves the cursor in place")
}

func TestNavigateRemoveShuffleScenario(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(nil)
	c.SetQueue(testTracks(1, 2, 3), 0)

	qs := c.Next()
	require.Equal(t, 1, qs.Index)
	require.Equal(t, int64(2), qs.Current.ID)

	qs = c.RemoveFromQueue(0)
	require.Equal(t, 0, qs.Index)
	require.Equal(t, int64(2), qs.Current.ID, "removing before the cursor keeps the same track current")

	qs = c.ShuffleQueue()
	assert.Equal(t, 0, qs.Index)
	require.NotNil(t, qs.Current)
	assert.Equal(t, int64(2), qs.Current.ID)
	assert.ElementsMatch(t, []int64{2, 3}, queueIDs(qs))
}
