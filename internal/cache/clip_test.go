package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/readalong/internal/audio"
)

func testClip(n int) *audio.Clip {
	pcm := make([]byte, n*2)
	for i := range pcm {
		pcm[i] = byte(i % 7)
	}
	return &audio.Clip{PCM: pcm, SampleRate: 24000, Channels: 1}
}

type results struct {
	mu  sync.Mutex
	got []FillResult
	ch  chan FillResult
}

func newResults() *results {
	return &results{ch: make(chan FillResult, 64)}
}

func (r *results) add(res FillResult) {
	r.mu.Lock()
	r.got = append(r.got, res)
	r.mu.Unlock()
	r.ch <- res
}

func (r *results) wait(t *testing.T) FillResult {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fill")
		return FillResult{}
	}
}

// filledCache returns a cache holding n clips of the given number of frames
// at indices 0 to n-1.
func filledCache(t *testing.T, n, frames int, opts ...Option) *ClipCache {
	t.Helper()
	res := newResults()
	fetch := func(context.Context, int) (*audio.Clip, error) {
		return testClip(frames), nil
	}
	c, err := NewClipCache(fetch, append(opts, WithNotify(res.add))...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	for i := 0; i < n; i++ {
		require.True(t, c.Fill(i, 1))
	}
	for i := 0; i < n; i++ {
		require.NoError(t, res.wait(t).Err)
	}
	return c
}

func TestClipCache_FillOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, index int) (*audio.Clip, error) {
		calls.Add(1)
		<-release
		return testClip(100), nil
	}

	res := newResults()
	c, err := NewClipCache(fetch, WithNotify(res.add))
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.Fill(0, 1))
	assert.False(t, c.Fill(0, 1), "second fill while in flight should be a no-op")
	assert.True(t, c.Pending(0))

	close(release)
	got := res.wait(t)
	assert.Equal(t, 0, got.Index)
	assert.Equal(t, uint64(1), got.Tag)
	assert.NoError(t, got.Err)

	assert.False(t, c.Fill(0, 1), "fill of a cached index should be a no-op")
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, c.Pending(0))

	clip, ok := c.Get(0)
	require.True(t, ok)
	assert.Equal(t, 200, clip.Size())
}

func TestClipCache_ClearDropsInflight(t *testing.T) {
	started := make(chan struct{})
	fetch := func(ctx context.Context, index int) (*audio.Clip, error) {
		close(started)
		// ignores cancellation to prove the result is discarded anyway
		time.Sleep(20 * time.Millisecond)
		return testClip(10), nil
	}

	res := newResults()
	c, err := NewClipCache(fetch, WithNotify(res.add))
	require.NoError(t, err)

	require.True(t, c.Fill(3, 1))
	<-started
	c.Clear()
	assert.False(t, c.Pending(3))

	require.NoError(t, c.Close())
	assert.False(t, c.Has(3))
	require.Len(t, res.got, 1)
	assert.ErrorIs(t, res.got[0].Err, ErrStale)
	assert.Equal(t, int64(1), c.Stats().Stale)
}

func TestClipCache_ClearCancelsContext(t *testing.T) {
	fetch := func(ctx context.Context, index int) (*audio.Clip, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	c, err := NewClipCache(fetch)
	require.NoError(t, err)

	require.True(t, c.Fill(1, 1))
	c.Clear()

	done := make(chan struct{})
	go func() {
		_ = c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not cancelled by Clear")
	}
}

func TestClipCache_RefillAfterClear(t *testing.T) {
	var calls atomic.Int32
	fetch := func(ctx context.Context, index int) (*audio.Clip, error) {
		calls.Add(1)
		return testClip(5), nil
	}

	res := newResults()
	c, err := NewClipCache(fetch, WithNotify(res.add))
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.Fill(2, 1))
	res.wait(t)
	c.Clear()
	assert.False(t, c.Has(2))

	require.True(t, c.Fill(2, 2))
	got := res.wait(t)
	assert.Equal(t, uint64(2), got.Tag)
	assert.True(t, c.Has(2))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClipCache_FailureClearsInflight(t *testing.T) {
	boom := errors.New("boom")
	var fail atomic.Bool
	fail.Store(true)
	fetch := func(ctx context.Context, index int) (*audio.Clip, error) {
		if fail.Load() {
			return nil, boom
		}
		return testClip(5), nil
	}

	res := newResults()
	c, err := NewClipCache(fetch, WithNotify(res.add))
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.Fill(0, 7))
	got := res.wait(t)
	assert.ErrorIs(t, got.Err, boom)
	assert.False(t, c.Has(0))
	assert.False(t, c.Pending(0))

	fail.Store(false)
	require.True(t, c.Fill(0, 8), "a failed index can be filled again")
	assert.NoError(t, res.wait(t).Err)
	assert.Equal(t, int64(1), c.Stats().Failures)
}

func TestClipCache_Concurrency(t *testing.T) {
	var running, peak atomic.Int32
	fetch := func(ctx context.Context, index int) (*audio.Clip, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return testClip(1), nil
	}

	res := newResults()
	c, err := NewClipCache(fetch, WithNotify(res.add), WithConcurrency(2))
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 6; i++ {
		c.Fill(i, 1)
	}
	for i := 0; i < 6; i++ {
		res.wait(t)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestClipCache_TrimCompresses(t *testing.T) {
	c := filledCache(t, 5, 4000, WithKeepBehind(1), WithCompression(true, 3))

	c.Trim(4)
	stats := c.Stats()
	assert.Equal(t, 3, stats.ColdItems) // 0, 1, 2
	assert.Equal(t, 2, stats.HotItems)  // 3, 4
	assert.Less(t, stats.ColdBytes, int64(3*8000))

	clip, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, testClip(4000).PCM, clip.PCM)
	assert.Equal(t, 24000, clip.SampleRate)
	assert.Equal(t, 3, c.Stats().HotItems)
}

func TestClipCache_TrimDrops(t *testing.T) {
	c := filledCache(t, 3, 10, WithKeepBehind(0))
	c.Trim(2)

	assert.False(t, c.Has(0))
	assert.False(t, c.Has(1))
	assert.True(t, c.Has(2))
	assert.Equal(t, int64(2), c.Stats().Dropped)
}

func TestClipCache_HitRate(t *testing.T) {
	c := filledCache(t, 1, 1)
	c.Get(0)
	c.Get(1)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}

func TestClipCache_FillAfterClose(t *testing.T) {
	c, err := NewClipCache(func(ctx context.Context, index int) (*audio.Clip, error) {
		return testClip(1), nil
	})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.False(t, c.Fill(0, 1))
}

func TestClipCache_TrimDisabled(t *testing.T) {
	c := filledCache(t, 10, 10, WithKeepBehind(-1))
	c.Trim(9)
	assert.Equal(t, 10, c.Stats().HotItems)
}
