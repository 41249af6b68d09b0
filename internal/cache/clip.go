package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/semaphore"

	"github.com/dgnsrekt/readalong/internal/audio"
	"github.com/dgnsrekt/readalong/internal/observe"
)

// ErrStale is reported for fills that finished after the cache was cleared.
var ErrStale = errors.New("fill belongs to a cleared cache")

// Fetcher produces the clip for a segment index.
type Fetcher func(ctx context.Context, index int) (*audio.Clip, error)

// FillResult reports a finished fill. Tag is the value passed to Fill, so the
// caller can recognise results that belong to an older request.
type FillResult struct {
	Index int
	Tag   uint64
	Err   error
}

// ClipCache keeps synthesized clips by segment index and tracks which indices
// are being fetched, so each index is synthesized at most once per epoch.
// Clear starts a new epoch: fills started before it are cancelled and their
// results never reach the cache.
//
// Clips far behind the playback position are either dropped or kept
// zstd-compressed, depending on configuration.
type ClipCache struct {
	fetch      Fetcher
	notify     func(FillResult)
	keepBehind int
	compress   bool
	level      zstd.EncoderLevel
	sem        *semaphore.Weighted
	metrics    *observe.Metrics

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu       sync.Mutex
	epoch    uint64
	ctx      context.Context
	cancel   context.CancelFunc
	entries  map[int]*clipEntry
	inflight map[int]uint64
	stats    Stats
	closed   bool

	wg sync.WaitGroup
}

type clipEntry struct {
	clip     *audio.Clip
	packed   []byte // compressed PCM when cold
	rate     int
	channels int
	size     int64
	stored   time.Time
	hits     int64
}

// Stats holds clip cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Fetches   int64
	Failures  int64
	Stale     int64
	Packed    int64 // entries moved to the compressed tier
	Dropped   int64 // entries evicted outright
	HotItems  int
	ColdItems int
	HotBytes  int64
	ColdBytes int64
	InFlight  int
	HitRate   float64
}

// Option configures a ClipCache.
type Option func(*ClipCache)

// WithNotify registers a callback invoked after every fill, successful or
// not. Fills that outlived a Clear are reported with ErrStale. The callback
// runs on the fill goroutine.
func WithNotify(fn func(FillResult)) Option {
	return func(c *ClipCache) { c.notify = fn }
}

// WithKeepBehind sets how many clips behind the current index stay
// uncompressed. A negative value disables eviction.
func WithKeepBehind(n int) Option {
	return func(c *ClipCache) { c.keepBehind = n }
}

// WithCompression keeps evicted clips zstd-compressed instead of dropping
// them. Level follows zstd numbering (1-22).
func WithCompression(enabled bool, level int) Option {
	return func(c *ClipCache) {
		c.compress = enabled
		if level > 0 {
			c.level = zstd.EncoderLevelFromZstd(level)
		}
	}
}

// WithConcurrency bounds the number of fetches running at once.
func WithConcurrency(n int) Option {
	return func(c *ClipCache) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithMetrics records cache events on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *ClipCache) { c.metrics = m }
}

// NewClipCache creates a cache that fills entries with fetch.
func NewClipCache(fetch Fetcher, opts ...Option) (*ClipCache, error) {
	c := &ClipCache{
		fetch:      fetch,
		keepBehind: 3,
		level:      zstd.SpeedDefault,
		sem:        semaphore.NewWeighted(2),
		entries:    make(map[int]*clipEntry),
		inflight:   make(map[int]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if c.compress {
		var err error
		c.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		c.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	return c, nil
}

// Has reports whether index is cached, hot or cold.
func (c *ClipCache) Has(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[index]
	return ok
}

// Pending reports whether a fetch for index is running in the current epoch.
func (c *ClipCache) Pending(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	epoch, ok := c.inflight[index]
	return ok && epoch == c.epoch
}

// Get returns the clip for index. Cold entries are decompressed and moved
// back to the hot tier.
func (c *ClipCache) Get(index int) (*audio.Clip, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[index]
	if !ok {
		c.stats.Misses++
		c.record("miss")
		return nil, false
	}

	if e.clip == nil {
		pcm, err := c.decoder.DecodeAll(e.packed, nil)
		if err != nil {
			log.Warn("Dropping corrupted cache entry", "index", index, "error", err)
			delete(c.entries, index)
			c.stats.Misses++
			c.record("miss")
			return nil, false
		}
		e.clip = &audio.Clip{PCM: pcm, SampleRate: e.rate, Channels: e.channels}
		e.packed = nil
		e.size = int64(len(pcm))
	}

	e.hits++
	c.stats.Hits++
	c.record("hit")
	return e.clip, true
}

// Fill starts fetching index unless it is cached or already being fetched in
// this epoch. It reports whether a fetch was started.
func (c *ClipCache) Fill(index int, tag uint64) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if _, ok := c.entries[index]; ok {
		c.mu.Unlock()
		return false
	}
	if epoch, ok := c.inflight[index]; ok && epoch == c.epoch {
		c.mu.Unlock()
		return false
	}

	epoch := c.epoch
	ctx := c.ctx
	c.inflight[index] = epoch
	c.stats.Fetches++
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(ctx, index, tag, epoch)
	return true
}

func (c *ClipCache) run(ctx context.Context, index int, tag, epoch uint64) {
	defer c.wg.Done()

	clip, err := c.doFetch(ctx, index)

	c.mu.Lock()
	if c.inflight[index] == epoch {
		delete(c.inflight, index)
	}
	current := epoch == c.epoch && !c.closed
	switch {
	case !current:
		c.stats.Stale++
		c.record("stale")
	case err != nil:
		c.stats.Failures++
	default:
		c.entries[index] = &clipEntry{
			clip:   clip,
			size:   int64(clip.Size()),
			stored: time.Now(),
		}
		c.record("fill")
		if c.metrics != nil {
			c.metrics.CacheBytes.Add(context.Background(), int64(clip.Size()))
		}
	}
	notify := c.notify
	c.mu.Unlock()

	if !current {
		log.Debug("Discarding stale fill", "index", index, "error", err)
		err = ErrStale
	} else if err != nil {
		log.Debug("Fill failed", "index", index, "error", err)
	}
	if notify != nil {
		notify(FillResult{Index: index, Tag: tag, Err: err})
	}
}

func (c *ClipCache) doFetch(ctx context.Context, index int) (*audio.Clip, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)
	return c.fetch(ctx, index)
}

// Clear drops every entry and starts a new epoch. Running fetches are
// cancelled and whatever they return is discarded.
func (c *ClipCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.epoch++

	if c.metrics != nil {
		var total int64
		for _, e := range c.entries {
			total += e.size
		}
		c.metrics.CacheBytes.Add(context.Background(), -total)
	}
	c.entries = make(map[int]*clipEntry)
}

// Trim evicts clips more than keepBehind indices before current. With
// compression enabled they move to the cold tier; otherwise they are dropped.
func (c *ClipCache) Trim(current int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keepBehind < 0 {
		return
	}
	limit := current - c.keepBehind
	for index, e := range c.entries {
		if index >= limit || e.clip == nil {
			continue
		}
		if !c.compress {
			c.dropLocked(index, e)
			continue
		}

		packed := c.encoder.EncodeAll(e.clip.PCM, make([]byte, 0, len(e.clip.PCM)/2))
		freed := e.size - int64(len(packed))
		e.rate, e.channels = e.clip.SampleRate, e.clip.Channels
		e.packed = packed
		e.clip = nil
		e.size = int64(len(packed))
		c.stats.Packed++
		c.record("compress")
		if c.metrics != nil {
			c.metrics.CacheBytes.Add(context.Background(), -freed)
		}
	}
}

func (c *ClipCache) dropLocked(index int, e *clipEntry) {
	delete(c.entries, index)
	c.stats.Dropped++
	if c.metrics != nil {
		c.metrics.CacheBytes.Add(context.Background(), -e.size)
	}
}

// Stats returns a snapshot of the cache counters.
func (c *ClipCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	for _, e := range c.entries {
		if e.clip != nil {
			stats.HotItems++
			stats.HotBytes += e.size
		} else {
			stats.ColdItems++
			stats.ColdBytes += e.size
		}
	}
	for _, epoch := range c.inflight {
		if epoch == c.epoch {
			stats.InFlight++
		}
	}
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

// Close cancels running fetches and waits for them to return.
func (c *ClipCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()

	if c.encoder != nil {
		if err := c.encoder.Close(); err != nil {
			return err
		}
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}

func (c *ClipCache) record(event string) {
	if c.metrics != nil {
		c.metrics.RecordCacheEvent(context.Background(), event)
	}
}
