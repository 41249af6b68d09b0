// Package playback reads segmented text aloud. A Session drives either
// synthesized audio clips or the platform speech engine, keeps a character
// position for highlighting and enforces an optional sleep timer.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readalong/internal/audio"
	"github.com/dgnsrekt/readalong/internal/cache"
	"github.com/dgnsrekt/readalong/internal/chunk"
	"github.com/dgnsrekt/readalong/internal/observe"
	"github.com/dgnsrekt/readalong/internal/speech"
	"github.com/dgnsrekt/readalong/internal/synth"
)

var (
	// ErrTimerExpired is returned while the sleep timer is exhausted. It is
	// cleared by ExtendTimer or ClearTimer.
	ErrTimerExpired = errors.New("sleep timer expired")

	// ErrIndexOutOfRange is returned for segment indices outside the document.
	ErrIndexOutOfRange = errors.New("segment index out of range")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")

	// ErrBackendUnavailable is returned when a mode's backend was not
	// configured.
	ErrBackendUnavailable = errors.New("playback backend not configured")
)

// Rate bounds.
const (
	MinRate = 0.5
	MaxRate = 2.0
)

// ClampRate limits r to [MinRate, MaxRate].
func ClampRate(r float64) float64 {
	switch {
	case r < MinRate:
		return MinRate
	case r > MaxRate:
		return MaxRate
	default:
		return r
	}
}

// Config configures a Session. Provider and Device are needed for clip mode,
// Speech for utterance mode.
type Config struct {
	Mode Mode

	Provider synth.Provider
	Device   *audio.Handle
	Speech   *speech.Queue

	Voice       string // provider voice
	SpeechVoice string // speech engine voice
	Rate        float64

	ClipMaxChars      int
	UtteranceMaxChars int

	PrefetchDelay     time.Duration
	HighlightInterval time.Duration
	TimerTick         time.Duration

	KeepBehind       int
	CompressEvicted  bool
	CompressionLevel int
	Concurrency      int

	Metrics *observe.Metrics
	Clock   Clock
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeClip,
		Rate:              1,
		ClipMaxChars:      chunk.DefaultClipMaxChars,
		UtteranceMaxChars: chunk.DefaultUtteranceMaxChars,
		PrefetchDelay:     5 * time.Second,
		HighlightInterval: 50 * time.Millisecond,
		TimerTick:         time.Second,
		KeepBehind:        3,
		CompressEvicted:   true,
		Concurrency:       2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Rate <= 0 {
		c.Rate = d.Rate
	}
	c.Rate = ClampRate(c.Rate)
	if c.PrefetchDelay <= 0 {
		c.PrefetchDelay = d.PrefetchDelay
	}
	if c.HighlightInterval <= 0 {
		c.HighlightInterval = d.HighlightInterval
	}
	if c.TimerTick <= 0 {
		c.TimerTick = d.TimerTick
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	return c
}

// fetchInput is what cache fills read. It is replaced, never modified, and
// every replacement happens together with a cache clear.
type fetchInput struct {
	segments []string
	voice    string
}

// Session plays a document. All state changes happen on the goroutine
// running Run; the exported methods send it commands and wait for them.
type Session struct {
	cfg    Config
	logger *log.Logger

	cache *cache.ClipCache
	clips *ClipPlayer
	utter *UtteranceAdapter

	gen   atomic.Uint64
	input atomic.Pointer[fetchInput]

	cmds    chan func()
	events  chan event
	updates chan Snapshot

	started  atomic.Bool
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
	closeErr error

	// Owned by the control loop.
	sm            *stateMachine
	mode          Mode
	text          string
	segments      []string
	index         int
	offset        float64 // clip seconds played of the current segment
	charOffset    int     // last utterance boundary in the current segment
	highlight     int
	playing       bool
	waiting       bool // for the current clip to be synthesized
	finished      bool
	message       string
	rate          float64
	voices        map[Mode]string
	timer         timerBudget
	timerMark     time.Time // last time playing time was charged to the timer
	active        *ClipHandle
	utterID       uint64
	prefetchTimer *time.Timer
}

// New creates a session. Run must be started before other methods are used.
func New(cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	s := &Session{
		cfg:     cfg,
		logger:  log.WithPrefix("playback"),
		cmds:    make(chan func()),
		events:  make(chan event, 256),
		updates: make(chan Snapshot, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		mode:    cfg.Mode,
		rate:    cfg.Rate,
		voices: map[Mode]string{
			ModeClip:      cfg.Voice,
			ModeUtterance: cfg.SpeechVoice,
		},
	}
	s.sm = newStateMachine(s.logger)
	s.sm.onChange = s.stateChanged

	if !s.available(cfg.Mode) {
		return nil, fmt.Errorf("%s mode: %w", cfg.Mode, ErrBackendUnavailable)
	}

	var err error
	s.cache, err = cache.NewClipCache(s.fetch,
		cache.WithNotify(s.onFill),
		cache.WithKeepBehind(cfg.KeepBehind),
		cache.WithCompression(cfg.CompressEvicted, cfg.CompressionLevel),
		cache.WithConcurrency(cfg.Concurrency),
		cache.WithMetrics(cfg.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create clip cache: %w", err)
	}
	if cfg.Device != nil {
		s.clips = NewClipPlayer(cfg.Device, cfg.Clock)
	}
	if cfg.Speech != nil {
		s.utter = newUtteranceAdapter(cfg.Speech, s.post)
	}
	s.input.Store(&fetchInput{})

	return s, nil
}

func (s *Session) available(m Mode) bool {
	switch m {
	case ModeClip:
		return s.cfg.Provider != nil && s.cfg.Device != nil
	case ModeUtterance:
		return s.cfg.Speech != nil
	default:
		return false
	}
}

// Run processes commands and events until ctx is done or Close is called,
// then releases the audio device and speech queue.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session already started")
	}
	defer s.shutdown()

	ticker := time.NewTicker(s.cfg.TimerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.quit:
			return nil
		case cmd := <-s.cmds:
			cmd()
		case ev := <-s.events:
			s.dispatch(ev)
		case <-ticker.C:
			s.tickTimer()
		}
	}
}

// Close stops playback and releases resources. It waits for Run to return.
func (s *Session) Close() error {
	s.quitOnce.Do(func() { close(s.quit) })
	if s.started.CompareAndSwap(false, true) {
		s.closeErr = s.release()
		close(s.done)
		return s.closeErr
	}
	<-s.done
	return s.closeErr
}

func (s *Session) shutdown() {
	s.quitOnce.Do(func() { close(s.quit) })
	s.stopBackend()
	s.playing = false
	s.closeErr = s.release()
	close(s.done)
	s.logger.Debug("Session closed")
}

func (s *Session) release() error {
	var errs []error
	if err := s.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.cfg.Speech != nil {
		s.cfg.Speech.Close()
	}
	if s.cfg.Device != nil {
		if err := s.cfg.Device.Release(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release audio device: %w", err))
		}
	}
	return errors.Join(errs...)
}

// do runs fn on the control loop and publishes the resulting state.
func (s *Session) do(fn func() error) error {
	reply := make(chan error, 1)
	cmd := func() {
		err := fn()
		s.publish()
		reply <- err
	}

	select {
	case s.cmds <- cmd:
	case <-s.quit:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// post hands an event to the control loop. Events sent after shutdown began
// are dropped.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}

func (s *Session) onFill(res cache.FillResult) {
	s.post(fillEvent{gen: res.Tag, index: res.Index, err: res.Err})
}

// fetch synthesizes a segment for the clip cache.
func (s *Session) fetch(ctx context.Context, index int) (*audio.Clip, error) {
	in := s.input.Load()
	if index < 0 || index >= len(in.segments) {
		return nil, ErrIndexOutOfRange
	}
	if s.cfg.Provider == nil {
		return nil, synth.ErrNoProvider
	}
	return synth.Render(ctx, s.cfg.Provider, in.segments[index], in.voice)
}

// Load replaces the document and resets playback.
func (s *Session) Load(text string) error {
	return s.do(func() error {
		s.text = text
		s.reset()
		s.rechunk()
		if len(s.segments) > 0 {
			s.sm.transition(StateReady)
		}
		s.logger.Debug("Document loaded", "segments", len(s.segments), "mode", s.mode)
		return nil
	})
}

// Start plays from segment from. It does nothing without segments.
func (s *Session) Start(from int) error {
	return s.do(func() error { return s.start(from) })
}

// Pause stops playback, keeping the position.
func (s *Session) Pause() error {
	return s.do(func() error {
		s.pause()
		return nil
	})
}

// Resume continues from the paused position.
func (s *Session) Resume() error {
	return s.do(s.resume)
}

// Toggle pauses when playing and resumes otherwise.
func (s *Session) Toggle() error {
	return s.do(func() error {
		if s.playing {
			s.pause()
			return nil
		}
		return s.resume()
	})
}

// Jump plays segment index from its start.
func (s *Session) Jump(index int) error {
	return s.do(func() error { return s.jump(index) })
}

// Skip jumps delta segments from the current one.
func (s *Session) Skip(delta int) error {
	return s.do(func() error { return s.jump(s.index + delta) })
}

// Reset stops playback and rewinds to the first segment.
func (s *Session) Reset() error {
	return s.do(func() error {
		s.reset()
		if len(s.segments) > 0 {
			s.sm.transition(StateReady)
		}
		return nil
	})
}

// SetRate changes the playback rate, clamped to [MinRate, MaxRate].
func (s *Session) SetRate(rate float64) error {
	return s.do(func() error {
		s.setRate(ClampRate(rate))
		return nil
	})
}

// SetVoice changes the voice of the active mode and restarts the current
// segment with it.
func (s *Session) SetVoice(voice string) error {
	return s.do(func() error {
		s.setVoice(voice)
		return nil
	})
}

// SetMode switches backend. Playback is reset.
func (s *Session) SetMode(m Mode) error {
	return s.do(func() error {
		if m == s.mode {
			return nil
		}
		if !s.available(m) {
			return fmt.Errorf("%s mode: %w", m, ErrBackendUnavailable)
		}
		s.mode = m
		s.reset()
		s.rechunk()
		if len(s.segments) > 0 {
			s.sm.transition(StateReady)
		}
		s.logger.Info("Playback mode changed", "mode", m)
		return nil
	})
}

// SetTimer starts a sleep timer of d. Zero or less clears it.
func (s *Session) SetTimer(d time.Duration) error {
	return s.do(func() error {
		s.timer.reset(d)
		s.timerMark = s.cfg.Clock.Now()
		return nil
	})
}

// ExtendTimer adds d to the sleep timer, confirming an expired one.
func (s *Session) ExtendTimer(d time.Duration) error {
	return s.do(func() error {
		if d > 0 {
			if !s.timer.set {
				s.timerMark = s.cfg.Clock.Now()
			}
			s.timer.extend(d)
			s.message = ""
		}
		return nil
	})
}

// ClearTimer removes the sleep timer.
func (s *Session) ClearTimer() error {
	return s.do(func() error {
		s.timer.reset(0)
		s.message = ""
		return nil
	})
}

// Snapshot returns the current state.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

// Updates delivers the latest state after every change. Only the most recent
// snapshot is kept for a slow reader.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

// CacheStats returns clip cache counters.
func (s *Session) CacheStats() cache.Stats {
	return s.cache.Stats()
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		State:        s.sm.current,
		Mode:         s.mode,
		Index:        s.index,
		Total:        len(s.segments),
		Segments:     s.segments,
		Highlight:    s.highlight,
		Rate:         s.rate,
		Voice:        s.voices[s.mode],
		TimerSet:     s.timer.set,
		Remaining:    s.timer.remaining,
		TimerExpired: s.timer.expired,
		Finished:     s.finished,
		Message:      s.message,
		Generation:   s.gen.Load(),
	}
}

func (s *Session) publish() {
	snap := s.snapshot()
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}

func (s *Session) maxChars() int {
	if s.mode == ModeUtterance {
		return s.cfg.UtteranceMaxChars
	}
	return s.cfg.ClipMaxChars
}

// rechunk splits the text for the active mode. Callers clear the cache first.
func (s *Session) rechunk() {
	s.segments = chunk.Split(s.text, s.maxChars())
	s.publishInput()
}

func (s *Session) publishInput() {
	s.input.Store(&fetchInput{segments: s.segments, voice: s.voices[ModeClip]})
}

// interrupt stops the backend and bumps the generation so pending
// completions and prefetches are ignored. Cached clips are kept.
func (s *Session) interrupt() {
	s.stopBackend()
	s.gen.Add(1)
	s.offset = 0
	s.charOffset = 0
	s.highlight = 0
	s.message = ""
	s.finished = false
}

// restart interrupts playback and also drops the cache, cancelling running
// fills. Used whenever the text or the voice of the clips changes.
func (s *Session) restart() {
	s.interrupt()
	s.cache.Clear()
}

func (s *Session) stopBackend() {
	s.stopPrefetch()
	if s.active != nil {
		s.active.Stop()
		s.active = nil
	}
	if s.utter != nil {
		s.utter.Stop()
	}
	s.utterID++
	s.waiting = false
}

func (s *Session) reset() {
	s.restart()
	s.index = 0
	s.playing = false
	s.sm.transition(StateIdle)
}

func (s *Session) start(from int) error {
	if len(s.segments) == 0 {
		return nil
	}
	if s.timer.expired {
		return ErrTimerExpired
	}
	if from < 0 || from >= len(s.segments) {
		return ErrIndexOutOfRange
	}

	s.restart()
	s.rechunk()
	if from >= len(s.segments) {
		from = 0
	}
	s.index = from
	s.playing = true
	s.logger.Debug("Starting playback", "from", from, "segments", len(s.segments), "generation", s.gen.Load())
	s.playCurrent()
	return nil
}

func (s *Session) jump(index int) error {
	if index < 0 || index >= len(s.segments) {
		return ErrIndexOutOfRange
	}

	s.interrupt()
	s.index = index
	if s.timer.expired {
		s.playing = false
		s.sm.transition(StatePaused)
		return ErrTimerExpired
	}
	s.playing = true
	s.logger.Debug("Jumping", "index", index, "generation", s.gen.Load())
	s.playCurrent()
	return nil
}

func (s *Session) pause() {
	if !s.playing {
		return
	}
	s.playing = false
	if s.active != nil {
		s.offset = s.active.Stop()
		s.active = nil
	}
	s.stopBackend()
	s.sm.transition(StatePaused)
	s.logger.Debug("Paused", "index", s.index, "offset", s.offset, "char_offset", s.charOffset)
}

func (s *Session) resume() error {
	if s.timer.expired {
		return ErrTimerExpired
	}
	if len(s.segments) == 0 || s.playing {
		return nil
	}
	switch s.sm.current {
	case StateIdle, StateReady:
		return s.start(s.index)
	}

	s.playing = true
	s.message = ""
	s.playCurrent()
	return nil
}

func (s *Session) setRate(rate float64) {
	if rate == s.rate {
		return
	}
	s.rate = rate
	s.logger.Debug("Rate changed", "rate", rate)

	if s.mode != ModeClip || s.active == nil || !s.playing {
		return
	}
	s.offset = s.active.Stop()
	s.active = nil
	s.playClip()
}

func (s *Session) setVoice(voice string) {
	if voice == s.voices[s.mode] {
		return
	}
	s.voices[s.mode] = voice
	s.logger.Info("Voice changed", "voice", voice, "mode", s.mode)
	if len(s.segments) == 0 {
		s.publishInput()
		return
	}

	wasPlaying := s.playing
	s.restart()
	s.publishInput()
	if wasPlaying {
		s.playCurrent()
	}
}

// playCurrent plays the segment under the cursor, asking for its clip first
// when needed.
func (s *Session) playCurrent() {
	if s.index >= len(s.segments) {
		s.finish()
		return
	}
	if s.timer.expired {
		s.playing = false
		s.sm.transition(StatePaused)
		return
	}

	switch s.mode {
	case ModeUtterance:
		s.speakCurrent()
	default:
		s.playClip()
	}
}

func (s *Session) playClip() {
	clip, ok := s.cache.Get(s.index)
	if !ok {
		s.waiting = true
		s.sm.transition(StateGenerating)
		if s.cache.Fill(s.index, s.gen.Load()) {
			s.logger.Debug("Synthesizing", "index", s.index)
		}
		return
	}
	s.waiting = false

	gen := s.gen.Load()
	h, err := s.clips.Play(clip, s.rate, s.offset, func(h *ClipHandle) {
		s.post(clipEndedEvent{gen: gen, handle: h})
	})
	if err != nil {
		s.fail(err)
		return
	}
	s.active = h
	s.sm.transition(StatePlaying)

	length := utf8.RuneCountInString(s.segments[s.index])
	go s.runEstimator(gen, h, length, s.cfg.HighlightInterval)

	s.prefetch(s.index)
	s.cache.Trim(s.index)
}

func (s *Session) speakCurrent() {
	runes := []rune(s.segments[s.index])
	from := s.charOffset
	if from < 0 || from >= len(runes) {
		from = 0
	}

	s.utterID++
	s.utter.Speak(s.gen.Load(), s.utterID, speech.Utterance{
		Text:  string(runes[from:]),
		Voice: s.voices[ModeUtterance],
		Rate:  s.rate,
	}, from)
	s.sm.transition(StatePlaying)
}

// advance moves past a completed segment.
func (s *Session) advance() {
	s.cfg.Metrics.RecordSegmentPlayed(context.Background(), s.mode.String())

	s.stopPrefetch()
	s.index++
	s.offset = 0
	s.charOffset = 0
	s.highlight = 0
	s.playCurrent()
}

func (s *Session) finish() {
	s.stopBackend()
	s.playing = false
	s.index = 0
	s.offset = 0
	s.charOffset = 0
	s.highlight = 0
	s.finished = true
	s.sm.transition(StateIdle)
	s.logger.Info("Finished reading", "segments", len(s.segments))
}

func (s *Session) fail(err error) {
	s.stopBackend()
	s.playing = false
	s.message = err.Error()
	s.sm.transition(StateError)
	s.logger.Error("Playback failed", "index", s.index, "error", err)
}

// stateChanged keeps the sleep timer in step with the time actually spent
// playing.
func (s *Session) stateChanged(from, to State) {
	switch {
	case to == StatePlaying:
		s.timerMark = s.cfg.Clock.Now()
	case from == StatePlaying:
		s.chargeTimer()
	}
}

// chargeTimer takes the playing time since the last charge off the timer and
// reports whether that exhausted it.
func (s *Session) chargeTimer() bool {
	now := s.cfg.Clock.Now()
	elapsed := now.Sub(s.timerMark)
	s.timerMark = now
	return s.timer.consume(elapsed)
}

func (s *Session) tickTimer() {
	if !s.timer.set || s.timer.expired || s.sm.current != StatePlaying {
		return
	}
	if s.chargeTimer() {
		s.pause()
		s.message = "Sleep timer expired"
		s.logger.Info("Sleep timer expired", "index", s.index)
	}
	s.publish()
}

// dispatch handles an event from background work. Completions and prefetches
// from an older generation are dropped here.
func (s *Session) dispatch(ev event) {
	// Fills are fenced by the cache epoch instead: a clip fetched before a
	// jump is still the right audio for its index.
	if _, fill := ev.(fillEvent); !fill && ev.generation() != s.gen.Load() {
		s.logger.Debug("Dropping stale event", "event", fmt.Sprintf("%T", ev), "generation", ev.generation())
		return
	}

	switch ev := ev.(type) {
	case fillEvent:
		s.handleFill(ev)
	case clipEndedEvent:
		if !s.playing || ev.handle != s.active {
			return
		}
		s.active = nil
		s.advance()
	case prefetchEvent:
		s.handlePrefetch(ev)
	case highlightEvent:
		if ev.handle != s.active {
			return
		}
		s.highlight = ev.offset
	case utteranceEvent:
		s.handleUtterance(ev)
	}
	s.publish()
}

func (s *Session) handleFill(ev fillEvent) {
	current := s.waiting && ev.index == s.index && s.mode == ModeClip
	if ev.err != nil {
		if errors.Is(ev.err, cache.ErrStale) {
			return
		}
		if current && s.playing {
			s.fail(fmt.Errorf("segment %d: %w", ev.index+1, ev.err))
			return
		}
		s.logger.Warn("Prefetch failed", "index", ev.index, "error", ev.err)
		return
	}
	if current && s.playing {
		s.playCurrent()
	}
}

func (s *Session) handleUtterance(ev utteranceEvent) {
	if ev.id != s.utterID || !s.playing || s.mode != ModeUtterance {
		return
	}
	switch ev.ev.Kind {
	case speech.EventBoundary:
		s.charOffset = ev.ev.CharIndex
		s.highlight = ev.ev.CharIndex
	case speech.EventEnd:
		s.advance()
	case speech.EventError:
		s.fail(ev.ev.Err)
	}
}
