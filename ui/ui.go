// Package ui provides the interactive reader.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readalong/internal/cache"
	"github.com/dgnsrekt/readalong/internal/playback"
	"github.com/dgnsrekt/readalong/internal/synth"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied"
	ellipsis             = "…"
	keyEsc               = "esc"

	rateStep = 0.25
)

var presetRates = map[string]float64{
	"1": 0.5,
	"2": 0.75,
	"3": 1,
	"4": 1.25,
	"5": 1.5,
}

// Player is the playback session driven by the reader.
type Player interface {
	Load(text string) error
	Start(from int) error
	Pause() error
	Resume() error
	Toggle() error
	Jump(index int) error
	Skip(delta int) error
	Reset() error
	SetRate(rate float64) error
	SetVoice(voice string) error
	SetMode(m playback.Mode) error
	SetTimer(d time.Duration) error
	ExtendTimer(d time.Duration) error
	ClearTimer() error
	Snapshot() (playback.Snapshot, error)
	Updates() <-chan playback.Snapshot
	CacheStats() cache.Stats
}

// VoiceCatalog lists voices and keeps favorites.
type VoiceCatalog interface {
	Search(ctx context.Context, query string) ([]synth.Voice, error)
	IsFavorite(v synth.Voice) bool
	ToggleFavorite(v synth.Voice) (bool, error)
}

// Deps are the collaborators of the reader. Voices, Reload and Changes are
// optional.
type Deps struct {
	Player Player
	Voices VoiceCatalog

	// Reload reads the document again after Changes fires.
	Reload  func(ctx context.Context) (string, error)
	Changes <-chan struct{}
}

// NewProgram returns a new Tea program.
func NewProgram(ctx context.Context, cfg Config, deps Deps) *tea.Program {
	log.Debug("Starting readalong", "path", cfg.Path, "follow", cfg.Follow, "alt_screen", cfg.AltScreen)

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(ctx, cfg, deps), opts...)
}

// state is the top-level application state.
type state int

const (
	stateReading state = iota
	stateChoosingVoice
	stateSettingTimer
	stateTimerExpired
)

func (s state) String() string {
	return map[state]string{
		stateReading:       "reading",
		stateChoosingVoice: "choosing voice",
		stateSettingTimer:  "setting timer",
		stateTimerExpired:  "timer expired",
	}[s]
}

// Common stuff we'll need to access in all models.
type commonModel struct {
	cfg    Config
	width  int
	height int
}

type model struct {
	ctx      context.Context
	common   *commonModel
	deps     Deps
	state    state
	fatalErr error

	// started is set once playback was first requested, so the first play
	// honours the configured start segment.
	started bool
	snap    playback.Snapshot

	// Sub-models
	reader readerModel
	voices voicePickerModel
	timer  timerPromptModel
}

func newModel(ctx context.Context, cfg Config, deps Deps) model {
	common := &commonModel{cfg: cfg}
	return model{
		ctx:    ctx,
		common: common,
		deps:   deps,
		state:  stateReading,
		reader: newReaderModel(common),
		voices: newVoicePickerModel(common),
		timer:  newTimerPromptModel(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.deps.Player.Updates()),
		loadSnapshot(m.deps.Player),
		waitForChange(m.deps.Changes),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, tea.Quit
		}
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Ctrl+C always quits no matter where in the application you are.
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if msg.String() == "ctrl+z" {
			return m, tea.Suspend
		}

		switch m.state {
		case stateChoosingVoice:
			return m.updateVoices(msg)
		case stateSettingTimer:
			return m.updateTimer(msg)
		case stateTimerExpired:
			return m.updateTimerExpired(msg)
		}

		if msg.String() == "?" {
			m.reader.cacheStats = m.deps.Player.CacheStats()
		}
		if cmd, handled := m.handleReaderKey(msg); handled {
			return m, cmd
		}
		if msg.String() == "q" && m.reader.state == readerStateBrowse {
			return m, tea.Quit
		}

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.reader.setSize(msg.Width, msg.Height)
		m.voices.setSize(msg.Width, msg.Height)

	case errMsg:
		m.fatalErr = msg
		return m, nil

	case sessionDone:
		return m, tea.Quit

	case snapshotMsg:
		m.applySnapshot(playback.Snapshot(msg))
		return m, waitForSnapshot(m.deps.Player.Updates())

	case snapshotLoadedMsg:
		m.applySnapshot(playback.Snapshot(msg))
		return m, nil

	case playerErrMsg:
		if errors.Is(msg.err, playback.ErrTimerExpired) {
			m.state = stateTimerExpired
			return m, nil
		}
		log.Debug("Player command failed", "error", msg.err)
		return m, m.reader.showStatusMessage(statusMessage{msg.err.Error(), true})

	case playerOKMsg:
		if msg != "" {
			return m, m.reader.showStatusMessage(statusMessage{string(msg), false})
		}
		return m, nil

	case documentChangedMsg:
		if m.deps.Reload == nil {
			return m, waitForChange(m.deps.Changes)
		}
		return m, tea.Batch(
			reloadDocument(m.ctx, m.deps.Reload),
			waitForChange(m.deps.Changes),
		)

	case documentLoadedMsg:
		if msg.err != nil {
			log.Warn("Could not reload document", "error", msg.err)
			return m, m.reader.showStatusMessage(statusMessage{"Reload failed: " + msg.err.Error(), true})
		}
		m.started = false
		return m, call(func() error { return m.deps.Player.Load(msg.text) }, "Document reloaded")

	case voicesLoadedMsg:
		m.voices.setVoices(msg.voices, msg.err, m.snap.Mode, m.isFavorite)
		return m, nil

	case favoriteToggledMsg:
		if msg.err != nil {
			return m, m.reader.showStatusMessage(statusMessage{msg.err.Error(), true})
		}
		m.voices.refilter(m.snap.Mode, m.isFavorite)
		return m, nil
	}

	if m.state == stateReading {
		var cmd tea.Cmd
		m.reader, cmd = m.reader.update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) applySnapshot(snap playback.Snapshot) {
	// the snapshot loaded on startup may arrive after newer updates
	if snap.Generation < m.snap.Generation {
		return
	}
	if snap.TimerExpired && !m.snap.TimerExpired {
		m.state = stateTimerExpired
	}
	m.snap = snap
	m.reader.setSnapshot(snap)
	if m.reader.showHelp {
		m.reader.cacheStats = m.deps.Player.CacheStats()
	}
}

// handleReaderKey runs playback commands bound to keys in the reading view.
func (m *model) handleReaderKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	p := m.deps.Player
	key := msg.String()

	if r, ok := presetRates[key]; ok {
		return call(func() error { return p.SetRate(r) }, fmt.Sprintf("Rate %s", rateView(r))), true
	}

	switch key {
	case " ":
		if !m.started && !m.snap.State.Active() {
			m.started = true
			from := m.common.cfg.StartIndex
			return call(func() error { return p.Start(from) }, ""), true
		}
		m.started = true
		return call(p.Toggle, ""), true

	case "n", "right":
		return call(func() error { return p.Skip(1) }, ""), true

	case "p", "left":
		return call(func() error { return p.Skip(-1) }, ""), true

	case "r":
		m.started = false
		return call(p.Reset, "Back to the start"), true

	case "+", "=":
		r := playback.ClampRate(m.snap.Rate + rateStep)
		return call(func() error { return p.SetRate(r) }, fmt.Sprintf("Rate %s", rateView(r))), true

	case "-", "_":
		r := playback.ClampRate(m.snap.Rate - rateStep)
		return call(func() error { return p.SetRate(r) }, fmt.Sprintf("Rate %s", rateView(r))), true

	case "m":
		next := playback.ModeUtterance
		if m.snap.Mode == playback.ModeUtterance {
			next = playback.ModeClip
		}
		m.started = false
		return call(func() error { return p.SetMode(next) }, "Switched to "+next.String()+" mode"), true

	case "v":
		if m.deps.Voices == nil {
			return m.reader.showStatusMessage(statusMessage{"No voice catalog", true}), true
		}
		m.state = stateChoosingVoice
		cmd := m.voices.open()
		return tea.Batch(cmd, loadVoices(m.ctx, m.deps.Voices)), true

	case "t":
		m.state = stateSettingTimer
		return m.timer.open(), true

	case "T":
		return call(p.ClearTimer, "Sleep timer cleared"), true
	}
	return nil, false
}

func (m model) updateVoices(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyEsc:
		m.state = stateReading
		return m, nil

	case "enter":
		v, ok := m.voices.selected()
		if !ok {
			return m, nil
		}
		m.state = stateReading
		p := m.deps.Player
		return m, call(func() error { return p.SetVoice(v.ID) }, "Voice: "+v.String())

	case "tab":
		v, ok := m.voices.selected()
		if !ok {
			return m, nil
		}
		return m, toggleFavorite(m.deps.Voices, v)
	}

	var cmd tea.Cmd
	m.voices, cmd = m.voices.update(msg, m.snap.Mode, m.isFavorite)
	return m, cmd
}

func (m model) updateTimer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyEsc:
		m.state = stateReading
		return m, nil

	case "enter":
		d, err := parseTimer(m.timer.input.Value())
		if err != nil {
			m.timer.err = err
			return m, nil
		}
		m.state = stateReading
		p := m.deps.Player
		if d == 0 {
			return m, call(p.ClearTimer, "Sleep timer cleared")
		}
		return m, call(func() error { return p.SetTimer(d) }, "Sleep timer set for "+formatRemaining(d))
	}

	var cmd tea.Cmd
	m.timer, cmd = m.timer.update(msg)
	return m, cmd
}

func (m model) updateTimerExpired(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.deps.Player
	switch msg.String() {
	case "e", "enter":
		m.state = stateReading
		d := m.common.cfg.TimerExtend
		return m, call(func() error {
			if err := p.ExtendTimer(d); err != nil {
				return err
			}
			return p.Resume()
		}, "Sleep timer extended by "+formatRemaining(d))

	case "c":
		m.state = stateReading
		return m, call(func() error {
			if err := p.ClearTimer(); err != nil {
				return err
			}
			return p.Resume()
		}, "Sleep timer cleared")

	case keyEsc, "q":
		m.state = stateReading
	}
	return m, nil
}

func (m model) isFavorite(v synth.Voice) bool {
	return m.deps.Voices != nil && m.deps.Voices.IsFavorite(v)
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}

	switch m.state {
	case stateChoosingVoice:
		return m.voices.View()
	case stateSettingTimer:
		return m.dialog(m.timer.View())
	case stateTimerExpired:
		return m.dialog(timerExpiredView(m.common.cfg.TimerExtend))
	default:
		return m.reader.View()
	}
}

// dialog centers s on the screen.
func (m model) dialog(s string) string {
	box := dialogStyle.Render(s)
	if m.common.width == 0 || m.common.height == 0 {
		return box
	}
	return lipgloss.Place(m.common.width, m.common.height, lipgloss.Center, lipgloss.Center, box)
}

func timerExpiredView(extend time.Duration) string {
	return fmt.Sprintf("%s\n\n%s\n\n%s",
		selectedStyle.Render("Sleep timer expired"),
		"Playback paused.",
		subtleStyle.Render(fmt.Sprintf("e extend %s • c clear timer • esc stay paused", formatRemaining(extend))),
	)
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render(exitMsg),
	)
	return "\n" + indent(s, 3)
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
