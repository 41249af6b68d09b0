package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"

	"github.com/dgnsrekt/readalong/internal/cache"
	"github.com/dgnsrekt/readalong/internal/playback"
)

const (
	statusBarHeight = 1
	maxTextWidth    = 100
)

var readerHelpHeight int

type readerState int

const (
	readerStateBrowse readerState = iota
	readerStateStatusMessage
)

// readerModel shows the document with the current segment highlighted and
// keeps it in view while reading.
type readerModel struct {
	common   *commonModel
	viewport viewport.Model
	state    readerState
	showHelp bool
	follow   bool

	statusMessage      string
	statusIsError      bool
	statusMessageTimer *time.Timer

	hl         highlighter
	snap       playback.Snapshot
	cacheStats cache.Stats

	// what the content was last rendered from
	rendered struct {
		segments  []string
		index     int
		highlight int
		width     int
	}
	segmentLine int
}

func newReaderModel(common *commonModel) readerModel {
	vp := viewport.New(0, 0)
	vp.YPosition = 0
	// space plays and pauses
	vp.KeyMap.PageDown = key.NewBinding(key.WithKeys("pgdown", "f"))

	return readerModel{
		common:   common,
		state:    readerStateBrowse,
		viewport: vp,
		follow:   common.cfg.Follow,
		hl:       newHighlighter(common.cfg, termenv.EnvColorProfile()),
	}
}

func (m *readerModel) setSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = h - statusBarHeight

	if m.showHelp {
		if readerHelpHeight == 0 {
			readerHelpHeight = strings.Count(m.helpView(), "\n")
		}
		m.viewport.Height -= (statusBarHeight + readerHelpHeight)
	}
	m.render(true)
}

func (m *readerModel) toggleHelp() {
	m.showHelp = !m.showHelp
	m.setSize(m.common.width, m.common.height)
	if m.viewport.PastBottom() {
		m.viewport.GotoBottom()
	}
}

type statusMessage struct {
	message string
	isError bool
}

func (m *readerModel) showStatusMessage(msg statusMessage) tea.Cmd {
	m.state = readerStateStatusMessage
	m.statusMessage = msg.message
	m.statusIsError = msg.isError
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)

	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

// textWidth is the wrap width for the document.
func (m readerModel) textWidth() int {
	w := m.viewport.Width - 2*readerMargin
	if cw := int(m.common.cfg.Width); cw > 0 && cw < w { //nolint:gosec
		w = cw
	}
	return max(0, min(w, maxTextWidth))
}

const readerMargin = 2

// setSnapshot takes a new session snapshot and re-renders what changed.
func (m *readerModel) setSnapshot(snap playback.Snapshot) {
	m.snap = snap
	m.render(false)
}

func (m *readerModel) render(force bool) {
	r := &m.rendered
	width := m.textWidth()
	if !force &&
		sameSegments(r.segments, m.snap.Segments) &&
		r.index == m.snap.Index &&
		r.highlight == m.snap.Highlight &&
		r.width == width {
		return
	}

	content, line := m.hl.render(m.snap.Segments, m.snap.Index, m.snap.Highlight, width)
	m.viewport.SetContent(indent(content, readerMargin))

	moved := r.index != m.snap.Index || !sameSegments(r.segments, m.snap.Segments)
	r.segments, r.index, r.highlight, r.width = m.snap.Segments, m.snap.Index, m.snap.Highlight, width
	m.segmentLine = line

	if m.follow && (moved || force) {
		m.scrollToSegment()
	}
}

// scrollToSegment puts the current segment near the top third of the view.
func (m *readerModel) scrollToSegment() {
	target := m.segmentLine - m.viewport.Height/3
	m.viewport.SetYOffset(max(0, target))
}

func sameSegments(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	// segments are replaced, never modified
	return &a[0] == &b[0]
}

func (m readerModel) update(msg tea.Msg) (readerModel, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", keyEsc:
			if m.state != readerStateBrowse {
				m.state = readerStateBrowse
				return m, nil
			}
		case "home", "g":
			m.viewport.GotoTop()
		case "end", "G":
			m.viewport.GotoBottom()
		case ".":
			m.scrollToSegment()

		case "a":
			m.follow = !m.follow
			if m.follow {
				m.scrollToSegment()
				cmds = append(cmds, m.showStatusMessage(statusMessage{"Following the reader", false}))
			} else {
				cmds = append(cmds, m.showStatusMessage(statusMessage{"Stopped following", false}))
			}

		case "c":
			seg := m.snap.Segment()
			if seg == "" {
				break
			}
			// Copy using OSC 52
			termenv.Copy(seg)
			// Copy using native system clipboard
			if err := clipboard.WriteAll(seg); err != nil {
				log.Debug("clipboard unavailable", "error", err)
			}
			cmds = append(cmds, m.showStatusMessage(statusMessage{"Copied segment", false}))

		case "?":
			m.toggleHelp()
		}

	case tea.WindowSizeMsg:
		return m, nil

	case statusMessageTimeoutMsg:
		m.state = readerStateBrowse
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m readerModel) View() string {
	var b strings.Builder
	fmt.Fprint(&b, m.viewport.View()+"\n")

	// Footer
	m.statusBarView(&b)

	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}

	return b.String()
}

func (m readerModel) statusBarView(b *strings.Builder) {
	showStatusMessage := m.state == readerStateStatusMessage
	noteStyle := statusBarNoteStyle
	switch {
	case showStatusMessage && m.statusIsError:
		noteStyle = statusBarErrorStyle
	case showStatusMessage:
		noteStyle = statusBarMessageStyle
	}

	logo := logoView()

	// Segment position
	position := statusBarPosStyle(fmt.Sprintf(" %s ", positionView(m.snap)))

	helpNote := statusBarHelpStyle(" ? Help ")

	var note string
	if showStatusMessage {
		note = m.statusMessage
	} else {
		note = statusNote(m.snap)
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(position)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)
	note = noteStyle(note)

	// Empty space
	padding := max(0,
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(position)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := noteStyle(strings.Repeat(" ", padding))

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		position,
		helpNote,
	)
}

func (m readerModel) helpView() (s string) {
	rows := [][3]string{
		{"k/↑      up", "space    play/pause", "v        choose voice"},
		{"j/↓      down", "n/→      next segment", "t        set sleep timer"},
		{"b/pgup   page up", "p/←      previous segment", "T        clear sleep timer"},
		{"f/pgdn   page down", "r        back to the start", "a        follow the reader"},
		{"u        ½ page up", "1-5      rate 0.5× to 1.5×", ".        jump to the reader"},
		{"d        ½ page down", "+/-      rate up/down", "c        copy segment"},
		{"g/G      top/bottom", "m        switch backend", "q        quit"},
	}

	s += "\n"
	for _, r := range rows {
		s += fmt.Sprintf("%-28s%-32s%s\n", r[0], r[1], r[2])
	}
	s += "\n" + subtleStyle.Render(cacheView(m.cacheStats))

	s = indent(s, 2)

	// Fill up empty cells with spaces for background coloring
	if m.common.width > 0 {
		lines := strings.Split(s, "\n")
		for i := 0; i < len(lines); i++ {
			l := runewidth.StringWidth(lines[i])
			n := max(m.common.width-l, 0)
			lines[i] += strings.Repeat(" ", n)
		}

		s = strings.Join(lines, "\n")
	}

	return helpViewStyle(s)
}
