package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dgnsrekt/readalong/internal/cache"
	"github.com/dgnsrekt/readalong/internal/playback"
)

// stateIcon returns a one-glyph summary of the playback state.
func stateIcon(s playback.State) string {
	switch s {
	case playback.StatePlaying:
		return "▶"
	case playback.StatePaused:
		return "⏸"
	case playback.StateGenerating:
		return "…"
	case playback.StateError:
		return "✗"
	default:
		return "■"
	}
}

// positionView shows the segment being read, counting from one.
func positionView(snap playback.Snapshot) string {
	if snap.Total == 0 {
		return "-/-"
	}
	index := snap.Index + 1
	if snap.Finished {
		index = snap.Total
	}
	return fmt.Sprintf("%d/%d %3.f%%", index, snap.Total, snap.Progress()*100)
}

// statusNote summarizes the session for the status bar.
func statusNote(snap playback.Snapshot) string {
	parts := []string{stateIcon(snap.State) + " " + stateLabel(snap)}

	parts = append(parts, rateView(snap.Rate))
	if snap.Voice != "" {
		parts = append(parts, snap.Voice)
	}
	parts = append(parts, snap.Mode.String())

	if snap.TimerSet {
		parts = append(parts, "⏲ "+formatRemaining(snap.Remaining))
	}
	if snap.Message != "" && (snap.State == playback.StateError || snap.TimerExpired) {
		parts = append(parts, snap.Message)
	}
	return strings.Join(parts, " · ")
}

func stateLabel(snap playback.Snapshot) string {
	switch {
	case snap.Finished:
		return "Finished"
	case snap.TimerExpired:
		return "Timer expired"
	case snap.State == playback.StateGenerating:
		return "Synthesizing"
	case snap.State == playback.StatePlaying:
		return "Reading"
	case snap.State == playback.StatePaused:
		return "Paused"
	case snap.State == playback.StateError:
		return "Error"
	default:
		return "Press space to read"
	}
}

func rateView(rate float64) string {
	s := fmt.Sprintf("%.2f", rate)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + "×"
}

// formatRemaining renders a timer budget as m:ss, or h:mm:ss past an hour.
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// cacheView summarizes clip cache usage.
func cacheView(st cache.Stats) string {
	items := st.HotItems + st.ColdItems
	if items == 0 && st.InFlight == 0 {
		return "cache empty"
	}
	s := fmt.Sprintf("%d clips, %s", items, humanize.Bytes(uint64(max(0, st.HotBytes+st.ColdBytes)))) //nolint:gosec
	if st.ColdItems > 0 {
		s += fmt.Sprintf(" (%d packed)", st.ColdItems)
	}
	if st.InFlight > 0 {
		s += fmt.Sprintf(", %d synthesizing", st.InFlight)
	}
	if st.Hits+st.Misses > 0 {
		s += fmt.Sprintf(", %.0f%% hits", st.HitRate*100)
	}
	return s
}
