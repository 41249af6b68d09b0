package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/readalong/internal/playback"
	"github.com/dgnsrekt/readalong/internal/synth"
)

type (
	errMsg      struct{ err error }
	snapshotMsg playback.Snapshot
	// snapshotLoadedMsg is the snapshot read directly on startup.
	snapshotLoadedMsg playback.Snapshot
	sessionDone struct{}

	// playerErrMsg reports a rejected player command.
	playerErrMsg struct{ err error }

	// playerOKMsg carries an optional status message for a command that
	// went through.
	playerOKMsg string

	documentChangedMsg struct{}
	documentLoadedMsg  struct {
		text string
		err  error
	}

	voicesLoadedMsg struct {
		voices []synth.Voice
		err    error
	}

	favoriteToggledMsg struct {
		voice synth.Voice
		on    bool
		err   error
	}

	statusMessageTimeoutMsg struct{}
)

func (e errMsg) Error() string { return e.err.Error() }

// waitForSnapshot delivers the next session snapshot.
func waitForSnapshot(updates <-chan playback.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return sessionDone{}
		}
		return snapshotMsg(snap)
	}
}

func loadSnapshot(p Player) tea.Cmd {
	return func() tea.Msg {
		snap, err := p.Snapshot()
		if err != nil {
			return errMsg{err}
		}
		return snapshotLoadedMsg(snap)
	}
}

// call runs a player command off the update loop. ok is shown as a status
// message when non-empty.
func call(fn func() error, ok string) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return playerErrMsg{err}
		}
		return playerOKMsg(ok)
	}
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return documentChangedMsg{}
	}
}

func reloadDocument(ctx context.Context, reload func(context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		text, err := reload(ctx)
		return documentLoadedMsg{text: text, err: err}
	}
}

func loadVoices(ctx context.Context, c VoiceCatalog) tea.Cmd {
	return func() tea.Msg {
		voices, err := c.Search(ctx, "")
		return voicesLoadedMsg{voices: voices, err: err}
	}
}

func toggleFavorite(c VoiceCatalog, v synth.Voice) tea.Cmd {
	return func() tea.Msg {
		on, err := c.ToggleFavorite(v)
		return favoriteToggledMsg{voice: v, on: on, err: err}
	}
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}
