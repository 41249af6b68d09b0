package playback

import (
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  float64
		duration float64
		length   int
		want     int
	}{
		{"start", 0, 10, 100, 0},
		{"quarter", 2.5, 10, 100, 25},
		{"floors", 1, 3, 10, 3},
		{"end", 10, 10, 100, 100},
		{"past end", 12, 10, 100, 100},
		{"negative elapsed", -1, 10, 100, 0},
		{"zero duration", 0, 0, 42, 42},
		{"empty segment", 5, 10, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Estimate(tt.elapsed, tt.duration, tt.length); got != tt.want {
				t.Errorf("Estimate(%v, %v, %d) = %d, want %d", tt.elapsed, tt.duration, tt.length, got, tt.want)
			}
		})
	}
}

func TestStateTransitions(t *testing.T) {
	sm := newStateMachine(log.Default())

	if sm.transition(StatePaused) != true {
		t.Fatal("idle -> paused should be allowed")
	}
	if !sm.transition(StatePlaying) || sm.current != StatePlaying {
		t.Fatal("paused -> playing should be allowed")
	}

	sm = newStateMachine(log.Default())
	if sm.transition(StateError) {
		t.Error("idle -> error should be rejected")
	}
	if sm.current != StateIdle {
		t.Errorf("state = %v after rejected transition, want idle", sm.current)
	}
	if !sm.transition(StateIdle) {
		t.Error("staying in a state should be allowed")
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:       "idle",
		StateReady:      "ready",
		StateGenerating: "generating",
		StatePlaying:    "playing",
		StatePaused:     "paused",
		StateError:      "error",
		State(99):       "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"clip", ModeClip, false},
		{"synth", ModeClip, false},
		{"", ModeClip, false},
		{"Utterance", ModeUtterance, false},
		{"system", ModeUtterance, false},
		{"radio", ModeClip, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTimerBudget(t *testing.T) {
	var tb timerBudget
	assert.False(t, tb.consume(time.Second), "unset timer never expires")

	tb.reset(3 * time.Second)
	assert.False(t, tb.consume(time.Second))
	assert.False(t, tb.consume(time.Second))
	assert.True(t, tb.consume(time.Second))
	assert.True(t, tb.expired)
	assert.Zero(t, tb.remaining)
	assert.False(t, tb.consume(time.Second), "expiry is reported once")

	tb.extend(time.Minute)
	assert.False(t, tb.expired)
	assert.Equal(t, time.Minute, tb.remaining)

	tb.reset(0)
	assert.False(t, tb.set)
	assert.False(t, tb.expired)
}

func TestClampRate(t *testing.T) {
	assert.Equal(t, MinRate, ClampRate(0.1))
	assert.Equal(t, MaxRate, ClampRate(3))
	assert.Equal(t, 1.25, ClampRate(1.25))
}

func TestSnapshotHelpers(t *testing.T) {
	snap := Snapshot{Index: 1, Total: 4, Segments: []string{"a", "b", "c", "d"}}
	assert.Equal(t, "b", snap.Segment())
	assert.InDelta(t, 0.25, snap.Progress(), 1e-9)

	snap.Finished = true
	assert.InDelta(t, 1.0, snap.Progress(), 1e-9)

	assert.Equal(t, "", Snapshot{}.Segment())
}
