package playback

import "time"

// Snapshot is a consistent view of a Session at one point in time.
type Snapshot struct {
	State State
	Mode  Mode

	// Index is the current segment and Total the number of segments.
	Index int
	Total int

	// Segments is shared with the session and must not be modified.
	Segments []string

	// Highlight is the rune offset into the current segment spoken so far.
	Highlight int

	Rate  float64
	Voice string

	TimerSet     bool
	Remaining    time.Duration
	TimerExpired bool

	// Finished is set once the last segment completed.
	Finished bool

	// Message is a short description of the last problem, if any.
	Message string

	Generation uint64
}

// Segment returns the text of the current segment, or "" when nothing is
// loaded.
func (s Snapshot) Segment() string {
	if s.Index < 0 || s.Index >= len(s.Segments) {
		return ""
	}
	return s.Segments[s.Index]
}

// Progress returns the fraction of segments completed.
func (s Snapshot) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	if s.Finished {
		return 1
	}
	return float64(s.Index) / float64(s.Total)
}
