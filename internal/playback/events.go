package playback

import "github.com/dgnsrekt/readalong/internal/speech"

// event is posted to the control loop by background work. Events whose
// generation is not the current one are dropped before dispatch.
type event interface {
	generation() uint64
}

// fillEvent reports a finished cache fill.
type fillEvent struct {
	gen   uint64
	index int
	err   error
}

// clipEndedEvent reports that a clip played to its end.
type clipEndedEvent struct {
	gen    uint64
	handle *ClipHandle
}

// prefetchEvent asks for the delayed look-ahead fill.
type prefetchEvent struct {
	gen   uint64
	index int
}

// utteranceEvent forwards a speech queue event. id identifies the utterance
// within the generation.
type utteranceEvent struct {
	gen uint64
	id  uint64
	ev  speech.Event
}

// highlightEvent carries an estimated character offset for the active clip.
type highlightEvent struct {
	gen    uint64
	handle *ClipHandle
	offset int
}

func (e fillEvent) generation() uint64      { return e.gen }
func (e clipEndedEvent) generation() uint64 { return e.gen }
func (e prefetchEvent) generation() uint64  { return e.gen }
func (e utteranceEvent) generation() uint64 { return e.gen }
func (e highlightEvent) generation() uint64 { return e.gen }
