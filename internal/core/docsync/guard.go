package docsync

import (
	"sync"
	"sync/atomic"
)

// Direction is the synchronization direction currently in progress.
type Direction int32

const (
	Idle Direction = iota
	// ApplyingInbound is held while a document change batch is applied to
	// the world. The outbound mirror stays silent.
	ApplyingInbound
	// ApplyingOutbound is held while the mirror commits to the document.
	// The document echoes the commit synchronously; that echo is ignored.
	ApplyingOutbound
)

func (d Direction) String() string {
	switch d {
	case Idle:
		return "idle"
	case ApplyingInbound:
		return "applying-inbound"
	case ApplyingOutbound:
		return "applying-outbound"
	default:
		return "unknown"
	}
}

// guard owns the session direction. Only one direction is in progress at a
// time; enter waits for the current one to be released, and release always
// goes back to Idle.
type guard struct {
	mu    sync.Mutex
	state atomic.Int32
}

// enter takes ownership for d. Use as: defer g.enter(d)()
func (g *guard) enter(d Direction) func() {
	g.mu.Lock()
	g.state.Store(int32(d))
	return func() {
		g.state.Store(int32(Idle))
		g.mu.Unlock()
	}
}

func (g *guard) current() Direction {
	return Direction(g.state.Load())
}
