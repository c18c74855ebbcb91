package selector

import (
	"sync/atomic"
	"time"

	"optipath/pkg/prober"
)

// Route is the immutable result of one selection cycle. Readers obtain a
// snapshot through State.Current and must never mutate it.
type Route struct {
	// Name is the configured display name of the winning target.
	Name string
	// Addr is the resolved host:port the forwarder should dial.
	Addr string
	// Score is the aggregate the target won the cycle with.
	Score prober.Score
	// Generation is the cycle number that produced this route.
	Generation uint64
	// DecidedAt is when the cycle completed.
	DecidedAt time.Time
}

// State holds the currently selected route. Reads are wait-free; writes
// come from the selector loop only and are ordered by generation so an
// overrunning older cycle can never replace a newer result.
type State struct {
	current atomic.Pointer[Route]
}

func NewState() *State {
	return &State{}
}

// Current returns the active route, or nil when no cycle has completed yet.
func (s *State) Current() *Route {
	return s.current.Load()
}

// Publish installs route unless a newer generation is already in place.
// It reports whether the route was installed.
func (s *State) Publish(route *Route) bool {
	for {
		prev := s.current.Load()
		if prev != nil && prev.Generation >= route.Generation {
			return false
		}
		if s.current.CompareAndSwap(prev, route) {
			return true
		}
	}
}
