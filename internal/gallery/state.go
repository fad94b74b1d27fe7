package gallery

import "github.com/hpungsan/flowgen/internal/blob"

// State is the gallery value the Manager guards. Transitions are computed
// by Apply without touching the blob store.
type State struct {
	Groups     *GroupMap
	Selected   string
	Generation uint64
	TornDown   bool
}

// Event is an input to Apply.
type Event interface{ event() }

// Begin records a newer upload generation.
type Begin struct{}

// Replace installs Groups if Generation is still current.
type Replace struct {
	Generation uint64
	Groups     *GroupMap
}

// Clear retires the current gallery if Generation is still current.
type Clear struct{ Generation uint64 }

// Select changes the active group.
type Select struct{ Key string }

// Teardown retires everything and rejects later installs.
type Teardown struct{}

func (Begin) event()    {}
func (Replace) event()  {}
func (Clear) event()    {}
func (Select) event()   {}
func (Teardown) event() {}

// Transition is the outcome of applying an event.
type Transition struct {
	State State
	// Release lists handles whose owner was dropped by this transition.
	// The caller must release each of them exactly once.
	Release []blob.Handle
	// Rejected is set when the event was discarded (stale generation,
	// unknown group, or torn down state).
	Rejected bool
}

// Apply computes the next state for ev.
func Apply(s State, ev Event) Transition {
	switch e := ev.(type) {
	case Begin:
		if s.TornDown {
			return Transition{State: s, Rejected: true}
		}
		s.Generation++
		return Transition{State: s}

	case Replace:
		if s.TornDown || e.Generation != s.Generation {
			// Nobody else owns a rejected map's handles.
			return Transition{State: s, Release: e.Groups.Handles(), Rejected: true}
		}
		release := s.Groups.Handles()
		s.Groups = e.Groups
		s.Selected, _ = e.Groups.First()
		return Transition{State: s, Release: release}

	case Clear:
		if s.TornDown || e.Generation != s.Generation {
			return Transition{State: s, Rejected: true}
		}
		release := s.Groups.Handles()
		s.Groups = nil
		s.Selected = ""
		return Transition{State: s, Release: release}

	case Select:
		if !s.Groups.Has(e.Key) {
			return Transition{State: s, Rejected: true}
		}
		s.Selected = e.Key
		return Transition{State: s}

	case Teardown:
		if s.TornDown {
			return Transition{State: s, Rejected: true}
		}
		release := s.Groups.Handles()
		s.Groups = nil
		s.Selected = ""
		s.TornDown = true
		return Transition{State: s, Release: release}
	}
	return Transition{State: s, Rejected: true}
}
