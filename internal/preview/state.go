// Package preview debounces source edits into render requests and keeps the
// most recent good image.
package preview

import (
	"strings"

	"github.com/hpungsan/flowgen/internal/blob"
)

// Phase is the controller's position in the edit/render cycle.
type Phase int

const (
	Idle Phase = iota
	Pending
	InFlight
	Settled
)

var phaseNames = [...]string{"idle", "pending", "in_flight", "settled"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Outcome describes how the last accepted request ended.
type Outcome int

const (
	NoOutcome Outcome = iota
	Success
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "error"
	}
	return "none"
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Request is a render request frozen at timer expiry.
type Request struct {
	Generation uint64
	Text       string
}

// State is the pure preview state. Its methods return the next state and
// never touch timers, the network, or the blob store.
type State struct {
	Phase      Phase
	Outcome    Outcome
	Text       string
	Generation uint64
	// Token identifies the armed debounce timer.
	Token     uint64
	LastGood  blob.Handle
	LastError string
}

// Edit records new text. The caller must stop any armed timer and arm a new
// one carrying the returned token.
func (s State) Edit(text string) (State, uint64) {
	s.Text = text
	s.Generation++
	s.Token++
	s.Phase = Pending
	return s, s.Token
}

// Fire handles expiry of the timer armed with token. It returns a request
// when one should be sent. Expiries for superseded timers are ignored.
func (s State) Fire(token uint64) (State, Request, bool) {
	if token != s.Token || s.Phase != Pending {
		return s, Request{}, false
	}
	if strings.TrimSpace(s.Text) == "" {
		s.Phase = Idle
		return s, Request{}, false
	}
	s.Phase = InFlight
	return s, Request{Generation: s.Generation, Text: s.Text}, true
}

// Current reports whether a response for gen should be applied.
func (s State) Current(gen uint64) bool {
	return s.Phase == InFlight && gen == s.Generation
}

// Resolve applies a response for gen. On success img becomes the last good
// image and the previous one is returned for release. On failure errMsg is
// recorded and the last good image is kept. Stale responses leave s
// unchanged with accepted false.
func (s State) Resolve(gen uint64, img blob.Handle, errMsg string) (next State, release blob.Handle, accepted bool) {
	if !s.Current(gen) {
		return s, "", false
	}
	s.Phase = Settled
	if errMsg != "" {
		s.Outcome = Failure
		s.LastError = errMsg
		return s, "", true
	}
	release = s.LastGood
	s.Outcome = Success
	s.LastGood = img
	s.LastError = ""
	return s, release, true
}
