// Package blob holds decoded image payloads behind single-owner handles.
//
// A Handle is the in-process counterpart of a browser object URL: it is
// acquired when a binary payload is materialized, can be resolved while
// live, and must be released exactly once by whichever structure owns it.
package blob

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// Handle identifies a live payload in a Store.
type Handle string

// Blob is a materialized payload.
type Blob struct {
	Data        []byte
	ContentType string
}

// Store tracks live handles. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	live     map[Handle]Blob
	acquired uint64
	released uint64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{live: make(map[Handle]Blob)}
}

// Acquire registers data under a fresh handle.
func (s *Store) Acquire(data []byte, contentType string) Handle {
	h := Handle(ulid.Make().String())
	s.mu.Lock()
	s.live[h] = Blob{Data: data, ContentType: contentType}
	s.acquired++
	s.mu.Unlock()
	return h
}

// Get resolves a live handle.
func (s *Store) Get(h Handle) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.live[h]
	return b, ok
}

// Release drops a handle. It reports false if the handle was not live,
// which callers treat as a double release.
func (s *Store) Release(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[h]; !ok {
		return false
	}
	delete(s.live, h)
	s.released++
	return true
}

// ReleaseAll releases every handle in hs and returns how many were live.
func (s *Store) ReleaseAll(hs []Handle) int {
	n := 0
	for _, h := range hs {
		if s.Release(h) {
			n++
		}
	}
	return n
}

// Live returns the number of live handles.
func (s *Store) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// Handles returns the set of live handles.
func (s *Store) Handles() map[Handle]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Handle]struct{}, len(s.live))
	for h := range s.live {
		out[h] = struct{}{}
	}
	return out
}

// Stats reports lifetime acquire/release counts.
func (s *Store) Stats() (acquired, released uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acquired, s.released
}
