// Package gallery groups extracted diagram images and owns their handles.
package gallery

import (
	"log/slog"
	"sync"

	"github.com/hpungsan/flowgen/internal/archive"
	"github.com/hpungsan/flowgen/internal/blob"
	"github.com/hpungsan/flowgen/internal/errors"
	"github.com/hpungsan/flowgen/internal/logging"
)

// GroupView summarizes one group for display.
type GroupView struct {
	Key    string        `json:"key"`
	Count  int           `json:"count"`
	Images []ImageRecord `json:"images"`
}

// Snapshot is a read-only copy of the gallery.
type Snapshot struct {
	Generation uint64      `json:"generation"`
	Selected   string      `json:"selected"`
	GroupCount int         `json:"group_count"`
	ImageCount int         `json:"image_count"`
	Groups     []GroupView `json:"groups"`
}

// SelectedImages returns the images of the selected group.
func (s Snapshot) SelectedImages() []ImageRecord {
	for _, g := range s.Groups {
		if g.Key == s.Selected {
			return g.Images
		}
	}
	return nil
}

// Option customizes a Manager.
type Option func(*Manager)

// WithUngroupedKey overrides the sentinel group for root-level entries.
func WithUngroupedKey(key string) Option {
	return func(m *Manager) {
		if key != "" {
			m.ungroupedKey = key
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.OrDiscard(logger)
	}
}

// Manager owns the current GroupMap and the handles reachable from it.
// Safe for concurrent use; every mutation goes through Apply under mu.
type Manager struct {
	mu           sync.Mutex
	state        State
	store        *blob.Store
	ungroupedKey string
	logger       *slog.Logger
	teardown     sync.Once
}

// NewManager creates a Manager that acquires handles from store.
func NewManager(store *blob.Store, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		ungroupedKey: DefaultUngroupedKey,
		logger:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// apply runs ev through Apply and releases whatever the transition dropped.
// Callers hold mu.
func (m *Manager) apply(ev Event) Transition {
	tr := Apply(m.state, ev)
	m.state = tr.State
	if n := m.store.ReleaseAll(tr.Release); n != len(tr.Release) {
		m.logger.Warn("gallery released handles that were not live",
			"expected", len(tr.Release), "released", n)
	}
	return tr
}

// Begin records a new upload and returns its generation. Results for older
// generations are discarded on arrival.
func (m *Manager) Begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(Begin{})
	return m.state.Generation
}

// Generation returns the latest upload generation.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Generation
}

// Replace installs entries as the gallery for generation gen, retiring the
// previous gallery and its handles. A superseded gen returns a SUPERSEDED
// error without acquiring anything.
func (m *Manager) Replace(gen uint64, entries []archive.Entry) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.TornDown {
		return m.snapshotLocked(), errors.NewInvalidRequest("gallery has been torn down")
	}
	if gen != m.state.Generation {
		m.logger.Debug("discarding superseded gallery", "generation", gen, "current", m.state.Generation)
		return m.snapshotLocked(), errors.NewSuperseded(gen, m.state.Generation)
	}

	tr := m.apply(Replace{Generation: gen, Groups: Build(entries, m.store, m.ungroupedKey)})
	m.logger.Info("gallery replaced",
		"generation", gen,
		"groups", tr.State.Groups.Len(),
		"images", tr.State.Groups.Count(),
		"released", len(tr.Release))
	return m.snapshotLocked(), nil
}

// ReplaceGallery starts a new generation and installs entries under it.
// Retirement of the previous gallery happens even when entries is empty.
func (m *Manager) ReplaceGallery(entries []archive.Entry) Snapshot {
	gen := m.Begin()
	snap, _ := m.Replace(gen, entries)
	return snap
}

// Clear retires the gallery for generation gen. Used when an upload's
// archive turns out unreadable: the upload meant to replace the gallery.
func (m *Manager) Clear(gen uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr := m.apply(Clear{Generation: gen})
	if tr.Rejected {
		return errors.NewSuperseded(gen, m.state.Generation)
	}
	m.logger.Info("gallery cleared", "generation", gen, "released", len(tr.Release))
	return nil
}

// SelectGroup makes key the active group. Unknown keys are ignored.
func (m *Manager) SelectGroup(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.apply(Select{Key: key}).Rejected
}

// Teardown releases every handle the gallery owns. Only the first call has
// any effect.
func (m *Manager) Teardown() {
	m.teardown.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		tr := m.apply(Teardown{})
		m.logger.Debug("gallery torn down", "released", len(tr.Release))
	})
}

// Snapshot returns a copy of the current gallery.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	gm := m.state.Groups
	snap := Snapshot{
		Generation: m.state.Generation,
		Selected:   m.state.Selected,
		GroupCount: gm.Len(),
		ImageCount: gm.Count(),
		Groups:     make([]GroupView, 0, gm.Len()),
	}
	for _, key := range gm.Keys() {
		imgs := gm.Images(key)
		snap.Groups = append(snap.Groups, GroupView{Key: key, Count: len(imgs), Images: imgs})
	}
	return snap
}

// Image resolves a handle owned by the current gallery.
func (m *Manager) Image(h blob.Handle) (ImageRecord, blob.Blob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.state.Groups.Find(h)
	if !ok {
		return ImageRecord{}, blob.Blob{}, false
	}
	b, ok := m.store.Get(h)
	return rec, b, ok
}
