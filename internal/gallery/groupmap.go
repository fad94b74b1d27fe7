package gallery

import (
	"mime"
	"path"

	"github.com/hpungsan/flowgen/internal/archive"
	"github.com/hpungsan/flowgen/internal/blob"
)

// ImageRecord is one gallery image. Its Handle is owned by the GroupMap
// that holds the record.
type ImageRecord struct {
	GroupKey    string      `json:"group"`
	DisplayName string      `json:"name"`
	Path        string      `json:"path"`
	Handle      blob.Handle `json:"handle"`
	Size        int         `json:"size"`
}

// GroupMap is an insertion-ordered mapping from group key to images.
// Group order and image order both follow archive enumeration order.
type GroupMap struct {
	keys   []string
	groups map[string][]ImageRecord
}

// NewGroupMap returns an empty map.
func NewGroupMap() *GroupMap {
	return &GroupMap{groups: make(map[string][]ImageRecord)}
}

// Build groups entries and acquires one handle per entry from store.
func Build(entries []archive.Entry, store *blob.Store, ungroupedKey string) *GroupMap {
	m := NewGroupMap()
	for _, e := range entries {
		key, name := Group(e.Path, ungroupedKey)
		m.add(ImageRecord{
			GroupKey:    key,
			DisplayName: name,
			Path:        e.Path,
			Handle:      store.Acquire(e.Payload, contentType(e.Path)),
			Size:        len(e.Payload),
		})
	}
	return m
}

func (m *GroupMap) add(rec ImageRecord) {
	if _, ok := m.groups[rec.GroupKey]; !ok {
		m.keys = append(m.keys, rec.GroupKey)
	}
	m.groups[rec.GroupKey] = append(m.groups[rec.GroupKey], rec)
}

// Keys returns group keys in enumeration order.
func (m *GroupMap) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Images returns the images of a group in enumeration order.
func (m *GroupMap) Images(key string) []ImageRecord {
	if m == nil {
		return nil
	}
	imgs := m.groups[key]
	out := make([]ImageRecord, len(imgs))
	copy(out, imgs)
	return out
}

// Has reports whether key is a group in the map.
func (m *GroupMap) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.groups[key]
	return ok
}

// First returns the first group key, if any.
func (m *GroupMap) First() (string, bool) {
	if m == nil || len(m.keys) == 0 {
		return "", false
	}
	return m.keys[0], true
}

// Len returns the number of groups.
func (m *GroupMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Count returns the number of images across all groups.
func (m *GroupMap) Count() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, imgs := range m.groups {
		n += len(imgs)
	}
	return n
}

// Handles returns every handle the map owns.
func (m *GroupMap) Handles() []blob.Handle {
	if m == nil {
		return nil
	}
	out := make([]blob.Handle, 0, m.Count())
	for _, key := range m.keys {
		for _, img := range m.groups[key] {
			out = append(out, img.Handle)
		}
	}
	return out
}

// Find looks up the record owning h.
func (m *GroupMap) Find(h blob.Handle) (ImageRecord, bool) {
	if m == nil {
		return ImageRecord{}, false
	}
	for _, key := range m.keys {
		for _, img := range m.groups[key] {
			if img.Handle == h {
				return img, true
			}
		}
	}
	return ImageRecord{}, false
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
