package gallery

import "strings"

// DefaultUngroupedKey is the group for entries that sit at the archive root.
const DefaultUngroupedKey = "ungrouped"

// Group maps an archive path to its group key and display name.
//
// Paths with more than one segment group under their first segment and
// display their last one; deeper segments are ignored. Single-segment paths
// group under ungroupedKey and display the full path. Empty segments from
// leading, trailing, or doubled slashes are not counted.
func Group(path, ungroupedKey string) (groupKey, displayName string) {
	if ungroupedKey == "" {
		ungroupedKey = DefaultUngroupedKey
	}

	segments := make([]string, 0, 4)
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	if len(segments) > 1 {
		return segments[0], segments[len(segments)-1]
	}
	return ungroupedKey, path
}
