package upload

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Upload is one archive received from the flowchart service, stored
// verbatim so it can be re-ingested or downloaded later.
type Upload struct {
	// ID is a ULID that uniquely identifies this upload
	ID string

	// SourceName is the base name of the submitted source file
	SourceName string

	// Archive is the raw archive exactly as received
	Archive []byte

	// ImageCount and GroupCount describe the gallery built from Archive.
	// Both are zero when the archive could not be extracted.
	ImageCount int
	GroupCount int

	// CreatedAt is the Unix timestamp when the archive was received
	CreatedAt int64
}

// Summary is an Upload without its archive bytes.
type Summary struct {
	ID           string `json:"id"`
	SourceName   string `json:"source_name"`
	ArchiveBytes int64  `json:"archive_bytes"`
	ImageCount   int    `json:"image_count"`
	GroupCount   int    `json:"group_count"`
	CreatedAt    int64  `json:"created_at"`
}

// ToSummary strips the archive bytes.
func (u *Upload) ToSummary() Summary {
	return Summary{
		ID:           u.ID,
		SourceName:   u.SourceName,
		ArchiveBytes: int64(len(u.Archive)),
		ImageCount:   u.ImageCount,
		GroupCount:   u.GroupCount,
		CreatedAt:    u.CreatedAt,
	}
}

// ArchiveName is the file name used when the archive is downloaded.
func (s Summary) ArchiveName() string {
	stem := strings.TrimSuffix(s.SourceName, filepath.Ext(s.SourceName))
	if stem == "" {
		return "flowcharts_organized.zip"
	}
	return stem + "_flowcharts.zip"
}

// SourceName reduces a user-supplied path to the base name sent to the
// service. Both separators are treated as path breaks.
func SourceName(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}
	return path
}

// ParseAge parses a retention age such as "36h", "7d", or "2w". Plain Go
// durations are accepted as well.
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty age")
	}
	unit := map[byte]time.Duration{'d': 24 * time.Hour, 'w': 7 * 24 * time.Hour}
	if mult, ok := unit[s[len(s)-1]]; ok {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(n) * mult, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid age %q", s)
	}
	return d, nil
}
