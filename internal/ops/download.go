package ops

import (
	"database/sql"
	"path/filepath"
	"time"

	"github.com/hpungsan/flowgen/internal/config"
	"github.com/hpungsan/flowgen/internal/db"
)

// DownloadInput contains parameters for the Download operation.
type DownloadInput struct {
	ID   string // required
	Path string // optional, default: ~/.flowgen/downloads/<id>-<source>_flowcharts.zip
}

// DownloadOutput contains the result of the Download operation.
type DownloadOutput struct {
	ID           string `json:"id"`
	Path         string `json:"path"`
	ArchiveBytes int    `json:"archive_bytes"`
	WrittenAt    int64  `json:"written_at"`
}

// Download writes a stored archive to disk exactly as it was received.
func Download(database *sql.DB, cfg *config.Config, input DownloadInput) (*DownloadOutput, error) {
	id, err := validateID(input.ID)
	if err != nil {
		return nil, err
	}
	u, err := db.GetUpload(database, id)
	if err != nil {
		return nil, err
	}

	path := input.Path
	if path == "" {
		dir, err := DefaultDownloadsDir()
		if err != nil {
			return nil, err
		}
		// Source names come from users; sanitize before building a path.
		name := SanitizeForFilename(u.ID + "-" + u.ToSummary().ArchiveName())
		path = filepath.Join(dir, name)
	}

	if err := WriteFile(path, ".zip", u.Archive, cfg); err != nil {
		return nil, err
	}

	return &DownloadOutput{
		ID:           u.ID,
		Path:         path,
		ArchiveBytes: len(u.Archive),
		WrittenAt:    time.Now().Unix(),
	}, nil
}
