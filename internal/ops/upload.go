package ops

import (
	"context"
	"io"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/flowgen/internal/archive"
	"github.com/hpungsan/flowgen/internal/config"
	"github.com/hpungsan/flowgen/internal/db"
	"github.com/hpungsan/flowgen/internal/errors"
	"github.com/hpungsan/flowgen/internal/gallery"
	"github.com/hpungsan/flowgen/internal/upload"
)

// UploadInput contains parameters for the Upload operation.
type UploadInput struct {
	Filename string    // required, base name sent to the service
	Source   io.Reader // required
	SavePath string    // optional, also write the raw archive here (.zip)
}

// GroupSummary describes one gallery group.
type GroupSummary struct {
	Key    string `json:"key"`
	Images int    `json:"images"`
}

// UploadOutput contains the result of Upload and Show.
type UploadOutput struct {
	ID           string         `json:"id"`
	SourceName   string         `json:"source_name"`
	Generation   uint64         `json:"generation"`
	Superseded   bool           `json:"superseded,omitempty"`
	ArchiveBytes int            `json:"archive_bytes"`
	ImageCount   int            `json:"image_count"`
	GroupCount   int            `json:"group_count"`
	Selected     string         `json:"selected,omitempty"`
	Groups       []GroupSummary `json:"groups"`
	SavedTo      string         `json:"saved_to,omitempty"`
}

// Upload submits a source file, records the returned archive, and replaces
// the gallery with its images.
//
// Transport and service failures leave the gallery untouched. An unreadable
// archive is still recorded, but clears the gallery. When a newer upload
// began meanwhile the result is recorded and reported as superseded without
// touching the gallery.
func Upload(ctx context.Context, env *Env, input UploadInput) (*UploadOutput, error) {
	name := upload.SourceName(input.Filename)
	if name == "" {
		return nil, errors.NewInvalidRequest("filename is required")
	}
	if input.Source == nil {
		return nil, errors.NewInvalidRequest("source is required")
	}
	cfg := env.config()
	log := env.logger()
	if input.SavePath != "" {
		if err := ValidatePath(input.SavePath, ".zip", cfg); err != nil {
			return nil, err
		}
	}

	gen := env.Gallery.Begin()
	log.Debug("upload started", "source", name, "generation", gen)

	data, err := env.Service.Upload(ctx, name, input.Source)
	if err != nil {
		return nil, err
	}

	u := &upload.Upload{
		ID:         ulid.Make().String(),
		SourceName: name,
		Archive:    data,
		CreatedAt:  time.Now().Unix(),
	}
	if err := db.InsertUpload(env.DB, u); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit > 0 {
		if n, err := db.TrimToNewest(env.DB, cfg.HistoryLimit); err != nil {
			log.Warn("failed to trim upload history", "error", err)
		} else if n > 0 {
			log.Debug("trimmed upload history", "removed", n)
		}
	}

	out, err := ingest(ctx, env, gen, u)
	if err != nil {
		return nil, err
	}

	if input.SavePath != "" {
		if err := WriteFile(input.SavePath, ".zip", data, cfg); err != nil {
			return nil, err
		}
		out.SavedTo = input.SavePath
	}
	return out, nil
}

// ShowInput contains parameters for the Show operation.
type ShowInput struct {
	ID string
}

// Show re-ingests a stored upload into the gallery, as if it had just been
// received.
func Show(ctx context.Context, env *Env, input ShowInput) (*UploadOutput, error) {
	id, err := validateID(input.ID)
	if err != nil {
		return nil, err
	}
	u, err := db.GetUpload(env.DB, id)
	if err != nil {
		return nil, err
	}
	return ingest(ctx, env, env.Gallery.Begin(), u)
}

// ingest extracts u's archive and installs it as generation gen.
func ingest(ctx context.Context, env *Env, gen uint64, u *upload.Upload) (*UploadOutput, error) {
	cfg := env.config()
	log := env.logger()

	entries, err := archive.Extract(ctx, u.Archive, extractOptions(cfg))
	if err != nil {
		if errors.Is(err, errors.ErrCancelled) {
			return nil, err
		}
		if clearErr := env.Gallery.Clear(gen); clearErr != nil {
			log.Debug("archive failure for superseded upload", "id", u.ID, "generation", gen)
		}
		log.Warn("archive could not be read", "id", u.ID, "error", err)
		return nil, err
	}

	out := &UploadOutput{
		ID:           u.ID,
		SourceName:   u.SourceName,
		Generation:   gen,
		ArchiveBytes: len(u.Archive),
	}

	snap, err := env.Gallery.Replace(gen, entries)
	switch {
	case errors.Is(err, errors.ErrSuperseded):
		out.Superseded = true
		out.Groups = summarizeEntries(entries, cfg.UngroupedKey)
		out.ImageCount = len(entries)
		out.GroupCount = len(out.Groups)
	case err != nil:
		return nil, err
	default:
		out.Selected = snap.Selected
		out.ImageCount = snap.ImageCount
		out.GroupCount = snap.GroupCount
		out.Groups = make([]GroupSummary, 0, len(snap.Groups))
		for _, g := range snap.Groups {
			out.Groups = append(out.Groups, GroupSummary{Key: g.Key, Images: g.Count})
		}
	}

	if err := db.SetCounts(env.DB, u.ID, out.ImageCount, out.GroupCount); err != nil && !errors.Is(err, errors.ErrNotFound) {
		log.Warn("failed to record gallery size", "id", u.ID, "error", err)
	}

	log.Info("upload ingested",
		"id", u.ID,
		"source", u.SourceName,
		"generation", gen,
		"images", out.ImageCount,
		"groups", out.GroupCount,
		"superseded", out.Superseded)
	return out, nil
}

func extractOptions(cfg *config.Config) archive.Options {
	return archive.Options{
		Ext:           cfg.ImageExt,
		Workers:       cfg.ExtractWorkers,
		MaxEntryBytes: cfg.MaxEntryBytes,
		MaxTotalBytes: cfg.MaxArchiveBytes,
	}
}

// summarizeEntries groups entries without acquiring handles.
func summarizeEntries(entries []archive.Entry, ungroupedKey string) []GroupSummary {
	out := []GroupSummary{}
	index := map[string]int{}
	for _, e := range entries {
		key, _ := gallery.Group(e.Path, ungroupedKey)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, GroupSummary{Key: key})
		}
		out[i].Images++
	}
	return out
}
