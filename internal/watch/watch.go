// Package watch feeds a source file into a preview controller whenever it
// changes on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/hpungsan/flowgen/internal/blob"
	"github.com/hpungsan/flowgen/internal/logging"
	"github.com/hpungsan/flowgen/internal/preview"
)

// Editor receives file contents. *preview.Controller satisfies it.
type Editor interface {
	Edit(text string)
	Subscribe() (<-chan preview.Snapshot, func())
	Image() (blob.Blob, bool)
}

// Options configures Run.
type Options struct {
	// Source is the file to watch.
	Source string
	// OnImage is called with each newly settled good image.
	OnImage func(data []byte) error
	// OnError is called with each newly settled error message.
	OnError func(msg string)
	Logger  *slog.Logger
}

// Run watches opts.Source until ctx is done. The file's directory is watched
// rather than the file so editors that save by rename are followed.
func Run(ctx context.Context, ed Editor, opts Options) error {
	log := logging.OrDiscard(opts.Logger)
	source, err := filepath.Abs(opts.Source)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(source)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(source), err)
	}

	snaps, unsubscribe := ed.Subscribe()
	defer unsubscribe()

	var last string
	load := func() {
		data, err := os.ReadFile(source)
		if err != nil {
			log.Warn("read source failed", "path", source, "error", err)
			return
		}
		if text := string(data); text != last {
			last = text
			ed.Edit(text)
		}
	}
	load()

	var seen uint64
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != source {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				log.Debug("source changed", "path", source, "op", ev.Op.String())
				load()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "error", err)

		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if snap.Phase != preview.Settled || snap.Generation == seen {
				continue
			}
			seen = snap.Generation
			switch snap.Outcome {
			case preview.Success:
				img, ok := ed.Image()
				if ok && opts.OnImage != nil {
					if err := opts.OnImage(img.Data); err != nil {
						log.Error("write preview failed", "error", err)
					}
				}
			case preview.Failure:
				if opts.OnError != nil {
					opts.OnError(snap.Error)
				}
			}
		}
	}
}
