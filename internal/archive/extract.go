// Package archive decodes the zip archives returned by the flowchart service.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hpungsan/flowgen/internal/errors"
)

// Entry is a named image payload read from an archive.
type Entry struct {
	Path    string
	Payload []byte
}

// Options controls extraction.
type Options struct {
	// Ext is the image suffix to keep, compared case-insensitively. Default ".png".
	Ext string
	// Workers bounds concurrent decompression. 0 means runtime.NumCPU().
	Workers int
	// MaxEntryBytes caps a single decompressed entry. 0 means unlimited.
	MaxEntryBytes int64
	// MaxTotalBytes caps the input archive and the sum of decompressed
	// image entries. 0 means unlimited.
	MaxTotalBytes int64
}

// IsImage reports whether name carries the image suffix ext.
func IsImage(name, ext string) bool {
	if ext == "" {
		ext = ".png"
	}
	if strings.HasSuffix(name, "/") {
		return false
	}
	return len(name) > len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext)
}

// Extract decodes data and returns its image entries in archive order.
// It is all-or-nothing: any unreadable entry fails the whole call with an
// ARCHIVE error and no entries are returned.
func Extract(ctx context.Context, data []byte, opts Options) ([]Entry, error) {
	if opts.MaxTotalBytes > 0 && int64(len(data)) > opts.MaxTotalBytes {
		return nil, errors.NewArchiveTooLarge("archive", opts.MaxTotalBytes)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.NewArchive(err)
	}

	var files []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !IsImage(f.Name, opts.Ext) {
			continue
		}
		if opts.MaxEntryBytes > 0 && f.UncompressedSize64 > uint64(opts.MaxEntryBytes) {
			return nil, errors.NewArchiveTooLarge(f.Name, opts.MaxEntryBytes)
		}
		files = append(files, f)
	}

	entries := make([]Entry, len(files))
	if len(files) == 0 {
		return entries, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(files))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		total    atomic.Int64
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				payload, err := readEntry(files[i], opts.MaxEntryBytes)
				if err != nil {
					fail(err)
					continue
				}
				if opts.MaxTotalBytes > 0 && total.Add(int64(len(payload))) > opts.MaxTotalBytes {
					fail(errors.NewArchiveTooLarge("decompressed images", opts.MaxTotalBytes))
					continue
				}
				entries[i] = Entry{Path: files[i].Name, Payload: payload}
			}
		}()
	}

dispatch:
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("archive extraction")
	}
	return entries, nil
}

// readEntry decompresses one entry, verifying its checksum by reading to EOF.
func readEntry(f *zip.File, maxBytes int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.NewArchive(fmt.Errorf("open %s: %w", f.Name, err))
	}
	defer rc.Close()

	var r io.Reader = rc
	if maxBytes > 0 {
		r = io.LimitReader(rc, maxBytes+1)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewArchive(fmt.Errorf("read %s: %w", f.Name, err))
	}
	if maxBytes > 0 && int64(len(payload)) > maxBytes {
		return nil, errors.NewArchiveTooLarge(f.Name, maxBytes)
	}
	return payload, nil
}
