// Package ops implements flowgen's operations on top of the service client,
// the gallery, and the upload history.
package ops

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strings"

	"github.com/hpungsan/flowgen/internal/config"
	"github.com/hpungsan/flowgen/internal/errors"
	"github.com/hpungsan/flowgen/internal/gallery"
	"github.com/hpungsan/flowgen/internal/logging"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Service submits source files for archive generation.
type Service interface {
	Upload(ctx context.Context, filename string, src io.Reader) ([]byte, error)
}

// Env holds the dependencies of gallery-mutating operations.
type Env struct {
	DB      *sql.DB
	Config  *config.Config
	Service Service
	Gallery *gallery.Manager
	Logger  *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	return logging.OrDiscard(e.Logger)
}

func (e *Env) config() *config.Config {
	if e.Config == nil {
		return config.DefaultConfig()
	}
	return e.Config
}

// validateID trims and requires an upload id.
func validateID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest("id is required")
	}
	return id, nil
}
