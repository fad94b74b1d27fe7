package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/flowgen/internal/blob"
	"github.com/hpungsan/flowgen/internal/logging"
	"github.com/hpungsan/flowgen/internal/ops"
	"github.com/hpungsan/flowgen/internal/preview"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Options configures the web UI.
type Options struct {
	Env      *ops.Env
	Store    *blob.Store
	Renderer preview.Renderer
	Version  string
	Bind     string
	Port     int
	Logger   *slog.Logger
}

// NewServer creates and configures the HTTP server for the flowgen web UI.
func NewServer(opts Options) (*http.Server, error) {
	h, err := newHandlers(opts)
	if err != nil {
		return nil, err
	}

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/gallery", http.StatusFound)
	})
	mux.HandleFunc("GET /gallery", h.HandleGallery)
	mux.HandleFunc("POST /gallery/select", h.HandleSelect)
	mux.HandleFunc("POST /gallery/upload", h.HandleUpload)
	mux.HandleFunc("GET /blobs/{handle}", h.HandleBlob)
	mux.HandleFunc("GET /uploads", h.HandleUploads)
	mux.HandleFunc("GET /uploads/{id}/archive", h.HandleArchive)
	mux.HandleFunc("POST /uploads/{id}/show", h.HandleShow)
	mux.HandleFunc("POST /uploads/purge", h.HandlePurge)
	mux.HandleFunc("GET /playground", h.HandlePlayground)
	mux.HandleFunc("GET /playground/ws", h.HandlePlaygroundSocket)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Bind, opts.Port),
		Handler:           securityHeaders(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self'; connect-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM
// or when ctx is done.
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	log := logging.OrDiscard(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("flowgen UI running", "url", "http://"+srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
