package web

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/flowgen/internal/blob"
	"github.com/hpungsan/flowgen/internal/db"
	"github.com/hpungsan/flowgen/internal/errors"
	"github.com/hpungsan/flowgen/internal/gallery"
	"github.com/hpungsan/flowgen/internal/logging"
	"github.com/hpungsan/flowgen/internal/ops"
	"github.com/hpungsan/flowgen/internal/preview"
	"github.com/hpungsan/flowgen/internal/upload"
)

// maxFormMemory bounds the part of a multipart upload held in memory.
const maxFormMemory = 4 << 20

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	env      *ops.Env
	store    *blob.Store
	preview  preview.Renderer
	renderer *Renderer
	logger   *slog.Logger
}

func newHandlers(opts Options) (*Handlers, error) {
	if opts.Env == nil || opts.Env.Gallery == nil {
		return nil, errors.NewInvalidRequest("web UI requires a gallery")
	}
	logger := logging.OrDiscard(opts.Logger)

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	renderer, err := NewRenderer(templateSub, opts.Version, logger)
	if err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		store = blob.NewStore()
	}
	return &Handlers{
		env:      opts.Env,
		store:    store,
		preview:  opts.Renderer,
		renderer: renderer,
		logger:   logger,
	}, nil
}

// HandleGallery handles GET /gallery: the current gallery.
func (h *Handlers) HandleGallery(w http.ResponseWriter, r *http.Request) {
	snap := h.env.Gallery.Snapshot()

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, snap)
		return
	}

	h.renderer.renderPage(w, r, "gallery", GalleryPageData{
		PageData:  h.renderer.page("Gallery", "gallery"),
		Gallery:   snap,
		Images:    snap.SelectedImages(),
		IndexHTML: renderMarkdown(gallery.Index(snap)),
		Notice:    r.URL.Query().Get("notice"),
	})
}

// HandleSelect handles POST /gallery/select: choose the displayed group.
// Unknown groups leave the selection unchanged.
func (h *Handlers) HandleSelect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	changed := h.env.Gallery.SelectGroup(r.FormValue("group"))

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"changed":  changed,
			"selected": h.env.Gallery.Snapshot().Selected,
		})
		return
	}
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/gallery")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/gallery", http.StatusSeeOther)
}

// HandleUpload handles POST /gallery/upload: submit a source file and
// replace the gallery with the result.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("file is required"))
		return
	}
	defer file.Close()

	out, err := ops.Upload(r.Context(), h.env, ops.UploadInput{
		Filename: header.Filename,
		Source:   file,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}
	notice := ""
	if out.Superseded {
		notice = "superseded"
	}
	http.Redirect(w, r, galleryURL(notice), http.StatusSeeOther)
}

// HandleBlob handles GET /blobs/{handle}: serve a live image.
func (h *Handlers) HandleBlob(w http.ResponseWriter, r *http.Request) {
	handle := blob.Handle(r.PathValue("handle"))
	b, ok := h.store.Get(handle)
	if !ok {
		h.renderer.renderError(w, r, errors.NewNotFound("image", string(handle)))
		return
	}

	w.Header().Set("Content-Type", b.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b.Data)
}

// HandleUploads handles GET /uploads: upload history.
func (h *Handlers) HandleUploads(w http.ResponseWriter, r *http.Request) {
	result, err := ops.List(h.env.DB, ops.ListInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "uploads", UploadsPageData{
		PageData:   h.renderer.page("Uploads", "uploads"),
		Items:      result.Items,
		Pagination: result.Pagination,
	})
}

// HandleArchive handles GET /uploads/{id}/archive: the stored archive,
// byte for byte.
func (h *Handlers) HandleArchive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("upload ID is required"))
		return
	}

	u, err := db.GetUpload(h.env.DB, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	name := u.ToSummary().ArchiveName()
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.Itoa(len(u.Archive)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ops.SanitizeForFilename(name)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(u.Archive)
}

// HandleShow handles POST /uploads/{id}/show: load a stored upload into
// the gallery.
func (h *Handlers) HandleShow(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Show(r.Context(), h.env, ops.ShowInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}
	http.Redirect(w, r, "/gallery", http.StatusSeeOther)
}

// HandlePurge handles POST /uploads/purge: permanently delete stored uploads.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	var input ops.PurgeInput
	if age := r.FormValue("older_than"); age != "" {
		d, err := upload.ParseAge(age)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest(err.Error()))
			return
		}
		input.OlderThan = d
	}
	if keep := r.FormValue("keep"); keep != "" {
		n, err := strconv.Atoi(keep)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("keep must be an integer"))
			return
		}
		input.Keep = n
	}

	result, err := ops.Purge(h.env.DB, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, "/uploads", http.StatusSeeOther)
}

// HandlePlayground handles GET /playground: the live preview editor.
func (h *Handlers) HandlePlayground(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "playground", PlaygroundPageData{
		PageData:      h.renderer.page("Playground", "playground"),
		QuietPeriodMS: h.quietPeriod().Milliseconds(),
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func galleryURL(notice string) string {
	if notice == "" {
		return "/gallery"
	}
	return "/gallery?notice=" + strings.ReplaceAll(notice, " ", "+")
}
