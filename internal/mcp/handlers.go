package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/flowgen/internal/config"
	"github.com/hpungsan/flowgen/internal/errors"
	"github.com/hpungsan/flowgen/internal/gallery"
	"github.com/hpungsan/flowgen/internal/ops"
	"github.com/hpungsan/flowgen/internal/preview"
	"github.com/hpungsan/flowgen/internal/upload"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	env      *ops.Env
	renderer preview.Renderer
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(env *ops.Env, renderer preview.Renderer) *Handlers {
	return &Handlers{env: env, renderer: renderer}
}

func (h *Handlers) config() *config.Config {
	if h.env.Config == nil {
		return config.DefaultConfig()
	}
	return h.env.Config
}

// Request types for each tool

// UploadRequest represents the arguments for gallery_upload.
type UploadRequest struct {
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename,omitempty"`
	Source   string `json:"source,omitempty"`
	SavePath string `json:"save_path,omitempty"`
}

// GroupsRequest represents the arguments for gallery_groups.
type GroupsRequest struct {
	Markdown bool `json:"markdown,omitempty"`
}

// SelectRequest represents the arguments for gallery_select.
type SelectRequest struct {
	Group string `json:"group"`
}

// HistoryRequest represents the arguments for gallery_history.
type HistoryRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ShowRequest represents the arguments for gallery_show.
type ShowRequest struct {
	ID string `json:"id"`
}

// DownloadRequest represents the arguments for gallery_download.
type DownloadRequest struct {
	ID   string `json:"id"`
	Path string `json:"path,omitempty"`
}

// PurgeRequest represents the arguments for gallery_purge.
type PurgeRequest struct {
	OlderThan string `json:"older_than,omitempty"`
	Keep      int    `json:"keep,omitempty"`
}

// PreviewRequest represents the arguments for preview_render.
type PreviewRequest struct {
	Code string `json:"code"`
}

// SelectResult is the output of gallery_select.
type SelectResult struct {
	Changed  bool   `json:"changed"`
	Selected string `json:"selected"`
}

// Handler implementations

// HandleUpload handles the gallery_upload tool call.
func (h *Handlers) HandleUpload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UploadRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	in := ops.UploadInput{SavePath: input.SavePath}
	switch {
	case input.Path != "" && input.Source != "":
		return errorResult(errors.NewInvalidRequest("give either path or source, not both")), nil
	case input.Path != "":
		f, err := os.Open(input.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return errorResult(errors.NewFileNotFound(input.Path)), nil
			}
			return errorResult(errors.NewInternal(err)), nil
		}
		defer f.Close()
		in.Filename = input.Path
		in.Source = f
	case input.Source != "":
		in.Filename = input.Filename
		in.Source = strings.NewReader(input.Source)
	default:
		return errorResult(errors.NewInvalidRequest("path or source is required")), nil
	}

	result, err := ops.Upload(ctx, h.env, in)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGroups handles the gallery_groups tool call.
func (h *Handlers) HandleGroups(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GroupsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	snap := h.env.Gallery.Snapshot()
	if input.Markdown {
		return mcp.NewToolResultText(gallery.Index(snap)), nil
	}
	return successResult(snap)
}

// HandleSelect handles the gallery_select tool call.
func (h *Handlers) HandleSelect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SelectRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if strings.TrimSpace(input.Group) == "" {
		return errorResult(errors.NewInvalidRequest("group is required")), nil
	}

	changed := h.env.Gallery.SelectGroup(input.Group)
	return successResult(SelectResult{
		Changed:  changed,
		Selected: h.env.Gallery.Snapshot().Selected,
	})
}

// HandleHistory handles the gallery_history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.List(h.env.DB, ops.ListInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShow handles the gallery_show tool call.
func (h *Handlers) HandleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShowRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Show(ctx, h.env, ops.ShowInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDownload handles the gallery_download tool call.
func (h *Handlers) HandleDownload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DownloadRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Download(h.env.DB, h.config(), ops.DownloadInput{
		ID:   input.ID,
		Path: input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurge handles the gallery_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	in := ops.PurgeInput{Keep: input.Keep}
	if input.OlderThan != "" {
		d, err := upload.ParseAge(input.OlderThan)
		if err != nil {
			return errorResult(errors.NewInvalidRequest(err.Error())), nil
		}
		in.OlderThan = d
	}

	result, err := ops.Purge(h.env.DB, in)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePreview handles the preview_render tool call.
func (h *Handlers) HandlePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PreviewRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if strings.TrimSpace(input.Code) == "" {
		return errorResult(errors.NewInvalidRequest("code is required")), nil
	}
	if h.renderer == nil {
		return errorResult(errors.NewTransport(nil)), nil
	}

	data, contentType, err := h.renderer.Preview(ctx, input.Code)
	if err != nil {
		return errorResult(err), nil
	}

	return mcp.NewToolResultImage("flowchart preview", base64.StdEncoding.EncodeToString(data), contentType), nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var errorObj map[string]any

	if fErr, ok := errors.As(err); ok && fErr.Code != errors.ErrInternal {
		errorObj = map[string]any{
			"code":    fErr.Code,
			"message": fErr.Message,
			"status":  fErr.Status,
		}
		if fErr.Details != nil {
			errorObj["details"] = fErr.Details
		}
	} else {
		errorObj = map[string]any{
			"code":    errors.ErrInternal,
			"message": "an internal error occurred",
			"status":  500,
		}
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
