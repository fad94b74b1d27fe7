// Package client talks to the flowchart rendering service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hpungsan/flowgen/internal/errors"
	"github.com/hpungsan/flowgen/internal/logging"
)

const (
	defaultBaseURL          = "http://127.0.0.1:8000"
	defaultTimeout          = 60 * time.Second
	defaultMaxResponseBytes = 64 << 20

	uploadPath  = "upload_flowchart_zip"
	previewPath = "preview_flowchart"

	// maxDiagnosticBytes bounds how much of an error body is inspected.
	maxDiagnosticBytes = 64 << 10
)

// Client issues upload and preview requests.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithMaxResponseBytes caps successful response bodies.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrDiscard(logger)
	}
}

// New creates a Client for the service at baseURL. An empty baseURL means
// the local default.
func New(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = defaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid service url: %q", baseURL))
	}
	c := &Client{
		baseURL:  u,
		http:     &http.Client{Timeout: defaultTimeout},
		maxBytes: defaultMaxResponseBytes,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Upload submits a source file as the multipart field "file" and returns
// the raw archive bytes.
func (c *Client) Upload(ctx context.Context, filename string, src io.Reader) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("create form file: %w", err))
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("read source: %w", err))
	}
	if err := mw.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("close multipart writer: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath(uploadPath).String(), &body)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("build upload request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/zip")

	data, _, err := c.do(ctx, req, "upload", errors.MsgUploadRejected)
	return data, err
}

type previewRequest struct {
	Code string `json:"code"`
}

// Preview renders code and returns the image bytes with their media type.
func (c *Client) Preview(ctx context.Context, code string) ([]byte, string, error) {
	payload, err := json.Marshal(previewRequest{Code: code})
	if err != nil {
		return nil, "", errors.NewInternal(fmt.Errorf("encode preview request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath(previewPath).String(), bytes.NewReader(payload))
	if err != nil {
		return nil, "", errors.NewInternal(fmt.Errorf("build preview request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")

	data, contentType, err := c.do(ctx, req, "preview", errors.MsgFallbackDiagnostic)
	if err != nil {
		return nil, "", err
	}
	mediaType, ok := imageType(contentType)
	if !ok {
		c.logger.Warn("preview response is not an image", "content_type", contentType)
		return nil, "", errors.NewValidation(diagnostic(data), http.StatusOK)
	}
	return data, mediaType, nil
}

// do sends req and classifies the outcome. Successful bodies are returned
// with their content type. A rejection without a detail string is reported
// with fallback.
func (c *Client) do(ctx context.Context, req *http.Request, op, fallback string) ([]byte, string, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", errors.NewCancelled(op)
		}
		c.logger.Warn("service unreachable", "op", op, "url", req.URL.String(), "error", err)
		return nil, "", errors.NewTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBytes))
		msg := diagnostic(body)
		if msg == "" {
			msg = fallback
		}
		c.logger.Info("service rejected request", "op", op, "status", resp.StatusCode, "detail", msg)
		return nil, "", errors.NewValidation(msg, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", errors.NewCancelled(op)
		}
		return nil, "", errors.NewTransport(err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, "", errors.NewArchiveTooLarge(op+" response", c.maxBytes)
	}

	c.logger.Debug("service request complete",
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(data),
		"duration", time.Since(start))
	return data, resp.Header.Get("Content-Type"), nil
}

// diagnostic extracts the "detail" string from an error body. Anything else
// yields the empty string. The detail is returned exactly as sent.
func diagnostic(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err != nil {
		return ""
	}
	return detail
}

// imageType returns the media type of contentType without parameters, if it
// names an image.
func imageType(contentType string) (string, bool) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return "", false
	}
	return mt, true
}
