// Package client is a typed client for the seiscube HTTP API.
//
// Failed requests return an *APIError that unwraps to the sentinel of its
// code, so callers can test errors.Is(err, errors.ErrNoCube) and similar.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/seiscube/internal/api"
	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/payload"
	"github.com/xtxerr/seiscube/internal/session"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8000".
	BaseURL string

	// RequestTimeout bounds each request. Uploads use UploadTimeout.
	RequestTimeout time.Duration
	UploadTimeout  time.Duration

	// HTTPClient overrides the transport. Optional.
	HTTPClient *http.Client
}

// DefaultConfig returns default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "http://localhost:8000",
		RequestTimeout: 30 * time.Second,
		UploadTimeout:  10 * time.Minute,
	}
}

// APIError is a failed request.
type APIError struct {
	Status  int
	Code    int32
	Kind    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Kind)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Unwrap returns the sentinel for the error code.
func (e *APIError) Unwrap() error {
	return errors.CodeToError(e.Code)
}

// Client talks to one server. It is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
	cfg  Config
}

// New creates a client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.BaseURL == "" {
		c.BaseURL = DefaultConfig().BaseURL
	}
	if !strings.Contains(c.BaseURL, "://") {
		c.BaseURL = "http://" + c.BaseURL
	}
	base, err := url.Parse(strings.TrimRight(c.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 10 * time.Minute
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{base: base, http: hc, cfg: c}, nil
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) url(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base.String() + "/api/" + strings.Join(escaped, "/")
}

// do sends req and decodes a JSON response into out (when non-nil).
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var er api.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == "" {
		return &APIError{
			Status:  status,
			Code:    errors.CodeUnknown,
			Message: strings.TrimSpace(string(body)),
		}
	}
	return &APIError{Status: status, Code: er.Code, Kind: er.Kind, Message: er.Error}
}

func (c *Client) get(ctx context.Context, out any, parts ...string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(parts...), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// Health returns the server status.
func (c *Client) Health(ctx context.Context) (*session.Health, error) {
	var h session.Health
	if err := c.get(ctx, &h, "health"); err != nil {
		return nil, err
	}
	return &h, nil
}

// CubeInfo returns the active cube's summary.
func (c *Client) CubeInfo(ctx context.Context) (*payload.CubeInfo, error) {
	var info payload.CubeInfo
	if err := c.get(ctx, &info, "cube-info"); err != nil {
		return nil, err
	}
	return &info, nil
}

// Slice returns one slice of the active cube. axis is inline, xline or
// sample.
func (c *Client) Slice(ctx context.Context, axis string, index int) (*payload.SliceDoc, error) {
	var doc payload.SliceDoc
	if err := c.get(ctx, &doc, "slice", axis, strconv.Itoa(index)); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Cubes lists every known cube, newest first.
func (c *Client) Cubes(ctx context.Context) ([]payload.Metadata, error) {
	var resp api.CubesResponse
	if err := c.get(ctx, &resp, "cubes"); err != nil {
		return nil, err
	}
	if resp.Error != "" && len(resp.Cubes) == 0 {
		return nil, &APIError{
			Status:  http.StatusOK,
			Code:    errors.CodeStoreUnavailable,
			Kind:    errors.CodeName(errors.CodeStoreUnavailable),
			Message: resp.Error,
		}
	}
	return resp.Cubes, nil
}

// Cube returns one cube's metadata.
func (c *Client) Cube(ctx context.Context, id string) (*payload.Metadata, error) {
	var m payload.Metadata
	if err := c.get(ctx, &m, "cube", id); err != nil {
		return nil, err
	}
	return &m, nil
}

// Delete removes a cube's stored objects.
func (c *Client) Delete(ctx context.Context, id string) (*api.DeleteResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url("cube", id), nil)
	if err != nil {
		return nil, err
	}
	var resp api.DeleteResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Upload sends one file under name and returns the load result.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*api.UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	w, err := mw.CreateFormFile("files", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(w, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("upload"), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp api.UploadResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadFile uploads a file from disk.
func (c *Client) UploadFile(ctx context.Context, path string) (*api.UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.Upload(ctx, filepath.Base(path), f)
}
