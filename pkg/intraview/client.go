// Package intraview is a Go client for the intraview HTTP API.
package intraview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"intraview/internal/util"
)

// Client provides a Go SDK for interacting with the intraview-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Attempts and Backoff control retries of transient failures
	// (network errors and 5xx responses).
	Attempts int
	Backoff  time.Duration
}

// NewClient creates a new intraview API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		Attempts:   3,
		Backoff:    200 * time.Millisecond,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("intraview: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Health is the /health response.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Time    string `json:"time"`
}

// FileNode is one entry of the data file tree.
type FileNode struct {
	Type     string     `json:"type"`
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Size     int64      `json:"size,omitempty"`
	Children []FileNode `json:"children,omitempty"`
}

// QueryResult is the /api/query response. Cells are JSON-decoded: numbers
// are float64, text is string, nulls are nil.
type QueryResult struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	RowCount   int      `json:"row_count"`
	Truncated  bool     `json:"truncated"`
	DurationMS int64    `json:"duration_ms"`
	File       string   `json:"file"`
	QueryID    string   `json:"query_id,omitempty"`
}

// ChartRequest selects a table (inline or from a file query) and its axes.
type ChartRequest struct {
	FilePath  string   `json:"file_path,omitempty"`
	Query     string   `json:"query,omitempty"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	X         string   `json:"x,omitempty"`
	Y         string   `json:"y,omitempty"`
	MaxPoints int      `json:"max_points,omitempty"`
}

// Point is one plotted pair. Y is nil where the source value was not a
// finite number.
type Point struct {
	X any      `json:"x"`
	Y *float64 `json:"y"`
}

// SeriesMeta describes how a Series was built.
type SeriesMeta struct {
	XLabel         string   `json:"x_label"`
	YLabel         string   `json:"y_label"`
	Columns        []string `json:"columns"`
	NumericColumns []int    `json:"numeric_columns"`
	YNumeric       bool     `json:"y_numeric"`
}

// Series is the /api/chart response.
type Series struct {
	Points    []Point    `json:"points"`
	Meta      SeriesMeta `json:"meta"`
	Selection struct {
		X int `json:"x"`
		Y int `json:"y"`
	} `json:"selection"`
	Stride    int `json:"stride"`
	TotalRows int `json:"total_rows"`
}

// Health checks the server.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Files lists the data file tree.
func (c *Client) Files(ctx context.Context) ([]FileNode, error) {
	var nodes []FileNode
	if err := c.do(ctx, http.MethodGet, "/api/files", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Query runs sql against a data file. An empty sql runs the server's
// default preview query.
func (c *Client) Query(ctx context.Context, filePath, sql string) (*QueryResult, error) {
	body := map[string]string{"file_path": filePath, "query": sql}
	var res QueryResult
	if err := c.do(ctx, http.MethodPost, "/api/query", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Chart builds a downsampled series.
func (c *Client) Chart(ctx context.Context, req ChartRequest) (*Series, error) {
	var s Series
	if err := c.do(ctx, http.MethodPost, "/api/chart", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RecentSymbols returns the server's recently viewed symbols.
func (c *Client) RecentSymbols(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, "/api/prefs/recent/symbols", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	attempts := c.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	return util.Retry(ctx, attempts, c.Backoff, func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return util.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return util.Permanent(ctx.Err())
			}
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return util.Permanent(apiErr)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return util.Permanent(fmt.Errorf("decoding %s response: %w", path, err))
		}
		return nil
	})
}

func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
