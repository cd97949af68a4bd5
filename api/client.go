package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/papercomputeco/recall/pkg/recall"
	"github.com/papercomputeco/recall/pkg/recording"
	"github.com/papercomputeco/recall/pkg/reprocess"
	"github.com/papercomputeco/recall/pkg/search"
	"github.com/papercomputeco/recall/pkg/storage"
)

// Client calls a running recall API server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for the server at target.
func NewClient(target string) (*Client, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API target URL: %q", target)
	}
	return &Client{BaseURL: strings.TrimRight(target, "/"), HTTP: http.DefaultClient}, nil
}

// Search runs a paged semantic search.
func (c *Client) Search(ctx context.Context, query string, page, pageSize int) (*search.Result, error) {
	q := url.Values{}
	q.Set("query", query)
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}

	out := &search.Result{}
	if err := c.do(ctx, http.MethodGet, "/v1/search", q, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Entry returns the entry stored at ts.
func (c *Client) Entry(ctx context.Context, ts int64) (*storage.Entry, error) {
	out := &storage.Entry{}
	if err := c.do(ctx, http.MethodGet, "/v1/entries/"+strconv.FormatInt(ts, 10), nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Pause pauses capture.
func (c *Client) Pause(ctx context.Context) (*RecordingResponse, error) {
	out := &RecordingResponse{}
	if err := c.do(ctx, http.MethodPost, "/v1/recording/pause", nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Resume resumes capture.
func (c *Client) Resume(ctx context.Context) (*RecordingResponse, error) {
	out := &RecordingResponse{}
	if err := c.do(ctx, http.MethodPost, "/v1/recording/resume", nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns the recording state.
func (c *Client) Status(ctx context.Context) (*recording.State, error) {
	out := &recording.State{}
	if err := c.do(ctx, http.MethodGet, "/v1/recording/status", nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns the recording state with entry counts.
func (c *Client) Stats(ctx context.Context) (*recall.RecordingStats, error) {
	out := &recall.RecordingStats{}
	if err := c.do(ctx, http.MethodGet, "/v1/recording/stats", nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Reprocess runs a reprocessing pass on the server and waits for it.
func (c *Client) Reprocess(ctx context.Context, opts reprocess.Options) (*reprocess.Result, error) {
	body, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encoding reprocess options: %w", err)
	}

	out := &reprocess.Result{}
	if err := c.do(ctx, http.MethodPost, "/v1/reprocess", nil, body, out); err != nil {
		return nil, err
	}
	return out, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed (HTTP %d): %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, out any) error {
	target := c.BaseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to recall API at %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		var er ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
