// Package cds implements a Climate Data Store retrieval client.
//
// A retrieval is submitted, polled until the service finishes preparing
// it, downloaded to the target path and finally deleted. Two protocols
// are spoken, chosen by the shape of the key:
//
//   - token keys use the jobs API (retrieve/v1/processes, retrieve/v1/jobs)
//     with a PRIVATE-TOKEN header;
//   - <uid>:<secret> keys use the legacy task API (resources, tasks) with
//     basic auth.
package cds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pithecene-io/isobar/iox"
	"github.com/pithecene-io/isobar/log"
)

// Defaults for the client.
const (
	DefaultTimeout         = 60 * time.Second
	DefaultPollInterval    = time.Second
	DefaultMaxPollInterval = 120 * time.Second
	pollGrowth             = 1.5
)

// ErrSizeMismatch indicates the downloaded size differs from the
// advertised content length.
var ErrSizeMismatch = errors.New("download size mismatch")

// APIError is a request the service reported as failed.
type APIError struct {
	Message string
	Reason  string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cds: %s: %s", e.Message, e.Reason)
	}
	return "cds: " + e.Message
}

// Permanent reports that resubmitting the same request will fail again.
func (e *APIError) Permanent() bool { return true }

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cds: unexpected status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("cds: unexpected status %d", e.Code)
}

// Permanent reports 4xx responses other than 429 as non-retriable.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests
}

// Config configures a Client.
type Config struct {
	Credentials Credentials
	// Timeout bounds each API call. Downloads are bounded by ctx only.
	Timeout time.Duration
	// PollInterval is the first poll delay; it grows by 1.5x per poll.
	PollInterval time.Duration
	// MaxPollInterval caps the poll delay.
	MaxPollInterval time.Duration
	// Logger receives request state changes. May be nil.
	Logger *log.Logger
}

// Client submits and downloads retrievals.
type Client struct {
	config Config
	base   *url.URL
	api    *http.Client
	dl     *http.Client
	logger *log.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(cfg.Credentials.URL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid CDS url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = max(DefaultMaxPollInterval, cfg.PollInterval)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		config: cfg,
		base:   base,
		api:    &http.Client{Timeout: cfg.Timeout},
		dl:     &http.Client{},
		logger: logger,
		sleep:  sleepCtx,
	}, nil
}

// Retrieve submits request against dataset, waits for completion and
// downloads the result to target. The submission is deleted afterwards,
// whatever the outcome.
func (c *Client) Retrieve(ctx context.Context, dataset string, request map[string]any, target string) error {
	if c.config.Credentials.Legacy() {
		return c.retrieveTask(ctx, dataset, request, target)
	}
	return c.retrieveJob(ctx, dataset, request, target)
}

// pollDelay returns the delay after d.
func (c *Client) pollDelay(d time.Duration) time.Duration {
	return min(time.Duration(float64(d)*pollGrowth), c.config.MaxPollInterval)
}

// download streams href to target and checks the advertised size when
// one is known.
func (c *Client) download(ctx context.Context, href string, size int64, id, target string) error {
	if href == "" {
		return errors.New("cds: completed request has no download location")
	}
	loc, err := c.base.Parse(href)
	if err != nil {
		return fmt.Errorf("cds: invalid location %q: %w", href, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.String(), nil)
	if err != nil {
		return fmt.Errorf("cds: create request: %w", err)
	}
	resp, err := c.dl.Do(req)
	if err != nil {
		return fmt.Errorf("cds: download failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}

	f, err := os.Create(target)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("cds: download failed: %w", err)
	}
	if size > 0 && n != size {
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrSizeMismatch, n, size)
	}

	c.logger.Info("download completed", map[string]any{
		"request_id": id,
		"target":     target,
		"bytes":      n,
	})
	return nil
}

// remove deletes a finished submission. Failures are logged only.
func (c *Client) remove(ctx context.Context, path, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Timeout)
	defer cancel()
	if err := c.call(ctx, http.MethodDelete, path, nil, nil); err != nil {
		c.logger.Warn("failed to delete request", map[string]any{
			"request_id": id,
			"error":      err.Error(),
		})
	}
}

// call performs one authenticated API request and decodes the JSON reply
// into out when out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	u, err := c.base.Parse(path)
	if err != nil {
		return fmt.Errorf("cds: invalid path %q: %w", path, err)
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return fmt.Errorf("cds: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.config.Credentials.authorize(req)

	resp, err := c.api.Do(req)
	if err != nil {
		return fmt.Errorf("cds: %s %s: %w", method, path, err)
	}
	defer iox.DiscardClose(resp.Body)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("cds: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("cds: decode response: %w", err)
	}
	return nil
}

// errorMessage extracts a message from an error body, if it has one.
// Legacy replies nest it under "error"; the jobs API uses title and detail.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Title   string `json:"title"`
		Detail  string `json:"detail"`
		Error   *struct {
			Message string `json:"message"`
			Reason  string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	join := func(msg, reason string) string {
		if reason == "" {
			return msg
		}
		return msg + ": " + reason
	}
	switch {
	case body.Error != nil:
		return join(body.Error.Message, body.Error.Reason)
	case body.Title != "":
		return join(body.Title, body.Detail)
	default:
		return body.Message
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
