package cds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Task states reported by the legacy service.
const (
	StateQueued    = "queued"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// reply is a legacy task status document.
type reply struct {
	State         string `json:"state"`
	RequestID     string `json:"request_id"`
	Location      string `json:"location"`
	ContentLength int64  `json:"content_length"`
	Error         *struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

func (c *Client) retrieveTask(ctx context.Context, dataset string, request map[string]any, target string) error {
	r, err := c.submitTask(ctx, dataset, request)
	if err != nil {
		return err
	}
	if r.RequestID != "" {
		defer c.remove(ctx, "tasks/"+url.PathEscape(r.RequestID), r.RequestID)
	}

	r, err = c.waitTask(ctx, r)
	if err != nil {
		return err
	}
	return c.download(ctx, r.Location, r.ContentLength, r.RequestID, target)
}

func (c *Client) submitTask(ctx context.Context, dataset string, request map[string]any) (*reply, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("cds: marshal request: %w", err)
	}
	var r reply
	if err := c.call(ctx, http.MethodPost, "resources/"+url.PathEscape(dataset), body, &r); err != nil {
		return nil, err
	}
	c.logger.Info("request submitted", map[string]any{
		"dataset":    dataset,
		"request_id": r.RequestID,
		"state":      r.State,
	})
	return &r, nil
}

// waitTask polls the task until it leaves the queued and running states.
func (c *Client) waitTask(ctx context.Context, r *reply) (*reply, error) {
	delay := c.config.PollInterval
	last := r.State
	for {
		switch r.State {
		case StateCompleted:
			return r, nil
		case StateFailed:
			apiErr := &APIError{Message: "request failed"}
			if r.Error != nil {
				apiErr.Message = r.Error.Message
				apiErr.Reason = r.Error.Reason
			}
			return nil, apiErr
		case StateQueued, StateRunning:
		default:
			return nil, fmt.Errorf("cds: unknown task state %q", r.State)
		}
		if r.RequestID == "" {
			return nil, errors.New("cds: task has no request id")
		}

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay = c.pollDelay(delay)

		id := r.RequestID
		var next reply
		if err := c.call(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &next); err != nil {
			return nil, err
		}
		if next.RequestID == "" {
			next.RequestID = id
		}
		r = &next
		if r.State != last {
			c.logger.Info("request state changed", map[string]any{
				"request_id": id,
				"state":      r.State,
			})
			last = r.State
		}
	}
}
