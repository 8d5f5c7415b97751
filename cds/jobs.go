package cds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Job statuses reported by the jobs API.
const (
	JobAccepted   = "accepted"
	JobRunning    = "running"
	JobSuccessful = "successful"
	JobFailed     = "failed"
	JobRejected   = "rejected"
	JobDismissed  = "dismissed"
)

// job is a jobs API status document.
type job struct {
	JobID  string `json:"jobID"`
	Status string `json:"status"`
}

// jobResults is the results document of a successful job.
type jobResults struct {
	Asset struct {
		Value struct {
			Href string `json:"href"`
			Size int64  `json:"file:size"`
		} `json:"value"`
	} `json:"asset"`
}

func jobPath(id string) string {
	return "retrieve/v1/jobs/" + url.PathEscape(id)
}

func (c *Client) retrieveJob(ctx context.Context, dataset string, request map[string]any, target string) error {
	j, err := c.submitJob(ctx, dataset, request)
	if err != nil {
		return err
	}
	defer c.remove(ctx, jobPath(j.JobID), j.JobID)

	if err := c.waitJob(ctx, j); err != nil {
		return err
	}

	var res jobResults
	if err := c.call(ctx, http.MethodGet, jobPath(j.JobID)+"/results", nil, &res); err != nil {
		return err
	}
	return c.download(ctx, res.Asset.Value.Href, res.Asset.Value.Size, j.JobID, target)
}

func (c *Client) submitJob(ctx context.Context, dataset string, request map[string]any) (*job, error) {
	body, err := json.Marshal(map[string]any{"inputs": request})
	if err != nil {
		return nil, fmt.Errorf("cds: marshal request: %w", err)
	}
	var j job
	path := "retrieve/v1/processes/" + url.PathEscape(dataset) + "/execution"
	if err := c.call(ctx, http.MethodPost, path, body, &j); err != nil {
		return nil, err
	}
	if j.JobID == "" {
		return nil, errors.New("cds: submitted job has no id")
	}
	c.logger.Info("request submitted", map[string]any{
		"dataset":    dataset,
		"request_id": j.JobID,
		"state":      j.Status,
	})
	return &j, nil
}

// waitJob polls the job until it succeeds or ends otherwise.
func (c *Client) waitJob(ctx context.Context, j *job) error {
	delay := c.config.PollInterval
	last := j.Status
	for {
		switch j.Status {
		case JobSuccessful:
			return nil
		case JobFailed, JobRejected, JobDismissed:
			return c.jobError(ctx, j)
		case JobAccepted, JobRunning:
		default:
			return fmt.Errorf("cds: unknown job status %q", j.Status)
		}

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
		delay = c.pollDelay(delay)

		var next job
		if err := c.call(ctx, http.MethodGet, jobPath(j.JobID), nil, &next); err != nil {
			return err
		}
		j.Status = next.Status
		if j.Status != last {
			c.logger.Info("request state changed", map[string]any{
				"request_id": j.JobID,
				"state":      j.Status,
			})
			last = j.Status
		}
	}
}

// jobError builds the APIError of a job that did not succeed. The reason
// comes from the results document, which holds the failure for such jobs.
func (c *Client) jobError(ctx context.Context, j *job) error {
	apiErr := &APIError{Message: "request " + j.Status}
	err := c.call(ctx, http.MethodGet, jobPath(j.JobID)+"/results", nil, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		apiErr.Reason = statusErr.Message
	}
	return apiErr
}
