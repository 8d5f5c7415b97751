// Package adapter defines the completion-notification boundary.
//
// Adapters publish sequence and batch completion notifications to
// downstream systems. The CLI owns adapter lifecycle; users provide
// configuration only.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Event types.
const (
	EventSequenceCompleted = "sequence_completed"
	EventBatchCompleted    = "batch_completed"
)

// CompletedEvent is the payload published when a flow finishes.
type CompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	// EventType is sequence_completed or batch_completed.
	EventType string `json:"event_type"`
	Flow      string `json:"flow"`
	// Scope is the experiment name or archive tag.
	Scope   string `json:"scope"`
	BatchID string `json:"batch_id"`
	Day     string `json:"day"`
	// Outcome is the flow outcome status (success, collaborator_failure, ...).
	Outcome     string `json:"outcome"`
	Message     string `json:"message,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
	// Timestamp is RFC 3339.
	Timestamp string `json:"timestamp"`
	// Completed counts runs completed or files fetched.
	Completed  int   `json:"completed"`
	Skipped    int   `json:"skipped,omitempty"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}

// Validate checks the fields every consumer relies on.
func (e *CompletedEvent) Validate() error {
	switch e.EventType {
	case EventSequenceCompleted, EventBatchCompleted:
	default:
		return fmt.Errorf("unknown event type %q", e.EventType)
	}
	if e.Scope == "" || e.BatchID == "" {
		return errors.New("event requires scope and batch_id")
	}
	return nil
}

// Adapter publishes completion events to a downstream system.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *CompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Backoff returns the delay before retry attempt i (i >= 1):
// 500ms, 1s, 2s, ...
func Backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
}

// PublishAll publishes event to every adapter and closes them.
// Failures are joined; one failing adapter does not stop the others.
func PublishAll(ctx context.Context, event *CompletedEvent, adapters ...Adapter) error {
	if err := event.Validate(); err != nil {
		return err
	}
	var errs []error
	for _, a := range adapters {
		if err := a.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
