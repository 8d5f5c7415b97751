package adapter

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingAdapter struct {
	published []*CompletedEvent
	err       error
	closed    bool
}

func (r *recordingAdapter) Publish(_ context.Context, e *CompletedEvent) error {
	r.published = append(r.published, e)
	return r.err
}

func (r *recordingAdapter) Close() error {
	r.closed = true
	return nil
}

func testEvent() *CompletedEvent {
	return &CompletedEvent{
		EventType: EventBatchCompleted,
		Flow:      "fetch",
		Scope:     "era5-GLBx0.25",
		BatchID:   "b-1",
		Outcome:   "success",
	}
}

func TestPublishAll_ContinuesPastFailure(t *testing.T) {
	failing := &recordingAdapter{err: errors.New("down")}
	ok := &recordingAdapter{}

	err := PublishAll(t.Context(), testEvent(), failing, ok)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(ok.published) != 1 {
		t.Errorf("second adapter published %d events, want 1", len(ok.published))
	}
	if !failing.closed || !ok.closed {
		t.Error("adapters not closed")
	}
}

func TestPublishAll_RejectsInvalidEvent(t *testing.T) {
	a := &recordingAdapter{}
	e := testEvent()
	e.EventType = "run_completed"
	if err := PublishAll(t.Context(), e, a); err == nil {
		t.Fatal("expected validation error")
	}
	if len(a.published) != 0 {
		t.Error("invalid event was published")
	}
}

func TestBackoff(t *testing.T) {
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	for i, w := range want {
		if got := Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}
