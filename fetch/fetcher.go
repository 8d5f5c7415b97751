package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/isobar/lode"
	"github.com/pithecene-io/isobar/log"
	"github.com/pithecene-io/isobar/metrics"
	"github.com/pithecene-io/isobar/types"
)

// DefaultRetryBackoff is the first retry delay; it doubles per attempt.
const DefaultRetryBackoff = 500 * time.Millisecond

// partSuffix marks in-progress downloads.
const partSuffix = ".part"

var (
	// ErrDestination indicates the destination directory could not be prepared.
	ErrDestination = errors.New("destination directory unavailable")
	// ErrBatchIncomplete indicates one or more requests failed.
	ErrBatchIncomplete = errors.New("batch incomplete")
)

// Retriever issues one blocking retrieval and writes the result to target.
type Retriever interface {
	Retrieve(ctx context.Context, dataset string, request map[string]any, target string) error
}

// permanent is implemented by retrieval errors that retrying cannot fix.
type permanent interface {
	Permanent() bool
}

// Config configures a Fetcher.
type Config struct {
	// BatchID identifies the batch in results and logs.
	BatchID string
	// Templates are the request shapes to enumerate.
	Templates []Template
	// StartYear and EndYear bound the year range, inclusive.
	StartYear int
	EndYear   int
	// Naming computes destination paths.
	Naming Naming
	// Parallel bounds concurrent requests. Values below 1 mean 1.
	Parallel int
	// Retries is the number of additional attempts per request.
	Retries int
	// RetryBackoff is the first retry delay. Defaults to DefaultRetryBackoff.
	RetryBackoff time.Duration
	// SkipExisting skips requests whose destination is already non-empty.
	SkipExisting bool
	// ContinueOnError records failures and keeps going instead of aborting.
	ContinueOnError bool
	// Verify checks every downloaded file is NetCDF before committing it.
	Verify bool
	// Logger receives progress. May be nil.
	Logger *log.Logger
	// Collector records fetch metrics. May be nil.
	Collector *metrics.Collector
	// Ledger records every fetch outcome. May be nil.
	Ledger lode.Ledger
	// Mirror receives a copy of every fetched file. May be nil.
	Mirror lode.FileMirror
}

// FileResult is the outcome of one request.
type FileResult struct {
	Destination string   `json:"destination"`
	Tag         string   `json:"tag"`
	Year        int      `json:"year"`
	Status      string   `json:"status"`
	Bytes       int64    `json:"bytes"`
	Attempts    int      `json:"attempts"`
	Variables   []string `json:"variables,omitempty"`
	Error       string   `json:"error,omitempty"`
	Err         error    `json:"-"`
}

// BatchResult summarizes a batch.
type BatchResult struct {
	BatchID  string        `json:"batch_id"`
	Requests int           `json:"requests"`
	Fetched  int           `json:"fetched"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Files    []FileResult  `json:"files"`
	Outcome  types.Outcome `json:"outcome"`
	Duration time.Duration `json:"duration"`
}

// Fetcher executes a planned batch against a Retriever.
type Fetcher struct {
	config    Config
	retriever Retriever
	logger    *log.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New returns a Fetcher.
func New(cfg Config, r Retriever) (*Fetcher, error) {
	if r == nil {
		return nil, errors.New("retriever is required")
	}
	if cfg.Naming.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Fetcher{config: cfg, retriever: r, logger: logger, sleep: sleepCtx}, nil
}

// EnsureDestination creates dir if absent. Calling it again is a no-op.
func EnsureDestination(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrDestination, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDestination, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrDestination, dir)
	}
	return nil
}

// Plan returns the batch plan without retrieving anything.
func (f *Fetcher) Plan() ([]Planned, error) {
	return Plan(f.config.Templates, f.config.StartYear, f.config.EndYear, f.config.Naming)
}

// FetchAll plans the batch, prepares the destination and retrieves every
// request. By default requests run one at a time and the first failure
// aborts the rest. The result is always non-nil.
func (f *Fetcher) FetchAll(ctx context.Context) (*BatchResult, error) {
	started := time.Now()
	result := &BatchResult{BatchID: f.config.BatchID}

	finish := func(err error) (*BatchResult, error) {
		result.Duration = time.Since(started)
		result.Outcome = types.Outcome{Status: ClassifyError(err)}
		if err != nil {
			result.Outcome.Message = err.Error()
		} else {
			result.Outcome.Message = fmt.Sprintf("%d fetched, %d skipped", result.Fetched, result.Skipped)
		}
		return result, err
	}

	plan, err := f.Plan()
	if err != nil {
		return finish(err)
	}
	result.Requests = len(plan)

	if err := EnsureDestination(f.config.Naming.DataDir); err != nil {
		return finish(err)
	}

	f.logger.Info("starting batch", map[string]any{
		"requests": len(plan),
		"parallel": f.config.Parallel,
		"retries":  f.config.Retries,
	})

	results := make([]*FileResult, len(plan))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.Parallel)

	var mu sync.Mutex
	var failures []error

	for i, p := range plan {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Fail-fast: a request queued behind a failure is never issued.
			if gctx.Err() != nil {
				return nil
			}
			res := f.fetchOne(gctx, p)
			results[i] = res
			if res.Err == nil {
				return nil
			}
			if f.config.ContinueOnError && !lode.IsStorageError(res.Err) && ctx.Err() == nil {
				mu.Lock()
				failures = append(failures, res.Err)
				mu.Unlock()
				return nil
			}
			return res.Err
		})
	}
	groupErr := g.Wait()

	for _, r := range results {
		if r == nil {
			continue
		}
		result.Files = append(result.Files, *r)
		switch r.Status {
		case lode.FetchStatusFetched:
			result.Fetched++
		case lode.FetchStatusSkipped:
			result.Skipped++
		case lode.FetchStatusFailed:
			result.Failed++
		}
	}

	switch {
	case ctx.Err() != nil:
		return finish(fmt.Errorf("batch interrupted: %w", ctx.Err()))
	case groupErr != nil:
		return finish(groupErr)
	case len(failures) > 0:
		return finish(fmt.Errorf("%w: %d of %d requests failed: %w",
			ErrBatchIncomplete, len(failures), len(plan), errors.Join(failures...)))
	}

	f.logger.Info("batch completed", map[string]any{
		"fetched":  result.Fetched,
		"skipped":  result.Skipped,
		"duration": time.Since(started).String(),
	})
	return finish(nil)
}

func (f *Fetcher) fetchOne(ctx context.Context, p Planned) *FileResult {
	started := time.Now()
	res := &FileResult{
		Destination: p.Destination,
		Tag:         p.Request.Template.Tag,
		Year:        p.Request.Year,
	}
	f.config.Collector.IncFetchRequested()

	if f.config.SkipExisting && f.existing(p.Destination) {
		res.Status = lode.FetchStatusSkipped
		f.config.Collector.IncFetchSkipped()
		f.logger.Info("skipping existing file", map[string]any{"destination": p.Destination})
		return f.record(ctx, res, p, started)
	}

	var err error
	for attempt := 0; attempt <= f.config.Retries; attempt++ {
		if attempt > 0 {
			f.config.Collector.IncFetchRetried()
			delay := time.Duration(1<<uint(attempt-1)) * f.config.RetryBackoff
			f.logger.Warn("retrying request", map[string]any{
				"destination": p.Destination,
				"attempt":     attempt + 1,
				"delay":       delay.String(),
				"error":       err.Error(),
			})
			if serr := f.sleep(ctx, delay); serr != nil {
				err = serr
				break
			}
		}
		res.Attempts++
		err = f.retrieveOnce(ctx, p, res)
		if err == nil || !retriable(ctx, err) {
			break
		}
	}

	if err != nil {
		res.Status = lode.FetchStatusFailed
		res.Err = fmt.Errorf("%s: %w", p.Destination, err)
		res.Error = err.Error()
		f.config.Collector.IncFetchFailed()
		f.logger.Error("request failed", map[string]any{
			"destination": p.Destination,
			"attempts":    res.Attempts,
			"error":       err.Error(),
		})
		return f.record(ctx, res, p, started)
	}

	// A file that cannot be mirrored is recorded as failed; the local copy
	// stays at its destination.
	if f.config.Mirror != nil {
		if err := lode.MirrorFile(ctx, f.config.Mirror, p.Destination); err != nil {
			res.Status = lode.FetchStatusFailed
			res.Err = fmt.Errorf("%s: mirror: %w", p.Destination, err)
			res.Error = "mirror: " + err.Error()
			f.config.Collector.IncFetchFailed()
			f.logger.Error("mirror failed", map[string]any{
				"destination": p.Destination,
				"error":       err.Error(),
			})
			return f.record(ctx, res, p, started)
		}
	}

	res.Status = lode.FetchStatusFetched
	f.config.Collector.IncFetchSucceeded(res.Bytes)
	f.logger.Info("fetched file", map[string]any{
		"destination": p.Destination,
		"bytes":       res.Bytes,
	})
	return f.record(ctx, res, p, started)
}

// retrieveOnce downloads into <dest>.part and renames on success, so a
// failed attempt never leaves a file at the destination.
func (f *Fetcher) retrieveOnce(ctx context.Context, p Planned, res *FileResult) error {
	part := p.Destination + partSuffix
	_ = os.Remove(part)

	err := f.retriever.Retrieve(ctx, p.Request.Template.Dataset, p.Request.Params(), part)
	if err != nil {
		_ = os.Remove(part)
		return err
	}

	if f.config.Verify {
		info, err := Verify(part)
		if err != nil {
			_ = os.Remove(part)
			return err
		}
		res.Variables = info.Variables
	}

	if err := os.Rename(part, p.Destination); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("failed to commit download: %w", err)
	}
	st, err := os.Stat(p.Destination)
	if err != nil {
		return err
	}
	res.Bytes = st.Size()
	return nil
}

func (f *Fetcher) existing(path string) bool {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() || st.Size() == 0 {
		return false
	}
	if f.config.Verify {
		if _, err := Verify(path); err != nil {
			f.logger.Warn("existing file failed verification, refetching", map[string]any{
				"destination": path,
				"error":       err.Error(),
			})
			return false
		}
	}
	return true
}

func (f *Fetcher) record(ctx context.Context, res *FileResult, p Planned, started time.Time) *FileResult {
	if f.config.Ledger == nil {
		return res
	}
	err := f.config.Ledger.WriteFetch(context.WithoutCancel(ctx), lode.FetchRecord{
		Dataset:     p.Request.Template.Dataset,
		Tag:         res.Tag,
		Year:        res.Year,
		Destination: res.Destination,
		Status:      res.Status,
		Bytes:       res.Bytes,
		Attempts:    res.Attempts,
		Variables:   res.Variables,
		Error:       res.Error,
		Duration:    time.Since(started),
	})
	if err != nil {
		if res.Err != nil {
			res.Err = errors.Join(res.Err, err)
		} else {
			res.Err = fmt.Errorf("failed to record %s: %w", res.Destination, err)
		}
	}
	return res
}

func retriable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var p permanent
	if errors.As(err, &p) && p.Permanent() {
		return false
	}
	return true
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
