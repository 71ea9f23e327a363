// Package workflow implements the durable orchestration layer: long-running
// runs whose activity results are journaled step by step, so a crashed run can
// be resumed and replay past the work it already finished.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aksrustagi/PULL-backend-sub010/config"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
)

// RetryPolicy controls exponential backoff for a failing activity.
type RetryPolicy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaxInterval        time.Duration
	MaxAttempts        int
}

// PolicyFromConfig converts a config retry profile into a runtime policy.
func PolicyFromConfig(rc config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		InitialInterval:    time.Duration(rc.InitialIntervalMS) * time.Millisecond,
		BackoffCoefficient: rc.BackoffCoefficient,
		MaxInterval:        time.Duration(rc.MaxIntervalMS) * time.Millisecond,
		MaxAttempts:        rc.MaxAttempts,
	}
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so Execute fails immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Run is one durable workflow execution. Steps executed through it are
// journaled under (run ID, step key); re-running the same run ID replays
// recorded results instead of redoing the work.
type Run struct {
	ID    string
	store storage.DataStore

	mu        sync.Mutex
	cancelled bool
}

// NewRun creates (or resumes) a run with the given ID.
func NewRun(id string, store storage.DataStore) *Run {
	return &Run{ID: id, store: store}
}

// Cancel flags the run so cancellation-aware steps stop at the next
// checkpoint. In-flight activities are not interrupted.
func (r *Run) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

// Cancelled reports whether a cancel request has been received.
func (r *Run) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Execute runs one journaled step. If the step already has a recorded result
// it is replayed without calling fn. Otherwise fn runs under the retry policy
// and its result is persisted before being returned, so a crash between the
// persist and the next step replays cleanly.
func Execute[T any](ctx context.Context, r *Run, stepKey string, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	recorded, found, err := r.store.GetWorkflowStep(ctx, r.ID, stepKey)
	if err != nil {
		return zero, fmt.Errorf("read step %s: %w", stepKey, err)
	}
	if found {
		var result T
		if err := json.Unmarshal(recorded, &result); err != nil {
			return zero, fmt.Errorf("replay step %s: %w", stepKey, err)
		}
		return result, nil
	}

	result, err := withRetry(ctx, r.ID, stepKey, policy, fn)
	if err != nil {
		return zero, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("marshal step %s result: %w", stepKey, err)
	}
	if err := r.store.RecordWorkflowStep(ctx, r.ID, stepKey, data); err != nil {
		return zero, fmt.Errorf("record step %s: %w", stepKey, err)
	}
	return result, nil
}

// Do is Execute for steps whose only output is success or failure.
func Do(ctx context.Context, r *Run, stepKey string, policy RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := Execute(ctx, r, stepKey, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func withRetry[T any](ctx context.Context, runID, stepKey string, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	interval := policy.InitialInterval

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, fmt.Errorf("step %s: %w", stepKey, perm.err)
		}
		if attempt == attempts {
			break
		}

		log.Printf("[Workflow] run %s step %s attempt %d/%d failed: %v", runID, stepKey, attempt, attempts, err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(interval):
		}

		interval = time.Duration(float64(interval) * policy.BackoffCoefficient)
		if policy.MaxInterval > 0 && interval > policy.MaxInterval {
			interval = policy.MaxInterval
		}
	}
	return zero, fmt.Errorf("step %s exhausted %d attempts: %w", stepKey, attempts, lastErr)
}

// Sleep pauses the run, returning early if the context is cancelled.
func (r *Run) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ItemError pairs a failed batch item's index with its error.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

// ForEachBatch processes items with at most limit running concurrently. A
// failing item never aborts its siblings; all failures are collected and
// returned together.
func ForEachBatch[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, index int, item T) error) []ItemError {
	if limit <= 0 {
		limit = 1
	}

	var mu sync.Mutex
	var failures []ItemError

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := fn(gctx, i, item); err != nil {
				mu.Lock()
				failures = append(failures, ItemError{Index: i, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	// Goroutines never return errors, so Wait only synchronizes.
	_ = g.Wait()
	return failures
}
