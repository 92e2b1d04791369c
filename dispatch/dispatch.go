// Package dispatch runs a work function over a batch of items on a bounded
// worker pool, skipping items whose key was already submitted.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrPanic wraps a panic recovered from a work function.
var ErrPanic = errors.New("dispatch: work panicked")

// DefaultWorkers is used when Options.Workers is not positive.
const DefaultWorkers = 2

// Tracker remembers the keys submitted during a run.
type Tracker interface {
	// Add records key and reports whether it was not seen before.
	Add(key string) bool
	Contains(key string) bool
	Len() int
}

// SeenSet is an in-memory Tracker. It may be shared by nested runs.
type SeenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{keys: make(map[string]struct{})}
}

func (s *SeenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *SeenSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Options configures a run.
type Options struct {
	Workers int
	// Name labels log lines of this run.
	Name   string
	Logger *slog.Logger
	// Seen defaults to a fresh SeenSet.
	Seen Tracker
}

// Outcome is the result of one item.
type Outcome[T, R any] struct {
	Item     T
	Key      string
	Value    R
	Err      error
	Duration time.Duration
}

// Report summarises a run. Succeeded and Failed are in completion order.
type Report[T, R any] struct {
	Succeeded []Outcome[T, R]
	Failed    []Outcome[T, R]
	Submitted int
	// Skipped counts items whose key had already been submitted, including
	// duplicates left over when submission stopped.
	Skipped int
	// Unsubmitted counts distinct unseen keys dropped because ctx was
	// cancelled.
	Unsubmitted int
}

// Values returns the successful results in completion order.
func (r *Report[T, R]) Values() []R {
	out := make([]R, 0, len(r.Succeeded))
	for _, o := range r.Succeeded {
		out = append(out, o.Value)
	}
	return out
}

// FailedKeys returns the keys of failed items.
func (r *Report[T, R]) FailedKeys() []string {
	out := make([]string, 0, len(r.Failed))
	for _, o := range r.Failed {
		out = append(out, o.Key)
	}
	return out
}

// Run submits every item with an unseen key to a pool of opts.Workers and
// collects outcomes as they complete. A failing or panicking item is logged
// and never affects its siblings. Cancelling ctx stops further submission;
// items already running finish with a context that is not cancelled.
//
// onResult, if set, is invoked for every outcome on the calling goroutine.
func Run[T, R any](
	ctx context.Context,
	opts Options,
	items []T,
	key func(T) string,
	work func(context.Context, T) (R, error),
	onResult func(Outcome[T, R]),
) *Report[T, R] {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dispatch", "run", opts.Name)
	seen := opts.Seen
	if seen == nil {
		seen = NewSeenSet()
	}

	report := &Report[T, R]{}
	results := make(chan Outcome[T, R])
	workCtx := context.WithoutCancel(ctx)

	// The submitter owns the counters until results is closed.
	go func() {
		var g errgroup.Group
		g.SetLimit(workers)
		slots := make(chan struct{}, workers)
		defer func() {
			_ = g.Wait()
			close(results)
		}()

		for i, item := range items {
			if !acquire(ctx, slots) {
				unsubmitted, skipped := remaining(items[i:], key, seen)
				report.Unsubmitted = unsubmitted
				report.Skipped += skipped
				logger.Warn("submission stopped",
					slog.Int("unsubmitted", report.Unsubmitted),
					slog.Int("skipped", skipped),
					slog.Any("error", ctx.Err()),
				)
				return
			}

			k := key(item)
			if !seen.Add(k) {
				<-slots
				report.Skipped++
				logger.Debug("skipping duplicate", slog.String("key", k))
				continue
			}
			report.Submitted++

			g.Go(func() error {
				results <- execute(workCtx, item, k, work)
				<-slots
				return nil
			})
		}
	}()

	for out := range results {
		if onResult != nil {
			onResult(out)
		}
		if out.Err != nil {
			logger.Warn("item failed",
				slog.String("key", out.Key),
				slog.Duration("duration", out.Duration),
				slog.Any("error", out.Err),
			)
			report.Failed = append(report.Failed, out)
			continue
		}
		report.Succeeded = append(report.Succeeded, out)
	}

	logger.Debug("run finished",
		slog.Int("submitted", report.Submitted),
		slog.Int("succeeded", len(report.Succeeded)),
		slog.Int("failed", len(report.Failed)),
		slog.Int("skipped", report.Skipped),
	)
	return report
}

// remaining splits the items left after submission stopped into distinct
// keys never submitted and duplicates. The tracker is not modified.
func remaining[T any](items []T, key func(T) string, seen Tracker) (unsubmitted, skipped int) {
	pending := make(map[string]struct{}, len(items))
	for _, item := range items {
		k := key(item)
		if _, dup := pending[k]; dup || seen.Contains(k) {
			skipped++
			continue
		}
		pending[k] = struct{}{}
		unsubmitted++
	}
	return unsubmitted, skipped
}

// acquire takes a worker slot unless ctx is done first.
func acquire(ctx context.Context, slots chan struct{}) bool {
	select {
	case slots <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	if ctx.Err() != nil {
		<-slots
		return false
	}
	return true
}

func execute[T, R any](ctx context.Context, item T, key string, work func(context.Context, T) (R, error)) (out Outcome[T, R]) {
	out.Item = item
	out.Key = key
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		out.Duration = time.Since(start)
	}()
	out.Value, out.Err = work(ctx, item)
	return out
}
