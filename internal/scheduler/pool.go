// Package scheduler runs the engine's periodic jobs and fans their work
// items out over a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultWorkers bounds per-pass concurrency.
const DefaultWorkers = 10

// ItemError ties a failure to the item index it came from.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string { return fmt.Sprintf("item %d: %v", e.Index, e.Err) }
func (e ItemError) Unwrap() error { return e.Err }

// Report summarizes one pass over a batch.
type Report struct {
	Total     int
	Succeeded int
	Failed    int
	Errors    []ItemError
	Duration  time.Duration
}

// Err joins the item errors, or nil.
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Merge folds o into r.
func (r *Report) Merge(o Report) {
	r.Total += o.Total
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
	r.Errors = append(r.Errors, o.Errors...)
	r.Duration += o.Duration
}

// Run calls fn for every item with at most workers in flight. A panicking
// item counts as failed and does not affect the others. Items not started
// before ctx is done fail with the context error.
func Run[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T) error) Report {
	start := time.Now()
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(items) {
		workers = len(items)
	}

	var (
		mu     sync.Mutex
		report = Report{Total: len(items)}
		wg     sync.WaitGroup
		queue  = make(chan int)
	)
	record := func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, ItemError{Index: i, Err: err})
			return
		}
		report.Succeeded++
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				record(i, runItem(ctx, items[i], fn))
			}
		}()
	}

	next := 0
feed:
	for ; next < len(items); next++ {
		select {
		case <-ctx.Done():
			break feed
		case queue <- next:
		}
	}
	close(queue)
	wg.Wait()

	for i := next; i < len(items); i++ {
		record(i, ctx.Err())
	}
	report.Duration = time.Since(start)
	return report
}

func runItem[T any](ctx context.Context, item T, fn func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx, item)
}
