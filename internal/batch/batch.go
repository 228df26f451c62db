// Package batch runs independent jobs over a bounded worker pool.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// ItemError is the failure of one job.
type ItemError struct {
	ID  string
	Err error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.ID, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// Errors collects per-job failures.
type Errors struct {
	Errors []ItemError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *Errors) Add(id string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ItemError{ID: id, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *Errors) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Error implements the error interface.
func (e *Errors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d of the batch failed (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap exposes every job error to errors.Is and errors.As.
func (e *Errors) Unwrap() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.Errors))
	for i, ie := range e.Errors {
		out[i] = ie
	}
	return out
}

// DefaultWorkers is the worker count used when none is configured.
func DefaultWorkers() int {
	return runtime.NumCPU()
}

// ProgressFunc is called after each job finishes, successfully or not.
type ProgressFunc func()

// Result pairs a job id with its output.
type Result[T any] struct {
	ID    string
	Value T
}

// Map runs fn for every id with at most workers jobs in flight. Results and
// errors are returned sorted by id. Jobs not yet started when ctx is cancelled
// fail with the context error.
func Map[T any](ctx context.Context, ids []string, workers int, fn func(context.Context, string) (T, error), onProgress ProgressFunc) ([]Result[T], *Errors) {
	if len(ids) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	results := make([]Result[T], 0, len(ids))
	errs := &Errors{}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)
	for _, id := range ids {
		p.Go(func(ctx context.Context) error {
			defer func() {
				if onProgress != nil {
					onProgress()
				}
			}()
			if err := ctx.Err(); err != nil {
				errs.Add(id, err)
				return nil
			}

			v, err := fn(ctx, id)
			if err != nil {
				errs.Add(id, err)
				return nil // one failed job never stops the others
			}

			mu.Lock()
			results = append(results, Result[T]{ID: id, Value: v})
			mu.Unlock()
			return nil
		})
	}
	_ = p.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	sort.Slice(errs.Errors, func(i, j int) bool { return errs.Errors[i].ID < errs.Errors[j].ID })
	if !errs.HasErrors() {
		return results, nil
	}
	return results, errs
}
