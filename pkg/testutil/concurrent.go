// Package testutil holds helpers shared by package tests.
package testutil

import (
	"sync"
	"sync/atomic"

	dErrors "signup-api/pkg/domain-errors"
)

// ConcurrentResult counts the outcomes of concurrent operations by error code.
type ConcurrentResult struct {
	Successes   int32
	Conflicts   int32
	Unavailable int32
	Errors      int32
}

// Total returns the number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Conflicts + r.Unavailable + r.Errors
}

// RunConcurrent starts all goroutines behind a shared gate so they contend as
// closely as possible, then buckets each result by its domain error code.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg                                      sync.WaitGroup
		successes, conflicts, unavailable, errs atomic.Int32
	)
	gate := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-gate
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			case dErrors.HasCode(err, dErrors.CodeUnavailable):
				unavailable.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}
	close(gate)
	wg.Wait()

	return &ConcurrentResult{
		Successes:   successes.Load(),
		Conflicts:   conflicts.Load(),
		Unavailable: unavailable.Load(),
		Errors:      errs.Load(),
	}
}
