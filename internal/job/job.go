// ============================================================================
// Adaptive Queue - Job Abstraction
// ============================================================================
//
// Package: internal/job
// File: job.go
// Purpose: The unit of work driven by the scheduler in internal/worker
//
// A Job either runs directly (a leaf) or is split into child jobs whose
// results are merged back into the parent once every child has reported:
//
//   root (handle held by the caller)
//    ├── child 0 ── Run() ──┐
//    ├── child 1 ── Run() ──┼── Merge(children) ── callbacks ── Result()
//    └── child 2 ── Run() ──┘
//
// Concrete jobs embed Base, which supplies the bookkeeping and a default for
// every optional operation. Only Run has to be written.
//
// Run returns an Outcome:
//   - Finished(value): the terminal value of this job
//   - Continue(job):   more of the same logical operation remains (for
//                      example the next page of a paginated fetch), the job
//                      is re-queued instead of finalized
//
// A failure returned (or panicked) from Run is stored as a single-element
// *AggregateError. Failures of siblings are concatenated in child order when
// the parent merges, successful siblings are discarded.
//
// ============================================================================

package job

import (
	"context"
	"reflect"
)

// Job is one node of a work tree.
type Job interface {
	// Run executes the work once. Only leaves run.
	Run(ctx context.Context) (Outcome, error)

	// Splittable reports whether Split is currently meaningful.
	Splittable() bool

	// Split returns between 1 and nparts jobs whose combined work equals the
	// remaining work of this job. Returning the job itself (or nil) declines.
	Split(nparts int) []Job

	// InitialSplit fans a request out into independent units once, at
	// submission time. Nil means the job is queued as is.
	InitialSplit() []Job

	// Merge combines the terminal values of the children, in child-index order.
	Merge(children []any) (any, error)

	// AddCallback registers a post-processing step for the result.
	AddCallback(cb Callback)

	// Result blocks until the terminal value is available.
	Result() (any, error)

	// Wait is Result bounded by ctx.
	Wait(ctx context.Context) (any, error)

	ID() string
	Priority() int64
	SetPriority(priority int64)

	jobBase() *Base
}

// Callback post-processes a terminal value. A non-nil return replaces the
// value, an error is appended to the failures seen so far.
type Callback func(result any) (any, error)

// Extendable is implemented by result values that merge by appending.
type Extendable interface {
	Extend(other any) error
}

// Outcome is what a single Run produced.
type Outcome struct {
	value any
	next  Job
}

// Finished wraps a terminal value.
func Finished(value any) Outcome {
	return Outcome{value: value}
}

// Continue asks the scheduler to queue next instead of storing a result.
func Continue(next Job) Outcome {
	return Outcome{next: next}
}

// Continuation returns the job to re-queue, if any.
func (o Outcome) Continuation() (Job, bool) {
	return o.next, o.next != nil
}

// Value returns the terminal value of a finished outcome.
func (o Outcome) Value() any {
	return o.value
}

// ResultAs waits for j and asserts the terminal value to T.
func ResultAs[T any](j Job) (T, error) {
	var zero T
	v, err := j.Result()
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, &ResultTypeError{Got: v, Want: reflect.TypeOf((*T)(nil)).Elem()}
	}
	return t, nil
}
