package job

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrNotMergeable is returned by the default Merge when child values are
	// neither Extendable nor slices of one type.
	ErrNotMergeable = errors.New("job results are not mergeable")
	// ErrSelfInSplit is returned when a multi-part split contains the job itself.
	ErrSelfInSplit = errors.New("split returned the splitting job among several parts")
)

// AggregateError is an ordered collection of failures. It is stored as the
// terminal value of any job whose subtree failed, and is what Result returns
// as its error.
type AggregateError struct {
	merr *multierror.Error
}

// NewAggregateError collects errs in order. Nested AggregateErrors are
// flattened, nil errors are skipped.
func NewAggregateError(errs ...error) *AggregateError {
	var e *AggregateError
	return e.Append(errs...)
}

// Append returns a new AggregateError holding e's failures followed by errs.
// e itself is not modified and may be nil.
func (e *AggregateError) Append(errs ...error) *AggregateError {
	merr := &multierror.Error{ErrorFormat: formatErrors}
	if e != nil && e.merr != nil {
		merr.Errors = append(merr.Errors, e.merr.Errors...)
	}
	for _, err := range errs {
		if agg, ok := err.(*AggregateError); ok {
			if agg != nil {
				merr = multierror.Append(merr, agg.merr)
			}
			continue
		}
		merr = multierror.Append(merr, err)
	}
	return &AggregateError{merr: merr}
}

// Concat joins several aggregated failures, preserving order.
func Concat(errs ...*AggregateError) *AggregateError {
	var out *AggregateError
	for _, e := range errs {
		out = out.Append(e)
	}
	if out == nil {
		out = NewAggregateError()
	}
	return out
}

// Errors returns the underlying failures in order of occurrence.
func (e *AggregateError) Errors() []error {
	if e == nil || e.merr == nil {
		return nil
	}
	return e.merr.WrappedErrors()
}

// Len returns the number of collected failures.
func (e *AggregateError) Len() int {
	return len(e.Errors())
}

func (e *AggregateError) Error() string {
	if e == nil || e.merr == nil {
		return formatErrors(nil)
	}
	return e.merr.Error()
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors()
}

func formatErrors(es []error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors occurred:", len(es))
	for _, err := range es {
		b.WriteString("\n\t* ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// PanicError is a panic recovered from user code (Run, Merge or a callback).
type PanicError struct {
	JobID string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in job %s: %v", e.JobID, e.Value)
}

func newPanicError(jobID string, v any) *PanicError {
	return &PanicError{JobID: jobID, Value: v, Stack: debug.Stack()}
}

// ResultTypeError is returned by ResultAs when the value has another type.
type ResultTypeError struct {
	Got  any
	Want reflect.Type
}

func (e *ResultTypeError) Error() string {
	return fmt.Sprintf("job result is %T, not %v", e.Got, e.Want)
}
