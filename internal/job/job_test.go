package job

// ============================================================================
// Job Tree Test File
// Purpose: Verify merge order, failure aggregation, callbacks and stand-ins
// without a scheduler (jobs are executed synchronously by the test)
// ============================================================================

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// valueJob returns a fixed value or error
type valueJob struct {
	Base
	value any
	err   error
}

func (j *valueJob) Run(context.Context) (Outcome, error) {
	if j.err != nil {
		return Outcome{}, j.err
	}
	return Finished(j.value), nil
}

// fanJob splits into its parts at submission time
type fanJob struct {
	Base
	parts []Job
}

func (j *fanJob) Run(context.Context) (Outcome, error) {
	return Outcome{}, errors.New("a split job must not run")
}

func (j *fanJob) InitialSplit() []Job { return j.parts }

// pageJob returns a continuation until every page is consumed
type pageJob struct {
	Base
	pages []int
	next  int
	total int
	runs  int
}

func (j *pageJob) Run(context.Context) (Outcome, error) {
	j.runs++
	j.total += j.pages[j.next]
	j.next++
	if j.next < len(j.pages) {
		return Continue(j), nil
	}
	return Finished(j.total), nil
}

// handoffJob continues as a different job instance
type handoffJob struct {
	Base
	then Job
}

func (j *handoffJob) Run(context.Context) (Outcome, error) {
	return Continue(j.then), nil
}

type panicJob struct {
	Base
}

func (j *panicJob) Run(context.Context) (Outcome, error) {
	panic("boom")
}

// drive runs a job tree synchronously, in the given leaf order
func drive(t *testing.T, root Job, order ...int) {
	t.Helper()
	parts, err := Wire(root, root.InitialSplit())
	require.NoError(t, err)
	if len(order) == 0 {
		for i := range parts {
			order = append(order, i)
		}
	}
	for _, i := range order {
		next, _ := Execute(context.Background(), parts[i])
		for next != nil {
			next, _ = Execute(context.Background(), next)
		}
	}
}

// ============================================================================
// AggregateError
// ============================================================================

func TestAggregateErrorPreservesOrder(t *testing.T) {
	errA := errors.New("A")
	errB := errors.New("B")
	errC := errors.New("C")

	left := NewAggregateError(errA)
	right := NewAggregateError(errB, errC)
	joined := Concat(left, right)

	assert.Equal(t, []error{errA, errB, errC}, joined.Errors())
	assert.Equal(t, 3, joined.Len())
	// Inputs are not modified
	assert.Equal(t, 1, left.Len())
	assert.Equal(t, 2, right.Len())
}

func TestAggregateErrorIsAssociative(t *testing.T) {
	a := NewAggregateError(errors.New("a"))
	b := NewAggregateError(errors.New("b"))
	c := NewAggregateError(errors.New("c"))

	lhs := Concat(Concat(a, b), c)
	rhs := Concat(a, Concat(b, c))
	assert.Equal(t, lhs.Errors(), rhs.Errors())
}

func TestAggregateErrorFlattensAndSkipsNil(t *testing.T) {
	inner := NewAggregateError(errors.New("inner"))
	agg := NewAggregateError(nil, inner, errors.New("outer"))

	require.Equal(t, 2, agg.Len())
	assert.EqualError(t, agg.Errors()[0], "inner")
	assert.EqualError(t, agg.Errors()[1], "outer")
}

func TestAggregateErrorUnwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	agg := NewAggregateError(errors.New("other"), fmt.Errorf("wrapped: %w", sentinel))

	assert.ErrorIs(t, agg, sentinel)
	assert.Contains(t, agg.Error(), "2 errors occurred")
	assert.Contains(t, agg.Error(), "wrapped: sentinel")
}

// ============================================================================
// Default merge
// ============================================================================

type intBag struct{ items []int }

func (b *intBag) Extend(other any) error {
	o, ok := other.(*intBag)
	if !ok {
		return fmt.Errorf("cannot extend intBag with %T", other)
	}
	b.items = append(b.items, o.items...)
	return nil
}

func TestMergeValuesSlices(t *testing.T) {
	merged, err := MergeValues([]any{[]int{1, 2}, []int{3}, []int{}, []int{4}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, merged)
}

func TestMergeValuesExtendable(t *testing.T) {
	merged, err := MergeValues([]any{&intBag{[]int{1}}, &intBag{[]int{2, 3}}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, merged.(*intBag).items)
}

func TestMergeValuesMismatch(t *testing.T) {
	_, err := MergeValues([]any{[]int{1}, []string{"x"}})
	assert.ErrorIs(t, err, ErrNotMergeable)

	_, err = MergeValues([]any{1, 2})
	assert.ErrorIs(t, err, ErrNotMergeable)
}

// ============================================================================
// Tree protocol
// ============================================================================

func TestChildrenMergedInIndexOrder(t *testing.T) {
	root := &fanJob{parts: []Job{
		&valueJob{value: []int{0}},
		&valueJob{value: []int{1}},
		&valueJob{value: []int{2}},
		&valueJob{value: []int{3}},
	}}

	// Children complete in reverse order
	drive(t, root, 3, 2, 1, 0)

	result, err := root.Result()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, result)
}

func TestFailedChildrenAreConcatenated(t *testing.T) {
	errA := errors.New("A")
	errB := errors.New("B")
	root := &fanJob{parts: []Job{
		&valueJob{value: []int{0}},
		&valueJob{err: errA},
		&valueJob{value: []int{2}},
		&valueJob{err: errB},
	}}

	// B finishes before A
	drive(t, root, 3, 2, 1, 0)

	result, err := root.Result()
	assert.Nil(t, result)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, []error{errA, errB}, agg.Errors())
}

func TestChildSlotHoldsSentinel(t *testing.T) {
	child := &valueJob{value: []int{7}}
	root := &fanJob{parts: []Job{child, &valueJob{value: []int{8}}}}

	drive(t, root)

	v, err := child.Result()
	require.NoError(t, err)
	assert.Equal(t, ChildFinished, v)
	assert.Same(t, root, child.Parent())
	assert.Equal(t, 0, child.ChildIndex())
	assert.True(t, root.IsSplit())
}

func TestSinglePartSplitIsNotWired(t *testing.T) {
	j := &valueJob{value: 1}

	parts, err := Wire(j, []Job{j})
	require.NoError(t, err)
	assert.Equal(t, []Job{j}, parts)
	assert.False(t, j.IsSplit())

	parts, err = Wire(j, nil)
	require.NoError(t, err)
	assert.Equal(t, []Job{j}, parts)
	assert.False(t, j.IsSplit())
}

func TestSinglePartReplacementStandsIn(t *testing.T) {
	root := &valueJob{value: 1}
	root.SetPriority(5)
	repl := &valueJob{value: 2}

	parts, err := Wire(root, []Job{repl})
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.False(t, root.IsSplit())
	assert.Equal(t, int64(5), repl.Priority())

	_, err = Execute(context.Background(), repl)
	require.NoError(t, err)

	v, err := root.Result()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestSplitContainingSelfIsRejected(t *testing.T) {
	j := &valueJob{value: 1}
	_, err := Wire(j, []Job{j, &valueJob{value: 2}})
	assert.ErrorIs(t, err, ErrSelfInSplit)
}

func TestNestedSplitCascades(t *testing.T) {
	inner := &fanJob{parts: []Job{&valueJob{value: []int{1}}, &valueJob{value: []int{2}}}}
	root := &fanJob{parts: []Job{&valueJob{value: []int{0}}, inner, &valueJob{value: []int{3}}}}

	parts, err := Wire(root, root.InitialSplit())
	require.NoError(t, err)
	innerParts, err := Wire(inner, inner.InitialSplit())
	require.NoError(t, err)

	for _, p := range []Job{parts[2], innerParts[1], parts[0], innerParts[0]} {
		_, err := Execute(context.Background(), p)
		require.NoError(t, err)
	}

	v, err := root.Result()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, v)
}

func TestMergeErrorFailsParent(t *testing.T) {
	root := &fanJob{parts: []Job{&valueJob{value: 1}, &valueJob{value: "x"}}}
	drive(t, root)

	_, err := root.Result()
	assert.ErrorIs(t, err, ErrNotMergeable)
}

// ============================================================================
// Continuations
// ============================================================================

func TestContinuationSumsPages(t *testing.T) {
	j := &pageJob{pages: []int{1, 2, 3, 4}}

	next, err := Execute(context.Background(), j)
	require.NoError(t, err)
	hops := 0
	for next != nil {
		hops++
		next, err = Execute(context.Background(), next)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, hops)
	assert.Equal(t, 4, j.runs)
	total, err := ResultAs[int](j)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func TestContinuationWithNewInstanceForwardsToRoot(t *testing.T) {
	final := &valueJob{value: "done"}
	root := &handoffJob{then: final}
	root.SetPriority(3)

	next, err := Execute(context.Background(), root)
	require.NoError(t, err)
	require.Same(t, final, next)
	assert.Equal(t, int64(3), final.Priority())
	assert.False(t, root.Done())

	_, err = Execute(context.Background(), next)
	require.NoError(t, err)

	v, err := root.Result()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestContinuationInsideTreeReportsAtSameIndex(t *testing.T) {
	final := &valueJob{value: []int{1}}
	root := &fanJob{parts: []Job{&valueJob{value: []int{0}}, &handoffJob{then: final}}}

	parts, err := Wire(root, root.InitialSplit())
	require.NoError(t, err)

	next, err := Execute(context.Background(), parts[1])
	require.NoError(t, err)
	_, err = Execute(context.Background(), next)
	require.NoError(t, err)
	_, err = Execute(context.Background(), parts[0])
	require.NoError(t, err)

	v, err := root.Result()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, v)
}

// ============================================================================
// Failures and callbacks
// ============================================================================

func TestRunPanicBecomesFailure(t *testing.T) {
	j := &panicJob{}
	_, err := Execute(context.Background(), j)

	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "boom", perr.Value)

	_, err = j.Result()
	require.ErrorAs(t, err, &perr)
}

func TestCallbacksTransformInOrder(t *testing.T) {
	j := &valueJob{value: 2}
	j.AddCallback(func(v any) (any, error) { return v.(int) * 10, nil })
	j.AddCallback(func(v any) (any, error) { return nil, nil }) // keeps the value
	j.AddCallback(func(v any) (any, error) { return v.(int) + 1, nil })

	_, err := Execute(context.Background(), j)
	require.NoError(t, err)

	v, err := ResultAs[int](j)
	require.NoError(t, err)
	assert.Equal(t, 21, v)
}

func TestCallbackFailureStartsAggregate(t *testing.T) {
	cbErr := errors.New("callback failed")
	var seen []any

	j := &valueJob{value: 1}
	j.AddCallback(func(v any) (any, error) { return nil, cbErr })
	j.AddCallback(func(v any) (any, error) {
		seen = append(seen, v)
		return nil, nil
	})

	_, err := Execute(context.Background(), j)
	require.NoError(t, err)

	_, err = j.Result()
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, []error{cbErr}, agg.Errors())
	// Later callbacks receive the aggregated failure
	require.Len(t, seen, 1)
	assert.IsType(t, &AggregateError{}, seen[0])
}

func TestCallbackFailureAppendsToJobFailure(t *testing.T) {
	runErr := errors.New("run failed")
	cbErr := errors.New("callback failed")

	j := &valueJob{err: runErr}
	j.AddCallback(func(v any) (any, error) { return nil, cbErr })

	_, err := Execute(context.Background(), j)
	require.ErrorIs(t, err, runErr)

	_, err = j.Result()
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, []error{runErr, cbErr}, agg.Errors())
}

func TestCallbackPanicIsCaptured(t *testing.T) {
	j := &valueJob{value: 1}
	j.AddCallback(func(v any) (any, error) { panic("callback panic") })

	_, err := Execute(context.Background(), j)
	require.NoError(t, err)

	_, err = j.Result()
	var perr *PanicError
	assert.ErrorAs(t, err, &perr)
}

func TestLateCallbackRunsImmediately(t *testing.T) {
	j := &valueJob{value: 1}
	_, err := Execute(context.Background(), j)
	require.NoError(t, err)

	called := false
	j.AddCallback(func(v any) (any, error) {
		called = true
		return v.(int) + 41, nil
	})

	assert.True(t, called)
	v, err := j.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestWaitHonoursContext(t *testing.T) {
	j := &valueJob{value: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := j.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = Execute(context.Background(), j)
	require.NoError(t, err)
	v, err := j.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestResultAsTypeMismatch(t *testing.T) {
	j := &valueJob{value: "text"}
	_, err := Execute(context.Background(), j)
	require.NoError(t, err)

	_, err = ResultAs[int](j)
	var terr *ResultTypeError
	assert.ErrorAs(t, err, &terr)
}

func TestIDIsStable(t *testing.T) {
	j := &valueJob{}
	id := j.ID()
	assert.NotEmpty(t, id)
	assert.Equal(t, id, j.ID())
	assert.NotEqual(t, id, (&valueJob{}).ID())
}
