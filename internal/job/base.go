package job

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Base carries the tree and result bookkeeping shared by every job. Embed it
// in a concrete job type and use the job through a pointer; Base must not be
// copied once the job has been submitted.
type Base struct {
	idOnce   sync.Once
	id       string
	priority atomic.Int64

	// Tree links, written by Wire/StandIn before the job is queued.
	parent  Job
	index   int
	forward Job

	// mergeMu guards children; it is scoped to this job only.
	mergeMu  sync.Mutex
	children []slot

	// mu guards the result slot and the callback list.
	mu        sync.Mutex
	callbacks []Callback
	done      chan struct{}
	value     any
	finished  bool
}

// ID returns a stable identifier used in logs and fault records.
func (b *Base) ID() string {
	b.idOnce.Do(func() { b.id = uuid.NewString() })
	return b.id
}

// Priority returns the scheduling priority; lower runs first. Zero means the
// job has not been submitted yet.
func (b *Base) Priority() int64 { return b.priority.Load() }

// SetPriority overrides the scheduling priority.
func (b *Base) SetPriority(priority int64) { b.priority.Store(priority) }

// Parent returns the job this one was split from, if any.
func (b *Base) Parent() Job { return b.parent }

// ChildIndex returns the position of this job among its siblings.
func (b *Base) ChildIndex() int { return b.index }

// IsSplit reports whether the job was split into children.
func (b *Base) IsSplit() bool {
	b.mergeMu.Lock()
	defer b.mergeMu.Unlock()
	return b.children != nil
}

func (b *Base) Splittable() bool { return false }

func (b *Base) Split(int) []Job { return nil }

func (b *Base) InitialSplit() []Job { return nil }

// Merge extends the first child's value with the others, in order.
func (b *Base) Merge(children []any) (any, error) {
	return MergeValues(children)
}

// AddCallback appends cb to the callback chain. Callbacks run in
// registration order when a root job's result is stored; a callback added
// after that point runs immediately, on the calling goroutine.
func (b *Base) AddCallback(cb Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, cb)
	if b.finished {
		b.value = b.runCallbacks(b.value)
	}
}

// Result blocks until the job completes. A failed job returns its
// *AggregateError as the error.
func (b *Base) Result() (any, error) {
	<-b.doneCh()
	return b.load()
}

// Wait is Result bounded by ctx. Giving up does not stop the underlying work.
func (b *Base) Wait(ctx context.Context) (any, error) {
	select {
	case <-b.doneCh():
		return b.load()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports whether a terminal value is available.
func (b *Base) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished
}

func (b *Base) jobBase() *Base { return b }

func (b *Base) load() (any, error) {
	b.mu.Lock()
	v := b.value
	b.mu.Unlock()
	if agg, ok := v.(*AggregateError); ok {
		return nil, agg
	}
	return v, nil
}

func (b *Base) doneCh() chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done == nil {
		b.done = make(chan struct{})
	}
	return b.done
}

// publishLocked stores the terminal value once. b.mu must be held.
func (b *Base) publishLocked(value any) bool {
	if b.finished {
		return false
	}
	if b.done == nil {
		b.done = make(chan struct{})
	}
	b.value = value
	b.finished = true
	close(b.done)
	return true
}

// runCallbacks threads result through the chain and clears it. b.mu must be held.
func (b *Base) runCallbacks(result any) any {
	for _, cb := range b.callbacks {
		ret, err := b.invoke(cb, result)
		if err != nil {
			prev, _ := result.(*AggregateError)
			result = prev.Append(err)
			continue
		}
		if ret != nil {
			result = ret
		}
	}
	b.callbacks = nil
	return result
}

func (b *Base) invoke(cb Callback, result any) (ret any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(b.ID(), r)
		}
	}()
	return cb(result)
}

// MergeValues is the default merge: Extendable values are extended in place,
// slices of one type are concatenated into a new slice.
func MergeValues(values []any) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	acc := values[0]
	if ext, ok := acc.(Extendable); ok {
		for _, v := range values[1:] {
			if err := ext.Extend(v); err != nil {
				return nil, err
			}
		}
		return acc, nil
	}

	rv := reflect.ValueOf(acc)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: %T", ErrNotMergeable, acc)
	}
	out := reflect.MakeSlice(rv.Type(), 0, rv.Len()*len(values))
	for _, v := range values {
		cv := reflect.ValueOf(v)
		if !cv.IsValid() || cv.Type() != rv.Type() {
			return nil, fmt.Errorf("%w: %T and %T", ErrNotMergeable, acc, v)
		}
		out = reflect.AppendSlice(out, cv)
	}
	return out.Interface(), nil
}
