package job

import (
	"context"
	"fmt"
)

// ChildFinished is the value left in a child's own result slot once its real
// value has been handed to the parent. Callers hold root handles and never
// observe it.
var ChildFinished = childFinished{}

type childFinished struct{}

func (childFinished) String() string { return "child job finished" }

// slot is one child position of a split job: Pending(job) until the child
// reports, then Done(value).
type slot struct {
	pending Job
	value   any
	done    bool
}

// Wire records parts as the children of j. A split into one part never makes
// j a parent: when that part is j itself nothing changes, otherwise the part
// becomes a stand-in for j. Wire returns the jobs to queue.
func Wire(j Job, parts []Job) ([]Job, error) {
	switch len(parts) {
	case 0:
		return []Job{j}, nil
	case 1:
		if parts[0] != j {
			StandIn(j, parts[0])
		}
		return parts, nil
	}

	for _, p := range parts {
		if p == j {
			return nil, fmt.Errorf("%w (job %s)", ErrSelfInSplit, j.ID())
		}
	}

	b := j.jobBase()
	b.mergeMu.Lock()
	b.children = make([]slot, len(parts))
	for i, p := range parts {
		b.children[i] = slot{pending: p}
		pb := p.jobBase()
		pb.parent = j
		pb.index = i
		pb.forward = nil
	}
	b.mergeMu.Unlock()
	return parts, nil
}

// StandIn makes repl report its terminal value wherever orig would have:
// into orig's parent at orig's index, or into orig itself when orig is a root.
func StandIn(orig, repl Job) {
	ob, rb := orig.jobBase(), repl.jobBase()
	if rb.Priority() == 0 {
		rb.SetPriority(ob.Priority())
	}
	switch {
	case ob.parent != nil:
		rb.parent = ob.parent
		rb.index = ob.index
		pb := ob.parent.jobBase()
		pb.mergeMu.Lock()
		if rb.index < len(pb.children) && !pb.children[rb.index].done {
			pb.children[rb.index].pending = repl
		}
		pb.mergeMu.Unlock()
	case ob.forward != nil:
		rb.forward = ob.forward
	default:
		rb.forward = orig
	}
}

// Store sets the terminal value of j and cascades it up the tree. On a root
// the callbacks run first, then waiters are released.
func Store(j Job, value any) {
	b := j.jobBase()
	switch {
	case b.parent != nil:
		b.mu.Lock()
		b.publishLocked(ChildFinished)
		b.mu.Unlock()
		mergeChild(b.parent, b.index, value)
	case b.forward != nil:
		b.mu.Lock()
		b.publishLocked(ChildFinished)
		b.mu.Unlock()
		Store(b.forward, value)
	default:
		b.mu.Lock()
		if !b.finished {
			b.publishLocked(b.runCallbacks(value))
		}
		b.mu.Unlock()
	}
}

// mergeChild records a child's value and, once every slot is done, stores
// the parent's merged value (or the concatenation of its children's failures).
func mergeChild(parent Job, index int, value any) {
	pb := parent.jobBase()

	pb.mergeMu.Lock()
	pb.children[index] = slot{value: value, done: true}
	for _, s := range pb.children {
		if !s.done {
			pb.mergeMu.Unlock()
			return
		}
	}
	values := make([]any, len(pb.children))
	var failed []*AggregateError
	for i, s := range pb.children {
		values[i] = s.value
		if agg, ok := s.value.(*AggregateError); ok {
			failed = append(failed, agg)
		}
	}
	pb.mergeMu.Unlock()

	if len(failed) > 0 {
		Store(parent, Concat(failed...))
		return
	}
	Store(parent, merge(parent, values))
}

func merge(parent Job, values []any) (result any) {
	defer func() {
		if r := recover(); r != nil {
			result = NewAggregateError(newPanicError(parent.ID(), r))
		}
	}()
	merged, err := parent.Merge(values)
	if err != nil {
		return NewAggregateError(fmt.Errorf("merge job %s: %w", parent.ID(), err))
	}
	return merged
}

// Execute runs a leaf once. A continuation is returned for re-queueing; any
// other outcome is stored. The returned error is the leaf failure, if any,
// and has already been stored as the job's result.
func Execute(ctx context.Context, j Job) (Job, error) {
	out, err := run(ctx, j)
	if err != nil {
		Store(j, NewAggregateError(err))
		return nil, err
	}
	if next, ok := out.Continuation(); ok {
		if next != j {
			StandIn(j, next)
		}
		return next, nil
	}
	Store(j, out.Value())
	return nil, nil
}

func run(ctx context.Context, j Job) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(j.ID(), r)
		}
	}()
	return j.Run(ctx)
}
