// ============================================================================
// Adaptive Queue Worker - Job Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: One long-lived goroutine pulling from the shared priority queue
//
// Worker Loop (repeated until the queue is stopped):
//   1. Non-blocking dequeue; on success mark this worker busy
//   2. On an empty queue mark idle and block; once a job arrives mark busy
//      and recompute the "any worker idle" flag
//   3. Re-split: if a worker is idle, the job is splittable and the queue is
//      empty right now, split into (idle workers + 1) parts and re-submit
//      them with the job's priority instead of running it. A split into one
//      part runs that part.
//   4. Execute: run the leaf and store its result, or re-queue the
//      continuation it returned
//   5. A panic escaping this loop (not a job failure) is recorded against the
//      worker, which then exits
//
// ============================================================================

package worker

import (
	"runtime/debug"
	"time"

	"github.com/ChuLiYu/adaptive-queue/internal/job"
)

// Worker represents a work execution unit
type Worker struct {
	id    int       // Worker index, also its slot in the idle and fault vectors
	queue *JobQueue // Owning scheduler
}

// newWorker creates a new Worker instance
func newWorker(id int, q *JobQueue) *Worker {
	return &Worker{id: id, queue: q}
}

// Run is the main loop of Worker. It returns when the queue is stopped or
// after recording an internal fault.
func (w *Worker) Run() {
	var current job.Job
	defer func() {
		if r := recover(); r != nil {
			fault := &FaultError{Worker: w.id, Value: r, Stack: debug.Stack()}
			if current != nil {
				fault.JobID = current.ID()
			}
			w.queue.recordFault(fault)
		}
	}()

	for {
		j, ok := w.next()
		if !ok {
			return
		}
		current = j
		w.handle(j)
		current = nil
	}
}

// next dequeues the next job, blocking while the queue is empty
func (w *Worker) next() (job.Job, bool) {
	q := w.queue
	q.idle[w.id].Store(false)
	if j, ok := q.pending.TryPop(); ok {
		return j, true
	}

	q.idle[w.id].Store(true)
	q.anyIdle.Store(true)
	q.updateStats()

	j, ok := q.pending.Pop()
	if !ok {
		return nil, false
	}
	q.idle[w.id].Store(false)
	q.anyIdle.Store(q.IdleWorkers() > 0)
	return j, true
}

// handle splits or runs one dequeued job
func (w *Worker) handle(j job.Job) {
	q := w.queue

	if q.anyIdle.Load() && j.Splittable() && q.pending.Empty() {
		parts, err := job.Wire(j, j.Split(q.IdleWorkers()+1))
		if err != nil {
			job.Store(j, job.NewAggregateError(err))
			return
		}
		if len(parts) > 1 {
			q.metrics.RecordSplit(len(parts))
			q.logger.Debug("Job split", "jobID", j.ID(), "parts", len(parts))
			q.submit(j.Priority(), parts)
			return
		}
		// A single part runs here; re-queueing it could split it again forever
		j = parts[0]
	}

	start := time.Now()
	next, err := job.Execute(q.ctx, j)
	elapsed := time.Since(start).Seconds()

	switch {
	case next != nil:
		q.metrics.RecordContinuation(elapsed)
		q.enqueue(next)
	case err != nil:
		q.metrics.RecordFailed(elapsed)
		q.logger.Debug("Job failed", "jobID", j.ID(), "error", err)
	default:
		q.metrics.RecordCompleted(elapsed)
	}
	q.updateStats()
}
