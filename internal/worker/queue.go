package worker

import (
	"container/heap"
	"sync"

	"github.com/ChuLiYu/adaptive-queue/internal/job"
)

// ------------------------------
// Internal heap implementation
// ------------------------------

type entry struct {
	job      job.Job
	priority int64
	seq      uint64
}

type jobHeap []*entry

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].priority == h[j].priority {
		return h[i].seq < h[j].seq
	}
	return h[i].priority < h[j].priority
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(*entry))
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}

// ------------------------------
// Thread-safe blocking priority queue
// ------------------------------

// priorityQueue orders jobs by priority, then by insertion. Pop blocks until
// a job arrives or the queue is closed.
type priorityQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   jobHeap
	seq    uint64
	closed bool
}

func newPriorityQueue() *priorityQueue {
	q := &priorityQueue{}
	q.cond = sync.NewCond(&q.mu)
	heap.Init(&q.heap)
	return q
}

// Push queues j with the given priority.
func (q *priorityQueue) Push(j job.Job, priority int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueStopped
	}
	q.seq++
	heap.Push(&q.heap, &entry{job: j, priority: priority, seq: q.seq})
	q.cond.Signal()
	return nil
}

// TryPop returns the first job without blocking.
func (q *priorityQueue) TryPop() (job.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.heap).(*entry).job, true
}

// Pop blocks for the first job. It returns false once the queue is closed.
func (q *priorityQueue) Pop() (job.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.heap.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}
	return heap.Pop(&q.heap).(*entry).job, true
}

func (q *priorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

func (q *priorityQueue) Empty() bool { return q.Len() == 0 }

// Close wakes every blocked Pop and returns the jobs that were still queued,
// in priority order.
func (q *priorityQueue) Close() []job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	drained := make([]job.Job, 0, q.heap.Len())
	for q.heap.Len() > 0 {
		drained = append(drained, heap.Pop(&q.heap).(*entry).job)
	}
	q.cond.Broadcast()
	return drained
}
