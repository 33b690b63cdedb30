// ============================================================================
// Adaptive Queue JobQueue - 自適應切分排程器
// ============================================================================
//
// Package: internal/worker
// 文件: worker_pool.go
// 功能: 固定數量的 worker goroutine 共用一個優先佇列，閒置時動態切分大任務
//
// 設計模式:
//   採用 Worker Pool 模式，但任務來源是優先佇列而非 channel：
//   1. 固定數量的 worker 在建構時即啟動，持續運行到 Stop()
//   2. 優先值越小越先執行；同優先值依插入順序
//   3. 有 worker 閒置且佇列為空時，取出的可切分任務會被切成 idle+1 份
//   4. leaf 任務執行後，結果沿著任務樹向上合併
//
// 架構組件:
//   ┌─────────────┐
//   │   Caller    │ --Submit()--> InitialSplit --> priorityQueue
//   └─────────────┘                                   │
//         ↑                              ┌────────────┼────────────┐
//    job.Result()                        ↓            ↓            ↓
//         ↑                          Worker 0     Worker 1     Worker 2
//   root ← Merge ← children ←──── Execute / Split / Continue ─────┘
//
// 生命週期:
//   1. NewJobQueue(n) - 建立佇列並立即啟動 n 個 worker
//   2. Submit(jobs...) - 初始切分後入列，立即回傳原始 handle
//   3. job.Result() - 呼叫端阻塞等待根任務的結果
//   4. Stop(ctx) - 拒絕新任務、讓排隊中的任務以 ErrQueueStopped 結束、等待 worker
//
// 並發控制:
//   - priorityQueue: mutex + sync.Cond，提供非阻塞與阻塞兩種取出
//   - idle flags: 每個 worker 一個 atomic.Bool，只用於切分啟發式，容忍競爭
//   - 任務樹的合併鎖與結果鎖都在 job 層，互不相關的分支不會互相競爭
//
// 錯誤處理:
//   - 任務失敗（Run 回傳錯誤或 panic）：轉為 AggregateError，不影響其他任務
//   - 引擎內部錯誤（worker 迴圈中的 panic）：記錄在該 worker，worker 結束，
//     其他 worker 繼續；Healthy() 反映此狀態
//
// ============================================================================

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ChuLiYu/adaptive-queue/internal/job"
	"github.com/ChuLiYu/adaptive-queue/internal/metrics"
)

// ============================================================================
// 資料結構定義
// ============================================================================

// JobQueue 代表排程器：一個共享優先佇列加上固定數量的 worker
type JobQueue struct {
	pending  *priorityQueue
	workers  []*Worker
	idle     []atomic.Bool // 每個 worker 的閒置旗標
	dead     []atomic.Bool // 因內部錯誤而終止的 worker
	anyIdle  atomic.Bool   // 最近一次計算的「是否有 worker 閒置」
	priority atomic.Int64  // 單調遞增的優先值計數器

	faultMu sync.Mutex
	faults  []error // 每個 worker 一格，nil 表示健康

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped atomic.Bool

	logger  *slog.Logger
	metrics *metrics.Collector
}

// ============================================================================
// 核心方法實作
// ============================================================================

// NewJobQueue 建立排程器並立即啟動 workerCount 個 worker
func NewJobQueue(workerCount int, opts ...Option) (*JobQueue, error) {
	if workerCount < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkerCount, workerCount)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &JobQueue{
		pending: newPriorityQueue(),
		workers: make([]*Worker, workerCount),
		idle:    make([]atomic.Bool, workerCount),
		dead:    make([]atomic.Bool, workerCount),
		faults:  make([]error, workerCount),
		ctx:     ctx,
		cancel:  cancel,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("component", "jobqueue")

	for i := range q.idle {
		q.idle[i].Store(true)
	}
	q.anyIdle.Store(true)

	for i := 0; i < workerCount; i++ {
		w := newWorker(i, q)
		q.workers[i] = w

		q.wg.Add(1)
		go func(w *Worker) {
			defer q.wg.Done()
			w.Run()
		}(w)
	}

	q.logger.Info("Job queue started", "workers", workerCount)
	return q, nil
}

// Submit 對每個任務做 initial split 後入列，回傳原始 handle。
// 呼叫端在 handle 上等待結果；子任務的結果會自動合併回 handle。
func (q *JobQueue) Submit(jobs ...job.Job) ([]job.Job, error) {
	if q.stopped.Load() {
		return nil, ErrQueueStopped
	}
	q.metrics.RecordSubmit(q.submit(0, jobs))
	return jobs, nil
}

// SubmitAt 與 Submit 相同，但以 priority 覆寫每個任務的優先值。
// 0 代表「未設定」，不能當作覆寫值，會回傳 ErrInvalidPriority。
func (q *JobQueue) SubmitAt(priority int64, jobs ...job.Job) error {
	if priority == 0 {
		return ErrInvalidPriority
	}
	if q.stopped.Load() {
		return ErrQueueStopped
	}
	q.metrics.RecordSubmit(q.submit(priority, jobs))
	return nil
}

// submit 入列並回傳實際入列的數量；切分出的子任務也走這裡，但不計入提交指標
func (q *JobQueue) submit(priority int64, jobs []job.Job) int {
	queued := 0
	for _, j := range jobs {
		if j.Priority() == 0 {
			j.SetPriority(q.nextPriority())
		}
		parts, err := job.Wire(j, j.InitialSplit())
		if err != nil {
			job.Store(j, job.NewAggregateError(err))
			continue
		}
		for _, p := range parts {
			switch {
			case priority != 0:
				p.SetPriority(priority)
			case p.Priority() == 0:
				p.SetPriority(q.nextPriority())
			}
			q.enqueue(p)
			queued++
		}
	}
	q.updateStats()
	return queued
}

// enqueue 放入佇列；佇列已關閉時直接以 ErrQueueStopped 結束該任務
func (q *JobQueue) enqueue(j job.Job) {
	if err := q.pending.Push(j, j.Priority()); err != nil {
		job.Store(j, job.NewAggregateError(err))
	}
}

func (q *JobQueue) nextPriority() int64 {
	return q.priority.Add(1)
}

// Done 佇列為空且所有存活的 worker 都閒置（快照，非交易保證）
func (q *JobQueue) Done() bool {
	if !q.pending.Empty() {
		return false
	}
	for i := range q.idle {
		if !q.idle[i].Load() && !q.dead[i].Load() {
			return false
		}
	}
	return true
}

// Healthy 沒有任何 worker 因內部錯誤而終止
func (q *JobQueue) Healthy() bool {
	return len(q.Faults()) == 0
}

// Faults 返回已終止 worker 的錯誤
func (q *JobQueue) Faults() []error {
	q.faultMu.Lock()
	defer q.faultMu.Unlock()
	var out []error
	for _, f := range q.faults {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// IdleWorkers 目前閒置的存活 worker 數
func (q *JobQueue) IdleWorkers() int {
	n := 0
	for i := range q.idle {
		if q.idle[i].Load() && !q.dead[i].Load() {
			n++
		}
	}
	return n
}

// AliveWorkers 尚未因內部錯誤終止的 worker 數
func (q *JobQueue) AliveWorkers() int {
	n := 0
	for i := range q.dead {
		if !q.dead[i].Load() {
			n++
		}
	}
	return n
}

// Len 佇列中等待的任務數
func (q *JobQueue) Len() int {
	return q.pending.Len()
}

// GetWorkerCount 返回建構時的 worker 數量
func (q *JobQueue) GetWorkerCount() int {
	return len(q.workers)
}

func (q *JobQueue) String() string {
	if faults := q.Faults(); len(faults) > 0 {
		msgs := make([]string, len(faults))
		for i, f := range faults {
			msgs[i] = f.Error()
		}
		return fmt.Sprintf("MAJOR ERROR IN JOB WORKER. %d workers died with faults: [%s]",
			len(faults), strings.Join(msgs, "; "))
	}
	state := "not empty"
	if q.pending.Empty() {
		state = "empty"
	}
	return fmt.Sprintf("queue %s, %d workers alive, %d workers idle", state, q.AliveWorkers(), q.IdleWorkers())
}

// Stop 優雅地關閉 JobQueue
// 關閉流程：
//  1. 拒絕新任務
//  2. 關閉佇列，排隊中的任務以 ErrQueueStopped 結束（等待者不會永遠阻塞）
//  3. 等待所有 worker 完成目前的任務
//  4. 若 ctx 先到期，取消執行中任務的 context 再等待
func (q *JobQueue) Stop(ctx context.Context) error {
	if !q.stopped.CompareAndSwap(false, true) {
		return nil
	}
	q.logger.Info("Job queue stopping")

	for _, j := range q.pending.Close() {
		job.Store(j, job.NewAggregateError(ErrQueueStopped))
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("Job queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.logger.Warn("Job queue shutdown timed out, cancelling running jobs")
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *JobQueue) recordFault(fault *FaultError) {
	q.faultMu.Lock()
	q.faults[fault.Worker] = fault
	q.faultMu.Unlock()
	q.dead[fault.Worker].Store(true)
	q.metrics.RecordWorkerFault()
	q.logger.Error("Worker died with internal fault",
		"worker", fault.Worker,
		"jobID", fault.JobID,
		"panic", fault.Value,
		"stack", string(fault.Stack),
	)
}

func (q *JobQueue) updateStats() {
	q.metrics.UpdateQueueStats(q.pending.Len(), q.IdleWorkers())
}
