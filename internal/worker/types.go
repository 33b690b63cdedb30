package worker

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ChuLiYu/adaptive-queue/internal/metrics"
)

var (
	// ErrQueueStopped 表示 JobQueue 已停止，無法提交新任務
	ErrQueueStopped = errors.New("job queue is stopped")
	// ErrInvalidWorkerCount 表示 worker 數量必須 >= 1
	ErrInvalidWorkerCount = errors.New("worker count must be at least 1")
	// ErrInvalidPriority 表示 SubmitAt 的 priority 不可為 0（0 是未設定）
	ErrInvalidPriority = errors.New("priority override must be non-zero")
)

// FaultError 記錄一個因引擎內部錯誤（非任務失敗）而終止的 worker
type FaultError struct {
	Worker int    // worker 編號
	JobID  string // 發生錯誤時處理中的任務（可能為空）
	Value  any    // recover() 取得的值
	Stack  []byte // 堆疊追蹤
}

func (e *FaultError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("worker %d died: %v", e.Worker, e.Value)
	}
	return fmt.Sprintf("worker %d died while handling job %s: %v", e.Worker, e.JobID, e.Value)
}

// Option 設定 JobQueue
type Option func(*JobQueue)

// WithLogger 設定 logger（預設 slog.Default()）
func WithLogger(logger *slog.Logger) Option {
	return func(q *JobQueue) { q.logger = logger }
}

// WithMetrics 設定 Prometheus 指標收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(q *JobQueue) { q.metrics = c }
}
