// ============================================================================
// Adaptive Queue Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集排程器的運行指標，並以 Prometheus 格式暴露
//
// 指標分類:
//
//   1. 任務計數器 (Counter):
//      - adaptive_queue_jobs_submitted_total:   提交（含 initial split 後）的任務數
//      - adaptive_queue_splits_total:           閒置觸發的重新切分次數
//      - adaptive_queue_split_parts_total:      重新切分產生的子任務總數
//      - adaptive_queue_continuations_total:    分頁續傳（continuation）次數
//      - adaptive_queue_jobs_completed_total:   成功完成的 leaf 任務數
//      - adaptive_queue_jobs_failed_total:      失敗的 leaf 任務數
//      - adaptive_queue_worker_faults_total:    因內部錯誤而終止的 worker 數
//
//   2. 性能指標 (Histogram):
//      - adaptive_queue_job_run_seconds: 單次 Run() 的執行時間
//
//   3. 狀態指標 (Gauge):
//      - adaptive_queue_depth:        佇列中等待的任務數
//      - adaptive_queue_idle_workers: 目前閒置的 worker 數
//
// Prometheus 查詢示例:
//
//   # 每分鐘完成任務數
//   rate(adaptive_queue_jobs_completed_total[1m])
//
//   # 平均每次切分的子任務數
//   rate(adaptive_queue_split_parts_total[5m]) / rate(adaptive_queue_splits_total[5m])
//
// 所有 Record 方法對 nil *Collector 皆為 no-op，排程器可在未啟用監控時直接呼叫。
//
// ============================================================================

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector Prometheus 指標收集器
type Collector struct {
	registry *prometheus.Registry

	// 任務相關指標
	jobsSubmitted prometheus.Counter
	splits        prometheus.Counter
	splitParts    prometheus.Counter
	continuations prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	workerFaults  prometheus.Counter

	// 效能指標
	runLatency prometheus.Histogram

	// 狀態指標
	queueDepth  prometheus.Gauge
	idleWorkers prometheus.Gauge
}

// NewCollector 創建新的指標收集器，並註冊到 reg（nil 時建立新的 registry）
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: reg,
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptive_queue_jobs_submitted_total",
			Help: "Total number of jobs queued after their initial split",
		}),
		splits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptive_queue_splits_total",
			Help: "Total number of idle-triggered re-splits",
		}),
		splitParts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptive_queue_split_parts_total",
			Help: "Total number of jobs produced by idle-triggered re-splits",
		}),
		continuations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptive_queue_continuations_total",
			Help: "Total number of continuations re-queued",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptive_queue_jobs_completed_total",
			Help: "Total number of leaf jobs that stored a result",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptive_queue_jobs_failed_total",
			Help: "Total number of leaf jobs that failed",
		}),
		workerFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adaptive_queue_worker_faults_total",
			Help: "Total number of workers terminated by an internal fault",
		}),
		runLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "adaptive_queue_job_run_seconds",
			Help:    "Duration of a single job run in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adaptive_queue_depth",
			Help: "Current number of queued jobs",
		}),
		idleWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adaptive_queue_idle_workers",
			Help: "Current number of idle workers",
		}),
	}

	// 註冊所有指標
	reg.MustRegister(
		c.jobsSubmitted,
		c.splits,
		c.splitParts,
		c.continuations,
		c.jobsCompleted,
		c.jobsFailed,
		c.workerFaults,
		c.runLatency,
		c.queueDepth,
		c.idleWorkers,
	)

	return c
}

// RecordSubmit 記錄任務加入佇列
func (c *Collector) RecordSubmit(n int) {
	if c == nil {
		return
	}
	c.jobsSubmitted.Add(float64(n))
}

// RecordSplit 記錄一次閒置觸發的切分
func (c *Collector) RecordSplit(parts int) {
	if c == nil {
		return
	}
	c.splits.Inc()
	c.splitParts.Add(float64(parts))
}

// RecordContinuation 記錄一次續傳
func (c *Collector) RecordContinuation(latencySeconds float64) {
	if c == nil {
		return
	}
	c.continuations.Inc()
	c.runLatency.Observe(latencySeconds)
}

// RecordCompleted 記錄 leaf 任務完成
func (c *Collector) RecordCompleted(latencySeconds float64) {
	if c == nil {
		return
	}
	c.jobsCompleted.Inc()
	c.runLatency.Observe(latencySeconds)
}

// RecordFailed 記錄 leaf 任務失敗
func (c *Collector) RecordFailed(latencySeconds float64) {
	if c == nil {
		return
	}
	c.jobsFailed.Inc()
	c.runLatency.Observe(latencySeconds)
}

// RecordWorkerFault 記錄 worker 因內部錯誤終止
func (c *Collector) RecordWorkerFault() {
	if c == nil {
		return
	}
	c.workerFaults.Inc()
}

// UpdateQueueStats 更新佇列狀態統計
func (c *Collector) UpdateQueueStats(depth, idle int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(depth))
	c.idleWorkers.Set(float64(idle))
}

// Registry 返回底層 registry（其他元件可註冊自己的指標）
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /metrics 的 HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
