// ============================================================================
// Adaptive Queue Client - 對外 API 門面
// ============================================================================
//
// Package: internal/client
// File: client.go
// Purpose: 將 JobQueue 與 resource.Client 組合成一個使用者介面
//
//   Client
//   ├── SubmitJob / SubmitJobs        # 直接提交自訂 job
//   ├── Datapoints()
//   │   ├── RetrieveAsync / Retrieve  # 分頁 + 自適應切割取得 datapoints
//   │   └── CountAsync / Count        # 計算 datapoints 數量
//   ├── Resources(kind)
//   │   ├── CreateAsync / Create      # 依 create limit 分批建立
//   │   └── UpsertAsync / Upsert      # 建立，已存在者改為更新
//   └── Close                         # 停止 JobQueue
//
// *Async 方法回傳已提交的 job；同步版本會等待結果（受 ctx 限制）。
// ============================================================================

package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ChuLiYu/adaptive-queue/internal/job"
	"github.com/ChuLiYu/adaptive-queue/internal/metrics"
	"github.com/ChuLiYu/adaptive-queue/internal/resource"
	"github.com/ChuLiYu/adaptive-queue/internal/worker"
	"github.com/ChuLiYu/adaptive-queue/pkg/types"
)

// DefaultMaxWorkers is the worker count used when none is configured.
const DefaultMaxWorkers = 25

type options struct {
	maxWorkers int
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// Option configures a Client.
type Option func(*options)

// WithMaxWorkers sets the number of queue workers.
func WithMaxWorkers(n int) Option {
	return func(o *options) { o.maxWorkers = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// Client runs resource jobs on its own JobQueue.
type Client struct {
	queue     *worker.JobQueue
	resources resource.Client
	logger    *slog.Logger
}

// New starts a JobQueue and binds it to resources.
func New(resources resource.Client, opts ...Option) (*Client, error) {
	o := options{maxWorkers: DefaultMaxWorkers, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	queueOpts := []worker.Option{worker.WithLogger(o.logger)}
	if o.metrics != nil {
		queueOpts = append(queueOpts, worker.WithMetrics(o.metrics))
	}
	q, err := worker.NewJobQueue(o.maxWorkers, queueOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start job queue: %w", err)
	}

	return &Client{
		queue:     q,
		resources: resources,
		logger:    o.logger.With("component", "client"),
	}, nil
}

// Queue exposes the underlying JobQueue.
func (c *Client) Queue() *worker.JobQueue { return c.queue }

// SubmitJob submits one job and returns it.
func (c *Client) SubmitJob(j job.Job) (job.Job, error) {
	if _, err := c.queue.Submit(j); err != nil {
		return nil, err
	}
	return j, nil
}

// SubmitJobs submits jobs in order; earlier jobs run first.
func (c *Client) SubmitJobs(jobs ...job.Job) ([]job.Job, error) {
	return c.queue.Submit(jobs...)
}

// Datapoints returns the datapoints API.
func (c *Client) Datapoints() *DatapointsAPI {
	return &DatapointsAPI{client: c}
}

// Resources returns the create/upsert API for one resource kind.
func (c *Client) Resources(kind types.ResourceKind) *ResourcesAPI {
	return &ResourcesAPI{client: c, kind: kind}
}

// Close stops the queue. Jobs still queued fail with worker.ErrQueueStopped;
// running jobs are cancelled if ctx expires first.
func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("closing client", "queue", c.queue.String())
	return c.queue.Stop(ctx)
}

// await waits for j under ctx and returns its result as T.
func await[T any](ctx context.Context, j job.Job) (T, error) {
	var zero T
	if _, err := j.Wait(ctx); err != nil {
		return zero, err
	}
	return job.ResultAs[T](j)
}
