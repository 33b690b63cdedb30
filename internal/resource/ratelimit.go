package resource

import (
	"context"

	"github.com/ChuLiYu/adaptive-queue/pkg/types"
	"golang.org/x/time/rate"
)

// RateLimited throttles the requests made through a Client with a token
// bucket shared by every worker.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

var _ Client = (*RateLimited)(nil)

// NewRateLimited returns next unchanged when requestsPerSecond <= 0.
func NewRateLimited(next Client, requestsPerSecond float64, burst int) Client {
	if requestsPerSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (r *RateLimited) Limits() Limits { return r.next.Limits() }

func (r *RateLimited) Create(ctx context.Context, kind types.ResourceKind, items []types.Resource) ([]types.Resource, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Create(ctx, kind, items)
}

func (r *RateLimited) Update(ctx context.Context, kind types.ResourceKind, items []types.Resource) ([]types.Resource, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Update(ctx, kind, items)
}

func (r *RateLimited) RetrieveDatapoints(ctx context.Context, query types.DatapointsQuery, limit int) (*types.Datapoints, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.RetrieveDatapoints(ctx, query, limit)
}
