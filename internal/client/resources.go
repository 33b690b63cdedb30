package client

import (
	"context"

	"github.com/ChuLiYu/adaptive-queue/internal/jobs"
	"github.com/ChuLiYu/adaptive-queue/pkg/types"
)

// ResourcesAPI creates and upserts resources of one kind.
type ResourcesAPI struct {
	client *Client
	kind   types.ResourceKind
}

// CreateAsync submits a CreateJob; its result is always a []types.Resource,
// however many chunks the request was split into.
func (a *ResourcesAPI) CreateAsync(items []types.Resource) (*jobs.CreateJob, error) {
	return a.submit(items, false)
}

func (a *ResourcesAPI) Create(ctx context.Context, items []types.Resource) ([]types.Resource, error) {
	j, err := a.CreateAsync(items)
	if err != nil {
		return nil, err
	}
	return await[[]types.Resource](ctx, j)
}

// UpsertAsync submits a CreateJob in upsert mode; its result is a
// *types.UpsertResult. Every item needs an external ID.
func (a *ResourcesAPI) UpsertAsync(items []types.Resource) (*jobs.CreateJob, error) {
	return a.submit(items, true)
}

// Upsert creates items and updates those that already exist.
func (a *ResourcesAPI) Upsert(ctx context.Context, items []types.Resource) (*types.UpsertResult, error) {
	j, err := a.UpsertAsync(items)
	if err != nil {
		return nil, err
	}
	return await[*types.UpsertResult](ctx, j)
}

func (a *ResourcesAPI) submit(items []types.Resource, upsert bool) (*jobs.CreateJob, error) {
	insertable := make([]types.Resource, len(items))
	for i, r := range items {
		insertable[i] = r.InsertableCopy()
	}
	j, err := jobs.NewCreateJob(a.client.resources, a.kind, insertable, upsert)
	if err != nil {
		return nil, err
	}
	if _, err := a.client.SubmitJob(j); err != nil {
		return nil, err
	}
	return j, nil
}
