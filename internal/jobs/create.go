package jobs

import (
	"context"
	"fmt"

	"github.com/ChuLiYu/adaptive-queue/internal/job"
	"github.com/ChuLiYu/adaptive-queue/internal/resource"
	"github.com/ChuLiYu/adaptive-queue/pkg/types"
)

// CreateJob creates resources, or upserts them. The request is fanned out
// into chunks of the service's create limit at submission time.
//
// Results: []types.Resource for a create, *types.UpsertResult for an upsert.
// Both merge with the default merge, in chunk order.
type CreateJob struct {
	job.Base

	client    resource.Client
	kind      types.ResourceKind
	resources []types.Resource
	upsert    bool
}

// NewCreateJob validates the request. Upserting requires every resource to
// carry an external ID.
func NewCreateJob(client resource.Client, kind types.ResourceKind, resources []types.Resource, upsert bool) (*CreateJob, error) {
	if upsert {
		for i, r := range resources {
			if r.ExternalID == "" {
				return nil, fmt.Errorf("%w (item %d)", ErrMissingExternalID, i)
			}
		}
	}
	return &CreateJob{client: client, kind: kind, resources: resources, upsert: upsert}, nil
}

func (j *CreateJob) InitialSplit() []job.Job {
	size := j.client.Limits().Create
	if size < 1 || len(j.resources) <= size {
		return nil
	}
	var parts []job.Job
	for lo := 0; lo < len(j.resources); lo += size {
		hi := min(lo+size, len(j.resources))
		parts = append(parts, &CreateJob{
			client:    j.client,
			kind:      j.kind,
			resources: j.resources[lo:hi],
			upsert:    j.upsert,
		})
	}
	return parts
}

func (j *CreateJob) Run(ctx context.Context) (job.Outcome, error) {
	if !j.upsert {
		created, err := j.create(ctx, j.resources)
		if err != nil {
			return job.Outcome{}, err
		}
		return job.Finished(created), nil
	}

	result, err := j.runUpsert(ctx)
	if err != nil {
		return job.Outcome{}, err
	}
	return job.Finished(result), nil
}

// runUpsert tries a plain create first. On a duplicate conflict the
// non-duplicates are created and the duplicates updated.
func (j *CreateJob) runUpsert(ctx context.Context) (*types.UpsertResult, error) {
	created, err := j.create(ctx, j.resources)
	if err == nil {
		return &types.UpsertResult{Created: created, Updated: []types.Resource{}}, nil
	}
	dups, ok := resource.DuplicatedIDs(err)
	if !ok {
		return nil, err
	}

	isDup := make(map[string]bool, len(dups))
	for _, id := range dups {
		isDup[id] = true
	}
	var fresh, existing []types.Resource
	for _, r := range j.resources {
		if isDup[r.ExternalID] {
			existing = append(existing, r)
		} else {
			fresh = append(fresh, r)
		}
	}

	result := &types.UpsertResult{Created: []types.Resource{}, Updated: []types.Resource{}}
	if len(fresh) > 0 {
		if result.Created, err = j.create(ctx, fresh); err != nil {
			return nil, err
		}
	}
	if result.Updated, err = j.client.Update(ctx, j.kind, existing); err != nil {
		return nil, fmt.Errorf("update %d existing %s: %w", len(existing), j.kind, err)
	}
	return result, nil
}

func (j *CreateJob) create(ctx context.Context, items []types.Resource) ([]types.Resource, error) {
	created, err := j.client.Create(ctx, j.kind, items)
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = []types.Resource{}
	}
	return created, nil
}
