package client

import (
	"context"
	"fmt"

	"github.com/ChuLiYu/adaptive-queue/internal/jobs"
	"github.com/ChuLiYu/adaptive-queue/internal/timeutil"
	"github.com/ChuLiYu/adaptive-queue/pkg/types"
)

// RetrieveOptions selects series and a time range. Start and End accept
// anything timeutil.TimestampToMs does; they default to 0 and "now".
type RetrieveOptions struct {
	IDs                  []int64
	ExternalIDs          []string
	Start                any
	End                  any
	Aggregates           []string
	Granularity          string
	IncludeOutsidePoints bool
	Limit                int
}

// DatapointsAPI retrieves and counts datapoints through the job queue.
type DatapointsAPI struct {
	client *Client
}

// RetrieveAsync submits one DatapointsListJob covering every requested
// series. Its result is a types.DatapointsList, IDs first, then external IDs.
func (a *DatapointsAPI) RetrieveAsync(opts RetrieveOptions) (*jobs.DatapointsListJob, error) {
	start, end, err := timeRange(opts.Start, opts.End)
	if err != nil {
		return nil, err
	}

	base := types.DatapointsQuery{
		Start:                start,
		End:                  end,
		Aggregates:           opts.Aggregates,
		Granularity:          opts.Granularity,
		IncludeOutsidePoints: opts.IncludeOutsidePoints,
		Limit:                opts.Limit,
	}
	queries := make([]types.DatapointsQuery, 0, len(opts.IDs)+len(opts.ExternalIDs))
	for _, id := range opts.IDs {
		q := base
		q.ID = id
		queries = append(queries, q)
	}
	for _, xid := range opts.ExternalIDs {
		q := base
		q.ExternalID = xid
		queries = append(queries, q)
	}

	j, err := jobs.NewDatapointsListJob(a.client.resources, queries)
	if err != nil {
		return nil, err
	}
	if _, err := a.client.SubmitJob(j); err != nil {
		return nil, err
	}
	return j, nil
}

// Retrieve is RetrieveAsync followed by a wait bounded by ctx.
func (a *DatapointsAPI) Retrieve(ctx context.Context, opts RetrieveOptions) (types.DatapointsList, error) {
	j, err := a.RetrieveAsync(opts)
	if err != nil {
		return nil, err
	}
	return await[types.DatapointsList](ctx, j)
}

// CountAsync submits a CountDatapointsJob for series; its result is an int64.
func (a *DatapointsAPI) CountAsync(series types.Resource, start, end any) (*jobs.CountDatapointsJob, error) {
	s, e, err := timeRange(start, end)
	if err != nil {
		return nil, err
	}
	j, err := jobs.NewCountDatapointsJob(a.client.resources, series, s, e)
	if err != nil {
		return nil, err
	}
	if _, err := a.client.SubmitJob(j); err != nil {
		return nil, err
	}
	return j, nil
}

func (a *DatapointsAPI) Count(ctx context.Context, series types.Resource, start, end any) (int64, error) {
	j, err := a.CountAsync(series, start, end)
	if err != nil {
		return 0, err
	}
	return await[int64](ctx, j)
}

func timeRange(start, end any) (int64, int64, error) {
	if start == nil {
		start = 0
	}
	if end == nil {
		end = "now"
	}
	s, err := timeutil.TimestampToMs(start)
	if err != nil {
		return 0, 0, fmt.Errorf("start: %w", err)
	}
	e, err := timeutil.TimestampToMs(end)
	if err != nil {
		return 0, 0, fmt.Errorf("end: %w", err)
	}
	return s, e, nil
}
