package jobs

import (
	"context"
	"fmt"

	"github.com/ChuLiYu/adaptive-queue/internal/job"
	"github.com/ChuLiYu/adaptive-queue/internal/resource"
	"github.com/ChuLiYu/adaptive-queue/pkg/types"
)

// countGranularity is the bucket size used to count numeric series.
const countGranularity = "10d"

// CountDatapointsJob counts the datapoints of one series over a range. Numeric
// series are counted with the count aggregate, string series by fetching the
// raw points. The result is an int64.
type CountDatapointsJob struct {
	job.Base
	series types.Resource
	fetch  *rangeFetch
	count  int64
}

func NewCountDatapointsJob(client resource.Client, series types.Resource, start, end int64) (*CountDatapointsJob, error) {
	q := types.DatapointsQuery{ID: series.ID, ExternalID: series.ExternalID, Start: start, End: end}
	if !series.IsString {
		q.Aggregates = []string{types.AggregateCount}
		q.Granularity = countGranularity
	}
	f, err := newRangeFetch(client, q)
	if err != nil {
		return nil, err
	}
	return &CountDatapointsJob{series: series, fetch: f}, nil
}

func (j *CountDatapointsJob) String() string {
	return fmt.Sprintf("<CountDatapointsJob %s [%d, %d)>", j.fetch.query.Identifier(), j.fetch.query.Start, j.fetch.query.End)
}

func (j *CountDatapointsJob) Splittable() bool { return j.fetch.splittable() }

func (j *CountDatapointsJob) Split(nparts int) []job.Job {
	queries := j.fetch.split(nparts)
	if queries == nil {
		return []job.Job{j}
	}
	parts := make([]job.Job, len(queries))
	for i, q := range queries {
		parts[i] = &CountDatapointsJob{series: j.series, fetch: j.fetch.child(q)}
	}
	return parts
}

// Run counts one page and keeps only the running total.
func (j *CountDatapointsJob) Run(ctx context.Context) (job.Outcome, error) {
	more, err := j.fetch.fetchPage(ctx)
	if err != nil {
		return job.Outcome{}, err
	}

	page := j.fetch.retrieved
	if j.series.IsString {
		j.count += int64(page.Len())
	} else {
		for _, c := range page.Aggregate(types.AggregateCount) {
			j.count += int64(c)
		}
	}
	j.fetch.retrieved = &types.Datapoints{ID: page.ID, ExternalID: page.ExternalID, IsString: page.IsString}

	if more {
		return job.Continue(j), nil
	}
	return job.Finished(j.count), nil
}

// Merge adds the children's counts to what was counted before the split.
func (j *CountDatapointsJob) Merge(children []any) (any, error) {
	total := j.count
	for i, c := range children {
		n, ok := c.(int64)
		if !ok {
			return nil, fmt.Errorf("child %d of %s returned %T", i, j, c)
		}
		total += n
	}
	return total, nil
}
