// Package jobs holds the concrete jobs driven by the scheduler: resource
// creation and upsert, paginated datapoint retrieval, and datapoint counting.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ChuLiYu/adaptive-queue/internal/job"
	"github.com/ChuLiYu/adaptive-queue/internal/resource"
	"github.com/ChuLiYu/adaptive-queue/internal/timeutil"
	"github.com/ChuLiYu/adaptive-queue/pkg/types"
)

var (
	ErrMissingExternalID = errors.New("upsert requires an external id on every resource")
	ErrInvalidQuery      = errors.New("invalid datapoints query")
)

// ============================================================================
// rangeFetch: paginated retrieval of one series over [start, end)
// ============================================================================

type rangeFetch struct {
	client      resource.Client
	query       types.DatapointsQuery
	granularity int64 // ms between consecutive points, 1 for raw data
	retrieved   *types.Datapoints
	fetched     int // points inside the range retrieved so far
}

func newRangeFetch(client resource.Client, q types.DatapointsQuery) (*rangeFetch, error) {
	if q.ID == 0 && q.ExternalID == "" {
		return nil, fmt.Errorf("%w: id or external id required", ErrInvalidQuery)
	}
	if q.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, q.Limit)
	}
	q.Aggregates = append([]string(nil), q.Aggregates...)

	f := &rangeFetch{client: client, granularity: 1, retrieved: &types.Datapoints{}}
	if len(q.Aggregates) > 0 {
		if q.Granularity == "" {
			return nil, fmt.Errorf("%w: aggregates %v need a granularity", ErrInvalidQuery, q.Aggregates)
		}
		g, err := timeutil.GranularityToMs(q.Granularity)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
		f.granularity = g
		// Buckets only line up across pages and splits on whole units
		if q.Start, err = timeutil.AlignToGranularityUnit(q.Start, q.Granularity); err != nil {
			return nil, err
		}
		if q.End, err = timeutil.AlignToGranularityUnit(q.End, q.Granularity); err != nil {
			return nil, err
		}
	}
	if q.End < q.Start {
		return nil, fmt.Errorf("%w: end %d before start %d", ErrInvalidQuery, q.End, q.Start)
	}
	f.query = q
	return f, nil
}

// child returns a fresh fetch over q sharing this fetch's settings.
func (f *rangeFetch) child(q types.DatapointsQuery) *rangeFetch {
	q.Aggregates = append([]string(nil), q.Aggregates...)
	return &rangeFetch{
		client:      f.client,
		query:       q,
		granularity: f.granularity,
		retrieved:   &types.Datapoints{},
	}
}

func (f *rangeFetch) aggregated() bool { return len(f.query.Aggregates) > 0 }

// serviceLimit is the most points one request may return.
func (f *rangeFetch) serviceLimit() int {
	if f.aggregated() {
		return f.client.Limits().DatapointsAggregate
	}
	return f.client.Limits().Datapoints
}

func (f *rangeFetch) pageLimit() int {
	limit := f.serviceLimit()
	if f.query.Limit > 0 {
		limit = min(limit, f.query.Limit-f.fetched)
	}
	return limit
}

// splittable: never with an explicit limit, and never from t=0 where the
// series' real start is unknown.
func (f *rangeFetch) splittable() bool {
	return f.query.Limit == 0 && f.query.Start > 0 && f.query.End > f.query.Start
}

// split divides the remaining range into at most nparts queries, and never
// into more parts than the range has pages. Parts are equal in length, so a
// part may hold less than a page. It returns nil to decline.
func (f *rangeFetch) split(nparts int) []types.DatapointsQuery {
	if nparts <= 1 || !f.splittable() {
		return nil
	}
	npt := float64(f.query.End-f.query.Start) / float64(f.granularity)
	parts := min(nparts, int(math.Ceil(npt/float64(f.serviceLimit()))))
	if parts <= 1 {
		return nil
	}
	chunk := int64(math.Ceil(npt/float64(parts))) * f.granularity

	out := make([]types.DatapointsQuery, 0, parts)
	for i := 0; i < parts; i++ {
		q := f.query
		q.Start = f.query.Start + int64(i)*chunk
		q.End = q.Start + chunk
		if q.Start >= f.query.End {
			break
		}
		if i == parts-1 || q.End > f.query.End {
			q.End = f.query.End
		}
		out = append(out, q)
	}
	if len(out) <= 1 {
		return nil
	}
	return out
}

// fetchPage retrieves the next page into f.retrieved and reports whether
// another page is needed. On true, f.query.Start has moved past the page.
func (f *rangeFetch) fetchPage(ctx context.Context) (bool, error) {
	// Alignment can collapse a short aggregate range to nothing
	if f.query.End <= f.query.Start {
		return false, nil
	}
	limit := f.pageLimit()
	page, err := f.client.RetrieveDatapoints(ctx, f.query, limit)
	if err != nil {
		return false, fmt.Errorf("retrieve %s [%d, %d): %w", f.query.Identifier(), f.query.Start, f.query.End, err)
	}
	if f.retrieved.ID == 0 && f.retrieved.ExternalID == "" {
		f.retrieved.ID, f.retrieved.ExternalID, f.retrieved.IsString = page.ID, page.ExternalID, page.IsString
	}

	pts := page.Points
	inside := len(pts)
	atEnd := len(pts) == 0 || pts[len(pts)-1].Timestamp+f.granularity >= f.query.End

	if f.query.IncludeOutsidePoints && len(pts) > 0 {
		if pts[0].Timestamp < f.query.Start {
			inside--
			// Past the first page the point before is the previous page's last
			if f.retrieved.Len() > 0 {
				pts = pts[1:]
			}
		}
		if n := len(pts); n > 0 && pts[n-1].Timestamp >= f.query.End {
			inside--
			atEnd = n < 2 || pts[n-2].Timestamp+f.granularity >= f.query.End
			// Still paginating: the point after is not the real one yet
			if inside == limit && !atEnd {
				pts = pts[:n-1]
			}
		}
	}

	f.retrieved.Points = append(f.retrieved.Points, pts...)
	f.fetched += inside

	if inside == limit && !atEnd && (f.query.Limit == 0 || f.fetched < f.query.Limit) {
		f.query.Start = pts[len(pts)-1].Timestamp + f.granularity
		return true, nil
	}
	return false, nil
}

// ============================================================================
// DatapointsJob
// ============================================================================

// DatapointsJob retrieves one series over a range, one page per run. Its
// result is a *types.Datapoints.
type DatapointsJob struct {
	job.Base
	fetch *rangeFetch
}

// NewDatapointsJob validates q. Aggregate queries have start and end rounded
// up to whole granularity units.
func NewDatapointsJob(client resource.Client, q types.DatapointsQuery) (*DatapointsJob, error) {
	f, err := newRangeFetch(client, q)
	if err != nil {
		return nil, err
	}
	return &DatapointsJob{fetch: f}, nil
}

// Query returns the range still to be fetched.
func (j *DatapointsJob) Query() types.DatapointsQuery { return j.fetch.query }

func (j *DatapointsJob) String() string {
	return fmt.Sprintf("<DatapointsJob %s [%d, %d)>", j.fetch.query.Identifier(), j.fetch.query.Start, j.fetch.query.End)
}

func (j *DatapointsJob) Splittable() bool { return j.fetch.splittable() }

func (j *DatapointsJob) Split(nparts int) []job.Job {
	queries := j.fetch.split(nparts)
	if queries == nil {
		return []job.Job{j}
	}
	parts := make([]job.Job, len(queries))
	for i, q := range queries {
		parts[i] = &DatapointsJob{fetch: j.fetch.child(q)}
	}
	return parts
}

func (j *DatapointsJob) Run(ctx context.Context) (job.Outcome, error) {
	more, err := j.fetch.fetchPage(ctx)
	if err != nil {
		return job.Outcome{}, err
	}
	if more {
		return job.Continue(j), nil
	}
	return job.Finished(j.fetch.retrieved), nil
}

// Merge appends the children's points to whatever this job fetched before it
// was split. With outside points, each child's leading points that repeat the
// tail of the previous part are dropped.
func (j *DatapointsJob) Merge(children []any) (any, error) {
	r := &types.Datapoints{
		ID:         j.fetch.retrieved.ID,
		ExternalID: j.fetch.retrieved.ExternalID,
		IsString:   j.fetch.retrieved.IsString,
		Points:     append([]types.Datapoint(nil), j.fetch.retrieved.Points...),
	}
	for i, c := range children {
		dp, ok := c.(*types.Datapoints)
		if !ok {
			return nil, fmt.Errorf("child %d of %s returned %T", i, j, c)
		}
		pts := dp.Points
		if j.fetch.query.IncludeOutsidePoints {
			if last, ok := r.Last(); ok {
				for len(pts) > 0 && pts[0].Timestamp <= last {
					pts = pts[1:]
				}
			}
		}
		if err := r.Extend(&types.Datapoints{ID: dp.ID, ExternalID: dp.ExternalID, IsString: dp.IsString, Points: pts}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ============================================================================
// DatapointsListJob
// ============================================================================

// DatapointsListJob retrieves several series. It is split into one
// DatapointsJob per query at submission; its result is a types.DatapointsList
// in query order.
type DatapointsListJob struct {
	job.Base
	items []*DatapointsJob
}

func NewDatapointsListJob(client resource.Client, queries []types.DatapointsQuery) (*DatapointsListJob, error) {
	j := &DatapointsListJob{}
	for i, q := range queries {
		item, err := NewDatapointsJob(client, q)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		j.items = append(j.items, item)
	}
	// A single query stands in for the whole list; wrap its result
	j.AddCallback(func(v any) (any, error) {
		if dp, ok := v.(*types.Datapoints); ok {
			return types.DatapointsList{dp}, nil
		}
		return nil, nil
	})
	return j, nil
}

func (j *DatapointsListJob) InitialSplit() []job.Job {
	if len(j.items) == 0 {
		return nil
	}
	parts := make([]job.Job, len(j.items))
	for i, item := range j.items {
		parts[i] = item
	}
	return parts
}

// Run only happens for an empty list.
func (j *DatapointsListJob) Run(context.Context) (job.Outcome, error) {
	return job.Finished(types.DatapointsList{}), nil
}

func (j *DatapointsListJob) Merge(children []any) (any, error) {
	out := make(types.DatapointsList, len(children))
	for i, c := range children {
		dp, ok := c.(*types.Datapoints)
		if !ok {
			return nil, fmt.Errorf("item %d returned %T", i, c)
		}
		out[i] = dp
	}
	return out, nil
}
