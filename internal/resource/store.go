package resource

// ============================================================================
// In-memory resource service
// ============================================================================
//
// Resources are kept per kind in creation order with a unique external ID
// index. Time series datapoints are kept sorted by timestamp, keyed by the
// series' resource ID.
//
// Retrieval:
//   - raw: points in [start, end), at most limit of them; with
//     IncludeOutsidePoints the last point before start and the first point at
//     or after end are added on top of the limit
//   - aggregates: points in [start, end) grouped into buckets of one
//     granularity starting at start; empty buckets are omitted, at most limit
//     buckets are returned, timestamps are bucket starts
//
// ============================================================================

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ChuLiYu/adaptive-queue/internal/timeutil"
	"github.com/ChuLiYu/adaptive-queue/pkg/types"
)

// Store is an in-memory Client. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	resources map[types.ResourceKind][]types.Resource
	index     map[types.ResourceKind]map[string]int // external ID -> position
	points    map[int64][]types.Datapoint
	lastID    int64

	limits Limits
	now    func() time.Time
}

var _ Client = (*Store)(nil)

// NewStore creates an empty store enforcing limits.
func NewStore(limits Limits) *Store {
	return &Store{
		resources: make(map[types.ResourceKind][]types.Resource),
		index:     make(map[types.ResourceKind]map[string]int),
		points:    make(map[int64][]types.Datapoint),
		limits:    limits,
		now:       time.Now,
	}
}

func (s *Store) Limits() Limits { return s.limits }

// Create inserts items. If any external ID already exists, or repeats within
// the request, nothing is inserted and a 409 APIError lists the duplicates.
func (s *Store) Create(ctx context.Context, kind types.ResourceKind, items []types.Resource) ([]types.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(items) > s.limits.Create {
		return nil, badRequest("at most %d items per request, got %d", s.limits.Create, len(items))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.kindIndex(kind)
	seen := make(map[string]bool, len(items))
	var dups []string
	for _, r := range items {
		if r.ExternalID == "" {
			continue
		}
		if _, exists := idx[r.ExternalID]; exists || seen[r.ExternalID] {
			dups = append(dups, r.ExternalID)
		}
		seen[r.ExternalID] = true
	}
	if len(dups) > 0 {
		return nil, &APIError{Code: CodeConflict, Message: "duplicated external ids", Duplicated: dups}
	}

	ts := s.now().UnixMilli()
	out := make([]types.Resource, len(items))
	for i, r := range items {
		created := r.InsertableCopy()
		s.lastID++
		created.ID = s.lastID
		created.CreatedTime = ts
		created.LastUpdatedTime = ts

		s.resources[kind] = append(s.resources[kind], created)
		if created.ExternalID != "" {
			idx[created.ExternalID] = len(s.resources[kind]) - 1
		}
		out[i] = created
	}
	return out, nil
}

// Update overwrites the non-empty user fields of existing resources, found by
// ID or external ID. Nothing is changed if any item is missing.
func (s *Store) Update(ctx context.Context, kind types.ResourceKind, items []types.Resource) ([]types.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(items) > s.limits.Create {
		return nil, badRequest("at most %d items per request, got %d", s.limits.Create, len(items))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	positions := make([]int, len(items))
	for i, r := range items {
		pos, ok := s.locate(kind, r.ID, r.ExternalID)
		if !ok {
			return nil, notFound("%s %q (id %d) does not exist", kind, r.ExternalID, r.ID)
		}
		positions[i] = pos
	}

	ts := s.now().UnixMilli()
	out := make([]types.Resource, len(items))
	for i, r := range items {
		cur := &s.resources[kind][positions[i]]
		if r.Name != "" {
			cur.Name = r.Name
		}
		if r.Description != "" {
			cur.Description = r.Description
		}
		if r.Metadata != nil {
			cur.Metadata = make(map[string]string, len(r.Metadata))
			for k, v := range r.Metadata {
				cur.Metadata[k] = v
			}
		}
		cur.LastUpdatedTime = ts
		out[i] = *cur
	}
	return out, nil
}

// List returns the resources of kind in creation order.
func (s *Store) List(kind types.ResourceKind) []types.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Resource(nil), s.resources[kind]...)
}

// InsertDatapoints adds points to a time series, keeping them sorted. A point
// with an existing timestamp replaces the old one.
func (s *Store) InsertDatapoints(ctx context.Context, id int64, externalID string, points []types.Datapoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	series, err := s.series(id, externalID)
	if err != nil {
		return err
	}
	for _, p := range points {
		if series.IsString != (p.StringValue != nil) {
			return badRequest("point at %d has the wrong value type for series %d", p.Timestamp, series.ID)
		}
	}

	byTS := make(map[int64]types.Datapoint, len(s.points[series.ID])+len(points))
	for _, p := range s.points[series.ID] {
		byTS[p.Timestamp] = p
	}
	for _, p := range points {
		byTS[p.Timestamp] = p
	}
	merged := make([]types.Datapoint, 0, len(byTS))
	for _, p := range byTS {
		merged = append(merged, p)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })
	s.points[series.ID] = merged
	return nil
}

// RetrieveDatapoints fetches one page. limit is clamped to the service maximum.
func (s *Store) RetrieveDatapoints(ctx context.Context, q types.DatapointsQuery, limit int) (*types.Datapoints, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.End <= q.Start {
		return nil, badRequest("end (%d) must be after start (%d)", q.End, q.Start)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	series, err := s.series(q.ID, q.ExternalID)
	if err != nil {
		return nil, err
	}
	out := &types.Datapoints{ID: series.ID, ExternalID: series.ExternalID, IsString: series.IsString}

	all := s.points[series.ID]
	lo := sort.Search(len(all), func(i int) bool { return all[i].Timestamp >= q.Start })
	hi := sort.Search(len(all), func(i int) bool { return all[i].Timestamp >= q.End })

	if len(q.Aggregates) > 0 {
		if series.IsString {
			return nil, badRequest("aggregates are not supported for string series %s", q.Identifier())
		}
		points, err := aggregate(all[lo:hi], q, clamp(limit, s.limits.DatapointsAggregate))
		if err != nil {
			return nil, err
		}
		out.Points = points
		return out, nil
	}

	inside := all[lo:hi]
	if n := clamp(limit, s.limits.Datapoints); len(inside) > n {
		inside = inside[:n]
	}
	if q.IncludeOutsidePoints && lo > 0 {
		out.Points = append(out.Points, all[lo-1])
	}
	out.Points = append(out.Points, inside...)
	if q.IncludeOutsidePoints && hi < len(all) {
		out.Points = append(out.Points, all[hi])
	}
	return out, nil
}

// Snapshot copies the store state for persistence.
func (s *Store) Snapshot() types.SnapshotData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := types.SnapshotData{
		Resources:  make(map[types.ResourceKind][]types.Resource, len(s.resources)),
		Datapoints: make(map[int64][]types.Datapoint, len(s.points)),
		LastID:     s.lastID,
	}
	for kind, list := range s.resources {
		data.Resources[kind] = append([]types.Resource(nil), list...)
	}
	for id, pts := range s.points {
		data.Datapoints[id] = append([]types.Datapoint(nil), pts...)
	}
	return data
}

// Restore replaces the store state with data.
func (s *Store) Restore(data types.SnapshotData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resources = make(map[types.ResourceKind][]types.Resource, len(data.Resources))
	s.index = make(map[types.ResourceKind]map[string]int, len(data.Resources))
	s.points = make(map[int64][]types.Datapoint, len(data.Datapoints))
	s.lastID = data.LastID

	for kind, list := range data.Resources {
		s.resources[kind] = append([]types.Resource(nil), list...)
		idx := s.kindIndex(kind)
		for i, r := range list {
			if r.ExternalID != "" {
				idx[r.ExternalID] = i
			}
			if r.ID > s.lastID {
				s.lastID = r.ID
			}
		}
	}
	for id, pts := range data.Datapoints {
		sorted := append([]types.Datapoint(nil), pts...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
		s.points[id] = sorted
	}
}

// kindIndex returns the external ID index of kind. s.mu must be held for writing.
func (s *Store) kindIndex(kind types.ResourceKind) map[string]int {
	idx, ok := s.index[kind]
	if !ok {
		idx = make(map[string]int)
		s.index[kind] = idx
	}
	return idx
}

func (s *Store) locate(kind types.ResourceKind, id int64, externalID string) (int, bool) {
	if externalID != "" {
		pos, ok := s.index[kind][externalID]
		return pos, ok
	}
	for i, r := range s.resources[kind] {
		if id != 0 && r.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (s *Store) series(id int64, externalID string) (types.Resource, error) {
	pos, ok := s.locate(types.KindTimeSeries, id, externalID)
	if !ok {
		if externalID != "" {
			return types.Resource{}, notFound("time series externalId=%s does not exist", externalID)
		}
		return types.Resource{}, notFound("time series id=%d does not exist", id)
	}
	return s.resources[types.KindTimeSeries][pos], nil
}

func clamp(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}

type bucket struct {
	start         int64
	count         int
	sum, min, max float64
}

func aggregate(points []types.Datapoint, q types.DatapointsQuery, limit int) ([]types.Datapoint, error) {
	if q.Granularity == "" {
		return nil, badRequest("granularity is required with aggregates")
	}
	g, err := timeutil.GranularityToMs(q.Granularity)
	if err != nil {
		return nil, badRequest("%v", err)
	}
	for _, name := range q.Aggregates {
		switch name {
		case types.AggregateCount, types.AggregateSum, types.AggregateAverage, types.AggregateMin, types.AggregateMax:
		default:
			return nil, badRequest("unknown aggregate %q", name)
		}
	}

	var buckets []*bucket
	for _, p := range points {
		if p.Value == nil {
			continue
		}
		start := q.Start + (p.Timestamp-q.Start)/g*g
		if n := len(buckets); n == 0 || buckets[n-1].start != start {
			if n == limit {
				break
			}
			buckets = append(buckets, &bucket{start: start, min: math.Inf(1), max: math.Inf(-1)})
		}
		b := buckets[len(buckets)-1]
		v := *p.Value
		b.count++
		b.sum += v
		b.min = math.Min(b.min, v)
		b.max = math.Max(b.max, v)
	}

	out := make([]types.Datapoint, len(buckets))
	for i, b := range buckets {
		values := make(map[string]float64, len(q.Aggregates))
		for _, name := range q.Aggregates {
			switch name {
			case types.AggregateCount:
				values[name] = float64(b.count)
			case types.AggregateSum:
				values[name] = b.sum
			case types.AggregateAverage:
				values[name] = b.sum / float64(b.count)
			case types.AggregateMin:
				values[name] = b.min
			case types.AggregateMax:
				values[name] = b.max
			}
		}
		out[i] = types.Datapoint{Timestamp: b.start, Aggregates: values}
	}
	return out, nil
}
