package resource

import (
	"context"
	"testing"
	"time"

	"github.com/ChuLiYu/adaptive-queue/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(Limits{Create: 10, Datapoints: 100, DatapointsAggregate: 50})
	s.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return s
}

func seedSeries(t *testing.T, s *Store, externalID string, isString bool, points []types.Datapoint) int64 {
	t.Helper()
	created, err := s.Create(context.Background(), types.KindTimeSeries,
		[]types.Resource{{ExternalID: externalID, IsString: isString}})
	require.NoError(t, err)
	require.NoError(t, s.InsertDatapoints(context.Background(), 0, externalID, points))
	return created[0].ID
}

func linearPoints(from, to, step int64) []types.Datapoint {
	var out []types.Datapoint
	for ts := from; ts < to; ts += step {
		out = append(out, types.NumericPoint(ts, float64(ts)))
	}
	return out
}

// ============================================================================
// Resources
// ============================================================================

func TestCreateAssignsServerFields(t *testing.T) {
	s := newTestStore(t)

	created, err := s.Create(context.Background(), types.KindAssets, []types.Resource{
		{ExternalID: "a", Name: "A", ID: 999},
		{Name: "no external id"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, int64(1), created[0].ID, "client supplied IDs are ignored")
	assert.Equal(t, int64(2), created[1].ID)
	assert.Equal(t, int64(1_700_000_000_000), created[0].CreatedTime)
	assert.Equal(t, created[0].CreatedTime, created[0].LastUpdatedTime)
	assert.Len(t, s.List(types.KindAssets), 2)
}

func TestCreateRejectsDuplicates(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), types.KindAssets, []types.Resource{{ExternalID: "a"}})
	require.NoError(t, err)

	_, err = s.Create(context.Background(), types.KindAssets, []types.Resource{
		{ExternalID: "a"}, {ExternalID: "b"}, {ExternalID: "b"},
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeConflict, apiErr.Code)
	assert.Equal(t, []string{"a", "b"}, apiErr.Duplicated)

	dups, ok := DuplicatedIDs(err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, dups)

	// Nothing was inserted
	assert.Len(t, s.List(types.KindAssets), 1)

	// Kinds are independent
	_, err = s.Create(context.Background(), types.KindEvents, []types.Resource{{ExternalID: "a"}})
	assert.NoError(t, err)
}

func TestCreateEnforcesLimit(t *testing.T) {
	s := newTestStore(t)
	items := make([]types.Resource, 11)

	_, err := s.Create(context.Background(), types.KindAssets, items)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeBadRequest, apiErr.Code)
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), types.KindAssets, []types.Resource{
		{ExternalID: "a", Name: "old", Description: "keep"},
	})
	require.NoError(t, err)

	updated, err := s.Update(context.Background(), types.KindAssets, []types.Resource{
		{ExternalID: "a", Name: "new", Metadata: map[string]string{"k": "v"}},
	})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "new", updated[0].Name)
	assert.Equal(t, "keep", updated[0].Description)
	assert.Equal(t, map[string]string{"k": "v"}, updated[0].Metadata)

	_, err = s.Update(context.Background(), types.KindAssets, []types.Resource{{ExternalID: "missing"}})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeNotFound, apiErr.Code)
}

func TestCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, types.KindAssets, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// Datapoints
// ============================================================================

func TestRetrieveRaw(t *testing.T) {
	s := newTestStore(t)
	seedSeries(t, s, "ts", false, linearPoints(0, 1000, 10))

	dps, err := s.RetrieveDatapoints(context.Background(),
		types.DatapointsQuery{ExternalID: "ts", Start: 100, End: 200}, 0)
	require.NoError(t, err)
	assert.Equal(t, "ts", dps.ExternalID)
	require.Equal(t, 10, dps.Len())
	assert.Equal(t, int64(100), dps.Points[0].Timestamp)
	assert.Equal(t, int64(190), dps.Points[9].Timestamp)
}

func TestRetrieveRawLimit(t *testing.T) {
	s := newTestStore(t)
	seedSeries(t, s, "ts", false, linearPoints(0, 5000, 10))

	dps, err := s.RetrieveDatapoints(context.Background(),
		types.DatapointsQuery{ExternalID: "ts", Start: 0, End: 5000}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 10, 20}, dps.Timestamps())

	// Clamped to the service limit
	dps, err = s.RetrieveDatapoints(context.Background(),
		types.DatapointsQuery{ExternalID: "ts", Start: 0, End: 5000}, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, 100, dps.Len())
}

func TestRetrieveIncludeOutsidePoints(t *testing.T) {
	s := newTestStore(t)
	seedSeries(t, s, "ts", false, linearPoints(0, 1000, 10))

	dps, err := s.RetrieveDatapoints(context.Background(),
		types.DatapointsQuery{ExternalID: "ts", Start: 105, End: 135, IncludeOutsidePoints: true}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 110, 120, 130, 140}, dps.Timestamps())

	// Outside points come on top of the limit
	dps, err = s.RetrieveDatapoints(context.Background(),
		types.DatapointsQuery{ExternalID: "ts", Start: 105, End: 135, IncludeOutsidePoints: true}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 110, 120, 140}, dps.Timestamps())
}

func TestRetrieveAggregates(t *testing.T) {
	s := newTestStore(t)
	seedSeries(t, s, "ts", false, []types.Datapoint{
		types.NumericPoint(0, 1),
		types.NumericPoint(30, 3),
		types.NumericPoint(60, 5),
		types.NumericPoint(200, 7),
	})

	dps, err := s.RetrieveDatapoints(context.Background(), types.DatapointsQuery{
		ExternalID:  "ts",
		Start:       0,
		End:         1000,
		Aggregates:  []string{"count", "sum", "average", "min", "max"},
		Granularity: "1s",
	}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, dps.Len(), "all points fall in the first one-second bucket")
	agg := dps.Points[0].Aggregates
	assert.Equal(t, 4.0, agg["count"])
	assert.Equal(t, 16.0, agg["sum"])
	assert.Equal(t, 4.0, agg["average"])
	assert.Equal(t, 1.0, agg["min"])
	assert.Equal(t, 7.0, agg["max"])
}

func TestRetrieveAggregateBuckets(t *testing.T) {
	s := newTestStore(t)
	// One point per second for ten minutes
	seedSeries(t, s, "ts", false, linearPoints(0, 600_000, 1000))

	dps, err := s.RetrieveDatapoints(context.Background(), types.DatapointsQuery{
		ExternalID:  "ts",
		Start:       60_000,
		End:         600_000,
		Aggregates:  []string{"count"},
		Granularity: "1m",
	}, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{60_000, 120_000, 180_000, 240_000}, dps.Timestamps())
	assert.Equal(t, []float64{60, 60, 60, 60}, dps.Aggregate("count"))
}

func TestRetrieveErrors(t *testing.T) {
	s := newTestStore(t)
	seedSeries(t, s, "text", true, []types.Datapoint{types.StringPoint(1, "on")})

	testCases := []struct {
		name  string
		query types.DatapointsQuery
		code  int
	}{
		{"missing series", types.DatapointsQuery{ExternalID: "nope", Start: 0, End: 10}, CodeNotFound},
		{"empty range", types.DatapointsQuery{ExternalID: "text", Start: 10, End: 10}, CodeBadRequest},
		{"string aggregates", types.DatapointsQuery{ExternalID: "text", Start: 0, End: 10, Aggregates: []string{"count"}, Granularity: "1s"}, CodeBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.RetrieveDatapoints(context.Background(), tc.query, 0)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.code, apiErr.Code)
		})
	}
}

func TestInsertDatapointsValueType(t *testing.T) {
	s := newTestStore(t)
	seedSeries(t, s, "num", false, nil)

	err := s.InsertDatapoints(context.Background(), 0, "num", []types.Datapoint{types.StringPoint(1, "x")})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeBadRequest, apiErr.Code)
}

func TestInsertDatapointsReplacesTimestamp(t *testing.T) {
	s := newTestStore(t)
	id := seedSeries(t, s, "num", false, []types.Datapoint{types.NumericPoint(5, 1), types.NumericPoint(1, 1)})
	require.NoError(t, s.InsertDatapoints(context.Background(), id, "", []types.Datapoint{types.NumericPoint(5, 9)}))

	dps, err := s.RetrieveDatapoints(context.Background(), types.DatapointsQuery{ID: id, Start: 0, End: 10}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 5}, dps.Timestamps())
	assert.Equal(t, 9.0, *dps.Points[1].Value)
}

// ============================================================================
// Snapshot
// ============================================================================

func TestSnapshotRestore(t *testing.T) {
	s := newTestStore(t)
	seedSeries(t, s, "ts", false, linearPoints(0, 100, 10))
	_, err := s.Create(context.Background(), types.KindAssets, []types.Resource{{ExternalID: "a"}})
	require.NoError(t, err)

	restored := newTestStore(t)
	restored.Restore(s.Snapshot())

	assert.Equal(t, s.List(types.KindAssets), restored.List(types.KindAssets))

	// The external ID index and the ID counter survive
	_, err = restored.Create(context.Background(), types.KindAssets, []types.Resource{{ExternalID: "a"}})
	_, dup := DuplicatedIDs(err)
	assert.True(t, dup)

	created, err := restored.Create(context.Background(), types.KindAssets, []types.Resource{{ExternalID: "b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), created[0].ID)

	dps, err := restored.RetrieveDatapoints(context.Background(), types.DatapointsQuery{ExternalID: "ts", Start: 0, End: 100}, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, dps.Len())
}
