package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ChuLiYu/adaptive-queue/internal/resource"
	"github.com/ChuLiYu/adaptive-queue/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// startBufServer serves store over an in-memory listener and returns a
// GrpcClient connected to it.
func startBufServer(t *testing.T, store *resource.Store) *resource.GrpcClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewServer(store).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return resource.NewGrpcClient(conn, store.Limits(), 5*time.Second)
}

func TestCreateAndUpdateOverGrpc(t *testing.T) {
	store := resource.NewStore(resource.DefaultLimits())
	client := startBufServer(t, store)
	ctx := context.Background()

	created, err := client.Create(ctx, types.KindAssets, []types.Resource{
		{ExternalID: "pump-1", Name: "Pump 1", Metadata: map[string]string{"site": "north"}},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.NotZero(t, created[0].ID)
	assert.Equal(t, "north", created[0].Metadata["site"])

	updated, err := client.Update(ctx, types.KindAssets, []types.Resource{{ExternalID: "pump-1", Name: "Pump One"}})
	require.NoError(t, err)
	assert.Equal(t, "Pump One", updated[0].Name)

	assert.Equal(t, "Pump One", store.List(types.KindAssets)[0].Name)
}

func TestDuplicateConflictSurvivesTransport(t *testing.T) {
	store := resource.NewStore(resource.DefaultLimits())
	client := startBufServer(t, store)
	ctx := context.Background()

	_, err := client.Create(ctx, types.KindAssets, []types.Resource{{ExternalID: "a"}})
	require.NoError(t, err)

	_, err = client.Create(ctx, types.KindAssets, []types.Resource{{ExternalID: "a"}, {ExternalID: "b"}})
	var apiErr *resource.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, resource.CodeConflict, apiErr.Code)
	assert.Equal(t, []string{"a"}, apiErr.Duplicated)
}

func TestRetrieveDatapointsOverGrpc(t *testing.T) {
	store := resource.NewStore(resource.DefaultLimits())
	ctx := context.Background()
	_, err := store.Create(ctx, types.KindTimeSeries, []types.Resource{{ExternalID: "temp"}})
	require.NoError(t, err)
	require.NoError(t, store.InsertDatapoints(ctx, 0, "temp", []types.Datapoint{
		types.NumericPoint(1000, 20.5),
		types.NumericPoint(2000, 21.0),
		types.NumericPoint(3000, 21.5),
	}))

	client := startBufServer(t, store)

	dps, err := client.RetrieveDatapoints(ctx, types.DatapointsQuery{ExternalID: "temp", Start: 0, End: 2500}, 10)
	require.NoError(t, err)
	assert.Equal(t, "temp", dps.ExternalID)
	assert.Equal(t, []int64{1000, 2000}, dps.Timestamps())
	assert.Equal(t, 21.0, *dps.Points[1].Value)

	_, err = client.RetrieveDatapoints(ctx, types.DatapointsQuery{ExternalID: "missing", Start: 0, End: 10}, 10)
	var apiErr *resource.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, resource.CodeNotFound, apiErr.Code)
}

func TestRateLimitedClient(t *testing.T) {
	store := resource.NewStore(resource.DefaultLimits())
	limited := resource.NewRateLimited(startBufServer(t, store), 20, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := limited.Create(context.Background(), types.KindEvents, []types.Resource{{Name: "event"}})
		require.NoError(t, err)
	}
	// Burst of one at 20/s: the second and third calls each wait ~50ms
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Len(t, store.List(types.KindEvents), 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := limited.Create(ctx, types.KindEvents, nil)
	assert.Error(t, err)
}

func TestRateLimitDisabled(t *testing.T) {
	store := resource.NewStore(resource.DefaultLimits())
	assert.Same(t, store, resource.NewRateLimited(store, 0, 0))
}
