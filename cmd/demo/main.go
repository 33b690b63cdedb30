package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChuLiYu/adaptive-queue/internal/client"
	"github.com/ChuLiYu/adaptive-queue/internal/config"
	"github.com/ChuLiYu/adaptive-queue/internal/metrics"
	"github.com/ChuLiYu/adaptive-queue/internal/resource"
	"github.com/ChuLiYu/adaptive-queue/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	minuteMs = int64(60_000)
	dayMs    = 24 * 60 * minuteMs
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/demo/main.go <retrieve|upsert>")
		os.Exit(1)
	}
	mode := os.Args[1]

	cfg, err := config.Load("configs/default.yaml")
	if err != nil {
		log.Printf("Using built-in defaults: %v", err)
		cfg = config.Default()
	}

	// Small limits so that splitting and pagination are visible
	store := resource.NewStore(resource.Limits{Create: 50, Datapoints: 1000, DatapointsAggregate: 100})
	collector := metrics.NewCollector(prometheus.NewRegistry())

	c, err := client.New(store, client.WithMaxWorkers(cfg.Client.MaxWorkers), client.WithMetrics(collector))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	fmt.Printf("✓ Client started with %d workers\n", cfg.Client.MaxWorkers)

	if cfg.Metrics.Enabled {
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: collector.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v", err)
			}
		}()
		defer srv.Close()
		fmt.Printf("📡 Metrics on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "retrieve":
		err = demoRetrieve(ctx, c, store)
	case "upsert":
		err = demoUpsert(ctx, c)
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		log.Printf("Demo failed: %v", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Close(closeCtx); err != nil {
		log.Printf("Client did not stop cleanly: %v", err)
	}
	fmt.Println("✓ Client stopped")
}

// demoRetrieve fetches 30 days of minute data, 1000 points per request.
func demoRetrieve(ctx context.Context, c *client.Client, store *resource.Store) error {
	if _, err := store.Create(ctx, types.KindTimeSeries, []types.Resource{{ExternalID: "demo-flow", Name: "Flow"}}); err != nil {
		return err
	}
	start := 30 * dayMs
	points := make([]types.Datapoint, 30*24*60)
	for i := range points {
		points[i] = types.NumericPoint(start+int64(i)*minuteMs, float64(i%1440))
	}
	if err := store.InsertDatapoints(ctx, 0, "demo-flow", points); err != nil {
		return err
	}
	fmt.Printf("✓ Seeded %d datapoints\n", len(points))

	began := time.Now()
	j, err := c.Datapoints().RetrieveAsync(client.RetrieveOptions{
		ExternalIDs: []string{"demo-flow"},
		Start:       start,
		End:         start + 30*dayMs,
	})
	if err != nil {
		return err
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !j.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fmt.Printf("📊 %s\n", c.Queue())
		}
	}

	list, err := j.Result()
	if err != nil {
		return err
	}
	dps := list.(types.DatapointsList)[0]
	fmt.Printf("\n✓ Retrieved %d datapoints in %s\n", dps.Len(), time.Since(began).Round(time.Millisecond))
	return nil
}

// demoUpsert creates half of 500 assets, then upserts all of them.
func demoUpsert(ctx context.Context, c *client.Client) error {
	assets := make([]types.Resource, 500)
	for i := range assets {
		assets[i] = types.Resource{ExternalID: fmt.Sprintf("demo-asset-%03d", i), Name: "pump"}
	}
	assetsAPI := c.Resources(types.KindAssets)

	created, err := assetsAPI.Create(ctx, assets[:250])
	if err != nil {
		return err
	}
	fmt.Printf("✓ Created %d assets\n", len(created))

	result, err := assetsAPI.Upsert(ctx, assets)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Upsert: %d created, %d updated\n", len(result.Created), len(result.Updated))
	return nil
}
