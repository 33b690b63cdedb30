// ============================================================================
// Adaptive Queue CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides user-friendly command line interface based on Cobra framework
//
// Command Structure:
//   adaptiveq                      # Root command
//   ├── serve                      # Start the in-memory resource service (gRPC)
//   ├── retrieve                   # Fetch datapoints through the job queue
//   ├── count                      # Count datapoints of one series
//   ├── create                     # Create / upsert resources from a JSON file
//   ├── status                     # Show configuration
//   ├── --config, -c               # Config file (default: configs/default.yaml)
//   └── --log-level                # debug, info, warn, error
//
// Configuration Management:
//   YAML config file, see internal/config. A missing default config file
//   falls back to built-in defaults; an explicit --config must exist.
//
// serve Command:
//   1. Restore the store from the snapshot file (if configured)
//   2. Serve gRPC on server.port
//   3. Serve /metrics (if enabled)
//   4. Write snapshots every server.snapshot_interval
//   5. On SIGINT/SIGTERM: stop gRPC gracefully, write a final snapshot
//
//   Examples:
//     ./adaptiveq serve
//     ./adaptiveq serve -c custom-config.yaml
//
// Client Commands (retrieve / count / create):
//   Connect to client.server, run the request on a local JobQueue with
//   client.max_workers workers and print the result as JSON.
//
//   Examples:
//     ./adaptiveq retrieve --external-id temp --start 30d-ago
//     ./adaptiveq retrieve --id 12 --aggregates average --granularity 1h
//     ./adaptiveq count --external-id temp
//     ./adaptiveq create --kind assets -f assets.json --upsert
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/ChuLiYu/adaptive-queue/internal/client"
	"github.com/ChuLiYu/adaptive-queue/internal/config"
	"github.com/ChuLiYu/adaptive-queue/internal/resource"
	"github.com/ChuLiYu/adaptive-queue/internal/server"
	"github.com/ChuLiYu/adaptive-queue/internal/snapshot"
	"github.com/ChuLiYu/adaptive-queue/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultConfigFile = "configs/default.yaml"

var (
	configFile string
	logLevel   string
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "adaptiveq",
		Short: "Adaptive Queue: an adaptive job-splitting client for a resource service",
		Long: `Adaptive Queue runs resource requests on a worker pool that:
- splits large creates into service-sized chunks
- paginates datapoint retrieval with continuations
- splits long time ranges whenever workers sit idle
- merges partial results back in order`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel, cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildRetrieveCommand())
	rootCmd.AddCommand(buildCountCommand())
	rootCmd.AddCommand(buildCreateCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func setupLogging(level string, w io.Writer) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// loadConfig reads the config file. Only the default path may be missing.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && path == defaultConfigFile && errors.Is(err, os.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		return config.Default(), nil
	}
	return cfg, err
}

// ============================================================================
// serve
// ============================================================================

func buildServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the in-memory resource service",
		Long:  "Serve the resource store over gRPC, with snapshot persistence and Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
			if err != nil {
				return fmt.Errorf("failed to listen on port %d: %w", cfg.Server.Port, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, lis)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server.port")
	return cmd
}

// runServe serves until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config, lis net.Listener) error {
	logger := slog.Default().With("component", "serve")
	store := resource.NewStore(cfg.ResourceLimits())

	var snaps *snapshot.Manager
	if cfg.Server.SnapshotPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Server.SnapshotPath), 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		snaps = snapshot.NewManager(cfg.Server.SnapshotPath)
		data, err := snaps.Load()
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		store.Restore(data)
		logger.Info("store restored", "path", snaps.GetPath(), "last_id", data.LastID)
	}

	gs := grpc.NewServer()
	server.NewServer(store).Register(gs)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("received shutdown signal, stopping gracefully")
		gs.GracefulStop()
		return nil
	})

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("starting metrics server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if snaps != nil {
		g.Go(func() error {
			return snapshotLoop(gctx, store, snaps, cfg.Server.SnapshotInterval, cfg.Server.SnapshotKeep, logger)
		})
	}

	err := g.Wait()
	logger.Info("server stopped")
	return err
}

// snapshotLoop writes the store periodically and once more on shutdown.
func snapshotLoop(ctx context.Context, store *resource.Store, snaps *snapshot.Manager, interval time.Duration, keep int, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := snaps.WriteWithBackup(store.Snapshot(), keep); err != nil {
				return fmt.Errorf("failed to write final snapshot: %w", err)
			}
			logger.Info("final snapshot written", "path", snaps.GetPath())
			return nil
		case <-ticker.C:
			if err := snaps.WriteWithBackup(store.Snapshot(), keep); err != nil {
				logger.Error("snapshot failed", "error", err)
				continue
			}
			logger.Debug("snapshot written", "path", snaps.GetPath())
		}
	}
}

// ============================================================================
// Client commands
// ============================================================================

// dialClient connects to client.server and starts a Client on top of it.
func dialClient(cfg *config.Config) (*client.Client, func(), error) {
	conn, err := grpc.NewClient(cfg.Client.Server, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", cfg.Client.Server, err)
	}

	backend := resource.NewRateLimited(
		resource.NewGrpcClient(conn, cfg.ResourceLimits(), cfg.Client.RequestTimeout),
		cfg.Client.RateLimit,
		cfg.Client.RateBurst,
	)
	c, err := client.New(backend, client.WithMaxWorkers(cfg.Client.MaxWorkers), client.WithLogger(slog.Default()))
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Close(ctx); err != nil {
			slog.Warn("client did not stop cleanly", "error", err)
		}
		conn.Close()
	}
	return c, closeFn, nil
}

// timeArg passes integers through as milliseconds and anything else
// ("now", "2d-ago") as a string.
func timeArg(s string) any {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func buildRetrieveCommand() *cobra.Command {
	var (
		opts       client.RetrieveOptions
		start, end string
	)

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Retrieve datapoints",
		Long:  "Retrieve datapoints for one or more series and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(opts.IDs) == 0 && len(opts.ExternalIDs) == 0 {
				return fmt.Errorf("at least one --id or --external-id is required")
			}
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			c, closeFn, err := dialClient(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			opts.Start, opts.End = timeArg(start), timeArg(end)
			list, err := c.Datapoints().Retrieve(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("retrieve failed: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().Int64SliceVar(&opts.IDs, "id", nil, "series id (repeatable)")
	cmd.Flags().StringSliceVar(&opts.ExternalIDs, "external-id", nil, "series external id (repeatable)")
	cmd.Flags().StringVar(&start, "start", "0", "start: ms since epoch, now or <n><unit>-ago")
	cmd.Flags().StringVar(&end, "end", "now", "end: ms since epoch, now or <n><unit>-ago")
	cmd.Flags().StringSliceVar(&opts.Aggregates, "aggregates", nil, "aggregates: count, sum, average, min, max")
	cmd.Flags().StringVar(&opts.Granularity, "granularity", "", "aggregate granularity, e.g. 1h")
	cmd.Flags().BoolVar(&opts.IncludeOutsidePoints, "include-outside-points", false, "include the points just outside the range")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum points per series (0 = all)")

	return cmd
}

func buildCountCommand() *cobra.Command {
	var (
		series     types.Resource
		start, end string
	)

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count datapoints of one series",
		RunE: func(cmd *cobra.Command, args []string) error {
			if series.ID == 0 && series.ExternalID == "" {
				return fmt.Errorf("--id or --external-id is required")
			}
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			c, closeFn, err := dialClient(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := c.Datapoints().Count(cmd.Context(), series, timeArg(start), timeArg(end))
			if err != nil {
				return fmt.Errorf("count failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().Int64Var(&series.ID, "id", 0, "series id")
	cmd.Flags().StringVar(&series.ExternalID, "external-id", "", "series external id")
	cmd.Flags().BoolVar(&series.IsString, "string", false, "the series holds string values")
	cmd.Flags().StringVar(&start, "start", "0", "start: ms since epoch, now or <n><unit>-ago")
	cmd.Flags().StringVar(&end, "end", "now", "end: ms since epoch, now or <n><unit>-ago")

	return cmd
}

func buildCreateCommand() *cobra.Command {
	var (
		kind     string
		filePath string
		upsert   bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create resources from a JSON file",
		Long:  "Read a JSON array of resources and create them, or upsert them with --upsert",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("failed to read resource file: %w", err)
			}
			var items []types.Resource
			if err := json.Unmarshal(data, &items); err != nil {
				return fmt.Errorf("failed to parse resource file: %w", err)
			}

			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			c, closeFn, err := dialClient(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			api := c.Resources(types.ResourceKind(kind))
			slog.Info("submitting resources", "kind", kind, "count", len(items), "upsert", upsert)
			if upsert {
				result, err := api.Upsert(cmd.Context(), items)
				if err != nil {
					return fmt.Errorf("upsert failed: %w", err)
				}
				return writeJSON(cmd.OutOrStdout(), result)
			}
			created, err := api.Create(cmd.Context(), items)
			if err != nil {
				return fmt.Errorf("create failed: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), created)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(types.KindAssets), "resource kind: assets, events, timeseries")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "JSON file containing the resources")
	cmd.MarkFlagRequired("file")
	cmd.Flags().BoolVar(&upsert, "upsert", false, "update resources whose external id already exists")

	return cmd
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration status",
		Long:  "Display the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			showStatus(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
	return cmd
}

func showStatus(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "\n╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║           Adaptive Queue Status                           ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "📋 Client:")
	fmt.Fprintf(w, "  ├─ Config File:     %s\n", configFile)
	fmt.Fprintf(w, "  ├─ Server:          %s\n", cfg.Client.Server)
	fmt.Fprintf(w, "  ├─ Max Workers:     %d\n", cfg.Client.MaxWorkers)
	fmt.Fprintf(w, "  ├─ Request Timeout: %s\n", cfg.Client.RequestTimeout)
	if cfg.Client.RateLimit > 0 {
		fmt.Fprintf(w, "  └─ Rate Limit:      %.1f/s (burst %d)\n", cfg.Client.RateLimit, cfg.Client.RateBurst)
	} else {
		fmt.Fprintln(w, "  └─ Rate Limit:      off")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "📏 Limits:")
	fmt.Fprintf(w, "  ├─ Create:               %d\n", cfg.Limits.CreateLimit)
	fmt.Fprintf(w, "  ├─ Datapoints:           %d\n", cfg.Limits.DatapointsLimit)
	fmt.Fprintf(w, "  └─ Datapoints Aggregate: %d\n", cfg.Limits.DatapointsAggregateLimit)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "💾 Server:")
	fmt.Fprintf(w, "  ├─ Port:            %d\n", cfg.Server.Port)
	if cfg.Server.SnapshotPath != "" {
		fmt.Fprintf(w, "  └─ Snapshot:        %s (every %s, keep %d)\n",
			cfg.Server.SnapshotPath, cfg.Server.SnapshotInterval, cfg.Server.SnapshotKeep)
	} else {
		fmt.Fprintln(w, "  └─ Snapshot:        ⚠️  in-memory only")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "📡 Metrics:")
	if cfg.Metrics.Enabled {
		fmt.Fprintf(w, "  └─ Status: ✅ Enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Fprintln(w, "  └─ Status: ⚠️  Disabled")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
}
