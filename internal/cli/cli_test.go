package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ChuLiYu/adaptive-queue/internal/config"
	"github.com/ChuLiYu/adaptive-queue/internal/snapshot"
	"github.com/ChuLiYu/adaptive-queue/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "adaptiveq", cmd.Use)
	assert.Equal(t, "1.0.0", cmd.Version)

	// 檢查子命令
	commandNames := make(map[string]bool)
	for _, c := range cmd.Commands() {
		commandNames[c.Use] = true
	}
	for _, name := range []string{"serve", "retrieve", "count", "create", "status"} {
		assert.True(t, commandNames[name], "Should have %q command", name)
	}

	// 檢查持久化標誌
	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestBuildCreateCommand(t *testing.T) {
	cmd := buildCreateCommand()

	fileFlag := cmd.Flags().Lookup("file")
	require.NotNil(t, fileFlag, "Should have --file flag")
	assert.Equal(t, "f", fileFlag.Shorthand)
	assert.NotNil(t, cmd.Flags().Lookup("upsert"))
	assert.NotNil(t, cmd.RunE)
}

func TestTimeArg(t *testing.T) {
	assert.Equal(t, int64(1500), timeArg("1500"))
	assert.Equal(t, "now", timeArg("now"))
	assert.Equal(t, "2d-ago", timeArg("2d-ago"))
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := loadConfig(defaultConfigFile)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	// 明確指定的設定檔必須存在
	_, err = loadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	root := BuildCLI()
	root.SetArgs([]string{"--log-level", "loud", "status"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestStatusCommand(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("client:\n  max_workers: 7\nmetrics:\n  enabled: false\n"), 0644))

	out := runCLI(t, "-c", configPath, "status")
	assert.Contains(t, out, "Max Workers:     7")
	assert.Contains(t, out, "Disabled")
}

func TestRetrieveRequiresSeries(t *testing.T) {
	root := BuildCLI()
	root.SetArgs([]string{"retrieve"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	assert.Error(t, root.Execute())
}

// ============================================================================
// serve + client commands
// ============================================================================

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := BuildCLI()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestServeAndClientCommands(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "store.json")

	// 預先寫入一個含資料點的快照，serve 啟動時載入
	points := make([]types.Datapoint, 250)
	for i := range points {
		points[i] = types.NumericPoint(int64(1000+i*10), float64(i))
	}
	require.NoError(t, snapshot.NewManager(snapshotPath).Write(types.SnapshotData{
		Resources: map[types.ResourceKind][]types.Resource{
			types.KindTimeSeries: {{ID: 1, ExternalID: "temp", Name: "Temperature"}},
		},
		Datapoints: map[int64][]types.Datapoint{1: points},
		LastID:     1,
	}))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Limits.DatapointsLimit = 100
	cfg.Server.SnapshotPath = snapshotPath
	cfg.Server.SnapshotInterval = time.Hour
	cfg.Metrics.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- runServe(ctx, cfg, lis) }()

	configPath := filepath.Join(dir, "config.yaml")
	configYAML := fmt.Sprintf(`
client:
  max_workers: 4
  server: "%s"
  request_timeout: 5s
limits:
  datapoints_limit: 100
metrics:
  enabled: false
`, lis.Addr().String())
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0644))

	// retrieve
	out := runCLI(t, "-c", configPath, "retrieve", "--external-id", "temp", "--start", "1000", "--end", "100000")
	var list types.DatapointsList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, 250, list[0].Len())
	assert.Equal(t, int64(3490), list[0].Points[249].Timestamp)

	// count
	out = runCLI(t, "-c", configPath, "count", "--external-id", "temp")
	assert.Equal(t, "250", strings.TrimSpace(out))

	// create, then upsert the same file
	resourceFile := filepath.Join(dir, "assets.json")
	require.NoError(t, os.WriteFile(resourceFile, []byte(`[{"externalId": "pump-1"}, {"externalId": "pump-2"}]`), 0644))

	out = runCLI(t, "-c", configPath, "create", "--kind", "assets", "-f", resourceFile)
	var created []types.Resource
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.Len(t, created, 2)
	assert.Equal(t, int64(2), created[0].ID, "ids continue after the restored snapshot")

	out = runCLI(t, "-c", configPath, "create", "--kind", "assets", "-f", resourceFile, "--upsert")
	var upserted types.UpsertResult
	require.NoError(t, json.Unmarshal([]byte(out), &upserted))
	assert.Len(t, upserted.Created, 0)
	assert.Len(t, upserted.Updated, 2)

	// 停止 serve，應寫入最後一次快照
	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}

	data, err := snapshot.NewManager(snapshotPath).Load()
	require.NoError(t, err)
	assert.Len(t, data.Resources[types.KindAssets], 2)
	assert.Len(t, data.Datapoints[1], 250)

	backups, err := snapshot.NewManager(snapshotPath).Backups()
	require.NoError(t, err)
	assert.NotEmpty(t, backups)
}

func TestCreateRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))

	root := BuildCLI()
	root.SetArgs([]string{"create", "-f", bad})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse resource file")
}
