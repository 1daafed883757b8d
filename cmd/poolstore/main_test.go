package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jittakal/poolstore/internal/database"
	"github.com/jittakal/poolstore/internal/flush"
	"github.com/jittakal/poolstore/internal/pool"
	"github.com/jittakal/poolstore/pkg/mutation"
)

// writeConfig writes a config using the in-memory store and a file-backed
// SQLite database under a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "application.yaml")
	content := fmt.Sprintf(`
application:
  name: poolstore-test
redis:
  in_memory: true
database:
  driver: sqlite3
  dsn: %s
  max_open_conns: 1
  max_idle_conns: 1
pool:
  max_pools: 4
  initial_pools: 2
flush:
  grace_period_ms: 0
observability:
  logging:
    level: error
`, filepath.Join(dir, "poolstore.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "poolstore dev")
	assert.Contains(t, out, "Go version:")
}

func TestPoolsStatusCommand(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "pools", "status")
	require.NoError(t, err)

	var snap pool.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, 4, snap.MaxPools)
	assert.Empty(t, snap.Stuck)
}

func TestPoolsResetRequiresForce(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "pools", "reset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
}

func TestPoolsRetryRequiresTarget(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "pools", "retry")
	require.Error(t, err)
}

func TestDrainCommandNothingActive(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "drain")
	require.NoError(t, err)

	var report drainReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, string(flush.StatusNoop), report.Status)
}

func TestPartitionsCreateAndList(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "partitions", "create", "events", "u1")
	require.NoError(t, err)
	name := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(name, "events-u1-"), "name = %s", name)

	out, err = execute(t, "--config", cfg, "partitions", "list", "events")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	assert.Equal(t, []string{name}, names)

	out, err = execute(t, "--config", cfg, "partitions", "active", "events", "u1")
	require.NoError(t, err)
	var active map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &active))
	assert.Equal(t, name, active["u1"])
}

func TestPartitionsResolveRejectsBadWindow(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "partitions", "resolve", "events", "u1",
		"--start", "2024-03-02", "--end", "2024-03-01")
	require.Error(t, err)
}

func TestApp_AppendAndDrain(t *testing.T) {
	env, err := loadEnv(writeConfig(t))
	require.NoError(t, err)

	ctx := context.Background()
	a, err := openApp(ctx, env)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.pools.Reset(ctx))
	require.NoError(t, a.engine.CreateTable(ctx, "orders", database.Schema{Columns: []database.Column{
		{Name: "id", Type: database.TypeInteger, PrimaryKey: true},
		{Name: "name", Type: database.TypeString},
	}}))

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, a.buffer.AppendMutation(ctx, &mutation.Mutation{
			Table:   "orders",
			Columns: []string{"id", "name"},
			Values:  []any{i, "row"},
		}))
	}

	res, err := a.coordinator.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, flush.StatusReleased, res.Status)
	assert.Equal(t, 3, res.Count)

	n, err := a.engine.CountRows(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestServe_StopsOnCancel(t *testing.T) {
	env, err := loadEnv(writeConfig(t))
	require.NoError(t, err)
	env.cfg.Observability.Health.Enabled = false
	env.cfg.Observability.Metrics.Enabled = false

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, serve(ctx, env))
}

func TestLoadEnv_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: oracle\n"), 0o644))

	_, err := loadEnv(path)
	require.Error(t, err)
}

func TestConfigPathFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/poolstore.yaml")
	assert.Equal(t, "/etc/poolstore.yaml", configPathFromEnv())

	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, defaultConfigPath, configPathFromEnv())
}

