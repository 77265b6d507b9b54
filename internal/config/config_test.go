package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
world:
  dir: /srv/world
  compression_level: 9
server:
  rest_port: 9000
  read_only: true
logging:
  level: debug
  components:
    region: trace
events:
  nats_url: nats://127.0.0.1:4222
  retention: 2h
  node_id: node-a
  replicate: true
  flush_every: 250ms
cache:
  redis_url: localhost:6379
  default_ttl: 45s
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/world", cfg.World.GetDir())
	assert.Equal(t, 9, cfg.World.CompressionLevel)
	assert.Equal(t, 9000, cfg.Server.GetRESTPort())
	assert.True(t, cfg.Server.ReadOnly)
	assert.True(t, cfg.Server.MetricsEnabled, "значение по умолчанию сохраняется")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, map[string]string{"region": "trace"}, cfg.Logging.Components)
	assert.Equal(t, "mca-tools", cfg.Telemetry.ServiceName)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Events.GetNATSURL())
	assert.Equal(t, 2*time.Hour, cfg.Events.Retention)
	assert.Equal(t, 1024, cfg.Events.BufferSize)
	assert.Equal(t, "node-a", cfg.Events.GetNodeID())
	assert.True(t, cfg.Events.Replicate)
	assert.Equal(t, 256, cfg.Events.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Events.FlushEvery)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisURL)
	assert.Equal(t, 45*time.Second, cfg.Cache.DefaultTTL)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("MCA_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvFallbacks(t *testing.T) {
	var s ServerConfig
	t.Setenv("MCA_REST_PORT", "")
	assert.Equal(t, 8088, s.GetRESTPort())

	t.Setenv("MCA_REST_PORT", "7000")
	assert.Equal(t, 7000, s.GetRESTPort())

	t.Setenv("MCA_REST_PORT", "bogus")
	assert.Equal(t, 8088, s.GetRESTPort())

	var w WorldConfig
	t.Setenv("MCA_WORLD_DIR", "/tmp/world")
	assert.Equal(t, "/tmp/world", w.GetDir())

	var st StorageConfig
	t.Setenv("MCA_SNAPSHOT_DIR", "")
	assert.Equal(t, "data", st.GetSnapshotDir())

	var ev EventsConfig
	t.Setenv("MCA_NODE_ID", "node-b")
	assert.Equal(t, "node-b", ev.GetNodeID())
}
