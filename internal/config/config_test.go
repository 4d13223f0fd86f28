package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/remote-pairing/internal/cluster"
	"github.com/koopa0/system-design/remote-pairing/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "REDIS_URL", "NATS_URL", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, ":5000", cfg.Addr())
	assert.Equal(t, int64(4096), cfg.WebSocket.ReadLimit)
	assert.Equal(t, 54*time.Second, cfg.WebSocket.PingPeriod)
	assert.True(t, cfg.Session.NotifyPeerOnDisconnect)
	assert.True(t, cfg.Relay.ControllerOnly)
	assert.Equal(t, "standard", cfg.Protocol.Dialect)
	assert.Equal(t, cluster.KindNone, cfg.Cluster.Kind)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 8080
websocket:
  send_buffer: 16
  ping_period: 20s
  pong_wait: 30s
  allowed_origins: ["https://remote.example"]
session:
  notify_peer_on_disconnect: false
protocol:
  dialect: legacy
static:
  dir: ./public
log:
  level: debug
  format: json
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 16, cfg.WebSocket.SendBuffer)
	assert.Equal(t, 20*time.Second, cfg.WebSocket.PingPeriod)
	assert.Equal(t, []string{"https://remote.example"}, cfg.WebSocket.AllowedOrigins)
	assert.False(t, cfg.Session.NotifyPeerOnDisconnect)
	assert.Equal(t, "legacy", cfg.Protocol.Dialect)
	assert.Equal(t, "./public", cfg.Static.Dir)
	assert.Equal(t, "index.html", cfg.Static.Index, "未設定的欄位保留預設值")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, cluster.KindRedis, cfg.Cluster.Kind)
	assert.Equal(t, "redis://localhost:6379/0", cfg.ClusterOptions().RedisURL)
	assert.Equal(t, "warn", cfg.Log.Level)

	t.Setenv("PORT", "not-a-port")
	_, err = config.Load("")
	assert.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "server: [oops"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *config.Config)
	}{
		{"port", func(c *config.Config) { c.Server.Port = 70000 }},
		{"read limit", func(c *config.Config) { c.WebSocket.ReadLimit = 0 }},
		{"send buffer", func(c *config.Config) { c.WebSocket.SendBuffer = -1 }},
		{"heartbeat", func(c *config.Config) { c.WebSocket.PingPeriod = time.Minute }},
		{"dialect", func(c *config.Config) { c.Protocol.Dialect = "klingon" }},
		{"redis url", func(c *config.Config) { c.Cluster.Kind = "redis" }},
		{"nats url", func(c *config.Config) { c.Cluster.Kind = "nats" }},
		{"cluster kind", func(c *config.Config) { c.Cluster.Kind = "kafka" }},
		{"log format", func(c *config.Config) { c.Log.Format = "xml" }},
	}

	require.NoError(t, config.Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
