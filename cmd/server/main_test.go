package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/remote-pairing/internal/config"
	"github.com/koopa0/system-design/remote-pairing/internal/testutils"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startApp(t *testing.T, ctx context.Context, cfg *config.Config) *httptest.Server {
	t.Helper()
	a, err := newApp(ctx, cfg, discardLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(a.handler)
	t.Cleanup(srv.Close)
	t.Cleanup(a.close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func exchange(t *testing.T, conn *websocket.Conn, event, roomID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": map[string]string{"roomID": roomID}}))
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	return env.Event, env.Data
}

// TestApp_ClusterRelay 主畫面與控制器連到不同實例，經由 Redis 匯流排轉發
func TestApp_ClusterRelay(t *testing.T) {
	mr, _ := testutils.SetupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default()
	cfg.Cluster.Kind = "redis"
	cfg.Cluster.RedisURL = "redis://" + mr.Addr()
	require.NoError(t, cfg.Validate())

	nodeA := startApp(t, ctx, cfg)
	nodeB := startApp(t, ctx, cfg)

	mainConn := dial(t, nodeA)
	ctrl := dial(t, nodeB)

	exchange(t, mainConn, "main-pair", "abc123")
	event, _ := readEvent(t, mainConn)
	assert.Equal(t, "pairing-accepted-main", event)

	exchange(t, ctrl, "controller-pair", "abc123")
	event, _ = readEvent(t, ctrl)
	assert.Equal(t, "pairing-succeeded", event)
	event, _ = readEvent(t, mainConn)
	assert.Equal(t, "pairing-succeeded", event, "另一個實例的主畫面也應收到配對成功")

	require.NoError(t, ctrl.WriteJSON(map[string]any{
		"event": "controller-pointer-move",
		"data":  map[string]any{"x": 10, "y": 20},
	}))
	event, data := readEvent(t, mainConn)
	assert.Equal(t, "pointer-move-to-main", event)
	assert.JSONEq(t, `{"x":10,"y":20}`, string(data))
}

// TestApp_StaticAndAPI 單機模式的 HTTP 路由
func TestApp_StaticAndAPI(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>remote</html>"), 0o644))

	cfg := config.Default()
	cfg.Static.Dir = dir
	srv := startApp(t, context.Background(), cfg)

	resp, err := srv.Client().Get(srv.URL + "/controller")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "<html>remote</html>", string(body))

	resp, err = srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/api/v1/rooms/nobody")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)
}

// TestNewApp_Errors 組裝失敗時回傳錯誤
func TestNewApp_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.Static.Dir = filepath.Join(t.TempDir(), "missing")
	_, err := newApp(context.Background(), cfg, discardLogger())
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Cluster.Kind = "redis"
	cfg.Cluster.RedisURL = "redis://127.0.0.1:1"
	_, err = newApp(context.Background(), cfg, discardLogger())
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestRootCommand_InvalidFlags(t *testing.T) {
	t.Setenv("PORT", "")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--log-format", "xml"})
	assert.Error(t, cmd.Execute())

	cmd = newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, cmd.Execute())
}
