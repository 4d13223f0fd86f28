// Package testutils 提供測試用的共用工具和輔助函數
//
// 包括：
//   - RecordingConn：記錄收到事件的假連接
//   - Miniredis：記憶體中的 Redis，給跨節點廣播測試使用
//   - Redis 測試容器：需要 Docker 的整合測試
//   - Logger：只輸出錯誤的測試日誌
package testutils

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/system-design/remote-pairing/internal/protocol"
)

// ErrSendFailed 假連接被設定為發送失敗時回傳
var ErrSendFailed = errors.New("模擬發送失敗")

// RecordingConn 記錄所有收到事件的假連接
type RecordingConn struct {
	id       string
	mu       sync.Mutex
	received []protocol.Outbound
	fail     bool
}

// NewConn 創建假連接
func NewConn(id string) *RecordingConn {
	return &RecordingConn{id: id}
}

func (c *RecordingConn) ID() string { return c.id }

// Send 記錄事件；設定為失敗時回傳 ErrSendFailed。
func (c *RecordingConn) Send(out protocol.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return ErrSendFailed
	}
	c.received = append(c.received, out)
	return nil
}

// FailSends 讓後續的 Send 全部失敗（模擬已斷線的對端）
func (c *RecordingConn) FailSends() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = true
}

// Received 目前收到的全部事件
func (c *RecordingConn) Received() []protocol.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Outbound, len(c.received))
	copy(out, c.received)
	return out
}

// Kinds 目前收到的事件種類
func (c *RecordingConn) Kinds() []protocol.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]protocol.Kind, 0, len(c.received))
	for _, out := range c.received {
		kinds = append(kinds, out.Kind)
	}
	return kinds
}

// Last 最後一個收到的事件
func (c *RecordingConn) Last() (protocol.Outbound, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.received) == 0 {
		return protocol.Outbound{}, false
	}
	return c.received[len(c.received)-1], true
}

// Reset 清除已記錄的事件
func (c *RecordingConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = nil
}

// Logger 只輸出錯誤級別的測試日誌
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// SetupRedis 啟動記憶體 Redis 並回傳連線，測試結束時自動關閉。
func SetupRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return mr, client
}
