// Package transport 以 WebSocket 承載配對協議。
//
// 設計：
//   - Hub 集中管理所有連接，每個連接一個讀取 goroutine 與一個寫入 goroutine
//   - 同一連接的入站事件由讀取 goroutine 依序交給 session.Service
//   - 出站事件經由緩衝 channel 交給寫入 goroutine，Send 不阻塞
//   - Ping/Pong 心跳偵測死連接（54s/60s）
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/koopa0/system-design/remote-pairing/internal/protocol"
	"github.com/koopa0/system-design/remote-pairing/internal/session"
)

// Config 傳輸層設定
type Config struct {
	ReadLimit      int64         // 單一 frame 上限（bytes）
	SendBuffer     int           // 每個連接的發送緩衝
	PingPeriod     time.Duration // 心跳間隔，必須小於 PongWait
	PongWait       time.Duration // 等待 Pong 的期限
	WriteWait      time.Duration // 單次寫入期限
	AllowedOrigins []string      // 允許的 Origin，空或 "*" 表示全部允許

	Dialect         string // 預設協議方言，可被 ?dialect= 覆寫
	MaxRoomIDLength int
}

// DefaultConfig 預設設定
func DefaultConfig() Config {
	return Config{
		ReadLimit:       4096,
		SendBuffer:      256,
		PingPeriod:      54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		Dialect:         protocol.Standard.Name(),
		MaxRoomIDLength: protocol.DefaultMaxRoomIDLength,
	}
}

// Hub WebSocket 連接中心
type Hub struct {
	service  *session.Service
	logger   *slog.Logger
	cfg      Config
	upgrader websocket.Upgrader

	clients map[string]*Client
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	// 讀取 goroutine 處理事件時使用的 context，Stop 時取消
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub 創建 Hub
func NewHub(service *session.Service, cfg Config, logger *slog.Logger) (*Hub, error) {
	if _, err := protocol.DialectByName(cfg.Dialect); err != nil {
		return nil, err
	}
	if cfg.PingPeriod >= cfg.PongWait {
		return nil, fmt.Errorf("心跳間隔 %s 必須小於 pong 期限 %s", cfg.PingPeriod, cfg.PongWait)
	}
	if cfg.SendBuffer <= 0 {
		return nil, fmt.Errorf("發送緩衝必須大於 0: %d", cfg.SendBuffer)
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		service: service,
		logger:  logger,
		cfg:     cfg,
		clients: make(map[string]*Client),
		ctx:     ctx,
		cancel:  cancel,
	}
	hub.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{protocol.FormatMsgpack},
		CheckOrigin:     hub.checkOrigin,
	}
	return hub, nil
}

func (hub *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(hub.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(hub.cfg.AllowedOrigins, "*") || slices.Contains(hub.cfg.AllowedOrigins, origin)
}

// ServeWS 處理 WebSocket 連接
//
// 協商子協議 msgpack 時使用二進位 frame，否則使用 JSON 文字 frame。
// ?dialect=legacy 讓舊版客戶端沿用原本的事件名稱。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	dialectName := r.URL.Query().Get("dialect")
	if dialectName == "" {
		dialectName = hub.cfg.Dialect
	}
	dialect, err := protocol.DialectByName(dialectName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	hub.mu.RLock()
	stopped := hub.stopped
	hub.mu.RUnlock()
	if stopped {
		http.Error(w, "伺服器正在關閉", http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已經回覆了 HTTP 錯誤
		hub.logger.Warn("升級 WebSocket 失敗", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	codec, err := protocol.NewCodec(conn.Subprotocol(), protocol.Options{
		Dialect:         dialect,
		MaxRoomIDLength: hub.cfg.MaxRoomIDLength,
	})
	if err != nil {
		hub.logger.Error("建立編解碼器失敗", "error", err)
		_ = conn.Close()
		return
	}

	client := newClient(uuid.NewString(), hub, conn, codec)
	if !hub.register(client) {
		_ = conn.Close()
		return
	}
	hub.service.Connect(client)

	go client.writePump()
	go client.readPump()

	hub.logger.Info("WebSocket 連接建立",
		"conn_id", client.id,
		"codec", codec.Name(),
		"dialect", dialect.Name(),
		"remote_addr", r.RemoteAddr)
}

// register 加入連接並計入兩個讀寫 goroutine；Hub 已停止時回傳 false。
// wg.Add 必須與 stopped 檢查在同一把鎖內，Stop 才不會在計數前開始等待。
func (hub *Hub) register(c *Client) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if hub.stopped {
		return false
	}
	hub.clients[c.id] = c
	hub.wg.Add(2)
	return true
}

func (hub *Hub) unregister(c *Client) {
	hub.mu.Lock()
	delete(hub.clients, c.id)
	hub.mu.Unlock()
}

// Len 目前的連接數
func (hub *Hub) Len() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

// Stop 關閉所有連接並等待讀寫 goroutine 結束
func (hub *Hub) Stop() {
	hub.mu.Lock()
	if hub.stopped {
		hub.mu.Unlock()
		return
	}
	hub.stopped = true
	clients := make([]*Client, 0, len(hub.clients))
	for _, c := range hub.clients {
		clients = append(clients, c)
	}
	hub.mu.Unlock()

	// 先關閉發送 channel，寫入 goroutine 會送出 close frame 再關閉連接
	for _, c := range clients {
		c.close()
	}
	hub.wg.Wait()
	hub.cancel()

	hub.logger.Info("WebSocket Hub 已停止", "closed_connections", len(clients))
}
