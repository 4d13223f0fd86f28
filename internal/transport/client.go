package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koopa0/system-design/remote-pairing/internal/logger"
	"github.com/koopa0/system-design/remote-pairing/internal/protocol"
)

var (
	// ErrClosed 連接已關閉
	ErrClosed = errors.New("連接已關閉")
	// ErrBufferFull 發送緩衝已滿（慢速客戶端）
	ErrBufferFull = errors.New("發送緩衝已滿")
)

// Client 一個 WebSocket 連接
type Client struct {
	id    string
	hub   *Hub
	conn  *websocket.Conn
	codec protocol.Codec

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func newClient(id string, hub *Hub, conn *websocket.Conn, codec protocol.Codec) *Client {
	return &Client{
		id:    id,
		hub:   hub,
		conn:  conn,
		codec: codec,
		send:  make(chan []byte, hub.cfg.SendBuffer),
	}
}

// ID 連接 ID
func (c *Client) ID() string { return c.id }

// Send 編碼事件並排入發送緩衝，不阻塞
func (c *Client) Send(out protocol.Outbound) error {
	data, err := c.codec.Encode(out)
	if err != nil {
		return fmt.Errorf("編碼 %s: %w", out.Kind, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// close 關閉發送 channel（只會執行一次）
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump 讀取並處理客戶端事件
//
// 讀取期限 PongWait，收到 Pong 時延長；超過期限或讀取錯誤即結束，
// 結束時依序：移出 Hub、通知 session 斷線、關閉發送 channel。
func (c *Client) readPump() {
	hub := c.hub
	ctx := logger.WithConnID(hub.ctx, c.id)
	defer func() {
		hub.unregister(c)
		hub.service.Disconnect(ctx, c)
		c.close()
		_ = c.conn.Close()
		hub.wg.Done()
	}()

	c.conn.SetReadLimit(hub.cfg.ReadLimit)
	if err := c.conn.SetReadDeadline(time.Now().Add(hub.cfg.PongWait)); err != nil {
		hub.logger.ErrorContext(ctx, "設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hub.cfg.PongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				hub.logger.WarnContext(ctx, "WebSocket 讀取錯誤", "error", err)
			}
			return
		}

		in, err := c.codec.Decode(frame)
		if err != nil {
			hub.service.Reject(c, err)
			continue
		}
		// 錯誤已經回覆給客戶端
		_ = hub.service.Dispatch(ctx, c, in)
	}
}

// writePump 將發送緩衝寫入連接並定期送出 Ping
func (c *Client) writePump() {
	hub := c.hub
	ticker := time.NewTicker(hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		hub.wg.Done()
	}()

	messageType := websocket.TextMessage
	if c.codec.Binary() {
		messageType = websocket.BinaryMessage
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				// 發送 channel 已關閉，送出 close frame 後結束
				_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.SetWriteDeadline(time.Now().Add(hub.cfg.WriteWait)); err != nil {
				hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(messageType, data); err != nil {
				hub.logger.Debug("寫入失敗", "conn_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(hub.cfg.WriteWait)); err != nil {
				hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
