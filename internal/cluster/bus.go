// Package cluster 在多個伺服器實例之間轉送房間廣播。
//
// 每個實例只持有自己的 WebSocket 連接，房間成員可能分散在不同實例上。
// 本地廣播完成後，Node 把同一個事件發布到匯流排；
// 其他實例收到後只投遞給自己的本地成員，不再發布，因此不會形成迴圈。
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/koopa0/system-design/remote-pairing/internal/protocol"
)

// 匯流排種類
const (
	KindNone  = "none"
	KindRedis = "redis"
	KindNATS  = "nats"
)

// ErrUnknownKind 不支援的匯流排種類
var ErrUnknownKind = errors.New("不支援的匯流排種類")

// Frame 匯流排上傳遞的一個房間廣播
type Frame struct {
	Origin string            `json:"origin"`           // 發布者的節點 ID
	RoomID string            `json:"room_id"`          // 目標房間
	Except string            `json:"except,omitempty"` // 排除的連接（發送者）
	Event  protocol.Outbound `json:"event"`            // 事件（標準名稱）
}

// Bus 跨實例的發布訂閱
type Bus interface {
	Publish(ctx context.Context, f Frame) error
	// Subscribe 在訂閱生效後返回；handler 在背景 goroutine 中依序被呼叫，
	// 直到 ctx 取消或 Close。
	Subscribe(ctx context.Context, handler func(Frame)) error
	Close() error
}

// Options 匯流排設定
type Options struct {
	Kind     string
	RedisURL string
	NATSURL  string
	Prefix   string
}

// Open 依設定建立匯流排；Kind 為 none 或空字串時回傳 nil。
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Bus, error) {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "pairing"
	}

	switch strings.ToLower(opts.Kind) {
	case "", KindNone:
		return nil, nil
	case KindRedis:
		bus, err := DialRedis(ctx, opts.RedisURL, prefix, logger)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case KindNATS:
		bus, err := DialNATS(opts.NATSURL, prefix, logger)
		if err != nil {
			return nil, err
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}
}

func encodeFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("編碼廣播: %w", err)
	}
	return data, nil
}

func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("解碼廣播: %w", err)
	}
	return f, nil
}

// Deliverer 把事件投遞給本地房間成員（由 room.Directory 實作）
type Deliverer interface {
	DeliverLocal(roomID, except string, out protocol.Outbound) error
}

// Node 代表本實例在匯流排上的身份
//
// Node 同時是 room.Publisher：本地廣播經由 Publish 送上匯流排，
// 其他實例的廣播經由 Start 註冊的訂閱投遞到本地。
type Node struct {
	id     string
	bus    Bus
	local  Deliverer
	logger *slog.Logger
}

// NewNode 創建節點，節點 ID 為隨機 UUID。
func NewNode(bus Bus, local Deliverer, logger *slog.Logger) *Node {
	return &Node{
		id:     uuid.NewString(),
		bus:    bus,
		local:  local,
		logger: logger,
	}
}

// ID 節點 ID
func (n *Node) ID() string { return n.id }

// Publish 發布本地廣播
func (n *Node) Publish(ctx context.Context, roomID, except string, out protocol.Outbound) error {
	return n.bus.Publish(ctx, Frame{
		Origin: n.id,
		RoomID: roomID,
		Except: except,
		Event:  out,
	})
}

// Start 開始接收其他實例的廣播
func (n *Node) Start(ctx context.Context) error {
	if err := n.bus.Subscribe(ctx, n.deliver); err != nil {
		return fmt.Errorf("訂閱匯流排: %w", err)
	}
	n.logger.Info("已加入叢集", "node_id", n.id)
	return nil
}

// Close 關閉匯流排
func (n *Node) Close() error {
	return n.bus.Close()
}

func (n *Node) deliver(f Frame) {
	if f.Origin == n.id {
		return
	}
	if err := n.local.DeliverLocal(f.RoomID, f.Except, f.Event); err != nil {
		n.logger.Warn("投遞跨節點廣播失敗",
			"origin", f.Origin,
			"room_id", f.RoomID,
			"event", f.Event.Kind,
			"error", err)
	}
}
