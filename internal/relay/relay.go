// Package relay 將控制器的指標事件轉發給同房間的其他成員。
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/koopa0/system-design/remote-pairing/internal/protocol"
	"github.com/koopa0/system-design/remote-pairing/internal/registry"
	"github.com/koopa0/system-design/remote-pairing/internal/room"
)

var (
	// ErrRoleForbidden 只有控制器可以送出指標事件
	ErrRoleForbidden = errors.New("只有控制器可以送出指標事件")
	// ErrNotMember 註冊表有記錄但連接已不在房間中
	ErrNotMember = errors.New("連接不在房間中")
)

// Relay 指標事件轉發器
//
// 事件改名為 *-to-main 後發送給房間內除發送者以外的成員，座標原樣傳遞。
// 同一連接的事件由其讀取 goroutine 依序處理，因此到達順序與送出順序一致；
// 不同發送者之間沒有順序保證。
type Relay struct {
	registry       *registry.Registry
	rooms          *room.Directory
	logger         *slog.Logger
	controllerOnly bool
}

// New 創建轉發器；controllerOnly 為 true 時拒絕主畫面送出的指標事件。
func New(reg *registry.Registry, rooms *room.Directory, logger *slog.Logger, controllerOnly bool) *Relay {
	return &Relay{
		registry:       reg,
		rooms:          rooms,
		logger:         logger,
		controllerOnly: controllerOnly,
	}
}

// Forward 轉發一個指標事件
//
// 未配對的連接回傳 not-paired，不會產生任何房間廣播。
func (r *Relay) Forward(ctx context.Context, conn room.Conn, ev *protocol.PointerEvent) error {
	event := string(ev.Kind)

	outKind, ok := ev.Kind.ToMain()
	if !ok {
		return protocol.NewError(protocol.CodeUnknownEvent, event, fmt.Errorf("不是指標事件: %s", ev.Kind))
	}

	entry, err := r.registry.MustLookup(conn.ID())
	if err != nil {
		r.logger.Debug("未配對的連接送出指標事件", "conn_id", conn.ID(), "event", ev.Kind)
		return protocol.NewError(protocol.CodeNotPaired, event, err)
	}

	if r.controllerOnly && entry.Role != protocol.RoleController {
		return protocol.NewError(protocol.CodeRoleForbidden, event, ErrRoleForbidden)
	}

	if !r.rooms.Contains(conn.ID(), entry.RoomID) {
		r.logger.Warn("註冊表與房間成員不一致", "conn_id", conn.ID(), "room_id", entry.RoomID)
		return protocol.NewError(protocol.CodeNotPaired, event, ErrNotMember)
	}

	// 發送失敗已由 Directory 按成員記錄，不回報給發送者
	_ = r.rooms.BroadcastExcluding(ctx, conn.ID(), entry.RoomID, protocol.NewPointer(outKind, ev.Pointer))
	return nil
}
