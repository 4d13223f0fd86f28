// Package pairing 實作連接從「未配對」到「已配對」的狀態機。
//
//	Unpaired ──main-pair──────────► Paired(Main)        回覆 pairing-accepted-main（僅請求者）
//	Unpaired ──main-force-pair────► Paired(Main)        回覆 pairing-succeeded（僅請求者）
//	Unpaired ──controller-pair────► Paired(Controller)  廣播 pairing-succeeded（整個房間，含請求者）
//
// Paired 一直維持到斷線，沒有解除配對的轉換。
// 配對順序不受限制：控制器可以先於主畫面加入，之後加入的主畫面不會補收通知。
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/koopa0/system-design/remote-pairing/internal/protocol"
	"github.com/koopa0/system-design/remote-pairing/internal/registry"
	"github.com/koopa0/system-design/remote-pairing/internal/room"
)

// ErrAlreadyPaired 連接已配對到另一個房間
var ErrAlreadyPaired = errors.New("連接已配對到其他房間")

// Controller 配對控制器
type Controller struct {
	registry        *registry.Registry
	rooms           *room.Directory
	logger          *slog.Logger
	maxRoomIDLength int
}

// NewController 創建配對控制器
func NewController(reg *registry.Registry, rooms *room.Directory, logger *slog.Logger, maxRoomIDLength int) *Controller {
	return &Controller{
		registry:        reg,
		rooms:           rooms,
		logger:          logger,
		maxRoomIDLength: maxRoomIDLength,
	}
}

// Pair 處理配對請求
//
// 已配對的連接再次對「同一個房間」請求配對時視為冪等（角色以最新請求為準，確認會重送）；
// 對「不同房間」請求則以 already-paired 拒絕，原本的房間成員身份保持不變。
//
// 回傳的錯誤都是 *protocol.Error，由呼叫端轉為錯誤事件回覆請求者。
// 確認訊息的發送失敗只記錄，不視為配對失敗。
func (c *Controller) Pair(ctx context.Context, conn room.Conn, req *protocol.PairRequest) error {
	event := string(req.Kind)

	role := protocol.RoleFor(req.Kind)
	if role == protocol.RoleUnknown {
		return protocol.NewError(protocol.CodeUnknownEvent, event, fmt.Errorf("不是配對事件: %s", req.Kind))
	}
	if err := protocol.ValidateRoomID(req.RoomID, c.maxRoomIDLength); err != nil {
		return protocol.NewError(protocol.CodeInvalidRoomID, event, err)
	}

	if prev, ok := c.registry.Lookup(conn.ID()); ok && prev.RoomID != req.RoomID {
		c.logger.Warn("拒絕重複配對到不同房間",
			"conn_id", conn.ID(),
			"room_id", prev.RoomID,
			"requested_room_id", req.RoomID)
		return protocol.NewError(protocol.CodeAlreadyPaired, event, ErrAlreadyPaired)
	}

	c.rooms.Join(conn, req.RoomID)
	c.registry.OnPair(conn.ID(), req.RoomID, role)

	c.logger.Info("連接已配對",
		"conn_id", conn.ID(),
		"room_id", req.RoomID,
		"role", role,
		"event", req.Kind)

	switch req.Kind {
	case protocol.KindMainPair:
		_ = c.rooms.SendTo(conn, protocol.NewAck(protocol.KindPairingAcceptedMain, req.RoomID, role))
	case protocol.KindMainForcePair:
		_ = c.rooms.SendTo(conn, protocol.NewAck(protocol.KindPairingSucceeded, req.RoomID, role))
	case protocol.KindControllerPair:
		// 單一成員的失敗已在 Directory 中記錄
		_ = c.rooms.Broadcast(ctx, req.RoomID, protocol.NewAck(protocol.KindPairingSucceeded, req.RoomID, role))
	}
	return nil
}
