// Package session 組合配對與轉發的核心邏輯。
//
// Service 在啟動時建立一次，並以參照傳給每個連接處理器；
// 傳輸層只負責把解碼後的事件交給 Dispatch，並在斷線時呼叫 Disconnect。
package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/koopa0/system-design/remote-pairing/internal/pairing"
	"github.com/koopa0/system-design/remote-pairing/internal/protocol"
	"github.com/koopa0/system-design/remote-pairing/internal/registry"
	"github.com/koopa0/system-design/remote-pairing/internal/relay"
	"github.com/koopa0/system-design/remote-pairing/internal/room"
)

// Options 服務選項
type Options struct {
	Logger *slog.Logger

	// NotifyPeerOnDisconnect 斷線時是否通知同房間的其他成員
	NotifyPeerOnDisconnect bool

	// ControllerOnlyRelay 是否只接受控制器送出的指標事件
	ControllerOnlyRelay bool

	// MaxRoomIDLength roomID 長度上限，0 使用預設值
	MaxRoomIDLength int
}

// DefaultOptions 預設選項
func DefaultOptions(logger *slog.Logger) Options {
	return Options{
		Logger:                 logger,
		NotifyPeerOnDisconnect: true,
		ControllerOnlyRelay:    true,
		MaxRoomIDLength:        protocol.DefaultMaxRoomIDLength,
	}
}

// Service 配對與轉發服務
type Service struct {
	registry *registry.Registry
	rooms    *room.Directory
	pairing  *pairing.Controller
	relay    *relay.Relay
	logger   *slog.Logger

	notifyPeer bool

	connections atomic.Int64
	pairings    atomic.Int64
	relayed     atomic.Int64
	rejected    atomic.Int64
}

// New 創建服務
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := registry.New()
	rooms := room.New(logger)

	return &Service{
		registry:   reg,
		rooms:      rooms,
		pairing:    pairing.NewController(reg, rooms, logger, opts.MaxRoomIDLength),
		relay:      relay.New(reg, rooms, logger, opts.ControllerOnlyRelay),
		logger:     logger,
		notifyPeer: opts.NotifyPeerOnDisconnect,
	}
}

// Rooms 房間目錄（HTTP 查詢與跨節點投遞使用）
func (s *Service) Rooms() *room.Directory { return s.rooms }

// Registry 連接登記表
func (s *Service) Registry() *registry.Registry { return s.registry }

// Connect 新連接建立
func (s *Service) Connect(conn room.Conn) {
	n := s.connections.Add(1)
	s.logger.Debug("連接建立", "conn_id", conn.ID(), "connections", n)
}

// Dispatch 處理一個已解碼的入站事件
//
// 失敗時回覆請求者錯誤事件並回傳該錯誤；連接保持開啟，其他房間成員不受影響。
func (s *Service) Dispatch(ctx context.Context, conn room.Conn, in protocol.Inbound) error {
	var err error
	switch ev := in.(type) {
	case *protocol.PairRequest:
		if err = s.pairing.Pair(ctx, conn, ev); err == nil {
			s.pairings.Add(1)
		}
	case *protocol.PointerEvent:
		if err = s.relay.Forward(ctx, conn, ev); err == nil {
			s.relayed.Add(1)
		}
	default:
		err = protocol.NewError(protocol.CodeUnknownEvent, "", nil)
	}

	if err != nil {
		s.Reject(conn, err)
		return err
	}
	return nil
}

// Reject 回覆錯誤事件給單一連接
func (s *Service) Reject(conn room.Conn, err error) {
	s.rejected.Add(1)
	s.logger.Warn("拒絕事件",
		"conn_id", conn.ID(),
		"code", protocol.CodeOf(err),
		"error", err)
	_ = s.rooms.SendTo(conn, protocol.FailureFor(err))
}

// Disconnect 連接斷線
//
// 先從登記表查出該連接的房間，再移出房間、釋放紀錄；
// 啟用通知時向房間剩餘成員廣播 disconnect-notice。
func (s *Service) Disconnect(ctx context.Context, conn room.Conn) {
	s.connections.Add(-1)

	entry, ok := s.registry.Lookup(conn.ID())
	if !ok {
		s.logger.Debug("未配對的連接斷線", "conn_id", conn.ID())
		return
	}

	s.rooms.Leave(conn.ID(), entry.RoomID)
	s.registry.OnDisconnect(conn.ID())

	s.logger.Info("連接斷線",
		"conn_id", conn.ID(),
		"room_id", entry.RoomID,
		"role", entry.Role,
		"remaining", s.rooms.Size(entry.RoomID))

	if s.notifyPeer {
		_ = s.rooms.BroadcastExcluding(ctx, conn.ID(), entry.RoomID, protocol.NewDeparture(entry.RoomID, entry.Role))
	}
}

// RoomInfo 查詢房間是否存在及成員數
func (s *Service) RoomInfo(roomID string) (members int, exists bool) {
	if !s.rooms.Exists(roomID) {
		return 0, false
	}
	return s.rooms.Size(roomID), true
}

// Stats 服務統計
func (s *Service) Stats() map[string]any {
	byRole := s.registry.CountByRole()
	roomStats := s.rooms.Stats()

	return map[string]any{
		"connections":        s.connections.Load(),
		"paired_connections": s.registry.Len(),
		"mains":              byRole[protocol.RoleMain],
		"controllers":        byRole[protocol.RoleController],
		"total_rooms":        roomStats["total_rooms"],
		"pairings":           s.pairings.Load(),
		"relayed_events":     s.relayed.Load(),
		"rejected_events":    s.rejected.Load(),
	}
}
