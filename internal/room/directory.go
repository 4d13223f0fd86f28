// Package room 維護房間 ID 與成員連接的對應，並提供房間範圍的發送。
//
// 房間只要有一個連接加入就存在，成員清空時立即移除，
// 因此「房間是否存在」可以被直接查詢。
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/koopa0/system-design/remote-pairing/internal/protocol"
)

// Conn 可以被房間定址的連接
type Conn interface {
	ID() string
	// Send 將事件排入該連接的發送佇列，不可阻塞。
	Send(out protocol.Outbound) error
}

// Publisher 把房間廣播轉送到其他節點
type Publisher interface {
	Publish(ctx context.Context, roomID, except string, out protocol.Outbound) error
}

// Directory 房間目錄
//
// 結構：map[roomID]map[connID]Conn
//   - 廣播前在讀鎖下複製成員快照，發送在鎖外進行
//   - 單一成員發送失敗只記錄，不影響其他成員
type Directory struct {
	rooms     map[string]map[string]Conn
	mu        sync.RWMutex
	logger    *slog.Logger
	publisher Publisher
}

// New 創建房間目錄
func New(logger *slog.Logger) *Directory {
	return &Directory{
		rooms:  make(map[string]map[string]Conn),
		logger: logger,
	}
}

// SetPublisher 設定跨節點轉送；nil 表示單機模式。
func (d *Directory) SetPublisher(p Publisher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.publisher = p
}

// Join 將連接加入房間
func (d *Directory) Join(conn Conn, roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, exists := d.rooms[roomID]
	if !exists {
		members = make(map[string]Conn)
		d.rooms[roomID] = members
		d.logger.Debug("房間已建立", "room_id", roomID)
	}
	members[conn.ID()] = conn
}

// Leave 將連接移出房間；房間沒有成員時一併移除。
func (d *Directory) Leave(connID, roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, exists := d.rooms[roomID]
	if !exists {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(d.rooms, roomID)
		d.logger.Debug("房間已清空並移除", "room_id", roomID)
	}
	return true
}

// SendTo 只發送給單一連接
func (d *Directory) SendTo(conn Conn, out protocol.Outbound) error {
	if err := conn.Send(out); err != nil {
		d.logger.Warn("發送事件失敗",
			"conn_id", conn.ID(),
			"event", out.Kind,
			"error", err)
		return fmt.Errorf("發送給 %s: %w", conn.ID(), err)
	}
	return nil
}

// Broadcast 發送給房間內的所有成員
func (d *Directory) Broadcast(ctx context.Context, roomID string, out protocol.Outbound) error {
	return d.broadcast(ctx, roomID, "", out)
}

// BroadcastExcluding 發送給房間內除了 sender 以外的成員
func (d *Directory) BroadcastExcluding(ctx context.Context, senderID, roomID string, out protocol.Outbound) error {
	return d.broadcast(ctx, roomID, senderID, out)
}

func (d *Directory) broadcast(ctx context.Context, roomID, except string, out protocol.Outbound) error {
	err := d.DeliverLocal(roomID, except, out)

	d.mu.RLock()
	publisher := d.publisher
	d.mu.RUnlock()

	if publisher != nil {
		if perr := publisher.Publish(ctx, roomID, except, out); perr != nil {
			d.logger.Error("跨節點廣播失敗",
				"room_id", roomID,
				"event", out.Kind,
				"error", perr)
			err = errors.Join(err, fmt.Errorf("跨節點廣播: %w", perr))
		}
	}
	return err
}

// DeliverLocal 發送給本節點上的房間成員（跨節點訊息也經由這裡投遞）
func (d *Directory) DeliverLocal(roomID, except string, out protocol.Outbound) error {
	var errs []error
	for _, conn := range d.snapshot(roomID) {
		if conn.ID() == except {
			continue
		}
		if err := conn.Send(out); err != nil {
			d.logger.Warn("房間廣播中單一成員發送失敗",
				"room_id", roomID,
				"conn_id", conn.ID(),
				"event", out.Kind,
				"error", err)
			errs = append(errs, fmt.Errorf("發送給 %s: %w", conn.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// snapshot 複製房間成員，讓發送不必持有鎖
func (d *Directory) snapshot(roomID string) []Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := d.rooms[roomID]
	conns := make([]Conn, 0, len(members))
	for _, c := range members {
		conns = append(conns, c)
	}
	return conns
}

// Exists 房間是否存在
func (d *Directory) Exists(roomID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.rooms[roomID]
	return ok
}

// Contains 連接是否在房間中
func (d *Directory) Contains(connID, roomID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.rooms[roomID][connID]
	return ok
}

// Size 房間成員數
func (d *Directory) Size(roomID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms[roomID])
}

// Members 房間成員 ID（已排序）
func (d *Directory) Members(roomID string) []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.rooms[roomID]))
	for id := range d.rooms[roomID] {
		ids = append(ids, id)
	}
	d.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len 房間數
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// Stats 房間統計
func (d *Directory) Stats() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := 0
	for _, m := range d.rooms {
		members += len(m)
	}
	return map[string]any{
		"total_rooms":   len(d.rooms),
		"total_members": members,
	}
}
