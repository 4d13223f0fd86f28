// Package registry 記錄每個存活連接所在的房間與角色。
//
// 後續的指標事件不會再帶 roomID，因此轉發時必須靠這份紀錄決定送往哪個房間。
package registry

import (
	"errors"
	"sync"

	"github.com/koopa0/system-design/remote-pairing/internal/protocol"
)

// ErrNotPaired 連接尚未配對
var ErrNotPaired = errors.New("連接尚未配對")

// Entry 單一連接的配對紀錄
type Entry struct {
	RoomID string
	Role   protocol.Role
}

// Registry 連接 ID -> 配對紀錄
//
// 每個連接的紀錄彼此獨立，一把讀寫鎖即可。
type Registry struct {
	entries map[string]Entry
	mu      sync.RWMutex
}

// New 創建連接登記表
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// OnPair 記錄連接與房間的關聯；相同房間重複呼叫只會更新角色。
func (r *Registry) OnPair(connID, roomID string, role protocol.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[connID] = Entry{RoomID: roomID, Role: role}
}

// RoomOf 查詢連接所在房間
func (r *Registry) RoomOf(connID string) (string, bool) {
	e, ok := r.Lookup(connID)
	return e.RoomID, ok
}

// Lookup 查詢連接的完整紀錄
func (r *Registry) Lookup(connID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connID]
	return e, ok
}

// MustLookup 查詢連接紀錄，未配對時回傳 ErrNotPaired。
func (r *Registry) MustLookup(connID string) (Entry, error) {
	e, ok := r.Lookup(connID)
	if !ok {
		return Entry{}, ErrNotPaired
	}
	return e, nil
}

// OnDisconnect 釋放連接的紀錄，回傳被釋放的內容。
func (r *Registry) OnDisconnect(connID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[connID]
	if ok {
		delete(r.entries, connID)
	}
	return e, ok
}

// Len 已配對的連接數
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CountByRole 依角色統計已配對連接
func (r *Registry) CountByRole() map[protocol.Role]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[protocol.Role]int)
	for _, e := range r.entries {
		counts[e.Role]++
	}
	return counts
}
