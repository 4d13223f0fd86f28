// Package protocol 定義配對伺服器的線路協議。
//
// 每個訊息都是一個信封：
//
//	{"event": "<名稱>", "data": {...}}
//
// 事件種類是封閉集合，每種事件都有固定的 payload 結構；
// 不符合結構的 payload 在解碼時就會被拒絕，不會進入核心邏輯。
package protocol

// Kind 事件種類（內部標準名稱）
type Kind string

// 入站事件（客戶端 → 伺服器）
const (
	KindMainPair       Kind = "main-pair"
	KindMainForcePair  Kind = "main-force-pair"
	KindControllerPair Kind = "controller-pair"
	KindPointerDown    Kind = "controller-pointer-down"
	KindPointerMove    Kind = "controller-pointer-move"
	KindPointerUp      Kind = "controller-pointer-up"
)

// 出站事件（伺服器 → 客戶端）
const (
	KindPairingAcceptedMain Kind = "pairing-accepted-main"
	KindPairingSucceeded    Kind = "pairing-succeeded"
	KindPointerDownToMain   Kind = "pointer-down-to-main"
	KindPointerMoveToMain   Kind = "pointer-move-to-main"
	KindPointerUpToMain     Kind = "pointer-up-to-main"
	KindDisconnectNotice    Kind = "disconnect-notice"
	KindError               Kind = "error"
)

// toMain 指標事件的轉發名稱
var toMain = map[Kind]Kind{
	KindPointerDown: KindPointerDownToMain,
	KindPointerMove: KindPointerMoveToMain,
	KindPointerUp:   KindPointerUpToMain,
}

// IsPairing 是否為配對請求
func (k Kind) IsPairing() bool {
	switch k {
	case KindMainPair, KindMainForcePair, KindControllerPair:
		return true
	}
	return false
}

// IsPointer 是否為指標輸入事件
func (k Kind) IsPointer() bool {
	_, ok := toMain[k]
	return ok
}

// IsInbound 是否為客戶端可以發送的事件
func (k Kind) IsInbound() bool {
	return k.IsPairing() || k.IsPointer()
}

// IsOutbound 是否為伺服器發出的事件
func (k Kind) IsOutbound() bool {
	switch k {
	case KindPairingAcceptedMain, KindPairingSucceeded,
		KindPointerDownToMain, KindPointerMoveToMain, KindPointerUpToMain,
		KindDisconnectNotice, KindError:
		return true
	}
	return false
}

// ToMain 回傳指標事件轉發給主畫面時使用的名稱
func (k Kind) ToMain() (Kind, bool) {
	out, ok := toMain[k]
	return out, ok
}

// Role 連接在房間中的角色
type Role string

const (
	RoleUnknown    Role = "unknown"
	RoleMain       Role = "main"
	RoleController Role = "controller"
)

// RoleFor 回傳配對請求對應的角色
func RoleFor(k Kind) Role {
	switch k {
	case KindMainPair, KindMainForcePair:
		return RoleMain
	case KindControllerPair:
		return RoleController
	}
	return RoleUnknown
}
