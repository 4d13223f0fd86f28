package protocol

import "fmt"

// Dialect 線路上的事件命名方式。
//
// standard 使用 kebab-case 名稱；legacy 相容舊版瀏覽器客戶端
// （pairingFromMain、mouseMoveFromControler 等）。錯誤事件在兩種方言中都叫 "error"。
//
// 方言只改變事件名稱，payload 的結構相同：指標事件只保留 x 與 y，
// 舊版客戶端附帶的其他欄位（包括 roomID）在解碼時捨棄，不會轉發給主畫面。
type Dialect struct {
	name string
	in   map[string]Kind
	out  map[Kind]string
}

var allKinds = []Kind{
	KindMainPair, KindMainForcePair, KindControllerPair,
	KindPointerDown, KindPointerMove, KindPointerUp,
	KindPairingAcceptedMain, KindPairingSucceeded,
	KindPointerDownToMain, KindPointerMoveToMain, KindPointerUpToMain,
	KindDisconnectNotice, KindError,
}

// Standard 標準方言
var Standard = newDialect("standard", nil)

// Legacy 舊版客戶端方言（拼字沿用舊客戶端，包括 "Controler"）
var Legacy = newDialect("legacy", map[Kind]string{
	KindMainPair:            "pairingFromMain",
	KindMainForcePair:       "forcePairingFromMain",
	KindControllerPair:      "pairingFromController",
	KindPointerDown:         "mouseDownFromControler",
	KindPointerMove:         "mouseMoveFromControler",
	KindPointerUp:           "mouseUpFromControler",
	KindPairingAcceptedMain: "successLoginPC",
	KindPairingSucceeded:    "successPairing",
	KindPointerDownToMain:   "mouseDownToMain",
	KindPointerMoveToMain:   "mouseMoveToMain",
	KindPointerUpToMain:     "mouseUpToMain",
	KindDisconnectNotice:    "disconnectEvent",
})

func newDialect(name string, renames map[Kind]string) Dialect {
	d := Dialect{
		name: name,
		in:   make(map[string]Kind, len(allKinds)),
		out:  make(map[Kind]string, len(allKinds)),
	}
	for _, k := range allKinds {
		wire := string(k)
		if renamed, ok := renames[k]; ok {
			wire = renamed
		}
		d.in[wire] = k
		d.out[k] = wire
	}
	return d
}

// DialectByName 依名稱取得方言
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "", Standard.name:
		return Standard, nil
	case Legacy.name:
		return Legacy, nil
	}
	return Dialect{}, fmt.Errorf("未知的協議方言: %q", name)
}

// Name 方言名稱
func (d Dialect) Name() string { return d.name }

// Lookup 將線路名稱轉為事件種類
func (d Dialect) Lookup(wire string) (Kind, bool) {
	k, ok := d.in[wire]
	return k, ok
}

// WireName 將事件種類轉為線路名稱
func (d Dialect) WireName(k Kind) string {
	if wire, ok := d.out[k]; ok {
		return wire
	}
	return string(k)
}
