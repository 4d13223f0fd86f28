package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound 解碼後的入站事件。
//
// 只有兩種實作：*PairRequest 與 *PointerEvent。
type Inbound interface {
	InboundKind() Kind
	inbound()
}

// PairRequest 配對請求（main-pair / main-force-pair / controller-pair）
type PairRequest struct {
	Kind   Kind
	RoomID string
}

func (r *PairRequest) InboundKind() Kind { return r.Kind }
func (*PairRequest) inbound() {}

// PointerEvent 控制器送出的指標事件
type PointerEvent struct {
	Kind    Kind
	Pointer Pointer
}

func (e *PointerEvent) InboundKind() Kind { return e.Kind }
func (*PointerEvent) inbound() {}

// Pointer 指標座標
type Pointer struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Ack 配對確認
type Ack struct {
	RoomID string `json:"roomID" msgpack:"roomID"`
	Role   Role   `json:"role" msgpack:"role"`
}

// Departure 對端離線通知
type Departure struct {
	RoomID string `json:"roomID" msgpack:"roomID"`
	Role   Role   `json:"role" msgpack:"role"`
}

// Failure 錯誤事件的內容
type Failure struct {
	Code    Code   `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Event   string `json:"event,omitempty" msgpack:"event,omitempty"`
}

// Outbound 出站事件。Payload 的型別由 Kind 決定：
//
//	pairing-accepted-main, pairing-succeeded -> Ack
//	pointer-*-to-main                         -> Pointer
//	disconnect-notice                         -> Departure
//	error                                     -> Failure
type Outbound struct {
	Kind    Kind
	Payload any
}

// NewAck 建立配對確認事件
func NewAck(kind Kind, roomID string, role Role) Outbound {
	return Outbound{Kind: kind, Payload: Ack{RoomID: roomID, Role: role}}
}

// NewPointer 建立轉發給主畫面的指標事件
func NewPointer(kind Kind, p Pointer) Outbound {
	return Outbound{Kind: kind, Payload: p}
}

// NewDeparture 建立離線通知
func NewDeparture(roomID string, role Role) Outbound {
	return Outbound{Kind: KindDisconnectNotice, Payload: Departure{RoomID: roomID, Role: role}}
}

// NewFailure 建立錯誤事件
func NewFailure(code Code, event string) Outbound {
	return Outbound{Kind: KindError, Payload: Failure{
		Code:    code,
		Message: code.Message(),
		Event:   event,
	}}
}

// FailureFor 由錯誤建立錯誤事件；非協議錯誤一律視為 invalid-payload。
func FailureFor(err error) Outbound {
	var perr *Error
	if errors.As(err, &perr) {
		return NewFailure(perr.Code, perr.Event)
	}
	return NewFailure(CodeInvalidPayload, "")
}

type outboundJSON struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON 以標準名稱編碼，用於跨節點傳遞。
func (o Outbound) MarshalJSON() ([]byte, error) {
	w := outboundJSON{Event: o.Kind}
	if o.Payload != nil {
		data, err := json.Marshal(o.Payload)
		if err != nil {
			return nil, err
		}
		w.Data = data
	}
	return json.Marshal(w)
}

// UnmarshalJSON 依事件種類還原具體的 payload 型別。
func (o *Outbound) UnmarshalJSON(b []byte) error {
	var w outboundJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if !w.Event.IsOutbound() {
		return fmt.Errorf("不是出站事件: %q", w.Event)
	}

	var payload any
	switch w.Event {
	case KindPairingAcceptedMain, KindPairingSucceeded:
		payload = &Ack{}
	case KindPointerDownToMain, KindPointerMoveToMain, KindPointerUpToMain:
		payload = &Pointer{}
	case KindDisconnectNotice:
		payload = &Departure{}
	default:
		payload = &Failure{}
	}

	if len(w.Data) > 0 {
		if err := json.Unmarshal(w.Data, payload); err != nil {
			return fmt.Errorf("解析 %s 資料: %w", w.Event, err)
		}
	}

	o.Kind = w.Event
	switch p := payload.(type) {
	case *Ack:
		o.Payload = *p
	case *Pointer:
		o.Payload = *p
	case *Departure:
		o.Payload = *p
	case *Failure:
		o.Payload = *p
	}
	return nil
}
