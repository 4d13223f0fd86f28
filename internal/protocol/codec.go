package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec 信封的編解碼器
type Codec interface {
	// Name 編碼格式名稱，同時也是 websocket 子協議名稱（json 除外）
	Name() string
	// Binary 是否使用二進位 frame
	Binary() bool
	Encode(out Outbound) ([]byte, error)
	Decode(frame []byte) (Inbound, error)
}

// Options 編解碼器選項
type Options struct {
	Dialect         Dialect
	MaxRoomIDLength int
}

func (o Options) withDefaults() Options {
	if o.Dialect.in == nil {
		o.Dialect = Standard
	}
	if o.MaxRoomIDLength <= 0 {
		o.MaxRoomIDLength = DefaultMaxRoomIDLength
	}
	return o
}

// 支援的編碼格式
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// NewCodec 依格式名稱建立編解碼器
func NewCodec(format string, opts Options) (Codec, error) {
	switch format {
	case "", FormatJSON:
		return NewJSONCodec(opts), nil
	case FormatMsgpack:
		return NewMsgpackCodec(opts), nil
	}
	return nil, fmt.Errorf("不支援的編碼格式: %q", format)
}

// pairPayload 配對請求的 payload 結構
type pairPayload struct {
	RoomID *string `json:"roomID" msgpack:"roomID"`
}

// pointerPayload 指標事件的 payload 結構；roomID 可選且不被採用，其他欄位捨棄
type pointerPayload struct {
	RoomID *string  `json:"roomID,omitempty" msgpack:"roomID,omitempty"`
	X      *float64 `json:"x" msgpack:"x"`
	Y      *float64 `json:"y" msgpack:"y"`
}

// decodeInbound 兩種格式共用的解碼流程
//
// unmarshal 為 nil 表示信封中沒有 data 欄位。
func decodeInbound(opts Options, event string, unmarshal func(v any) error) (Inbound, error) {
	kind, ok := opts.Dialect.Lookup(event)
	if !ok || !kind.IsInbound() {
		return nil, NewError(CodeUnknownEvent, event, nil)
	}

	// 已知事件的錯誤一律帶標準名稱，編碼時再轉回方言名稱
	name := string(kind)

	if kind.IsPairing() {
		var p pairPayload
		if unmarshal != nil {
			if err := unmarshal(&p); err != nil {
				return nil, NewError(CodeInvalidRoomID, name, err)
			}
		}
		if p.RoomID == nil {
			return nil, NewError(CodeInvalidRoomID, name, errors.New("缺少 roomID"))
		}
		if err := ValidateRoomID(*p.RoomID, opts.MaxRoomIDLength); err != nil {
			return nil, NewError(CodeInvalidRoomID, name, err)
		}
		return &PairRequest{Kind: kind, RoomID: *p.RoomID}, nil
	}

	var p pointerPayload
	if unmarshal == nil {
		return nil, NewError(CodeInvalidPayload, name, errors.New("缺少座標"))
	}
	if err := unmarshal(&p); err != nil {
		return nil, NewError(CodeInvalidPayload, name, err)
	}
	if p.X == nil || p.Y == nil {
		return nil, NewError(CodeInvalidPayload, name, errors.New("缺少 x 或 y"))
	}
	return &PointerEvent{Kind: kind, Pointer: Pointer{X: *p.X, Y: *p.Y}}, nil
}

// wirePayload 錯誤事件中的事件名稱轉為方言名稱
func wirePayload(d Dialect, out Outbound) any {
	f, ok := out.Payload.(Failure)
	if !ok || f.Event == "" {
		return out.Payload
	}
	if k := Kind(f.Event); k.IsInbound() {
		f.Event = d.WireName(k)
	}
	return f
}

// JSONCodec 文字 frame 的 JSON 編解碼器
type JSONCodec struct {
	opts Options
}

// NewJSONCodec 建立 JSON 編解碼器
func NewJSONCodec(opts Options) *JSONCodec {
	return &JSONCodec{opts: opts.withDefaults()}
}

func (c *JSONCodec) Name() string { return FormatJSON }
func (c *JSONCodec) Binary() bool { return false }

type jsonEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode 編碼出站事件
func (c *JSONCodec) Encode(out Outbound) ([]byte, error) {
	env := struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{
		Event: c.opts.Dialect.WireName(out.Kind),
		Data:  wirePayload(c.opts.Dialect, out),
	}
	return json.Marshal(env)
}

// Decode 解碼入站 frame
func (c *JSONCodec) Decode(frame []byte) (Inbound, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, NewError(CodeMalformedFrame, "", err)
	}
	if env.Event == "" {
		return nil, NewError(CodeMalformedFrame, "", errors.New("缺少 event 欄位"))
	}

	var unmarshal func(v any) error
	if len(env.Data) > 0 && string(env.Data) != "null" {
		unmarshal = func(v any) error { return json.Unmarshal(env.Data, v) }
	}
	return decodeInbound(c.opts, env.Event, unmarshal)
}

// MsgpackCodec 二進位 frame 的 msgpack 編解碼器
type MsgpackCodec struct {
	opts Options
}

// NewMsgpackCodec 建立 msgpack 編解碼器
func NewMsgpackCodec(opts Options) *MsgpackCodec {
	return &MsgpackCodec{opts: opts.withDefaults()}
}

func (c *MsgpackCodec) Name() string { return FormatMsgpack }
func (c *MsgpackCodec) Binary() bool { return true }

type msgpackEnvelope struct {
	Event string             `msgpack:"event"`
	Data  msgpack.RawMessage `msgpack:"data,omitempty"`
}

// Encode 編碼出站事件
func (c *MsgpackCodec) Encode(out Outbound) ([]byte, error) {
	env := struct {
		Event string `msgpack:"event"`
		Data  any    `msgpack:"data,omitempty"`
	}{
		Event: c.opts.Dialect.WireName(out.Kind),
		Data:  wirePayload(c.opts.Dialect, out),
	}
	return msgpack.Marshal(&env)
}

// Decode 解碼入站 frame
func (c *MsgpackCodec) Decode(frame []byte) (Inbound, error) {
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(frame, &env); err != nil {
		return nil, NewError(CodeMalformedFrame, "", err)
	}
	if env.Event == "" {
		return nil, NewError(CodeMalformedFrame, "", errors.New("缺少 event 欄位"))
	}

	var unmarshal func(v any) error
	// 0xc0 是 msgpack 的 nil
	if len(env.Data) > 0 && !(len(env.Data) == 1 && env.Data[0] == 0xc0) {
		unmarshal = func(v any) error { return msgpack.Unmarshal(env.Data, v) }
	}
	return decodeInbound(c.opts, env.Event, unmarshal)
}
