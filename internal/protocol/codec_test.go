package protocol_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/koopa0/system-design/remote-pairing/internal/protocol"
)

// TestJSONCodec_Decode 測試 JSON 入站解碼
func TestJSONCodec_Decode(t *testing.T) {
	codec := protocol.NewJSONCodec(protocol.Options{})

	tests := []struct {
		name     string
		frame    string
		wantCode protocol.Code
		validate func(t *testing.T, in protocol.Inbound)
	}{
		{
			name:  "main pair",
			frame: `{"event":"main-pair","data":{"roomID":"abc123"}}`,
			validate: func(t *testing.T, in protocol.Inbound) {
				req, ok := in.(*protocol.PairRequest)
				require.True(t, ok)
				assert.Equal(t, protocol.KindMainPair, req.Kind)
				assert.Equal(t, "abc123", req.RoomID)
			},
		},
		{
			name:  "controller pair",
			frame: `{"event":"controller-pair","data":{"roomID":"xyz"}}`,
			validate: func(t *testing.T, in protocol.Inbound) {
				assert.Equal(t, protocol.KindControllerPair, in.InboundKind())
			},
		},
		{
			name:  "pointer move ignores roomID",
			frame: `{"event":"controller-pointer-move","data":{"roomID":"other","x":10,"y":20}}`,
			validate: func(t *testing.T, in protocol.Inbound) {
				ev, ok := in.(*protocol.PointerEvent)
				require.True(t, ok)
				assert.Equal(t, protocol.KindPointerMove, ev.Kind)
				assert.Equal(t, protocol.Pointer{X: 10, Y: 20}, ev.Pointer)
			},
		},
		{
			name:  "pointer extra fields are tolerated",
			frame: `{"event":"controller-pointer-down","data":{"x":1.5,"y":-3,"pressure":0.4}}`,
			validate: func(t *testing.T, in protocol.Inbound) {
				ev := in.(*protocol.PointerEvent)
				assert.Equal(t, protocol.Pointer{X: 1.5, Y: -3}, ev.Pointer)
			},
		},
		{name: "not json", frame: `hello`, wantCode: protocol.CodeMalformedFrame},
		{name: "missing event", frame: `{"data":{}}`, wantCode: protocol.CodeMalformedFrame},
		{name: "unknown event", frame: `{"event":"reboot"}`, wantCode: protocol.CodeUnknownEvent},
		{name: "outbound event sent by client", frame: `{"event":"pairing-succeeded"}`, wantCode: protocol.CodeUnknownEvent},
		{name: "pair without data", frame: `{"event":"main-pair"}`, wantCode: protocol.CodeInvalidRoomID},
		{name: "pair with null data", frame: `{"event":"main-pair","data":null}`, wantCode: protocol.CodeInvalidRoomID},
		{name: "pair without roomID", frame: `{"event":"main-force-pair","data":{}}`, wantCode: protocol.CodeInvalidRoomID},
		{name: "pair with blank roomID", frame: `{"event":"controller-pair","data":{"roomID":"  "}}`, wantCode: protocol.CodeInvalidRoomID},
		{name: "pair with numeric roomID", frame: `{"event":"main-pair","data":{"roomID":42}}`, wantCode: protocol.CodeInvalidRoomID},
		{name: "pointer without data", frame: `{"event":"controller-pointer-up"}`, wantCode: protocol.CodeInvalidPayload},
		{name: "pointer without y", frame: `{"event":"controller-pointer-up","data":{"x":1}}`, wantCode: protocol.CodeInvalidPayload},
		{name: "pointer with string x", frame: `{"event":"controller-pointer-up","data":{"x":"1","y":2}}`, wantCode: protocol.CodeInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := codec.Decode([]byte(tt.frame))
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, protocol.CodeOf(err))
				assert.Nil(t, in)
				return
			}
			require.NoError(t, err)
			tt.validate(t, in)
		})
	}
}

// TestJSONCodec_Encode 測試 JSON 出站編碼
func TestJSONCodec_Encode(t *testing.T) {
	codec := protocol.NewJSONCodec(protocol.Options{})

	frame, err := codec.Encode(protocol.NewPointer(protocol.KindPointerMoveToMain, protocol.Pointer{X: 10, Y: 20}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"pointer-move-to-main","data":{"x":10,"y":20}}`, string(frame))

	frame, err = codec.Encode(protocol.NewAck(protocol.KindPairingAcceptedMain, "abc123", protocol.RoleMain))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"pairing-accepted-main","data":{"roomID":"abc123","role":"main"}}`, string(frame))

	frame, err = codec.Encode(protocol.NewFailure(protocol.CodeNotPaired, "controller-pointer-move"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.Equal(t, "error", got["event"])
	data := got["data"].(map[string]any)
	assert.Equal(t, "not-paired", data["code"])
	assert.Equal(t, "controller-pointer-move", data["event"])
	assert.NotEmpty(t, data["message"])
}

// TestLegacyDialect 測試舊版客戶端事件名稱
func TestLegacyDialect(t *testing.T) {
	codec := protocol.NewJSONCodec(protocol.Options{Dialect: protocol.Legacy})

	in, err := codec.Decode([]byte(`{"event":"pairingFromController","data":{"roomID":"abc"}}`))
	require.NoError(t, err)
	assert.Equal(t, protocol.KindControllerPair, in.InboundKind())

	in, err = codec.Decode([]byte(`{"event":"mouseMoveFromControler","data":{"x":1,"y":2}}`))
	require.NoError(t, err)
	assert.Equal(t, protocol.KindPointerMove, in.InboundKind())

	// 舊版客戶端附帶的額外欄位不轉發
	in, err = codec.Decode([]byte(`{"event":"mouseDownFromControler","data":{"roomID":"abc","x":3,"y":4,"button":"left"}}`))
	require.NoError(t, err)
	ev := in.(*protocol.PointerEvent)
	assert.Equal(t, protocol.Pointer{X: 3, Y: 4}, ev.Pointer)
	frame, err := codec.Encode(protocol.NewPointer(protocol.KindPointerDownToMain, ev.Pointer))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"mouseDownToMain","data":{"x":3,"y":4}}`, string(frame))

	// 標準名稱在舊版方言中不被接受
	_, err = codec.Decode([]byte(`{"event":"main-pair","data":{"roomID":"abc"}}`))
	assert.Equal(t, protocol.CodeUnknownEvent, protocol.CodeOf(err))

	frame, err = codec.Encode(protocol.NewAck(protocol.KindPairingAcceptedMain, "abc", protocol.RoleMain))
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"event":"successLoginPC"`)

	frame, err = codec.Encode(protocol.NewFailure(protocol.CodeNotPaired, ""))
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"event":"error"`)

	// 錯誤事件回報的事件名稱使用客戶端的方言
	_, err = codec.Decode([]byte(`{"event":"mouseUpFromControler"}`))
	require.Error(t, err)
	frame, err = codec.Encode(protocol.FailureFor(err))
	require.NoError(t, err)

	var got struct {
		Event string           `json:"event"`
		Data  protocol.Failure `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.Equal(t, "error", got.Event)
	assert.Equal(t, protocol.CodeInvalidPayload, got.Data.Code)
	assert.Equal(t, "mouseUpFromControler", got.Data.Event)
}

// TestDialectByName 測試方言查詢
func TestDialectByName(t *testing.T) {
	d, err := protocol.DialectByName("")
	require.NoError(t, err)
	assert.Equal(t, "standard", d.Name())

	d, err = protocol.DialectByName("legacy")
	require.NoError(t, err)
	assert.Equal(t, "legacy", d.Name())

	_, err = protocol.DialectByName("klingon")
	assert.Error(t, err)
}

// TestMsgpackCodec 測試 msgpack 編解碼
func TestMsgpackCodec(t *testing.T) {
	codec := protocol.NewMsgpackCodec(protocol.Options{})
	assert.True(t, codec.Binary())

	frame, err := msgpack.Marshal(map[string]any{
		"event": "controller-pointer-move",
		"data":  map[string]any{"x": 10, "y": 20.5},
	})
	require.NoError(t, err)

	in, err := codec.Decode(frame)
	require.NoError(t, err)
	ev := in.(*protocol.PointerEvent)
	assert.Equal(t, protocol.Pointer{X: 10, Y: 20.5}, ev.Pointer)

	frame, err = msgpack.Marshal(map[string]any{"event": "main-pair"})
	require.NoError(t, err)
	_, err = codec.Decode(frame)
	assert.Equal(t, protocol.CodeInvalidRoomID, protocol.CodeOf(err))

	_, err = codec.Decode([]byte{0xff, 0x00})
	assert.Equal(t, protocol.CodeMalformedFrame, protocol.CodeOf(err))

	out, err := codec.Encode(protocol.NewAck(protocol.KindPairingSucceeded, "abc", protocol.RoleController))
	require.NoError(t, err)

	var env struct {
		Event string         `msgpack:"event"`
		Data  map[string]any `msgpack:"data"`
	}
	require.NoError(t, msgpack.Unmarshal(out, &env))
	assert.Equal(t, "pairing-succeeded", env.Event)
	assert.Equal(t, "abc", env.Data["roomID"])
	assert.Equal(t, "controller", env.Data["role"])
}

// TestNewCodec 測試依格式建立編解碼器
func TestNewCodec(t *testing.T) {
	c, err := protocol.NewCodec("", protocol.Options{})
	require.NoError(t, err)
	assert.Equal(t, protocol.FormatJSON, c.Name())

	c, err = protocol.NewCodec("msgpack", protocol.Options{})
	require.NoError(t, err)
	assert.Equal(t, protocol.FormatMsgpack, c.Name())

	_, err = protocol.NewCodec("xml", protocol.Options{})
	assert.Error(t, err)
}

// TestOutbound_JSONRoundTrip 測試出站事件跨節點傳遞時還原 payload 型別
func TestOutbound_JSONRoundTrip(t *testing.T) {
	events := []protocol.Outbound{
		protocol.NewAck(protocol.KindPairingSucceeded, "abc", protocol.RoleController),
		protocol.NewPointer(protocol.KindPointerUpToMain, protocol.Pointer{X: 3, Y: 4}),
		protocol.NewDeparture("abc", protocol.RoleMain),
		protocol.NewFailure(protocol.CodeRoleForbidden, "controller-pointer-up"),
	}

	for _, want := range events {
		t.Run(string(want.Kind), func(t *testing.T) {
			b, err := json.Marshal(want)
			require.NoError(t, err)

			var got protocol.Outbound
			require.NoError(t, json.Unmarshal(b, &got))
			assert.Equal(t, want, got)
		})
	}

	for _, raw := range []string{
		`{"event":"main-pair"}`,
		`{"event":"controller-pointer-move","data":{"x":1,"y":2}}`,
		`{"event":"bogus"}`,
	} {
		var bad protocol.Outbound
		assert.Error(t, json.Unmarshal([]byte(raw), &bad), raw)
	}
}

// TestValidateRoomID 測試房間 ID 驗證
func TestValidateRoomID(t *testing.T) {
	assert.NoError(t, protocol.ValidateRoomID("abc123", 0))
	assert.NoError(t, protocol.ValidateRoomID("房間-1", 0))
	assert.Error(t, protocol.ValidateRoomID("", 0))
	assert.Error(t, protocol.ValidateRoomID("\t", 0))
	assert.Error(t, protocol.ValidateRoomID("a\nb", 0))
	assert.Error(t, protocol.ValidateRoomID(strings.Repeat("a", 9), 8))
	assert.NoError(t, protocol.ValidateRoomID(strings.Repeat("a", 8), 8))
}

// TestKind 測試事件種類的分類
func TestKind(t *testing.T) {
	out, ok := protocol.KindPointerDown.ToMain()
	assert.True(t, ok)
	assert.Equal(t, protocol.KindPointerDownToMain, out)

	_, ok = protocol.KindMainPair.ToMain()
	assert.False(t, ok)

	assert.Equal(t, protocol.RoleMain, protocol.RoleFor(protocol.KindMainForcePair))
	assert.Equal(t, protocol.RoleController, protocol.RoleFor(protocol.KindControllerPair))
	assert.Equal(t, protocol.RoleUnknown, protocol.RoleFor(protocol.KindPointerMove))
	assert.True(t, protocol.KindError.IsOutbound())
	assert.False(t, protocol.KindError.IsInbound())
}
