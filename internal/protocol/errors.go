package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Code 回傳給客戶端的錯誤碼
type Code string

const (
	CodeMalformedFrame Code = "malformed-frame" // 信封無法解析
	CodeUnknownEvent   Code = "unknown-event"   // 不認識的事件名稱
	CodeInvalidPayload Code = "invalid-payload" // payload 不符合該事件的結構
	CodeInvalidRoomID  Code = "invalid-room-id" // 缺少或不合法的 roomID
	CodeAlreadyPaired  Code = "already-paired"  // 已配對到其他房間
	CodeNotPaired      Code = "not-paired"      // 尚未配對就送出指標事件
	CodeRoleForbidden  Code = "role-forbidden"  // 角色不允許此操作
)

var codeMessages = map[Code]string{
	CodeMalformedFrame: "無法解析的訊息",
	CodeUnknownEvent:   "未知的事件類型",
	CodeInvalidPayload: "事件資料格式錯誤",
	CodeInvalidRoomID:  "缺少或無效的房間 ID",
	CodeAlreadyPaired:  "連接已配對到其他房間",
	CodeNotPaired:      "尚未完成配對",
	CodeRoleForbidden:  "此角色不能發送該事件",
}

// Message 錯誤碼的說明文字
func (c Code) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return string(c)
}

// DefaultMaxRoomIDLength roomID 的預設長度上限
const DefaultMaxRoomIDLength = 128

// Error 協議層錯誤，帶有回傳給客戶端的錯誤碼。
type Error struct {
	Code  Code
	Event string // 觸發錯誤的事件名稱（線路上的名稱）
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Event != "" {
		fmt.Fprintf(&b, " (event=%s)", e.Event)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError 建立協議錯誤
func NewError(code Code, event string, err error) *Error {
	return &Error{Code: code, Event: event, Err: err}
}

// CodeOf 取出錯誤碼；非協議錯誤回傳空字串。
func CodeOf(err error) Code {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}

// ValidateRoomID 驗證房間 ID：不可為空白、不可超過長度上限、不可包含控制字元。
func ValidateRoomID(roomID string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxRoomIDLength
	}
	if strings.TrimSpace(roomID) == "" {
		return errors.New("房間 ID 為空")
	}
	if len(roomID) > maxLen {
		return fmt.Errorf("房間 ID 超過 %d 字元", maxLen)
	}
	for _, r := range roomID {
		if unicode.IsControl(r) {
			return errors.New("房間 ID 包含控制字元")
		}
	}
	return nil
}
