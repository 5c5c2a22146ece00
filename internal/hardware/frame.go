package hardware

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
)

// Command 帧命令（动词）
type Command int

const (
	CommandUnknown Command = iota // 未知动词，前向兼容
	CommandUpdate
	CommandGet
	CommandSet
	CommandPour
	CommandFinished
)

var commandNames = map[Command]string{
	CommandUpdate:   "update",
	CommandGet:      "get",
	CommandSet:      "set",
	CommandPour:     "pour",
	CommandFinished: "finished",
}

// String 返回线上使用的小写名称
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCommand 不区分大小写解析命令
func ParseCommand(s string) Command {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range commandNames {
		if name == s {
			return c
		}
	}
	return CommandUnknown
}

// 信号ID
const (
	SignalEncoder       = "encoder"
	SignalEncoderButton = "encoder_button"
	SignalScale         = "scale"
	SignalEmergencyStop = "emergency_stop"
	SignalCoinCounter   = "coin_counter"
	SignalKeySwitch     = "key_switch"
	SignalPump          = "pump"
)

// CommandFrame 一条解码后的协议消息
type CommandFrame struct {
	Command  Command `json:"-"`
	Verb     string  `json:"command"` // 原始动词文本
	ID       string  `json:"id"`
	Value    string  `json:"value,omitempty"`
	HasValue bool    `json:"-"`
	Checksum string  `json:"checksum,omitempty"` // 接收但不校验
}

// NewFrame 构造待发送帧
func NewFrame(cmd Command, id, value string) *CommandFrame {
	return &CommandFrame{
		Command:  cmd,
		Verb:     cmd.String(),
		ID:       id,
		Value:    value,
		HasValue: value != "",
	}
}

type wireFrame struct {
	Command  *string         `json:"command"`
	ID       *string         `json:"id"`
	Value    json.RawMessage `json:"value,omitempty"`
	Checksum json.RawMessage `json:"checksum,omitempty"`
}

// DecodeFrame 解析一行（不含换行符）
func DecodeFrame(line []byte) (*CommandFrame, error) {
	if !utf8.Valid(line) {
		return nil, apperrors.New(apperrors.ErrFrameDecode, "非UTF-8数据")
	}

	var w wireFrame
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrFrameDecode)
	}
	if w.Command == nil {
		return nil, apperrors.New(apperrors.ErrFrameDecode, "缺少command字段")
	}
	if w.ID == nil {
		return nil, apperrors.New(apperrors.ErrFrameDecode, "缺少id字段")
	}

	frame := &CommandFrame{
		Command: ParseCommand(*w.Command),
		Verb:    *w.Command,
		ID:      *w.ID,
	}

	value, ok, err := scalarText(w.Value)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrFrameDecode, "value字段")
	}
	frame.Value, frame.HasValue = value, ok

	// checksum 可能是字符串或数字，仅保留文本
	if checksum, _, err := scalarText(w.Checksum); err == nil {
		frame.Checksum = checksum
	}
	return frame, nil
}

// scalarText 接受JSON字符串或数字，null视为缺省
func scalarText(raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false, err
		}
		return n.String(), true, nil
	}
}

// EncodeFrame 编码为带换行符的一行
func EncodeFrame(f *CommandFrame) ([]byte, error) {
	verb := f.Verb
	if verb == "" {
		verb = f.Command.String()
	}
	out := struct {
		Command  string `json:"command"`
		ID       string `json:"id"`
		Value    string `json:"value"`
		Checksum string `json:"checksum,omitempty"`
	}{verb, f.ID, f.Value, f.Checksum}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParam, "编码帧")
	}
	return append(data, '\n'), nil
}

// FormatGrams 出酒质量按两位小数编码
func FormatGrams(g float64) string {
	return strconv.FormatFloat(g, 'f', 2, 64)
}
