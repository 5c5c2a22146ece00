package hardware

import (
	"testing"

	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"command": "update", "id": "encoder", "value": "-1", "checksum": "ABCD"}`))
	require.NoError(t, err)
	assert.Equal(t, CommandUpdate, frame.Command)
	assert.Equal(t, "update", frame.Verb)
	assert.Equal(t, SignalEncoder, frame.ID)
	assert.Equal(t, "-1", frame.Value)
	assert.True(t, frame.HasValue)
	assert.Equal(t, "ABCD", frame.Checksum)
}

func TestDecodeFrameVariants(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		command  Command
		value    string
		hasValue bool
	}{
		{"no value", `{"command":"update","id":"encoder_button"}`, CommandUpdate, "", false},
		{"null value", `{"command":"update","id":"emergency_stop","value":null}`, CommandUpdate, "", false},
		{"numeric value", `{"command":"update","id":"scale","value":125}`, CommandUpdate, "125", true},
		{"upper case verb", `{"command":"FINISHED","id":"gin","value":"ok"}`, CommandFinished, "ok", true},
		{"unknown verb", `{"command":"reboot","id":"mcu"}`, CommandUnknown, "", false},
		{"numeric checksum", `{"command":"get","id":"scale","checksum":4711}`, CommandGet, "", false},
		{"extra fields", `{"command":"set","id":"pump","value":"stop","seq":3}`, CommandSet, "stop", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeFrame([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.command, frame.Command)
			assert.Equal(t, tt.value, frame.Value)
			assert.Equal(t, tt.hasValue, frame.HasValue)
		})
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		line []byte
	}{
		{"not json", []byte(`update encoder 1`)},
		{"truncated", []byte(`{"command":"update","id":"enc`)},
		{"array", []byte(`[1,2,3]`)},
		{"missing command", []byte(`{"id":"encoder","value":"1"}`)},
		{"missing id", []byte(`{"command":"update","value":"1"}`)},
		{"command not string", []byte(`{"command":1,"id":"encoder"}`)},
		{"object value", []byte(`{"command":"update","id":"scale","value":{"g":1}}`)},
		{"invalid utf8", []byte{'{', '"', 'i', 'd', '"', ':', '"', 0xff, 0xfe, '"', '}'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeFrame(tt.line)
			assert.Nil(t, frame)
			assert.True(t, apperrors.Is(err, apperrors.ErrFrameDecode), "got %v", err)
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	data, err := EncodeFrame(NewFrame(CommandPour, "gin", FormatGrams(19)))
	require.NoError(t, err)
	assert.Equal(t, `{"command":"pour","id":"gin","value":"19.00"}`+"\n", string(data))

	frame, err := DecodeFrame(data[:len(data)-1])
	require.NoError(t, err)
	assert.Equal(t, CommandPour, frame.Command)
	assert.Equal(t, "19.00", frame.Value)
}

func TestParseCommand(t *testing.T) {
	assert.Equal(t, CommandUpdate, ParseCommand(" Update "))
	assert.Equal(t, CommandPour, ParseCommand("pour"))
	assert.Equal(t, CommandUnknown, ParseCommand(""))
	assert.Equal(t, "unknown", CommandUnknown.String())
}
