package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchUpdate(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		value string
		want  HardwareEvent
	}{
		{"encoder up", SignalEncoder, "1", EncoderDelta(1)},
		{"encoder down", SignalEncoder, "-3", EncoderDelta(-3)},
		{"encoder padded", SignalEncoder, " 2 ", EncoderDelta(2)},
		{"encoder garbage", SignalEncoder, "up", Ignored()},
		{"encoder overflow", SignalEncoder, "9999999999", Ignored()},
		{"encoder empty", SignalEncoder, "", Ignored()},
		{"button", SignalEncoderButton, "1", EncoderClick()},
		{"button no value", SignalEncoderButton, "", EncoderClick()},
		{"scale", SignalScale, "250", ScaleReading(250)},
		{"scale negative", SignalScale, "-5", Ignored()},
		{"scale float", SignalScale, "12.5", Ignored()},
		{"emergency stop", SignalEmergencyStop, "1", EmergencyStop()},
		{"emergency stop any value", SignalEmergencyStop, "", EmergencyStop()},
		{"coin counter", SignalCoinCounter, "1", Ignored()},
		{"key switch", SignalKeySwitch, "1", Ignored()},
		{"unknown id", "door_sensor", "open", Ignored()},
	}

	d := NewCommandDispatcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Dispatch(NewFrame(CommandUpdate, tt.id, tt.value))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDispatchOtherVerbsAreIgnored(t *testing.T) {
	d := NewCommandDispatcher()
	for _, cmd := range []Command{CommandGet, CommandSet, CommandPour, CommandFinished, CommandUnknown} {
		ev := d.Dispatch(&CommandFrame{Command: cmd, Verb: "x", ID: SignalEncoder, Value: "1"})
		assert.Equal(t, EventIgnored, ev.Type, cmd.String())
	}
}

func TestDispatchRoutesToHandlers(t *testing.T) {
	d := NewCommandDispatcher()

	var finished, first, second []string
	d.Handle(CommandFinished, func(f *CommandFrame) { finished = append(finished, f.ID+"="+f.Value) })
	d.Handle(CommandGet, func(f *CommandFrame) { first = append(first, f.ID) })
	d.Handle(CommandGet, func(f *CommandFrame) { second = append(second, f.ID) })

	ev := d.Dispatch(NewFrame(CommandFinished, "gin", "ok"))
	assert.Equal(t, Ignored(), ev)
	ev = d.Dispatch(NewFrame(CommandGet, "scale", ""))
	assert.Equal(t, Ignored(), ev)
	// update不经过处理器
	d.Dispatch(NewFrame(CommandUpdate, "scale", "1"))

	require.Equal(t, []string{"gin=ok"}, finished)
	assert.Equal(t, []string{"scale"}, first)
	assert.Equal(t, []string{"scale"}, second)
}

func TestHardwareEventString(t *testing.T) {
	assert.Equal(t, "encoder_delta(-1)", EncoderDelta(-1).String())
	assert.Equal(t, "scale_reading(20g)", ScaleReading(20).String())
	assert.Equal(t, "emergency_stop", EmergencyStop().String())
}
