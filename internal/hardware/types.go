package hardware

import (
	"fmt"
)

// EventType 硬件事件类型
type EventType int

const (
	EventIgnored EventType = iota
	EventEncoderDelta
	EventEncoderClick
	EventScaleReading
	EventEmergencyStop
)

func (t EventType) String() string {
	switch t {
	case EventEncoderDelta:
		return "encoder_delta"
	case EventEncoderClick:
		return "encoder_click"
	case EventScaleReading:
		return "scale_reading"
	case EventEmergencyStop:
		return "emergency_stop"
	default:
		return "ignored"
	}
}

// HardwareEvent 分发器的输出，每个有效帧对应一个
type HardwareEvent struct {
	Type  EventType
	Delta int32  // EventEncoderDelta
	Grams uint32 // EventScaleReading
}

func (e HardwareEvent) String() string {
	switch e.Type {
	case EventEncoderDelta:
		return fmt.Sprintf("%s(%d)", e.Type, e.Delta)
	case EventScaleReading:
		return fmt.Sprintf("%s(%dg)", e.Type, e.Grams)
	default:
		return e.Type.String()
	}
}

// 事件构造
func EncoderDelta(d int32) HardwareEvent { return HardwareEvent{Type: EventEncoderDelta, Delta: d} }
func EncoderClick() HardwareEvent { return HardwareEvent{Type: EventEncoderClick} }
func ScaleReading(g uint32) HardwareEvent { return HardwareEvent{Type: EventScaleReading, Grams: g} }
func EmergencyStop() HardwareEvent { return HardwareEvent{Type: EventEmergencyStop} }
func Ignored() HardwareEvent { return HardwareEvent{Type: EventIgnored} }

// EventSink 接收有序硬件事件的一方（状态机）
type EventSink interface {
	Post(ev HardwareEvent)
	LinkLost(reason string)
}

// FrameRecorder 帧诊断记录
type FrameRecorder interface {
	RecordFrame(direction string, raw []byte, frame *CommandFrame, err error)
}
