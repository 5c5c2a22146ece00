package hardware

import (
	"strconv"
	"strings"
	"sync"

	"github.com/mzollin/CocktailMixer/internal/logger"
	"go.uber.org/zap"
)

// FrameHandler 处理非update动词的回调
type FrameHandler func(frame *CommandFrame)

// CommandDispatcher 把帧映射为硬件事件
type CommandDispatcher struct {
	mu       sync.RWMutex
	handlers map[Command][]FrameHandler
	logger   *zap.Logger
}

// NewCommandDispatcher 创建分发器
func NewCommandDispatcher() *CommandDispatcher {
	return &CommandDispatcher{
		handlers: make(map[Command][]FrameHandler),
		logger:   logger.SerialLogger(),
	}
}

// Handle 为get/set/pour/finished注册处理器，不改变返回的事件
func (d *CommandDispatcher) Handle(cmd Command, h FrameHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[cmd] = append(d.handlers[cmd], h)
}

// Dispatch 每帧恰好返回一个事件
func (d *CommandDispatcher) Dispatch(frame *CommandFrame) HardwareEvent {
	switch frame.Command {
	case CommandUpdate:
		return d.dispatchUpdate(frame)
	case CommandGet, CommandSet, CommandPour, CommandFinished:
		d.route(frame)
		return Ignored()
	default:
		// Unhandled
		d.logger.Debug("未处理的命令",
			zap.String("command", frame.Verb),
			zap.String("id", frame.ID))
		return Ignored()
	}
}

func (d *CommandDispatcher) dispatchUpdate(frame *CommandFrame) HardwareEvent {
	switch frame.ID {
	case SignalEncoder:
		delta, err := strconv.ParseInt(strings.TrimSpace(frame.Value), 10, 32)
		if err != nil {
			d.logger.Warn("encoder值无效", zap.String("value", frame.Value), zap.Error(err))
			return Ignored()
		}
		return EncoderDelta(int32(delta))
	case SignalEncoderButton:
		return EncoderClick()
	case SignalScale:
		grams, err := strconv.ParseUint(strings.TrimSpace(frame.Value), 10, 32)
		if err != nil {
			d.logger.Warn("scale值无效", zap.String("value", frame.Value), zap.Error(err))
			return Ignored()
		}
		return ScaleReading(uint32(grams))
	case SignalEmergencyStop:
		return EmergencyStop()
	case SignalCoinCounter, SignalKeySwitch:
		// 预留
		return Ignored()
	default:
		d.logger.Debug("未知信号", zap.String("id", frame.ID))
		return Ignored()
	}
}

func (d *CommandDispatcher) route(frame *CommandFrame) {
	d.mu.RLock()
	hs := d.handlers[frame.Command]
	d.mu.RUnlock()

	if len(hs) == 0 {
		d.logger.Debug("无处理器的命令",
			zap.String("command", frame.Command.String()),
			zap.String("id", frame.ID),
			zap.String("value", frame.Value))
		return
	}
	for _, h := range hs {
		h(frame)
	}
}
