package hardware

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mzollin/CocktailMixer/internal/logger"
	"go.uber.org/zap"
)

// DispenseInstruction 单个原料的出酒指令
type DispenseInstruction struct {
	Ingredient string  `json:"ingredient"`
	MassGrams  float64 `json:"mass_g"`
}

// DispenseStatus 出酒结果状态
type DispenseStatus int

const (
	DispenseCompleted DispenseStatus = iota
	DispenseAborted
	DispenseFailed
)

func (s DispenseStatus) String() string {
	switch s {
	case DispenseCompleted:
		return "completed"
	case DispenseAborted:
		return "aborted"
	default:
		return "failed"
	}
}

// DispenseResult 出酒结果，Failed时带原因
type DispenseResult struct {
	Status DispenseStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

func Completed() DispenseResult { return DispenseResult{Status: DispenseCompleted} }
func Aborted() DispenseResult { return DispenseResult{Status: DispenseAborted} }
func Failed(reason string) DispenseResult { return DispenseResult{Status: DispenseFailed, Reason: reason} }

// Actuator 出酒驱动。Dispense 阻塞直到完成、中止或失败；Abort 可在任意协程调用。
type Actuator interface {
	Dispense(ctx context.Context, instructions []DispenseInstruction) DispenseResult
	Abort() error
}

// FrameSender 发送帧的一方（串口控制器）
type FrameSender interface {
	Send(frame *CommandFrame) error
}

// 完成帧的成功值
const FinishedOK = "ok"

type pourWait struct {
	ingredient string
	done       chan string
}

// SerialActuator 通过串口逐个原料下发pour帧，等待finished帧
type SerialActuator struct {
	sender  FrameSender
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	busy    bool
	active  *pourWait
	abortCh chan struct{}
}

// NewSerialActuator 创建串口出酒驱动，并在分发器上注册finished处理
func NewSerialActuator(sender FrameSender, dispatcher *CommandDispatcher, timeout time.Duration) *SerialActuator {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	a := &SerialActuator{
		sender:  sender,
		timeout: timeout,
		logger:  logger.DispenseLogger(),
	}
	dispatcher.Handle(CommandFinished, a.onFinished)
	return a
}

// Dispense 执行出酒
func (a *SerialActuator) Dispense(ctx context.Context, instructions []DispenseInstruction) DispenseResult {
	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		return Failed("actuator busy")
	}
	a.busy = true
	abortCh := make(chan struct{})
	a.abortCh = abortCh
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.busy = false
		a.active = nil
		a.abortCh = nil
		a.mu.Unlock()
	}()

	deadline := time.NewTimer(a.timeout)
	defer deadline.Stop()

	for _, ins := range instructions {
		if ins.MassGrams <= 0 {
			continue
		}
		// 中止后不再下发新的pour帧
		select {
		case <-abortCh:
			a.stopPump()
			return Aborted()
		case <-ctx.Done():
			a.stopPump()
			return Aborted()
		default:
		}

		wait := &pourWait{ingredient: ins.Ingredient, done: make(chan string, 1)}
		a.mu.Lock()
		a.active = wait
		a.mu.Unlock()

		a.logger.Info("下发出酒指令",
			zap.String("ingredient", ins.Ingredient),
			zap.Float64("mass_g", ins.MassGrams))
		if err := a.sender.Send(NewFrame(CommandPour, ins.Ingredient, FormatGrams(ins.MassGrams))); err != nil {
			return Failed(err.Error())
		}

		select {
		case value := <-wait.done:
			if !isFinishedOK(value) {
				a.logger.Error("出酒失败", zap.String("ingredient", ins.Ingredient), zap.String("value", value))
				return Failed(ins.Ingredient + ": " + value)
			}
		case <-abortCh:
			// Abort 的停泵帧可能早于刚下发的pour帧
			a.stopPump()
			return Aborted()
		case <-ctx.Done():
			a.stopPump()
			return Aborted()
		case <-deadline.C:
			a.stopPump()
			a.logger.Error("出酒超时", zap.Duration("timeout", a.timeout))
			return Failed("timeout")
		}
	}
	return Completed()
}

// Abort 中止当前出酒并发送停泵帧（无出酒时也发送）
func (a *SerialActuator) Abort() error {
	a.mu.Lock()
	if a.abortCh != nil {
		close(a.abortCh)
		a.abortCh = nil
	}
	a.mu.Unlock()
	return a.stopPump()
}

func (a *SerialActuator) stopPump() error {
	if err := a.sender.Send(NewFrame(CommandSet, SignalPump, "stop")); err != nil {
		a.logger.Error("停泵帧发送失败", zap.Error(err))
		return err
	}
	return nil
}

// onFinished 在串口读协程中调用
func (a *SerialActuator) onFinished(frame *CommandFrame) {
	a.mu.Lock()
	w := a.active
	a.mu.Unlock()

	if w == nil || w.ingredient != frame.ID {
		a.logger.Warn("意外的finished帧", zap.String("id", frame.ID), zap.String("value", frame.Value))
		return
	}
	select {
	case w.done <- frame.Value:
	default:
	}
}

func isFinishedOK(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, FinishedOK)
}
