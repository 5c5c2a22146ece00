package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/mzollin/CocktailMixer/internal/logger"
	"go.uber.org/zap"
)

// MockActuator 模拟出酒驱动（调试和测试用）
type MockActuator struct {
	mu      sync.Mutex
	logger  *zap.Logger
	rate    float64 // 克/秒，<=0 表示立即完成
	busy    bool
	abortCh chan struct{}

	// 记录
	pours  [][]DispenseInstruction
	aborts int

	// FailOn 指定原料时返回失败
	FailOn map[string]string
	// Progress 出酒过程中回报累计质量，可用于模拟秤
	Progress func(grams uint32)
}

// NewMockActuator 创建模拟出酒驱动
func NewMockActuator(rate float64) *MockActuator {
	return &MockActuator{
		logger: logger.DispenseLogger(),
		rate:   rate,
		FailOn: make(map[string]string),
	}
}

// Dispense 按速率模拟出酒
func (m *MockActuator) Dispense(ctx context.Context, instructions []DispenseInstruction) DispenseResult {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return Failed("actuator busy")
	}
	m.busy = true
	abortCh := make(chan struct{})
	m.abortCh = abortCh
	m.pours = append(m.pours, append([]DispenseInstruction(nil), instructions...))
	rate := m.rate
	progress := m.Progress
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.busy = false
		m.abortCh = nil
		m.mu.Unlock()
	}()

	var total float64
	for _, ins := range instructions {
		m.mu.Lock()
		reason, fail := m.FailOn[ins.Ingredient]
		m.mu.Unlock()
		if fail {
			m.logger.Warn("模拟出酒失败", zap.String("ingredient", ins.Ingredient), zap.String("reason", reason))
			return Failed(reason)
		}

		var wait time.Duration
		if rate > 0 {
			wait = time.Duration(ins.MassGrams / rate * float64(time.Second))
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-abortCh:
			t.Stop()
			return Aborted()
		case <-ctx.Done():
			t.Stop()
			return Aborted()
		}

		total += ins.MassGrams
		if progress != nil {
			progress(uint32(total + 0.5))
		}
		m.logger.Debug("模拟出酒完成", zap.String("ingredient", ins.Ingredient), zap.Float64("mass_g", ins.MassGrams))
	}
	return Completed()
}

// Abort 中止当前模拟出酒
func (m *MockActuator) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborts++
	if m.abortCh != nil {
		close(m.abortCh)
		m.abortCh = nil
	}
	m.logger.Info("模拟出酒中止")
	return nil
}

// Pours 返回所有出酒记录
func (m *MockActuator) Pours() [][]DispenseInstruction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]DispenseInstruction(nil), m.pours...)
}

// Aborts 返回中止次数
func (m *MockActuator) Aborts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborts
}

// Busy 是否正在出酒
func (m *MockActuator) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// SetRate 修改出酒速率
func (m *MockActuator) SetRate(rate float64) {
	m.mu.Lock()
	m.rate = rate
	m.mu.Unlock()
}
