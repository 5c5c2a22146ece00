package kiosk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mzollin/CocktailMixer/internal/hardware"
	"github.com/mzollin/CocktailMixer/internal/recipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wireSender 模拟串口线路：记录下发的帧，只对第一次pour回送finished
type wireSender struct {
	mu         sync.Mutex
	dispatcher *hardware.CommandDispatcher
	frames     []*hardware.CommandFrame
	pours      int
	beforePour func(n int)
}

func (w *wireSender) Send(f *hardware.CommandFrame) error {
	if f.Command == hardware.CommandPour {
		w.mu.Lock()
		w.pours++
		n, hook := w.pours, w.beforePour
		w.mu.Unlock()
		if hook != nil {
			hook(n)
		}
		if n == 1 {
			go w.dispatcher.Dispatch(hardware.NewFrame(hardware.CommandFinished, f.ID, hardware.FinishedOK))
		}
	}
	w.mu.Lock()
	w.frames = append(w.frames, f)
	w.mu.Unlock()
	return nil
}

func (w *wireSender) Frames() []*hardware.CommandFrame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*hardware.CommandFrame(nil), w.frames...)
}

func isPumpStop(f *hardware.CommandFrame) bool {
	return f.Command == hardware.CommandSet && f.ID == hardware.SignalPump && f.Value == "stop"
}

// assertPumpStoppedLast 最后一次停泵之后不能再有pour帧
func assertPumpStoppedLast(t *testing.T, frames []*hardware.CommandFrame) {
	t.Helper()
	lastStop := -1
	for i, f := range frames {
		if isPumpStop(f) {
			lastStop = i
		}
	}
	require.GreaterOrEqual(t, lastStop, 0, "未发送停泵帧")
	for _, f := range frames[lastStop+1:] {
		assert.NotEqual(t, hardware.CommandPour, f.Command, "停泵后又下发了pour %s", f.ID)
	}
}

func newSerialMachine(t *testing.T) (*Machine, *wireSender, context.CancelFunc) {
	t.Helper()
	d := hardware.NewCommandDispatcher()
	wire := &wireSender{dispatcher: d}
	actuator := hardware.NewSerialActuator(wire, d, time.Second)
	m := NewMachine(recipe.NewMemoryStore(testCatalog()), actuator, nil, Options{DefaultServingML: 40})

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	return m, wire, cancel
}

// startLemonade 走到出酒状态，Lemonade 有两种原料
func startLemonade(t *testing.T, m *Machine) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.Submit(ctx, Start()))
	require.NoError(t, m.Submit(ctx, ChooseAlcohol(false)))
	require.NoError(t, m.Submit(ctx, BrowseByName()))
	m.Post(hardware.EncoderClick())
	require.Eventually(t, func() bool { return m.Snapshot().State == StateSelectSize }, time.Second, time.Millisecond)
	require.Equal(t, "Lemonade", m.Snapshot().Session.SelectedCocktail)
	require.NoError(t, m.Submit(ctx, StartPour()))
}

func TestSerialEmergencyStopBetweenIngredients(t *testing.T) {
	m, wire, cancel := newSerialMachine(t)
	defer cancel()

	// 第一种原料完成后、第二条pour帧上线前急停
	wire.beforePour = func(n int) {
		if n != 2 {
			return
		}
		m.EmergencyStop()
		assert.Eventually(t, func() bool { return m.Snapshot().Notice == NoticeEmergencyStop }, time.Second, time.Millisecond)
	}

	startLemonade(t, m)
	require.Eventually(t, func() bool {
		frames := wire.Frames()
		return len(frames) > 0 && isPumpStop(frames[len(frames)-1]) && wire.pourCount() == 2
	}, time.Second, time.Millisecond)

	v := m.Snapshot()
	assert.Equal(t, StateIntro, v.State)
	assert.Equal(t, NoticeEmergencyStop, v.Notice)

	// 给出酒协程留出时间，确认线路上没有迟到的pour
	time.Sleep(20 * time.Millisecond)
	assertPumpStoppedLast(t, wire.Frames())
}

func TestSerialEmergencyStopDuringPour(t *testing.T) {
	m, wire, cancel := newSerialMachine(t)
	defer cancel()

	startLemonade(t, m)
	// 第二种原料没有finished，出酒保持进行中
	require.Eventually(t, func() bool { return wire.pourCount() == 2 }, time.Second, time.Millisecond)

	m.EmergencyStop()
	require.Eventually(t, func() bool { return m.Snapshot().State == StateIntro }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assertPumpStoppedLast(t, wire.Frames())
}

func TestSerialShutdownStopsPumpBeforeDone(t *testing.T) {
	m, wire, cancel := newSerialMachine(t)

	startLemonade(t, m)
	require.Eventually(t, func() bool { return wire.pourCount() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("状态机未退出")
	}

	// Done 关闭时停泵帧已发出，之后线路上不再有新帧
	frames := wire.Frames()
	require.NotEmpty(t, frames)
	assert.True(t, isPumpStop(frames[len(frames)-1]))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, wire.Frames(), len(frames))
}

func (w *wireSender) pourCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pours
}
