package hardware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// mockSerialPort 内存串口：Inject 模拟下位机发送，Unplug 模拟拔线
type mockSerialPort struct {
	mock.Mock

	rx        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending []byte
	written bytes.Buffer
	onWrite func(data []byte)
}

func newMockSerialPort() *mockSerialPort {
	p := &mockSerialPort{
		rx:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	p.On("Flush").Return(nil).Maybe()
	return p
}

func (p *mockSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	select {
	case data, ok := <-p.rx:
		if !ok {
			return 0, io.ErrUnexpectedEOF
		}
		n := copy(b, data)
		if n < len(data) {
			p.mu.Lock()
			p.pending = append(p.pending, data[n:]...)
			p.mu.Unlock()
		}
		return n, nil
	case <-p.closed:
		return 0, errors.New("port closed")
	}
}

func (p *mockSerialPort) Write(data []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, errors.New("port closed")
	default:
	}
	p.mu.Lock()
	p.written.Write(data)
	cb := p.onWrite
	p.mu.Unlock()
	if cb != nil {
		cb(append([]byte(nil), data...))
	}
	return len(data), nil
}

func (p *mockSerialPort) Flush() error {
	args := p.Called()
	return args.Error(0)
}

func (p *mockSerialPort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *mockSerialPort) Inject(s string) { p.rx <- []byte(s) }
func (p *mockSerialPort) Unplug()         { close(p.rx) }

func (p *mockSerialPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// recordingSink 记录投递的事件
type recordingSink struct {
	mu     sync.Mutex
	events []HardwareEvent
	lost   chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{lost: make(chan string, 16)}
}

func (s *recordingSink) Post(ev HardwareEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) LinkLost(reason string) {
	select {
	case s.lost <- reason:
	default:
	}
}

func (s *recordingSink) Events() []HardwareEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HardwareEvent(nil), s.events...)
}

// recordingRecorder 记录帧诊断
type recordingRecorder struct {
	mu   sync.Mutex
	errs []error
	tx   []string
}

func (r *recordingRecorder) RecordFrame(direction string, raw []byte, frame *CommandFrame, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil && direction == "rx" {
		r.errs = append(r.errs, err)
	}
	if direction == "tx" {
		r.tx = append(r.tx, string(raw))
	}
}

func (r *recordingRecorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// SerialControllerTestSuite 串口控制器测试套件
type SerialControllerTestSuite struct {
	suite.Suite

	mu       sync.Mutex
	ports    []*mockSerialPort
	opens    int
	sink     *recordingSink
	recorder *recordingRecorder
	ctrl     *SerialController
}

func (s *SerialControllerTestSuite) opener() (SerialPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if len(s.ports) == 0 {
		return nil, errors.New("no device")
	}
	p := s.ports[0]
	s.ports = s.ports[1:]
	return p, nil
}

func (s *SerialControllerTestSuite) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func (s *SerialControllerTestSuite) start(opts ControllerOptions, ports ...*mockSerialPort) {
	s.mu.Lock()
	s.ports = ports
	s.mu.Unlock()
	s.sink = newRecordingSink()
	s.recorder = &recordingRecorder{}
	opts.Recorder = s.recorder
	if opts.ReconnectInterval == 0 {
		opts.ReconnectInterval = 10 * time.Millisecond
		opts.MaxReconnectInterval = 40 * time.Millisecond
	}
	s.ctrl = NewSerialController(s.opener, NewCommandDispatcher(), s.sink, opts)
	s.ctrl.Start(context.Background())
	s.Eventually(s.ctrl.IsConnected, time.Second, 5*time.Millisecond)
}

func (s *SerialControllerTestSuite) SetupTest() {
	s.mu.Lock()
	s.ports = nil
	s.opens = 0
	s.mu.Unlock()
}

func (s *SerialControllerTestSuite) TearDownTest() {
	if s.ctrl != nil {
		s.ctrl.Stop()
		s.ctrl = nil
	}
}

func (s *SerialControllerTestSuite) TestEventsKeepArrivalOrder() {
	port := newMockSerialPort()
	s.start(ControllerOptions{}, port)

	port.Inject(`{"command":"update","id":"encoder","value":"1"}` + "\n" + `{"command":"update","id":"encoder_bu`)
	port.Inject(`tton","value":"1"}` + "\n" + `{"command":"update","id":"coin_counter","value":"1"}` + "\n")
	port.Inject(`{"command":"update","id":"emergency_stop","value":"1"}` + "\n")
	port.Inject(`{"command":"update","id":"encoder","value":"-1"}` + "\n" + `{"command":"update","id":"scale","value":"7"}` + "\n")

	want := []HardwareEvent{EncoderDelta(1), EncoderClick(), EmergencyStop(), EncoderDelta(-1), ScaleReading(7)}
	s.Eventually(func() bool { return len(s.sink.Events()) == len(want) }, time.Second, 5*time.Millisecond)
	s.Equal(want, s.sink.Events())
	s.Equal(uint64(6), s.ctrl.Stats().FramesRx)
}

func (s *SerialControllerTestSuite) TestLongChunksAreSplitByPort() {
	port := newMockSerialPort()
	s.start(ControllerOptions{}, port)

	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString(`{"command":"update","id":"encoder","value":"1"}` + "\n")
	}
	port.Inject(b.String())

	s.Eventually(func() bool { return len(s.sink.Events()) == 20 }, time.Second, 5*time.Millisecond)
}

func (s *SerialControllerTestSuite) TestDecodeErrorsAreRecorded() {
	port := newMockSerialPort()
	s.start(ControllerOptions{}, port)

	port.Inject("garbage\n" + `{"command":"update","id":"encoder","value":"2"}` + "\n")

	s.Eventually(func() bool { return len(s.sink.Events()) == 1 }, time.Second, 5*time.Millisecond)
	errs := s.recorder.Errors()
	s.Require().Len(errs, 1)
	s.True(apperrors.Is(errs[0], apperrors.ErrFrameDecode))
	s.Equal(uint64(1), s.ctrl.Stats().DecodeErrors)
}

func (s *SerialControllerTestSuite) TestSend() {
	port := newMockSerialPort()
	s.start(ControllerOptions{}, port)

	s.Require().NoError(s.ctrl.Send(NewFrame(CommandPour, "gin", "19.00")))
	s.Equal(`{"command":"pour","id":"gin","value":"19.00"}`+"\n", port.Written())
	s.Equal(uint64(1), s.ctrl.Stats().FramesTx)
	s.Len(s.recorder.tx, 1)
}

func (s *SerialControllerTestSuite) TestSendWithoutPort() {
	ctrl := NewSerialController(s.opener, NewCommandDispatcher(), newRecordingSink(), ControllerOptions{})
	err := ctrl.Send(NewFrame(CommandSet, SignalPump, "stop"))
	s.True(apperrors.Is(err, apperrors.ErrSerialNotConnected))
}

func (s *SerialControllerTestSuite) TestReconnectAfterReadFailure() {
	first, second := newMockSerialPort(), newMockSerialPort()
	s.start(ControllerOptions{}, first, second)

	first.Unplug()

	select {
	case reason := <-s.sink.lost:
		s.Contains(reason, "serial read failed")
	case <-time.After(time.Second):
		s.Fail("未收到链路中断通知")
	}

	s.Eventually(func() bool { return s.openCount() == 2 && s.ctrl.IsConnected() }, time.Second, 5*time.Millisecond)
	second.Inject(`{"command":"update","id":"encoder_button"}` + "\n")
	s.Eventually(func() bool { return len(s.sink.Events()) == 1 }, time.Second, 5*time.Millisecond)
	s.Equal(uint64(1), s.ctrl.Stats().Reconnects)
}

func (s *SerialControllerTestSuite) TestRetriesUntilDeviceAppears() {
	s.sink = newRecordingSink()
	ctrl := NewSerialController(s.opener, NewCommandDispatcher(), s.sink, ControllerOptions{
		ReconnectInterval:    5 * time.Millisecond,
		MaxReconnectInterval: 10 * time.Millisecond,
	})
	s.ctrl = ctrl
	ctrl.Start(context.Background())

	s.Eventually(func() bool { return s.openCount() >= 3 }, time.Second, 5*time.Millisecond)
	s.False(ctrl.IsConnected())

	s.mu.Lock()
	s.ports = []*mockSerialPort{newMockSerialPort()}
	s.mu.Unlock()
	s.Eventually(ctrl.IsConnected, time.Second, 5*time.Millisecond)
}

func (s *SerialControllerTestSuite) TestWatchdogReportsSilenceOnce() {
	port := newMockSerialPort()
	s.start(ControllerOptions{WatchdogTimeout: 40 * time.Millisecond}, port)

	select {
	case reason := <-s.sink.lost:
		s.Contains(reason, "watchdog")
	case <-time.After(time.Second):
		s.Fail("看门狗未触发")
	}

	// 同一段静默只报告一次
	select {
	case reason := <-s.sink.lost:
		s.Failf("重复报告", "reason=%s", reason)
	case <-time.After(120 * time.Millisecond):
	}

	// 数据恢复后再次静默会重新报告
	port.Inject(`{"command":"update","id":"scale","value":"1"}` + "\n")
	select {
	case reason := <-s.sink.lost:
		s.Contains(reason, "watchdog")
	case <-time.After(time.Second):
		s.Fail("看门狗未再次触发")
	}
}

func TestSerialControllerSuite(t *testing.T) {
	suite.Run(t, new(SerialControllerTestSuite))
}

func (s *SerialControllerTestSuite) TestOpenSerialPortMissingDevice() {
	open := OpenSerialPort(&SerialConfig{Port: s.T().TempDir() + "/ttyNONE", BaudRate: 115200})
	port, err := open()
	s.Error(err)
	s.Nil(port)
	s.Contains(err.Error(), "ttyNONE")
}
