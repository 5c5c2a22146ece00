package hardware

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/logger"
	"go.uber.org/zap"
)

// ControllerOptions 串口控制器选项
type ControllerOptions struct {
	MaxFrameBuffer       int
	WatchdogTimeout      time.Duration // 0 关闭看门狗
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	Recorder             FrameRecorder
}

// SerialStats 串口统计
type SerialStats struct {
	Connected    bool      `json:"connected"`
	FramesRx     uint64    `json:"frames_rx"`
	FramesTx     uint64    `json:"frames_tx"`
	DecodeErrors uint64    `json:"decode_errors"`
	Overflows    uint64    `json:"overflows"`
	Reconnects   uint64    `json:"reconnects"`
	LastFrameAt  time.Time `json:"last_frame_at"`
}

// SerialController 串口链路：读协程按到达顺序解码、分发并投递事件
type SerialController struct {
	opener     PortOpener
	reader     *FrameReader
	dispatcher *CommandDispatcher
	sink       EventSink
	recorder   FrameRecorder
	opts       ControllerOptions
	logger     *zap.Logger

	mu        sync.RWMutex
	port      SerialPort
	connected bool
	writeMu   sync.Mutex

	lastFrame atomic.Int64 // UnixNano
	stalled   atomic.Bool

	framesRx     atomic.Uint64
	framesTx     atomic.Uint64
	decodeErrors atomic.Uint64
	overflows    atomic.Uint64
	reconnects   atomic.Uint64

	stopCh  chan struct{}
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// NewSerialController 创建串口控制器
func NewSerialController(opener PortOpener, dispatcher *CommandDispatcher, sink EventSink, opts ControllerOptions) *SerialController {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = time.Second
	}
	if opts.MaxReconnectInterval < opts.ReconnectInterval {
		opts.MaxReconnectInterval = 30 * time.Second
	}
	return &SerialController{
		opener:     opener,
		reader:     NewFrameReader(opts.MaxFrameBuffer),
		dispatcher: dispatcher,
		sink:       sink,
		recorder:   opts.Recorder,
		opts:       opts,
		logger:     logger.SerialLogger(),
		stopCh:     make(chan struct{}),
	}
}

// SetSink 设置事件接收方，须在Start之前调用
func (c *SerialController) SetSink(sink EventSink) {
	c.sink = sink
}

// Start 启动读协程（含重连）和看门狗
func (c *SerialController) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.runLoop(ctx)

	if c.opts.WatchdogTimeout > 0 {
		c.wg.Add(1)
		go c.watchdogLoop(ctx)
	}
	c.logger.Info("串口控制器已启动",
		zap.Duration("watchdog", c.opts.WatchdogTimeout),
		zap.Int("max_frame_buffer", c.reader.maxSize))
}

// Stop 停止并关闭串口
func (c *SerialController) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}
	close(c.stopCh)

	// 关闭端口以解除阻塞的Read
	c.mu.Lock()
	if c.port != nil {
		if err := c.port.Close(); err != nil {
			c.logger.Warn("关闭串口失败", zap.Error(err))
		}
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("串口控制器已停止")
}

// IsConnected 是否已连接
func (c *SerialController) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Send 发送一帧
func (c *SerialController) Send(frame *CommandFrame) error {
	data, err := EncodeFrame(frame)
	if err != nil {
		return err
	}

	c.mu.RLock()
	port := c.port
	c.mu.RUnlock()
	if port == nil {
		return apperrors.New(apperrors.ErrSerialNotConnected)
	}

	c.writeMu.Lock()
	_, err = port.Write(data)
	c.writeMu.Unlock()

	if c.recorder != nil {
		c.recorder.RecordFrame("tx", data, frame, err)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrSerialWrite, frame.Command.String()+" "+frame.ID)
	}
	c.framesTx.Add(1)
	logger.LogSerialFrame("tx", data, nil)
	return nil
}

// Stats 返回统计
func (c *SerialController) Stats() SerialStats {
	s := SerialStats{
		Connected:    c.IsConnected(),
		FramesRx:     c.framesRx.Load(),
		FramesTx:     c.framesTx.Load(),
		DecodeErrors: c.decodeErrors.Load(),
		Overflows:    c.overflows.Load(),
		Reconnects:   c.reconnects.Load(),
	}
	if ns := c.lastFrame.Load(); ns > 0 {
		s.LastFrameAt = time.Unix(0, ns)
	}
	return s
}

// readLoop 读取直到出错或停止
func (c *SerialController) readLoop(port SerialPort) error {
	buf := make([]byte, 256)
	for {
		select {
		case <-c.stopCh:
			return nil
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			c.handleBytes(buf[:n])
		}
		if err != nil {
			// 读超时在tarm/serial上表现为EOF
			if errors.Is(err, io.EOF) {
				if n == 0 {
					time.Sleep(10 * time.Millisecond)
				}
				continue
			}
			if c.stopped.Load() {
				return nil
			}
			return err
		}
	}
}

// handleBytes 在读协程内按顺序处理
func (c *SerialController) handleBytes(data []byte) {
	frames, errs := c.reader.Feed(data)

	for _, err := range errs {
		if apperrors.Is(err, apperrors.ErrFrameOverflow) {
			c.overflows.Add(1)
		} else {
			c.decodeErrors.Add(1)
		}
		if c.recorder != nil {
			var line []byte
			var fe *FrameError
			if errors.As(err, &fe) {
				line = fe.Line
			}
			c.recorder.RecordFrame("rx", line, nil, err)
		}
	}

	for _, frame := range frames {
		c.framesRx.Add(1)
		c.lastFrame.Store(time.Now().UnixNano())
		if c.stalled.CompareAndSwap(true, false) {
			c.logger.Info("串口数据恢复")
		}
		if c.recorder != nil {
			c.recorder.RecordFrame("rx", nil, frame, nil)
		}

		ev := c.dispatcher.Dispatch(frame)
		if ev.Type == EventIgnored {
			continue
		}
		c.sink.Post(ev)
	}
}

// watchdogLoop 长时间无帧时通知链路中断
func (c *SerialController) watchdogLoop(ctx context.Context) {
	defer c.wg.Done()

	interval := c.opts.WatchdogTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.IsConnected() {
				continue
			}
			last := time.Unix(0, c.lastFrame.Load())
			silence := time.Since(last)
			if silence < c.opts.WatchdogTimeout {
				continue
			}
			if c.stalled.CompareAndSwap(false, true) {
				c.logger.Warn("串口无数据超时",
					zap.Duration("silence", silence),
					zap.Duration("timeout", c.opts.WatchdogTimeout))
				c.sink.LinkLost("watchdog: no frames for " + silence.Truncate(time.Millisecond).String())
			}
		}
	}
}
