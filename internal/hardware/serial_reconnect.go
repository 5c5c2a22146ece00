package hardware

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runLoop 打开串口并读取，失败后按指数退避重连，直到停止
func (c *SerialController) runLoop(ctx context.Context) {
	defer c.wg.Done()

	backoff := c.opts.ReconnectInterval
	first := true

	for {
		if c.stopped.Load() || ctx.Err() != nil {
			return
		}

		port, err := c.opener()
		if err != nil {
			c.logger.Warn("打开串口失败，稍后重试",
				zap.Error(err),
				zap.Duration("retry_in", backoff))
			if !c.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.opts.MaxReconnectInterval)
			continue
		}

		if !c.attach(port) {
			_ = port.Close()
			return
		}
		if !first {
			c.reconnects.Add(1)
			c.logger.Info("串口重连成功")
		} else {
			c.logger.Info("串口连接成功")
		}
		first = false
		backoff = c.opts.ReconnectInterval

		err = c.readLoop(port)
		c.detach(port)

		if c.stopped.Load() || ctx.Err() != nil {
			return
		}

		c.logger.Error("串口读取失败，链路中断", zap.Error(err))
		c.sink.LinkLost("serial read failed: " + errString(err))

		if !c.sleep(ctx, backoff) {
			return
		}
	}
}

// attach 记录当前端口；已停止时返回false
func (c *SerialController) attach(port SerialPort) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		return false
	}
	if err := port.Flush(); err != nil {
		c.logger.Debug("清空串口缓冲失败", zap.Error(err))
	}
	c.port = port
	c.connected = true
	c.reader.Reset()
	c.lastFrame.Store(time.Now().UnixNano())
	c.stalled.Store(false)
	return true
}

// detach 清除端口，停止流程中端口已由Stop关闭
func (c *SerialController) detach(port SerialPort) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.port = nil
	c.connected = false
	if !c.stopped.Load() {
		if err := port.Close(); err != nil {
			c.logger.Debug("关闭串口失败", zap.Error(err))
		}
	}
}

func (c *SerialController) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
