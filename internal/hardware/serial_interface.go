package hardware

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mzollin/CocktailMixer/internal/config"
	"github.com/tarm/serial"
)

// SerialPort 串口接口（用于测试）
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// PortOpener 打开串口的函数，测试时替换为内存端口
type PortOpener func() (SerialPort, error)

// SerialConfig 串口参数
type SerialConfig struct {
	Port        string
	BaudRate    int
	DataBits    byte
	StopBits    byte
	Parity      string
	ReadTimeout time.Duration
}

// SerialConfigFrom 从全局配置转换
func SerialConfigFrom(c *config.SerialConfig) *SerialConfig {
	return &SerialConfig{
		Port:        c.Port,
		BaudRate:    c.BaudRate,
		DataBits:    byte(c.DataBits),
		StopBits:    byte(c.StopBits),
		Parity:      c.Parity,
		ReadTimeout: c.ReadTimeout,
	}
}

// TarmConfig 转换为 tarm/serial 配置
func (c *SerialConfig) TarmConfig() *serial.Config {
	parity := serial.ParityNone
	switch c.Parity {
	case "O", "odd":
		parity = serial.ParityOdd
	case "E", "even":
		parity = serial.ParityEven
	}

	size := c.DataBits
	if size == 0 {
		size = 8
	}
	stop := serial.Stop1
	if c.StopBits == 2 {
		stop = serial.Stop2
	}

	return &serial.Config{
		Name:        c.Port,
		Baud:        c.BaudRate,
		Size:        size,
		Parity:      parity,
		StopBits:    stop,
		ReadTimeout: c.ReadTimeout,
	}
}

// OpenSerialPort 返回打开真实串口的PortOpener
func OpenSerialPort(c *SerialConfig) PortOpener {
	return func() (SerialPort, error) {
		if _, err := os.Stat(c.Port); err != nil {
			return nil, fmt.Errorf("串口设备不存在 %s: %w", c.Port, err)
		}
		port, err := serial.OpenPort(c.TarmConfig())
		if err != nil {
			return nil, fmt.Errorf("open serial port %s: %w", c.Port, err)
		}
		return port, nil
	}
}
