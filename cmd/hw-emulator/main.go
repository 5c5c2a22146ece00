package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mzollin/CocktailMixer/internal/config"
	"github.com/mzollin/CocktailMixer/internal/hardware"
	"github.com/mzollin/CocktailMixer/internal/logger"
	"go.uber.org/zap"
)

// emulator 模拟控制板：旋钮、急停、秤和出酒泵
type emulator struct {
	port       hardware.SerialPort
	writeMu    sync.Mutex
	reader     *hardware.FrameReader
	autoFinish bool
	rate       float64 // 克/秒
	checksum   string
	log        *zap.Logger

	mu      sync.Mutex
	pending map[string]context.CancelFunc
}

func main() {
	var (
		port       = flag.String("port", "/dev/ttyUSB1", "串口设备（与控制程序互联的另一端）")
		baud       = flag.Int("baud", 115200, "波特率")
		autoFinish = flag.Bool("auto-finish", false, "自动应答pour帧")
		rate       = flag.Float64("rate", 10, "自动应答时的出酒速率（克/秒）")
		checksum   = flag.String("checksum", "ABCD", "发送帧附带的checksum")
		level      = flag.String("log-level", "info", "日志级别")
	)
	flag.Parse()

	if err := logger.Init(&config.LogConfig{Level: *level, Format: "console", Output: "stdout"}); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()
	log := logger.SerialLogger()

	open := hardware.OpenSerialPort(&hardware.SerialConfig{
		Port:        *port,
		BaudRate:    *baud,
		DataBits:    8,
		StopBits:    1,
		Parity:      "N",
		ReadTimeout: 0,
	})
	sp, err := open()
	if err != nil {
		log.Error("打开串口失败", zap.Error(err))
		os.Exit(1)
	}
	defer sp.Close()

	emu := &emulator{
		port:       sp,
		reader:     hardware.NewFrameReader(0),
		autoFinish: *autoFinish,
		rate:       *rate,
		checksum:   *checksum,
		log:        log,
		pending:    make(map[string]context.CancelFunc),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go emu.readLoop(ctx)
	go func() {
		emu.commandLoop(os.Stdin)
		stop()
	}()

	printUsage()
	<-ctx.Done()
	emu.cancelAll()
	fmt.Println("> EMU: bye")
}

func printUsage() {
	fmt.Println("> EMU: 命令")
	fmt.Println("  u [n]        旋钮向上 n 格（默认1）")
	fmt.Println("  d [n]        旋钮向下 n 格（默认1）")
	fmt.Println("  c            旋钮按下")
	fmt.Println("  e            急停")
	fmt.Println("  s <grams>    秤读数")
	fmt.Println("  f <id> [v]   发送finished帧（默认ok）")
	fmt.Println("  raw <json>   原样发送一行")
	fmt.Println("  q            退出")
}

// commandLoop 读取stdin命令
func (e *emulator) commandLoop(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		var err error
		switch cmd {
		case "u", "d":
			n := 1
			if arg != "" {
				if n, err = strconv.Atoi(arg); err != nil {
					fmt.Printf("> EMU: 无效的格数 %q\n", arg)
					continue
				}
			}
			if cmd == "d" {
				n = -n
			}
			err = e.update(hardware.SignalEncoder, strconv.Itoa(n))
		case "c":
			err = e.update(hardware.SignalEncoderButton, "1")
		case "e":
			err = e.update(hardware.SignalEmergencyStop, "1")
		case "s":
			if _, perr := strconv.ParseUint(arg, 10, 32); perr != nil {
				fmt.Printf("> EMU: 无效的重量 %q\n", arg)
				continue
			}
			err = e.update(hardware.SignalScale, arg)
		case "f":
			id, value, _ := strings.Cut(arg, " ")
			if value == "" {
				value = hardware.FinishedOK
			}
			err = e.send(hardware.NewFrame(hardware.CommandFinished, id, value))
		case "raw":
			err = e.writeLine([]byte(arg + "\n"))
		case "q", "quit", "exit":
			return
		default:
			printUsage()
			continue
		}
		if err != nil {
			e.log.Error("发送失败", zap.Error(err))
		}
	}
}

func (e *emulator) update(id, value string) error {
	frame := hardware.NewFrame(hardware.CommandUpdate, id, value)
	frame.Checksum = e.checksum
	return e.send(frame)
}

func (e *emulator) send(frame *hardware.CommandFrame) error {
	data, err := hardware.EncodeFrame(frame)
	if err != nil {
		return err
	}
	return e.writeLine(data)
}

func (e *emulator) writeLine(data []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	fmt.Printf("> EMU: tx %s", data)
	_, err := e.port.Write(data)
	return err
}

// readLoop 打印控制程序下发的帧
func (e *emulator) readLoop(ctx context.Context) {
	buf := make([]byte, 256)
	for ctx.Err() == nil {
		n, err := e.port.Read(buf)
		if err != nil {
			e.log.Error("读取串口失败", zap.Error(err))
			return
		}
		if n == 0 {
			continue
		}
		frames, errs := e.reader.Feed(buf[:n])
		for _, ferr := range errs {
			e.log.Warn("无法解析的帧", zap.Error(ferr))
		}
		for _, f := range frames {
			fmt.Printf("> EMU: rx %s %s %s\n", f.Verb, f.ID, f.Value)
			e.handleFrame(ctx, f)
		}
	}
}

func (e *emulator) handleFrame(ctx context.Context, f *hardware.CommandFrame) {
	switch f.Command {
	case hardware.CommandPour:
		if !e.autoFinish {
			return
		}
		grams, err := strconv.ParseFloat(f.Value, 64)
		if err != nil || grams < 0 {
			_ = e.send(hardware.NewFrame(hardware.CommandFinished, f.ID, "bad value"))
			return
		}
		e.schedulePour(ctx, f.ID, grams)

	case hardware.CommandSet:
		if f.ID == hardware.SignalPump && f.Value == "stop" {
			fmt.Println("> EMU: 泵已停止")
			e.cancelAll()
		}
	}
}

// schedulePour 按速率延迟应答finished
func (e *emulator) schedulePour(ctx context.Context, id string, grams float64) {
	delay := time.Duration(grams / e.rate * float64(time.Second))
	pourCtx, cancel := context.WithTimeout(ctx, delay+time.Minute)

	e.mu.Lock()
	if prev, ok := e.pending[id]; ok {
		prev()
	}
	e.pending[id] = cancel
	e.mu.Unlock()

	go func() {
		defer cancel()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-pourCtx.Done():
			return
		}
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()

		for g := 0.0; g <= grams; g += e.rate {
			_ = e.update(hardware.SignalScale, strconv.Itoa(int(g)))
		}
		if err := e.send(hardware.NewFrame(hardware.CommandFinished, id, hardware.FinishedOK)); err != nil {
			e.log.Error("发送finished失败", zap.Error(err))
		}
	}()
}

func (e *emulator) cancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, cancel := range e.pending {
		cancel()
		delete(e.pending, id)
	}
}
