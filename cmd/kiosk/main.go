package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mzollin/CocktailMixer/internal/api"
	"github.com/mzollin/CocktailMixer/internal/config"
	"github.com/mzollin/CocktailMixer/internal/database"
	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/hardware"
	"github.com/mzollin/CocktailMixer/internal/kiosk"
	"github.com/mzollin/CocktailMixer/internal/logger"
	"github.com/mzollin/CocktailMixer/internal/recipe"
	"github.com/mzollin/CocktailMixer/internal/service"
	"github.com/mzollin/CocktailMixer/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 售酒机进程
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	noDB   bool

	db         *gorm.DB
	services   *service.Services
	controller *hardware.SerialController
	machine    *kiosk.Machine
	hub        *websocket.Hub
	httpServer *http.Server

	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		noDB        = flag.Bool("no-db", false, "不使用数据库，使用内置酒单")
		mock        = flag.Bool("mock", false, "使用模拟出酒装置")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()
	if *mock {
		cfg.Kiosk.MockActuator = true
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	printStartInfo(cfg)

	server := NewServer(cfg, *noDB)
	if err := server.Start(); err != nil {
		logger.Error("启动失败", zap.Error(err))
		server.Shutdown()
		os.Exit(1)
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("已安全关闭")
}

// NewServer 创建进程实例
func NewServer(cfg *config.Config, noDB bool) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		noDB:       noDB,
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 初始化并启动全部组件
func (s *Server) Start() error {
	s.logger.Info("正在启动鸡尾酒机...",
		zap.String("version", Version),
		zap.Bool("mock_actuator", s.cfg.Kiosk.MockActuator),
	)

	if err := s.initDatabase(); err != nil {
		return err
	}
	s.services = service.NewServices(s.db, s.cfg, s.logger.Named("service"))

	if err := s.initKiosk(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "初始化状态机失败")
	}
	s.startServices()

	// 配置热更新只调整日志级别
	config.Watch(func(newCfg *config.Config) {
		if newCfg.Log.Level != logger.Level() {
			logger.SetLevel(newCfg.Log.Level)
			s.logger.Info("日志级别已更新", zap.String("level", newCfg.Log.Level))
		}
	})

	s.logger.Info("启动完成",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
		zap.String("serial", s.cfg.Serial.Port),
	)
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	if s.noDB {
		s.logger.Info("未启用数据库，使用内置酒单")
		return nil
	}

	if err := database.Init(&s.cfg.Database); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	s.db = database.GetDB()

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(s.db); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}
	if s.cfg.Database.Seed {
		if err := database.Seed(s.ctx, s.db, recipe.DemoCatalog()); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "写入默认酒单失败")
		}
	}
	if !database.IsConnected() {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库连接检查失败")
	}
	return nil
}

// initKiosk 组装串口、出酒装置、状态机和显示层
func (s *Server) initKiosk() error {
	var store recipe.Store
	if s.services.Recipes != nil {
		store = s.services.Recipes
	} else {
		store = recipe.NewMemoryStore(recipe.DemoCatalog())
	}

	dispatcher := hardware.NewCommandDispatcher()
	if s.cfg.Serial.Enabled {
		opts := hardware.ControllerOptions{
			MaxFrameBuffer:       s.cfg.Serial.MaxFrameBuffer,
			WatchdogTimeout:      s.cfg.Serial.WatchdogTimeout,
			ReconnectInterval:    s.cfg.Serial.ReconnectInterval,
			MaxReconnectInterval: s.cfg.Serial.MaxReconnectInterval,
		}
		if s.services.SerialLogs != nil {
			opts.Recorder = s.services.SerialLogs
		}
		opener := hardware.OpenSerialPort(hardware.SerialConfigFrom(&s.cfg.Serial))
		s.controller = hardware.NewSerialController(opener, dispatcher, nil, opts)
	}

	var actuator hardware.Actuator
	switch {
	case s.cfg.Kiosk.MockActuator:
		actuator = hardware.NewMockActuator(s.cfg.Kiosk.MockPourRate)
	case s.controller != nil:
		actuator = hardware.NewSerialActuator(s.controller, dispatcher, s.cfg.Kiosk.PourTimeout)
	default:
		return apperrors.New(apperrors.ErrConfigValidate, "串口未启用时必须使用模拟出酒装置")
	}

	wsCfg := s.cfg.WebSocket
	s.hub = websocket.NewHub(websocket.SubmitFunc(func(ctx context.Context, in kiosk.Intent) error {
		return s.machine.Submit(ctx, in)
	}), websocket.Options{
		ReadBufferSize:  wsCfg.ReadBufferSize,
		WriteBufferSize: wsCfg.WriteBufferSize,
		MaxMessageSize:  wsCfg.MaxMessageSize,
		PingInterval:    wsCfg.PingInterval,
		PongTimeout:     wsCfg.PongTimeout,
		WriteTimeout:    wsCfg.WriteTimeout,
	}, s.logger.Named("websocket"))

	s.machine = kiosk.NewMachine(store, actuator, websocket.NewHubDisplay(s.hub), kiosk.Options{
		DefaultServingML: s.cfg.Kiosk.DefaultServingML,
		ServingSizes:     s.cfg.Kiosk.ServingSizes,
		PourTimeout:      s.cfg.Kiosk.PourTimeout,
		QueueSize:        s.cfg.Kiosk.QueueSize,
	})
	if s.controller != nil {
		s.controller.SetSink(s.machine)
	}

	if s.cfg.Server.Enabled {
		gin.SetMode(s.cfg.Server.Mode)
		router := api.NewRouter(api.Dependencies{
			Kiosk:        s.machine,
			Store:        store,
			Services:     s.services,
			WebSocket:    http.HandlerFunc(s.hub.ServeWS),
			DB:           s.db,
			ServingSizes: s.cfg.Kiosk.ServingSizes,
		}, s.logger.Named("api"))
		s.httpServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
			Handler:      router.Handler(),
			ReadTimeout:  s.cfg.Server.ReadTimeout,
			WriteTimeout: s.cfg.Server.WriteTimeout,
		}
	}
	return nil
}

// startServices 启动后台协程
func (s *Server) startServices() {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		if err := s.machine.Run(s.ctx); err != nil {
			s.logger.Error("状态机退出", zap.Error(err))
		}
	}()

	if s.controller != nil {
		s.controller.Start(s.ctx)
	}

	if s.httpServer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP服务异常退出", zap.Error(err))
				s.requestShutdown()
			}
		}()
	}
}

func (s *Server) requestShutdown() {
	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}
}

// WaitForShutdown 等待退出信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-s.shutdownCh:
	}
}

// Shutdown 优雅关闭
func (s *Server) Shutdown() error {
	s.logger.Info("正在关闭...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
		}
	}

	// 取消上下文时状态机会中止进行中的出酒，串口需保持到停泵帧发出
	s.cancel()
	if s.machine != nil {
		select {
		case <-s.machine.Done():
		case <-shutdownCtx.Done():
			s.logger.Warn("等待状态机退出超时")
		}
	}
	if s.controller != nil {
		s.controller.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		err = apperrors.New(apperrors.ErrTimeout, "关闭超时")
	}

	if s.services != nil {
		s.services.Close()
	}
	if s.db != nil {
		if cerr := database.Close(); cerr != nil {
			s.logger.Error("关闭数据库失败", zap.Error(cerr))
		}
	}
	return err
}

func printVersion() {
	fmt.Printf("鸡尾酒机控制程序\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func printHelp() {
	fmt.Println("鸡尾酒机控制程序")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  cocktail-kiosk [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  COCKTAIL_SERIAL_PORT        串口设备")
	fmt.Println("  COCKTAIL_DATABASE_DSN       数据库连接串")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  cocktail-kiosk -config=/etc/cocktail-mixer/config.yaml")
	fmt.Println("  cocktail-kiosk -no-db -mock")
}

func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("%s %s | 模式: %s | PID: %d\n", cfg.App.Name, Version, cfg.Server.Mode, os.Getpid())
	fmt.Printf("配置文件: %s\n", config.ConfigFile())
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
