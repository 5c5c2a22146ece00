package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Kiosk     KioskConfig     `mapstructure:"kiosk"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// AppConfig 应用基本信息
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	Seed            bool          `mapstructure:"seed"`
}

// WebSocketConfig WebSocket配置（显示层推送）
type WebSocketConfig struct {
	Path            string        `mapstructure:"path"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// SerialConfig 串口配置
type SerialConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Port                 string        `mapstructure:"port"`
	BaudRate             int           `mapstructure:"baud_rate"`
	DataBits             int           `mapstructure:"data_bits"`
	StopBits             int           `mapstructure:"stop_bits"`
	Parity               string        `mapstructure:"parity"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	MaxFrameBuffer       int           `mapstructure:"max_frame_buffer"`   // 未分隔数据上限，默认4KiB
	WatchdogTimeout      time.Duration `mapstructure:"watchdog_timeout"`   // 0表示关闭
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`
	LogFrames            bool          `mapstructure:"log_frames"` // 帧诊断写入数据库
}

// KioskConfig 售酒机流程配置
type KioskConfig struct {
	DefaultServingML uint32        `mapstructure:"default_serving_ml"`
	ServingSizes     []uint32      `mapstructure:"serving_sizes"`
	PourTimeout      time.Duration `mapstructure:"pour_timeout"`
	QueueSize        int           `mapstructure:"queue_size"`
	MockActuator     bool          `mapstructure:"mock_actuator"`
	MockPourRate     float64       `mapstructure:"mock_pour_rate"` // 克/秒
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT             JWTConfig `mapstructure:"jwt"`
	OperatorPINHash string    `mapstructure:"operator_pin_hash"` // argon2id编码串
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
	Issuer      string `mapstructure:"issuer"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})
	return err
}

// Load 读取配置但不设置全局实例
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	vp := viper.New()

	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
		vp.AddConfigPath("/etc/cocktail-mixer")
	}

	// 环境变量覆盖，例如 COCKTAIL_SERIAL_PORT
	vp.SetEnvPrefix("COCKTAIL")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	return vp, c, nil
}

// Default 返回全部默认值构成的配置
func Default() *Config {
	vp := viper.New()
	setDefaults(vp)
	c := &Config{}
	_ = vp.Unmarshal(c)
	return c
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cocktail-mixer")
	v.SetDefault("app.version", "1.0.0")

	// 服务器默认配置
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/cocktail-mixer.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.seed", true)

	// WebSocket默认配置
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")

	// 串口默认配置，115200 8N1
	v.SetDefault("serial.enabled", true)
	v.SetDefault("serial.port", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.read_timeout", "100ms")
	v.SetDefault("serial.max_frame_buffer", 4096)
	v.SetDefault("serial.watchdog_timeout", "0s")
	v.SetDefault("serial.reconnect_interval", "1s")
	v.SetDefault("serial.max_reconnect_interval", "30s")
	v.SetDefault("serial.log_frames", true)

	// 流程默认配置
	v.SetDefault("kiosk.default_serving_ml", 20)
	v.SetDefault("kiosk.serving_sizes", []uint32{20, 40, 60})
	v.SetDefault("kiosk.pour_timeout", "120s")
	v.SetDefault("kiosk.queue_size", 256)
	v.SetDefault("kiosk.mock_actuator", false)
	v.SetDefault("kiosk.mock_pour_rate", 10.0)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "cocktail-mixer.log")
	v.SetDefault("log.file.max_size", 50)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("security.jwt.secret", "change-me")
	v.SetDefault("security.jwt.expire_hours", 8)
	v.SetDefault("security.jwt.issuer", "cocktail-mixer")
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Serial.Enabled {
		if c.Serial.Port == "" {
			return fmt.Errorf("serial.port 不能为空")
		}
		if c.Serial.BaudRate <= 0 {
			return fmt.Errorf("serial.baud_rate 无效: %d", c.Serial.BaudRate)
		}
	}
	if c.Serial.MaxFrameBuffer < 64 {
		return fmt.Errorf("serial.max_frame_buffer 过小: %d", c.Serial.MaxFrameBuffer)
	}
	if c.Kiosk.DefaultServingML == 0 {
		return fmt.Errorf("kiosk.default_serving_ml 必须大于0")
	}
	if len(c.Kiosk.ServingSizes) > 0 {
		found := false
		for _, size := range c.Kiosk.ServingSizes {
			if size == c.Kiosk.DefaultServingML {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("kiosk.default_serving_ml=%d 不在 serving_sizes 中", c.Kiosk.DefaultServingML)
		}
	}
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载被拒绝: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
		fmt.Printf("配置已重新加载: %s\n", e.Name)
	})
	v.WatchConfig()
}

// GetString 获取字符串配置
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetDuration 获取时间间隔配置
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// ConfigFile 实际使用的配置文件路径
func ConfigFile() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}
