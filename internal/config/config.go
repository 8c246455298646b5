package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	sharedConfig "sudooom.im.client/shared/config"
)

// 传输方式
const (
	TransportNATS      = "nats"
	TransportWebSocket = "websocket"
	TransportMemory    = "memory"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Transport  TransportConfig  `mapstructure:"transport"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Presence   PresenceConfig   `mapstructure:"presence"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	History    HistoryConfig    `mapstructure:"history"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
}

type AuthConfig struct {
	Token  string `mapstructure:"token"`
	Secret string `mapstructure:"secret"` // 为空时只解析 Token 不校验签名
}

type TransportConfig struct {
	Kind          string        `mapstructure:"kind"`
	URL           string        `mapstructure:"url"` // WebSocket 网关地址
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`

	ListingLimit int64 `mapstructure:"listing_limit"` // 拉取会话列表的最大条数
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PresenceConfig struct {
	AnnounceInterval time.Duration `mapstructure:"announce_interval"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
}

type DispatcherConfig struct {
	QueueSize      int           `mapstructure:"queue_size"`
	IngressSize    int           `mapstructure:"ingress_size"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

type HistoryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Limit        int           `mapstructure:"limit"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// DSN PostgreSQL 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// Addr Redis 地址
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load 解析命令行参数并加载配置
// 优先级: 命令行 > 环境变量(.env) > 配置文件 > 默认值
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("im-client", pflag.ContinueOnError)
	flags.StringP("config", "c", "configs/config.yaml", "配置文件路径")
	flags.String("token", "", "Access Token")
	flags.String("transport", "", "传输方式: nats | websocket | memory")
	flags.String("http-addr", "", "HTTP 监听地址")
	flags.String("log-level", "", "日志级别: debug | info | warn | error")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	path, _ := flags.GetString("config")
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || flags.Changed("config") {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// 从环境变量覆盖配置
	cfg.applyEnv()

	// 命令行参数最后覆盖
	for name, target := range map[string]*string{
		"token":     &cfg.Auth.Token,
		"transport": &cfg.Transport.Kind,
		"http-addr": &cfg.HTTP.Addr,
		"log-level": &cfg.App.LogLevel,
	} {
		if flags.Changed(name) {
			*target, _ = flags.GetString(name)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "im-client")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("transport.kind", TransportNATS)
	v.SetDefault("transport.ping_interval", 30*time.Second)
	v.SetDefault("transport.write_timeout", 10*time.Second)
	v.SetDefault("transport.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.listing_limit", 200)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("http.addr", "127.0.0.1:8090")
	v.SetDefault("http.mode", "release")
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("presence.announce_interval", 30*time.Second)
	v.SetDefault("presence.probe_timeout", 2*time.Second)
	v.SetDefault("dispatcher.queue_size", 256)
	v.SetDefault("dispatcher.ingress_size", 256)
	v.SetDefault("dispatcher.command_timeout", 5*time.Second)
	v.SetDefault("history.limit", 50)
	v.SetDefault("history.fetch_timeout", 10*time.Second)
}

// applyEnv 从环境变量覆盖配置
func (c *Config) applyEnv() {
	// App
	c.App.LogLevel = sharedConfig.GetEnv("IM_LOG_LEVEL", c.App.LogLevel)

	// Auth
	c.Auth.Token = sharedConfig.GetEnv("IM_ACCESS_TOKEN", c.Auth.Token)
	c.Auth.Secret = sharedConfig.GetEnv("JWT_SECRET", c.Auth.Secret)

	// Transport
	c.Transport.Kind = sharedConfig.GetEnv("IM_TRANSPORT", c.Transport.Kind)
	c.Transport.URL = sharedConfig.GetEnv("IM_GATEWAY_URL", c.Transport.URL)
	c.NATS.URL = sharedConfig.GetEnv("NATS_URL", c.NATS.URL)

	// Redis
	c.Redis.Enabled = sharedConfig.GetEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Host = sharedConfig.GetEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = sharedConfig.GetEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = sharedConfig.GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = sharedConfig.GetEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.ListingLimit = sharedConfig.GetEnvInt64("IM_LISTING_LIMIT", c.Redis.ListingLimit)

	// Database
	c.Database.Enabled = sharedConfig.GetEnvBool("POSTGRES_ENABLED", c.Database.Enabled)
	c.Database.Host = sharedConfig.GetEnv("POSTGRES_HOST", c.Database.Host)
	c.Database.Port = sharedConfig.GetEnvInt("POSTGRES_PORT", c.Database.Port)
	c.Database.User = sharedConfig.GetEnv("POSTGRES_USER", c.Database.User)
	c.Database.Password = sharedConfig.GetEnv("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.Name = sharedConfig.GetEnv("POSTGRES_DB", c.Database.Name)

	// HTTP
	c.HTTP.Addr = sharedConfig.GetEnv("IM_HTTP_ADDR", c.HTTP.Addr)
	c.Dispatcher.CommandTimeout = sharedConfig.GetEnvDuration("IM_COMMAND_TIMEOUT", c.Dispatcher.CommandTimeout)
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportNATS:
		if c.NATS.URL == "" {
			return errors.New("nats.url is required for nats transport")
		}
	case TransportWebSocket:
		if c.Transport.URL == "" {
			return errors.New("transport.url is required for websocket transport")
		}
	case TransportMemory:
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}
	if c.Auth.Token == "" {
		return errors.New("auth.token is required")
	}
	if c.History.Enabled && !c.Database.Enabled {
		return errors.New("history requires database.enabled")
	}
	return nil
}
