package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 环境变量名称。
const (
	EnvConfigPath    = "TASKSD_CONFIG"
	EnvPort          = "PORT"
	EnvDatabaseURL   = "DATABASE_URL"
	EnvStorageDriver = "TASKSD_STORAGE_DRIVER"
	EnvLogLevel      = "TASKSD_LOG_LEVEL"
	EnvEventsDriver  = "TASKSD_EVENTS_DRIVER"
)

// Config 描述了 tasksd 在启动阶段需要加载的全部配置。
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Events  EventsConfig  `json:"events" yaml:"events"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address                  string     `json:"address" yaml:"address"`
	ReadHeaderTimeoutSeconds int        `json:"read_header_timeout_seconds" yaml:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds   int        `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
	CORS                     CORSConfig `json:"cors" yaml:"cors"`
}

// CORSConfig 限制允许跨域访问的来源，为空表示允许全部。
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// StorageConfig 描述数据库连接与连接池参数。
type StorageConfig struct {
	Driver                  string `json:"driver" yaml:"driver"`
	DSN                     string `json:"dsn" yaml:"dsn"`
	MaxOpenConns            int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns            int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds  int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds  int    `json:"conn_max_idle_time_seconds" yaml:"conn_max_idle_time_seconds"`
	StatementTimeoutSeconds int    `json:"statement_timeout_seconds" yaml:"statement_timeout_seconds"`
	AutoCreateSchema        *bool  `json:"auto_create_schema" yaml:"auto_create_schema"`
}

// EventsConfig 选择任务事件的投递方式：none、memory、redis 或 rabbitmq。
type EventsConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 发布通道。
type RedisConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Channel  string `json:"channel" yaml:"channel"`
}

// RabbitMQConfig 描述 RabbitMQ 交换机。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Exchange   string `json:"exchange" yaml:"exchange"`
	RoutingKey string `json:"routing_key" yaml:"routing_key"`
	Durable    bool   `json:"durable" yaml:"durable"`
}

// LoggingConfig 对应 pkg/logger 的初始化参数。
type LoggingConfig struct {
	Level       string      `json:"level" yaml:"level"`
	Format      string      `json:"format" yaml:"format"`
	OutputPaths []string    `json:"output_paths" yaml:"output_paths"`
	AddSource   bool        `json:"add_source" yaml:"add_source"`
	Audit       AuditConfig `json:"audit" yaml:"audit"`
}

// AuditConfig 控制审计日志文件及其滚动策略。
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// Load 解析指定路径的配置文件，按扩展名选择 JSON 或 YAML。
// 路径为空时只使用环境变量与默认值。
func Load(path string) (*Config, error) {
	var cfg Config
	baseDir := "."
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := decode(path, content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
		baseDir = filepath.Dir(path)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv 读取 TASKSD_CONFIG 指向的配置文件。
func LoadFromEnv() (*Config, error) {
	return Load(strings.TrimSpace(os.Getenv(EnvConfigPath)))
}

func decode(path string, content []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(content, cfg)
	case ".json", "":
		return json.Unmarshal(content, cfg)
	default:
		return fmt.Errorf("不支持的配置格式 %q", filepath.Ext(path))
	}
}

func (c *Config) applyEnv() error {
	if port, ok := lookup(EnvPort); ok {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("环境变量 %s 不是合法端口: %q", EnvPort, port)
		}
		c.Server.Address = ":" + port
	}
	if dsn, ok := lookup(EnvDatabaseURL); ok {
		c.Storage.DSN = dsn
	}
	if driver, ok := lookup(EnvStorageDriver); ok {
		c.Storage.Driver = driver
	}
	if level, ok := lookup(EnvLogLevel); ok {
		c.Logging.Level = level
	}
	if driver, ok := lookup(EnvEventsDriver); ok {
		c.Events.Driver = driver
	}
	return nil
}

func lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":3000"
	}
	if c.Server.ReadHeaderTimeoutSeconds <= 0 {
		c.Server.ReadHeaderTimeoutSeconds = 5
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 5
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverForDSN(c.Storage.DSN)
	}
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = filepath.Join(c.Runtime.DataDir, "tasks.db")
	}
	if c.Storage.StatementTimeoutSeconds <= 0 {
		c.Storage.StatementTimeoutSeconds = 5
	}
	if c.Storage.AutoCreateSchema == nil {
		enabled := true
		c.Storage.AutoCreateSchema = &enabled
	}

	c.Events.Driver = strings.ToLower(strings.TrimSpace(c.Events.Driver))
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	}
}

// DriverForDSN 根据连接串推断存储驱动，无法识别时使用 sqlite。
func DriverForDSN(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"),
		strings.HasPrefix(lower, "host="), strings.Contains(lower, " host="):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"), strings.Contains(lower, "@tcp("), strings.Contains(lower, "@unix("):
		return "mysql"
	default:
		return "sqlite"
	}
}

// Validate 检查互相依赖的字段。
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if strings.Contains(c.Storage.DSN, "://") && !strings.HasPrefix(c.Storage.DSN, "file:") {
			return fmt.Errorf("sqlite 驱动无法使用连接串 %q，请检查 %s", redactDSN(c.Storage.DSN), EnvStorageDriver)
		}
	case "mysql", "postgres", "postgresql", "pgx":
		if c.Storage.DSN == "" {
			return fmt.Errorf("存储驱动 %s 需要配置 dsn 或 %s", c.Storage.Driver, EnvDatabaseURL)
		}
	default:
		return fmt.Errorf("不支持的存储驱动 %q", c.Storage.Driver)
	}

	switch c.Events.Driver {
	case "none", "memory":
	case "redis":
		if c.Events.Redis.Address == "" {
			return errors.New("events.redis.address 不能为空")
		}
	case "rabbitmq":
		if c.Events.RabbitMQ.URL == "" {
			return errors.New("events.rabbitmq.url 不能为空")
		}
	default:
		return fmt.Errorf("不支持的事件驱动 %q", c.Events.Driver)
	}
	return nil
}

func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if _, host, found := strings.Cut(rest, "@"); found {
		return scheme + "://***@" + host
	}
	return dsn
}

// SchemaAutoCreate 返回启动时是否自动建表。
func (s StorageConfig) SchemaAutoCreate() bool {
	return s.AutoCreateSchema == nil || *s.AutoCreateSchema
}

// ConnMaxLifetime 返回连接最长存活时间。
func (s StorageConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(s.ConnMaxLifetimeSeconds) * time.Second
}

// ConnMaxIdleTime 返回连接最长空闲时间。
func (s StorageConfig) ConnMaxIdleTime() time.Duration {
	return time.Duration(s.ConnMaxIdleTimeSeconds) * time.Second
}

// StatementTimeout 返回单条语句的超时时间。
func (s StorageConfig) StatementTimeout() time.Duration {
	return time.Duration(s.StatementTimeoutSeconds) * time.Second
}

// ReadHeaderTimeout 返回读取请求头的超时时间。
func (s ServerConfig) ReadHeaderTimeout() time.Duration {
	return time.Duration(s.ReadHeaderTimeoutSeconds) * time.Second
}

// ShutdownTimeout 返回优雅关闭的等待时间。
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}
