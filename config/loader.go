// =============================================================================
// 📦 FlowEngine 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("flowengine.yaml").
//	    WithEnvPrefix("FLOWENGINE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量默认前缀
const DefaultEnvPrefix = "FLOWENGINE"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 FlowEngine 的完整配置
type Config struct {
	// 执行引擎与调用管理器
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`
	// 生命周期事件总线
	Hooks HooksConfig `yaml:"hooks" env:"HOOKS"`
	// 工作流/执行记录存储
	Store StoreConfig `yaml:"store" env:"STORE"`
	// 调用授权
	Auth AuthConfig `yaml:"auth" env:"AUTH"`
	// Prometheus 指标
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
	// 日志
	Log LogConfig `yaml:"log" env:"LOG"`
	// 遥测
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// EngineConfig 执行引擎配置
type EngineConfig struct {
	// 同时运行的最大调用数
	MaxConcurrent int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	// Wait 未指定超时时使用的默认值
	InvocationTimeout time.Duration `yaml:"invocation_timeout" env:"INVOCATION_TIMEOUT"`
	// task 节点未设置 timeout 参数时的超时
	NodeTimeout time.Duration `yaml:"node_timeout" env:"NODE_TIMEOUT"`
	// 调用准入速率（每秒），0 表示不限速
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 令牌桶容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// HooksConfig 事件总线配置
type HooksConfig struct {
	// 事件缓冲区大小，满时丢弃
	BufferSize int `yaml:"buffer_size" env:"BUFFER_SIZE"`
	// 审计日志保留条数
	AuditLimit int `yaml:"audit_limit" env:"AUDIT_LIMIT"`
	// 非空时将事件写入该 Redis Stream（使用 store.redis 的连接参数）
	RedisStream string `yaml:"redis_stream" env:"REDIS_STREAM"`
	// Stream 近似最大长度
	RedisStreamMaxLen int64 `yaml:"redis_stream_max_len" env:"REDIS_STREAM_MAX_LEN"`
}

// StoreConfig 存储配置
type StoreConfig struct {
	// 存储类型: memory, sql, redis, badger
	Type string `yaml:"type" env:"TYPE"`
	// 启动时自动建表（仅 sql）
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	// SQL 数据库
	SQL DatabaseConfig `yaml:"sql" env:"SQL"`
	// Redis
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// Badger 嵌入式存储
	Badger BadgerConfig `yaml:"badger" env:"BADGER"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 连接最大空闲时间
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	// 健康检查间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// BadgerConfig Badger 配置
type BadgerConfig struct {
	// 数据目录
	Dir string `yaml:"dir" env:"DIR"`
	// 纯内存模式（忽略 Dir）
	InMemory bool `yaml:"in_memory" env:"IN_MEMORY"`
}

// AuthConfig 授权配置
type AuthConfig struct {
	// 模式: none, capability, jwt
	Mode string `yaml:"mode" env:"MODE"`
	// HS256 密钥（jwt 模式）
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// 期望的签发者，空表示不校验
	JWTIssuer string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Prometheus 命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// serve 子命令的监听地址
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	// HTTP 读超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

var (
	storeTypes = []string{"memory", "sql", "redis", "badger"}
	sqlDrivers = []string{"postgres", "mysql", "sqlite"}
	authModes  = []string{"none", "capability", "jwt"}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "console"}
)

// Validate 验证配置，汇总所有问题后一次返回
func (c *Config) Validate() error {
	var errs []string

	// 引擎
	if c.Engine.MaxConcurrent <= 0 {
		errs = append(errs, "engine.max_concurrent must be positive")
	}
	if c.Engine.InvocationTimeout <= 0 {
		errs = append(errs, "engine.invocation_timeout must be positive")
	}
	if c.Engine.NodeTimeout < 0 {
		errs = append(errs, "engine.node_timeout must not be negative")
	}
	if c.Engine.RateLimitRPS < 0 {
		errs = append(errs, "engine.rate_limit_rps must not be negative")
	}
	if c.Engine.RateLimitRPS > 0 && c.Engine.RateLimitBurst <= 0 {
		errs = append(errs, "engine.rate_limit_burst must be positive when rate limiting is enabled")
	}

	// 事件
	if c.Hooks.BufferSize <= 0 {
		errs = append(errs, "hooks.buffer_size must be positive")
	}
	if c.Hooks.AuditLimit < 0 {
		errs = append(errs, "hooks.audit_limit must not be negative")
	}
	if c.Hooks.RedisStream != "" && c.Store.Redis.Addr == "" {
		errs = append(errs, "hooks.redis_stream requires store.redis.addr")
	}

	// 存储
	if !oneOf(c.Store.Type, storeTypes) {
		errs = append(errs, fmt.Sprintf("store.type must be one of %v", storeTypes))
	}
	switch c.Store.Type {
	case "sql":
		if !oneOf(c.Store.SQL.Driver, sqlDrivers) {
			errs = append(errs, fmt.Sprintf("store.sql.driver must be one of %v", sqlDrivers))
		}
		if c.Store.SQL.Name == "" {
			errs = append(errs, "store.sql.name is required")
		}
		if c.Store.SQL.Driver != "sqlite" && (c.Store.SQL.Port <= 0 || c.Store.SQL.Port > 65535) {
			errs = append(errs, "invalid store.sql.port")
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, "store.redis.addr is required")
		}
	case "badger":
		if !c.Store.Badger.InMemory && c.Store.Badger.Dir == "" {
			errs = append(errs, "store.badger.dir is required unless in_memory is set")
		}
	}

	// 授权
	if !oneOf(c.Auth.Mode, authModes) {
		errs = append(errs, fmt.Sprintf("auth.mode must be one of %v", authModes))
	}
	if c.Auth.Mode == "jwt" && c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required in jwt mode")
	}

	// 日志与遥测
	if !oneOf(c.Log.Level, logLevels) {
		errs = append(errs, fmt.Sprintf("log.level must be one of %v", logLevels))
	}
	if !oneOf(c.Log.Format, logFormats) {
		errs = append(errs, fmt.Sprintf("log.format must be one of %v", logFormats))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
