// =============================================================================
// 📦 FlowEngine 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		Hooks:     DefaultHooksConfig(),
		Store:     DefaultStoreConfig(),
		Auth:      DefaultAuthConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrent:     10,
		InvocationTimeout: 30 * time.Second,
		NodeTimeout:       30 * time.Second,
		RateLimitRPS:      0,
		RateLimitBurst:    20,
	}
}

// DefaultHooksConfig 返回默认事件总线配置
func DefaultHooksConfig() HooksConfig {
	return HooksConfig{
		BufferSize:        256,
		AuditLimit:        1000,
		RedisStreamMaxLen: 10000,
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:   "memory",
		SQL:    DefaultDatabaseConfig(),
		Redis:  DefaultRedisConfig(),
		Badger: DefaultBadgerConfig(),
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:              "postgres",
		Host:                "localhost",
		Port:                5432,
		User:                "flowengine",
		Name:                "flowengine",
		SSLMode:             "disable",
		MaxOpenConns:        25,
		MaxIdleConns:        5,
		ConnMaxLifetime:     5 * time.Minute,
		ConnMaxIdleTime:     time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "flowengine:",
	}
}

// DefaultBadgerConfig 返回默认 Badger 配置
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		Dir: "./data/badger",
	}
}

// DefaultAuthConfig 返回默认授权配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Mode: "capability",
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:       "flowengine",
		ListenAddr:      ":9091",
		ReadTimeout:     10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "flowengine",
		SampleRate:   0.1,
	}
}
