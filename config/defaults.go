// =============================================================================
// 📦 arpublish 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Publish:   DefaultPublishConfig(),
		Export:    DefaultExportConfig(),
		Preview:   DefaultPreviewConfig(),
		Relay:     DefaultRelayConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Storage:   DefaultStorageConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultPublishConfig 返回默认发布配置（token 策略，指向本地 relay）
func DefaultPublishConfig() PublishConfig {
	return PublishConfig{
		Strategy:     "token",
		Endpoint:     "http://localhost:8090/api/upload",
		TokenURL:     "http://localhost:8090/api/token",
		EventType:    "publish-ar",
		GenerateCode: true,
		CodeSize:     256,
		Timeout:      60 * time.Second,
	}
}

// DefaultExportConfig 返回默认导出配置
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		Formats:      []string{"glb", "usdz"},
		Placeholders: map[string]string{},
		Timeout:      2 * time.Minute,
	}
}

// DefaultPreviewConfig 返回默认预览配置
func DefaultPreviewConfig() PreviewConfig {
	return PreviewConfig{
		Enabled:      true,
		Format:       "usdz",
		ReleaseAfter: 30 * time.Second,
		BaseURL:      "http://localhost:8080",
	}
}

// DefaultRelayConfig 返回默认 relay 配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		HTTPPort:       8090,
		PublicURL:      "http://localhost:8090",
		TokenTTL:       2 * time.Minute,
		RequireToken:   true,
		MaxUploadBytes: 64 << 20,
		Index:          "memory",
		CodeSize:       256,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "arpublish:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "arpublish",
		Password:        "",
		Name:            "arpublish.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultStorageConfig 返回默认存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:  "local",
		LocalDir: "data/models",
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "models",
		},
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
		ServiceName:  "arpublish",
		SampleRate:   0.1,
	}
}
