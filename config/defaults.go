// =============================================================================
// 📦 DiagramGate 默认配置
// =============================================================================
package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		Log:           DefaultLogConfig(),
		Telemetry:     DefaultTelemetryConfig(),
		Scanner:       DefaultScannerConfig(),
		Harness:       DefaultHarnessConfig(),
		Renderer:      DefaultRendererConfig(),
		ArtifactStore: DefaultArtifactStoreConfig(),
		Cache:         DefaultCacheConfig(),
		JWT:           JWTConfig{},
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    330 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxBodyBytes:    256 << 10,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
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
		Insecure:     true,
		ServiceName:  "diagramgate",
		SampleRate:   0.1,
	}
}

// DefaultScannerConfig 返回默认扫描配置
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		BanditEnabled:   true,
		BanditBinary:    "bandit",
		PatternsEnabled: true,
		LintTimeout:     10 * time.Second,
	}
}

// DefaultHarnessConfig 返回默认执行配置
func DefaultHarnessConfig() HarnessConfig {
	return HarnessConfig{
		OutputDir:      filepath.Join(os.TempDir(), "diagramgate"),
		DefaultTimeout: 90 * time.Second,
		MaxTimeout:     300 * time.Second,
		Strategy:       "auto",
		MaxCallDepth:   64,
		MaxConcurrent:  4,
		DefaultFormat:  "png",
	}
}

// DefaultRendererConfig 返回默认渲染配置
func DefaultRendererConfig() RendererConfig {
	return RendererConfig{
		GraphvizBinary: "dot",
		Timeout:        60 * time.Second,
	}
}

// DefaultArtifactStoreConfig 返回默认产物发布配置
func DefaultArtifactStoreConfig() ArtifactStoreConfig {
	return ArtifactStoreConfig{
		Enabled: false,
		Bucket:  "diagrams",
		Prefix:  "artifacts",
		Timeout: 30 * time.Second,
	}
}

// DefaultCacheConfig 返回默认扫描结论缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   false,
		Addr:      "localhost:6379",
		TTL:       time.Hour,
		KeyPrefix: "diagramgate:verdict:",
		PoolSize:  10,
	}
}
