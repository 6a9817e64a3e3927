// =============================================================================
// 📦 DiagramGate 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("DIAGRAMGATE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "DIAGRAMGATE"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 DiagramGate 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Scanner 静态扫描配置
	Scanner ScannerConfig `yaml:"scanner" env:"SCANNER"`

	// Harness 脚本执行配置
	Harness HarnessConfig `yaml:"harness" env:"HARNESS"`

	// Renderer 渲染配置
	Renderer RendererConfig `yaml:"renderer" env:"RENDERER"`

	// ArtifactStore 产物发布配置
	ArtifactStore ArtifactStoreConfig `yaml:"artifact_store" env:"ARTIFACT_STORE"`

	// Cache 扫描结论缓存（Redis）
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// JWT 认证配置
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口，0 表示不单独暴露
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，需要覆盖最长的脚本执行时间
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 请求体上限
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// 每个客户端的限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// API Key 列表，为空时不启用 API Key 认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// TLS 证书，两者都设置时启用 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
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
	// 是否使用明文 gRPC
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 是否同时通过 OTLP 导出指标
	ExportMetrics bool `yaml:"export_metrics" env:"EXPORT_METRICS"`
}

// ScannerConfig 静态扫描配置
type ScannerConfig struct {
	// 是否运行 bandit
	BanditEnabled bool `yaml:"bandit_enabled" env:"BANDIT_ENABLED"`
	// bandit 可执行文件
	BanditBinary string `yaml:"bandit_binary" env:"BANDIT_BINARY"`
	// 内置的密钥 / SSRF 规则
	PatternsEnabled bool `yaml:"patterns_enabled" env:"PATTERNS_ENABLED"`
	// 单个 linter 的超时
	LintTimeout time.Duration `yaml:"lint_timeout" env:"LINT_TIMEOUT"`
	// 追加到默认禁用清单的标识符
	ExtraForbiddenIdentifiers []string `yaml:"extra_forbidden_identifiers" env:"EXTRA_FORBIDDEN_IDENTIFIERS"`
}

// HarnessConfig 脚本执行配置
type HarnessConfig struct {
	// 产物输出目录
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR"`
	// 默认 / 最大执行时限
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`
	MaxTimeout     time.Duration `yaml:"max_timeout" env:"MAX_TIMEOUT"`
	// 时限策略: auto, signal, thread
	Strategy string `yaml:"strategy" env:"STRATEGY"`
	// 解释器步数预算，0 表示不限制
	MaxSteps uint64 `yaml:"max_steps" env:"MAX_STEPS"`
	// 最大调用深度
	MaxCallDepth int `yaml:"max_call_depth" env:"MAX_CALL_DEPTH"`
	// 同时执行的脚本数
	MaxConcurrent int64 `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	// 默认输出格式: png, svg, dot
	DefaultFormat string `yaml:"default_format" env:"DEFAULT_FORMAT"`
}

// RendererConfig 渲染配置
type RendererConfig struct {
	// graphviz dot 可执行文件
	GraphvizBinary string `yaml:"graphviz_binary" env:"GRAPHVIZ_BINARY"`
	// 单次渲染超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 图标目录，为空时节点渲染为普通方框
	IconDir string `yaml:"icon_dir" env:"ICON_DIR"`
}

// ArtifactStoreConfig MinIO / S3 产物发布配置
type ArtifactStoreConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	Endpoint  string        `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string        `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string        `yaml:"secret_key" env:"SECRET_KEY"`
	Bucket    string        `yaml:"bucket" env:"BUCKET"`
	Region    string        `yaml:"region" env:"REGION"`
	UseSSL    bool          `yaml:"use_ssl" env:"USE_SSL"`
	Prefix    string        `yaml:"prefix" env:"PREFIX"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// Validate 校验连接参数
func (c ArtifactStoreConfig) Validate() error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.AccessKey == "" {
		missing = append(missing, "access_key")
	}
	if c.SecretKey == "" {
		missing = append(missing, "secret_key")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("artifact store: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// CacheConfig Redis 扫描结论缓存配置
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	Addr      string        `yaml:"addr" env:"ADDR"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	PoolSize  int           `yaml:"pool_size" env:"POOL_SIZE"`
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HS256 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RS256 公钥（PEM）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	// 期望的签发者与受众，为空时不校验
	Issuer   string `yaml:"issuer" env:"ISSUER"`
	Audience string `yaml:"audience" env:"AUDIENCE"`
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
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

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

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
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
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
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
	validStrategies = []string{"auto", "signal", "thread"}
	validFormats    = []string{"png", "svg", "dot"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
)

// Validate 验证配置，返回所有问题的汇总
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, "metrics port must differ from HTTP port")
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, "rate limit must not be negative")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}

	if !contains(validLogLevels, c.Log.Level) {
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "sample_rate must be between 0 and 1")
	}

	if c.Harness.OutputDir == "" {
		errs = append(errs, "harness output_dir is required")
	}
	if !contains(validStrategies, c.Harness.Strategy) {
		errs = append(errs, fmt.Sprintf("unknown deadline strategy %q", c.Harness.Strategy))
	}
	if !contains(validFormats, c.Harness.DefaultFormat) {
		errs = append(errs, fmt.Sprintf("unknown default format %q", c.Harness.DefaultFormat))
	}
	if c.Harness.DefaultTimeout <= 0 || c.Harness.MaxTimeout < c.Harness.DefaultTimeout {
		errs = append(errs, "harness timeouts must satisfy 0 < default_timeout <= max_timeout")
	}
	if c.Harness.MaxConcurrent <= 0 {
		errs = append(errs, "harness max_concurrent must be positive")
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout < c.Harness.MaxTimeout {
		errs = append(errs, "server write_timeout must cover harness max_timeout")
	}

	if c.ArtifactStore.Enabled {
		if err := c.ArtifactStore.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Cache.Enabled {
		if c.Cache.Addr == "" {
			errs = append(errs, "cache: missing addr")
		}
		if c.Cache.TTL <= 0 {
			errs = append(errs, "cache ttl must be positive")
		}
	}
	if c.JWT.Enabled && c.JWT.Secret == "" && c.JWT.PublicKey == "" {
		errs = append(errs, "jwt requires a secret or a public key")
	}

	if len(errs) > 0 {
		return errors.New("config validation errors: " + strings.Join(errs, "; "))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
