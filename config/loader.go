// =============================================================================
// 📦 arpublish 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("ARPUBLISH").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 arpublish 的完整配置结构
type Config struct {
	// Server 发布 API 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Publish 发布传输配置
	Publish PublishConfig `yaml:"publish" env:"PUBLISH"`

	// Export 导出配置
	Export ExportConfig `yaml:"export" env:"EXPORT"`

	// Preview 本地 AR 预览配置
	Preview PreviewConfig `yaml:"preview" env:"PREVIEW"`

	// Relay 参考发布服务配置
	Relay RelayConfig `yaml:"relay" env:"RELAY"`

	// Redis 分享索引缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 分享索引数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Storage 模型存储配置
	Storage StorageConfig `yaml:"storage" env:"STORAGE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 允许的 CORS 来源，为空时不限制
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 每 IP 每秒请求数
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// API Key 列表，为空时不鉴权
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
}

// PublishConfig 发布传输配置
type PublishConfig struct {
	// 策略: dispatch, proxy, token, multipart
	Strategy string `yaml:"strategy" env:"STRATEGY"`
	// 上传 / 代理 / 分发端点
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// token 策略的令牌端点
	TokenURL string `yaml:"token_url" env:"TOKEN_URL"`
	// dispatch 策略的静态凭证
	Credential string `yaml:"credential" env:"CREDENTIAL"`
	// dispatch 事件类型
	EventType string `yaml:"event_type" env:"EVENT_TYPE"`
	// dispatch 链接模板，支持 {glb} {usdz} {subject} 占位符
	LinkTemplate string `yaml:"link_template" env:"LINK_TEMPLATE"`
	// token 策略是否本地生成二维码
	GenerateCode bool `yaml:"generate_code" env:"GENERATE_CODE"`
	// 二维码边长（像素）
	CodeSize int `yaml:"code_size" env:"CODE_SIZE"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 自定义 CA 文件
	CAFile string `yaml:"ca_file" env:"CA_FILE"`
}

// ExportConfig 导出配置
type ExportConfig struct {
	// 请求的格式
	Formats []string `yaml:"formats" env:"FORMATS"`
	// 渲染器导出端点，{format} 会被替换为格式名
	RendererURL string `yaml:"renderer_url" env:"RENDERER_URL"`
	// 渲染器写出文件的目录，读取 {dir}/export.{format}，优先于 RendererURL
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR"`
	// 占位策略: 目标格式 → 来源格式
	Placeholders map[string]string `yaml:"placeholders" env:"-"`
	// 导出超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// PreviewConfig 本地预览配置
type PreviewConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 预览格式
	Format string `yaml:"format" env:"FORMAT"`
	// 句柄释放延迟
	ReleaseAfter time.Duration `yaml:"release_after" env:"RELEASE_AFTER"`
	// 预览句柄的外部地址前缀
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
}

// RelayConfig 参考发布服务配置
type RelayConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 对外地址，用于生成 AR 链接
	PublicURL string `yaml:"public_url" env:"PUBLIC_URL"`
	// JWT 签名密钥
	TokenSecret string `yaml:"token_secret" env:"TOKEN_SECRET"`
	// 令牌有效期
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	// 上传是否必须携带令牌
	RequireToken bool `yaml:"require_token" env:"REQUIRE_TOKEN"`
	// 单次上传最大字节数
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
	// 分享索引: memory, redis, sql
	Index string `yaml:"index" env:"INDEX"`
	// 分享有效期，0 表示永久
	ShareTTL time.Duration `yaml:"share_ttl" env:"SHARE_TTL"`
	// 二维码边长
	CodeSize int `yaml:"code_size" env:"CODE_SIZE"`
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

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// StorageConfig 模型存储配置
type StorageConfig struct {
	// 后端: local, s3
	Backend string `yaml:"backend" env:"BACKEND"`
	// 本地目录
	LocalDir string `yaml:"local_dir" env:"LOCAL_DIR"`
	// S3 配置
	S3 S3Config `yaml:"s3" env:"S3"`
}

// S3Config S3 兼容存储配置
type S3Config struct {
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	Region    string `yaml:"region" env:"REGION"`
	Prefix    string `yaml:"prefix" env:"PREFIX"`
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
	// MinIO 等需要 path-style
	UsePathStyle bool `yaml:"use_path_style" env:"USE_PATH_STYLE"`
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
		envPrefix:  "ARPUBLISH",
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

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
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

// 已知的发布策略
var knownStrategies = map[string]bool{
	"dispatch":  true,
	"proxy":     true,
	"token":     true,
	"multipart": true,
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if !validPort(c.Server.HTTPPort) {
		errs = append(errs, "invalid HTTP port")
	}
	if !validPort(c.Server.MetricsPort) {
		errs = append(errs, "invalid metrics port")
	}
	if !validPort(c.Relay.HTTPPort) {
		errs = append(errs, "invalid relay port")
	}

	errs = append(errs, c.Publish.validate()...)

	if len(c.Export.Formats) == 0 {
		errs = append(errs, "export.formats must not be empty")
	}
	for target, source := range c.Export.Placeholders {
		if target == source {
			errs = append(errs, fmt.Sprintf("placeholder %s cannot derive from itself", target))
		}
	}

	switch c.Relay.Index {
	case "memory", "redis", "sql":
	default:
		errs = append(errs, fmt.Sprintf("unknown relay index %q", c.Relay.Index))
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, "storage.s3.bucket is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown storage backend %q", c.Storage.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate 校验策略所需字段
func (p *PublishConfig) validate() []string {
	var errs []string
	if !knownStrategies[p.Strategy] {
		return append(errs, fmt.Sprintf("unknown publish strategy %q", p.Strategy))
	}
	if p.Endpoint == "" {
		errs = append(errs, "publish.endpoint is required")
	} else if u, err := url.Parse(p.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "publish.endpoint must be an absolute URL")
	}
	switch p.Strategy {
	case "token":
		if p.TokenURL == "" {
			errs = append(errs, "publish.token_url is required for token strategy")
		}
	case "dispatch":
		if p.Credential == "" {
			errs = append(errs, "publish.credential is required for dispatch strategy")
		}
		if p.LinkTemplate == "" {
			errs = append(errs, "publish.link_template is required for dispatch strategy")
		}
	}
	if p.Timeout <= 0 {
		errs = append(errs, "publish.timeout must be positive")
	}
	return errs
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
