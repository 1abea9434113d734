// Package config 提供 TOML 配置加载、环境变量覆盖与 schema 校验
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/wyfcoding/cryptocustody/pkg/logger"
)

// Config 服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger logger.Config `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 认证配置
	Auth AuthConfig `mapstructure:"auth"`
	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// 行情配置
	Market MarketConfig `mapstructure:"market"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host"`
	// 监听端口
	Port int `mapstructure:"port"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`
	// 是否启用 SQL 日志
	LogEnabled bool `mapstructure:"log_enabled"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 主机地址
	Host string `mapstructure:"host"`
	// 端口
	Port int `mapstructure:"port"`
	// 密码
	Password string `mapstructure:"password"`
	// 数据库编号
	DB int `mapstructure:"db"`
	// 最大连接数
	MaxPoolSize int `mapstructure:"max_pool_size"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// 是否启用事件发布
	Enabled bool `mapstructure:"enabled"`
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// 账务事件主题
	LedgerTopic string `mapstructure:"ledger_topic"`
	// 发送最大重试次数
	MaxRetries int `mapstructure:"max_retries"`
	// 重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// Prometheus 监听端口
	Port int `mapstructure:"port"`
	// 指标路径
	Path string `mapstructure:"path"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	// JWT 签名密钥
	JWTSecret string `mapstructure:"jwt_secret"`
	// 访问令牌有效期（分钟）
	AccessTokenTTL int `mapstructure:"access_token_ttl"`
	// 刷新令牌有效期（小时）
	RefreshTokenTTL int `mapstructure:"refresh_token_ttl"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// 每秒补充的配额
	QPS int `mapstructure:"qps"`
	// 突发上限
	Burst int `mapstructure:"burst"`
}

// MarketConfig 行情配置
type MarketConfig struct {
	// 初始报价（资产 -> 单价）
	InitialPrices map[string]float64 `mapstructure:"initial_prices"`
	// 每次读取的最大漂移幅度（如 0.002 表示 ±0.1%）
	Volatility float64 `mapstructure:"volatility"`
	// 报价缓存 TTL（秒）
	QuoteCacheTTL int `mapstructure:"quote_cache_ttl"`
}

// Load 从 TOML 文件加载配置，支持 APP_ 前缀环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.ledger_topic", "ledger.events")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("auth.access_token_ttl", 60)
	v.SetDefault("auth.refresh_token_ttl", 168)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.qps", 100)
	v.SetDefault("rate_limit.burst", 200)

	v.SetDefault("market.volatility", 0.002)
	v.SetDefault("market.quote_cache_ttl", 3)
	v.SetDefault("market.initial_prices", map[string]float64{
		"BTC":  45000.0,
		"ETH":  3000.0,
		"USDT": 1.0,
		"BNB":  350.0,
		"TRX":  0.12,
	})
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
