// Package config 提供 TOML 配置加载、.env 与环境变量覆盖、配置校验
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/wyfcoding/lsmc/pkg/logger"
)

// EnvPrefix 环境变量前缀，例如 APP_SIMULATION_PATHS
const EnvPrefix = "APP"

// Config 基础配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// 定价参数
	Simulation SimulationConfig `mapstructure:"simulation"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 日志配置
	Logger logger.Config `mapstructure:"logger"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SimulationConfig LSMC 定价参数
type SimulationConfig struct {
	// 结果记录使用的标的代码
	Symbol string `mapstructure:"symbol"`
	// 无风险利率
	R float64 `mapstructure:"r"`
	// 行权价
	K float64 `mapstructure:"k"`
	// 时间步长（年）
	Dt float64 `mapstructure:"dt"`
	// 时间步数
	Steps int `mapstructure:"steps"`
	// 初始价格
	S0 float64 `mapstructure:"s0"`
	// 波动率
	Sigma float64 `mapstructure:"sigma"`
	// 每次重复的路径数
	Paths int `mapstructure:"paths"`
	// 重复次数
	Repetitions int `mapstructure:"repetitions"`
	// 随机种子
	Seed uint64 `mapstructure:"seed"`
	// 为 true 时忽略 seed，按时钟取种子
	RandomSeed bool `mapstructure:"random_seed"`
	// 回归多项式阶数
	Degree int `mapstructure:"degree"`
	// 并发重复数
	Workers int `mapstructure:"workers"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host"`
	// 监听端口
	Port int `mapstructure:"port"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒），需覆盖最长的定价请求
	WriteTimeout int `mapstructure:"write_timeout"`
	// 允许的跨域来源
	CORSOrigins []string `mapstructure:"cors_origins"`
	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// 单次定价请求的规模上限
	Limits RequestLimitConfig `mapstructure:"limits"`
}

// RequestLimitConfig HTTP 定价请求的参数上限，0 表示不限制
// 命令行运行不受这些上限约束
type RequestLimitConfig struct {
	MaxPaths       int `mapstructure:"max_paths"`
	MaxSteps       int `mapstructure:"max_steps"`
	MaxRepetitions int `mapstructure:"max_repetitions"`
	MaxWorkers     int `mapstructure:"max_workers"`
}

// RateLimitConfig 按客户端 IP 限流
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// 每秒请求数
	QPS int `mapstructure:"qps"`
	// 突发容量
	Burst int `mapstructure:"burst"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用结果缓存
	Enabled bool `mapstructure:"enabled"`
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
	// 连接超时（秒）
	ConnTimeout int `mapstructure:"conn_timeout"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
	// 结果缓存过期时间（秒）
	ResultTTL int `mapstructure:"result_ttl"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否启用定价结果持久化
	Enabled bool `mapstructure:"enabled"`
	// 驱动：mysql
	Driver string `mapstructure:"driver"`
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
	// 启动时自动迁移表结构
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// 是否启用事件发布
	Enabled bool `mapstructure:"enabled"`
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// 事件主题
	Topic string `mapstructure:"topic"`
	// 最大重试次数
	MaxRetries int `mapstructure:"max_retries"`
	// 重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// 指标路径
	Path string `mapstructure:"path"`
}

// Load 加载配置：默认值 < TOML 文件 < .env < APP_ 环境变量
// path 为空时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证基础设施配置的有效性
// 定价参数由领域层校验，以便返回带字段名的 ConfigurationError
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
	if c.HTTP.RateLimit.Enabled && c.HTTP.RateLimit.QPS <= 0 {
		return fmt.Errorf("rate limit qps must be positive when rate limiting is enabled")
	}
	if l := c.HTTP.Limits; l.MaxPaths < 0 || l.MaxSteps < 0 || l.MaxRepetitions < 0 || l.MaxWorkers < 0 {
		return fmt.Errorf("http request limits must not be negative: %+v", l)
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka brokers and topic are required when kafka is enabled")
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("redis host is required when redis is enabled")
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "lsmc")
	v.SetDefault("version", "0.1.0")
	v.SetDefault("environment", "dev")

	v.SetDefault("simulation.symbol", "AMERICAN-PUT")
	v.SetDefault("simulation.r", 0.06)
	v.SetDefault("simulation.k", 1.0)
	v.SetDefault("simulation.dt", 1.0/12)
	v.SetDefault("simulation.steps", 12)
	v.SetDefault("simulation.s0", 1.0)
	v.SetDefault("simulation.sigma", 0.2)
	v.SetDefault("simulation.paths", 10000)
	v.SetDefault("simulation.repetitions", 100)
	v.SetDefault("simulation.seed", 42)
	v.SetDefault("simulation.random_seed", false)
	v.SetDefault("simulation.degree", 2)
	v.SetDefault("simulation.workers", 1)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 300)
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.rate_limit.enabled", false)
	v.SetDefault("http.rate_limit.qps", 5)
	v.SetDefault("http.rate_limit.burst", 10)
	v.SetDefault("http.limits.max_paths", 100000)
	v.SetDefault("http.limits.max_steps", 1000)
	v.SetDefault("http.limits.max_repetitions", 1000)
	v.SetDefault("http.limits.max_workers", 16)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stderr")
	v.SetDefault("logger.file_path", "logs/lsmc.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)
	v.SetDefault("redis.result_ttl", 3600)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "pricing.events")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
