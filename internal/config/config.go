package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "LINKRESOLVER"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	App      AppConfig      `mapstructure:"app"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
	Clicks   ClicksConfig   `mapstructure:"clicks"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	QR       QRConfig       `mapstructure:"qr"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the record store. Driver is one of postgres, mysql, memory.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	Host        string `mapstructure:"host"`
	Port        string `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	MySQLDSN    string `mapstructure:"mysql_dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type AppConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	ShortCodeLength int           `mapstructure:"short_code_length"`
	MaxRetries      int           `mapstructure:"max_retries"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateWindow      time.Duration `mapstructure:"rate_window"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retry"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	NegativeTTL  time.Duration `mapstructure:"negative_ttl"`
	Namespace    string        `mapstructure:"namespace"`
}

// CacheConfig configures the in-process L1 cache and the scheduled warm-up.
type CacheConfig struct {
	LocalSize      int64         `mapstructure:"local_size"`
	LocalTTL       time.Duration `mapstructure:"local_ttl"`
	WarmupSchedule string        `mapstructure:"warmup_schedule"`
	WarmupLimit    int           `mapstructure:"warmup_limit"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type ClicksConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	Kafka         KafkaConfig   `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

type QRConfig struct {
	DefaultSize int `mapstructure:"default_size"`
}

// Load reads .env, then config.yaml from ./configs or the working directory,
// then LINKRESOLVER_* environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.App.BaseURL == "" {
		scheme := "http"
		if config.IsProduction() {
			scheme = "https"
		}
		config.App.BaseURL = fmt.Sprintf("%s://%s:%s", scheme, config.Server.Host, config.Server.Port)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "linkresolver")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "linkresolver")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.mysql_dsn", "linkresolver:password@tcp(localhost:3306)/linkresolver?charset=utf8mb4&parseTime=True&loc=UTC")
	v.SetDefault("database.auto_migrate", true)

	// App defaults
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.short_code_length", 6)
	v.SetDefault("app.max_retries", 5)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.allowed_origins", []string{"*"})
	v.SetDefault("app.rate_limit", 100)
	v.SetDefault("app.rate_window", time.Minute)

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.max_retry", 3)
	v.SetDefault("redis.cache_ttl", time.Hour)
	v.SetDefault("redis.negative_ttl", 30*time.Second)
	v.SetDefault("redis.namespace", "linkresolver")

	v.SetDefault("cache.local_size", 10000)
	v.SetDefault("cache.local_ttl", time.Minute)
	v.SetDefault("cache.warmup_schedule", "@every 10m")
	v.SetDefault("cache.warmup_limit", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", false)

	v.SetDefault("clicks.buffer_size", 1024)
	v.SetDefault("clicks.batch_size", 100)
	v.SetDefault("clicks.flush_interval", 2*time.Second)
	v.SetDefault("clicks.kafka.enabled", false)
	v.SetDefault("clicks.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("clicks.kafka.topic", "link-clicks")
	v.SetDefault("clicks.kafka.group_id", "link-resolver-clicks")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "link-resolver")

	v.SetDefault("qr.default_size", 256)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.App.ShortCodeLength <= 0 {
		return fmt.Errorf("app.short_code_length must be positive, got %d", c.App.ShortCodeLength)
	}
	if c.App.MaxRetries <= 0 {
		return fmt.Errorf("app.max_retries must be positive, got %d", c.App.MaxRetries)
	}
	if c.Clicks.Kafka.Enabled && len(c.Clicks.Kafka.Brokers) == 0 {
		return fmt.Errorf("clicks.kafka.brokers is required when kafka is enabled")
	}

	return nil
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) GetBaseURL() string {
	return c.App.BaseURL
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.App.Environment) == "production"
}

func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.App.Environment) == "development"
}

func (c *Config) GetAllowedOrigins() []string {
	if len(c.App.AllowedOrigins) == 0 {
		if c.IsProduction() {
			// production requires explicit origins
			return []string{c.App.BaseURL}
		}
		return []string{"*"}
	}
	return c.App.AllowedOrigins
}
