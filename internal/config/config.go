package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const maxImportWorkers = 10

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Import   ImportConfig   `mapstructure:"import"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	BodyLimit       string        `mapstructure:"body_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	PoolMaxConns int32  `mapstructure:"pool_max_conns"`
}

// RedisConfig enables the college context cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig enables the import notifier when Brokers is not empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ImportConfig struct {
	Workers           int           `mapstructure:"workers"`
	PageSize          int           `mapstructure:"page_size"`
	MaxRows           int           `mapstructure:"max_rows"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	LeaseDuration     time.Duration `mapstructure:"lease_duration"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	NotifyTimeout     time.Duration `mapstructure:"notify_timeout"`
}

type BlobConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads defaults, then the optional config file, then ALUMNI_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.body_limit", "20M")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("db.url", "")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.pool_max_conns", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "5m")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "alumni.import.finished")

	v.SetDefault("import.workers", maxImportWorkers)
	v.SetDefault("import.page_size", 500)
	v.SetDefault("import.max_rows", 50000)
	v.SetDefault("import.poll_interval", "1s")
	v.SetDefault("import.lease_duration", "60s")
	v.SetDefault("import.heartbeat_interval", "20s")
	v.SetDefault("import.notify_timeout", "5s")

	v.SetDefault("blob.base_dir", "./media")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ALUMNI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port must be between 1 and 65535")
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("invalid config: db.url is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("invalid config: auth.jwt_secret must be at least 16 characters")
	}
	if c.Import.Workers < 1 || c.Import.Workers > maxImportWorkers {
		return fmt.Errorf("invalid config: import.workers must be between 1 and %d", maxImportWorkers)
	}
	if c.Import.PageSize <= 0 {
		return fmt.Errorf("invalid config: import.page_size must be positive")
	}
	if c.Import.HeartbeatInterval >= c.Import.LeaseDuration {
		return fmt.Errorf("invalid config: import.heartbeat_interval must be shorter than import.lease_duration")
	}
	if strings.TrimSpace(c.Blob.BaseDir) == "" {
		return fmt.Errorf("invalid config: blob.base_dir is required")
	}
	return nil
}

// splitList accepts both YAML lists and a comma separated environment value.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
