package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Поддерживаемые драйверы хранилища
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Code      CodeConfig
	Clicks    ClickConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Port    string
	BaseURL string
}

type DBConfig struct {
	Driver       string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxConns     int32
	QueryTimeout time.Duration
	SQLitePath   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled сообщает, настроен ли кэш Redis
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type CodeConfig struct {
	Length       int
	MaxAttempts  int
	SecureRandom bool
}

type ClickConfig struct {
	Workers int
	Buffer  int
	Retries int
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// Load читает конфигурацию из .env (если файл есть) и переменных окружения
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile читает конфигурацию из указанного env-файла и окружения.
// Отсутствующий файл не считается ошибкой.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	cfg.App.Port = v.GetString("APP_PORT")
	cfg.App.BaseURL = v.GetString("BASE_URL")

	cfg.DB.Driver = v.GetString("DB_DRIVER")
	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetString("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.Name = v.GetString("DB_NAME")
	cfg.DB.SSLMode = v.GetString("DB_SSLMODE")
	cfg.DB.MaxConns = v.GetInt32("DB_MAX_CONNS")
	cfg.DB.QueryTimeout = v.GetDuration("DB_QUERY_TIMEOUT")
	cfg.DB.SQLitePath = v.GetString("SQLITE_PATH")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.TTL = v.GetDuration("CACHE_TTL")

	cfg.Code.Length = v.GetInt("CODE_LENGTH")
	cfg.Code.MaxAttempts = v.GetInt("CODE_MAX_ATTEMPTS")
	cfg.Code.SecureRandom = v.GetBool("CODE_SECURE_RANDOM")

	cfg.Clicks.Workers = v.GetInt("CLICK_WORKERS")
	cfg.Clicks.Buffer = v.GetInt("CLICK_BUFFER")
	cfg.Clicks.Retries = v.GetInt("CLICK_RETRIES")

	cfg.RateLimit.RequestsPerSecond = v.GetFloat64("RATE_LIMIT_RPS")
	cfg.RateLimit.BurstSize = v.GetInt("RATE_LIMIT_BURST")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_QUERY_TIMEOUT", 3*time.Second)
	v.SetDefault("SQLITE_PATH", "links.db")

	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("CACHE_TTL", 24*time.Hour)

	v.SetDefault("CODE_LENGTH", 6)
	v.SetDefault("CODE_MAX_ATTEMPTS", 6)

	v.SetDefault("CLICK_WORKERS", 3)
	v.SetDefault("CLICK_BUFFER", 1000)
	v.SetDefault("CLICK_RETRIES", 3)

	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
}

// Validate отклоняет значения, с которыми сервис не сможет работать
func (c *Config) Validate() error {
	var errs []error

	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required for postgres"))
		}
	case DriverSQLite:
		if c.DB.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DB.Driver))
	}

	if c.DB.QueryTimeout <= 0 {
		errs = append(errs, errors.New("DB_QUERY_TIMEOUT must be positive"))
	}
	if c.Code.Length < 1 || c.Code.Length > 12 {
		errs = append(errs, errors.New("CODE_LENGTH must be between 1 and 12"))
	}
	if c.Code.MaxAttempts < 1 {
		errs = append(errs, errors.New("CODE_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Clicks.Workers < 1 {
		errs = append(errs, errors.New("CLICK_WORKERS must be at least 1"))
	}
	if c.Clicks.Buffer < 0 {
		errs = append(errs, errors.New("CLICK_BUFFER must not be negative"))
	}
	if c.Clicks.Retries < 1 {
		errs = append(errs, errors.New("CLICK_RETRIES must be at least 1"))
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}

	return errors.Join(errs...)
}
