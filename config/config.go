package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

const (
	defaultHTTPAddr          = ":8080"
	defaultDSN               = "bike_user:bike1234@tcp(127.0.0.1:3306)/bike_rental?charset=utf8mb4&parseTime=True&loc=UTC"
	defaultRetryAttempts     = 3
	defaultRetryInterval     = 100 * time.Millisecond
	defaultWriteTimeout      = 10 * time.Second
	defaultReconcileSchedule = "*/5 * * * *"
	defaultReconcileGrace    = 2 * time.Minute
	defaultBikeCacheTTL      = 30 * time.Second
)

// Config 服務設定：YAML 檔 (可選) 之後再以環境變數覆蓋
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		GinMode string `yaml:"gin_mode"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"` // mysql | memory
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"bike_cache_ttl"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Rental struct {
		RetryAttempts int           `yaml:"retry_attempts"`
		RetryInterval time.Duration `yaml:"retry_interval"`
		WriteTimeout  time.Duration `yaml:"write_timeout"`
	} `yaml:"rental"`
	Reconcile struct {
		Schedule string        `yaml:"schedule"`
		Grace    time.Duration `yaml:"grace"`
	} `yaml:"reconcile"`
}

func defaults() Config {
	var cfg Config
	cfg.Server.Address = defaultHTTPAddr
	cfg.Server.GinMode = "release"
	cfg.Database.Driver = DriverMySQL
	cfg.Database.DSN = defaultDSN
	cfg.Redis.TTL = defaultBikeCacheTTL
	cfg.Rental.RetryAttempts = defaultRetryAttempts
	cfg.Rental.RetryInterval = defaultRetryInterval
	cfg.Rental.WriteTimeout = defaultWriteTimeout
	cfg.Reconcile.Schedule = defaultReconcileSchedule
	cfg.Reconcile.Grace = defaultReconcileGrace
	return cfg
}

// Load reads CONFIG_FILE when set, then applies environment overrides.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Address, "HTTP_ADDR")
	setString(&cfg.Server.GinMode, "GIN_MODE")
	setString(&cfg.Database.Driver, "STORE_DRIVER")
	setString(&cfg.Database.DSN, "DATABASE_DSN")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Reconcile.Schedule, "RECONCILE_SCHEDULE")

	if err := setInt(&cfg.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&cfg.Rental.RetryAttempts, "RENTAL_RETRY_ATTEMPTS"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Rental.RetryInterval, "RENTAL_RETRY_INTERVAL"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Rental.WriteTimeout, "RENTAL_WRITE_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Reconcile.Grace, "RECONCILE_GRACE"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Redis.TTL, "BIKE_CACHE_TTL"); err != nil {
		return err
	}
	return nil
}

// Validate 檢查必要設定
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid GIN_MODE %q: must be 'debug', 'release' or 'test'", c.Server.GinMode)
	}
	if c.Database.Driver != DriverMySQL && c.Database.Driver != DriverMemory {
		return fmt.Errorf("invalid STORE_DRIVER %q: must be 'mysql' or 'memory'", c.Database.Driver)
	}
	if c.Rental.RetryAttempts < 1 {
		return fmt.Errorf("RENTAL_RETRY_ATTEMPTS must be at least 1, got %d", c.Rental.RetryAttempts)
	}
	if c.Reconcile.Grace <= c.Rental.WriteTimeout {
		return fmt.Errorf("RECONCILE_GRACE (%s) must exceed RENTAL_WRITE_TIMEOUT (%s)", c.Reconcile.Grace, c.Rental.WriteTimeout)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}
