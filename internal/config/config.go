package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/JeremyLoy/config"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config is read from the environment. Durations are kept as strings and
// parsed by Validate.
type Config struct {
	Addr      string `config:"ADDR"`
	LogLevel  string `config:"LOG_LEVEL"`
	LogFormat string `config:"LOG_FORMAT"`

	StoreDriver  string `config:"STORE_DRIVER"`
	DatabaseURL  string `config:"DATABASE_URL"`
	SQLitePath   string `config:"SQLITE_PATH"`
	RedisAddr    string `config:"REDIS_ADDR"`
	StoreTimeout string `config:"STORE_TIMEOUT"`

	TickRate     int    `config:"TICK_RATE"`
	MaxScore     int    `config:"MAX_SCORE"`
	RejoinWindow string `config:"REJOIN_WINDOW"`
	CleanupDelay string `config:"CLEANUP_DELAY"`
	PingInterval string `config:"PING_INTERVAL"`

	// Space separated, e.g. "localhost:* 127.0.0.1:*".
	OriginPatterns []string `config:"ORIGIN_PATTERNS"`

	storeTimeout time.Duration
	rejoinWindow time.Duration
	cleanupDelay time.Duration
	pingInterval time.Duration
}

func Default() Config {
	return Config{
		Addr:         ":8080",
		LogLevel:     "info",
		LogFormat:    "json",
		StoreDriver:  DriverMemory,
		SQLitePath:   "pong.db",
		RedisAddr:    "localhost:6379",
		StoreTimeout: "2s",
		TickRate:     60,
		MaxScore:     5,
		RejoinWindow: "30s",
		CleanupDelay: "5s",
		PingInterval: "20s",
	}
}

// Load applies .env (if present) and then the process environment on top of
// Default.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	if err := config.FromEnv().To(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("ADDR must not be empty"))
	}
	switch c.StoreDriver {
	case DriverMemory, DriverRedis:
	case DriverSQLite:
		if c.SQLitePath == "" {
			err = multierr.Append(err, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			err = multierr.Append(err, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.TickRate < 1 || c.TickRate > 240 {
		err = multierr.Append(err, fmt.Errorf("TICK_RATE %d out of range 1..240", c.TickRate))
	}
	if c.MaxScore < 1 {
		err = multierr.Append(err, fmt.Errorf("MAX_SCORE %d must be positive", c.MaxScore))
	}
	var perr error
	c.storeTimeout, perr = positive("STORE_TIMEOUT", c.StoreTimeout)
	err = multierr.Append(err, perr)
	c.rejoinWindow, perr = positive("REJOIN_WINDOW", c.RejoinWindow)
	err = multierr.Append(err, perr)
	c.cleanupDelay, perr = positive("CLEANUP_DELAY", c.CleanupDelay)
	err = multierr.Append(err, perr)
	c.pingInterval, perr = positive("PING_INTERVAL", c.PingInterval)
	err = multierr.Append(err, perr)
	return err
}

func positive(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}

func (c Config) StoreTimeoutDuration() time.Duration { return c.storeTimeout }
func (c Config) RejoinWindowDuration() time.Duration { return c.rejoinWindow }
func (c Config) CleanupDelayDuration() time.Duration { return c.cleanupDelay }
func (c Config) PingIntervalDuration() time.Duration { return c.pingInterval }
