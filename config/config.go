// Package config loads settings from env files and the environment.
// Environment variables win over file values.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig
	DB         DBConfig
	HTTP       HTTPConfig
	Generation GenerationConfig
	Scheduler  SchedulerConfig
	Redis      RedisConfig
}

type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// DBConfig selects and addresses the store. Driver is "sqlite" or "postgres".
type DBConfig struct {
	Driver      string
	Path        string // SQLite file
	DatabaseURL string // PostgreSQL; wins over the discrete fields below
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString returns DatabaseURL when set, otherwise DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN builds a postgres:// URL, escaping the credentials.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

type HTTPConfig struct {
	Host string
	Port int
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GenerationConfig feeds the ExecutionContext of scheduled and manual runs.
type GenerationConfig struct {
	Timezone          string
	Actor             string
	CurrencyPrecision int
	Concurrency       int
	BillPrefix        string
}

// Location resolves Timezone.
func (c GenerationConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SchedulerConfig hours are local to GENERATION_TIMEZONE.
type SchedulerConfig struct {
	Enabled     bool
	Interval    time.Duration
	BillingHour int
	PayrollHour int
}

// RedisConfig enables summary publishing when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// Load reads the optional env files (default ".env"), then the environment.
// Missing files are not an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			Name:     v.GetString("APP_NAME"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(v.GetString("DB_DRIVER")),
			Path:        v.GetString("DB_PATH"),
			DatabaseURL: v.GetString("DATABASE_URL"),
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetInt("DB_PORT"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			DBName:      v.GetString("DB_NAME"),
			SSLMode:     v.GetString("DB_SSLMODE"),
		},
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		Generation: GenerationConfig{
			Timezone:          v.GetString("GENERATION_TIMEZONE"),
			Actor:             v.GetString("GENERATION_ACTOR"),
			CurrencyPrecision: v.GetInt("GENERATION_CURRENCY_PRECISION"),
			Concurrency:       v.GetInt("GENERATION_CONCURRENCY"),
			BillPrefix:        v.GetString("GENERATION_BILL_PREFIX"),
		},
		Scheduler: SchedulerConfig{
			Enabled:     v.GetBool("SCHEDULER_ENABLED"),
			Interval:    v.GetDuration("SCHEDULER_INTERVAL"),
			BillingHour: v.GetInt("SCHEDULER_BILLING_HOUR"),
			PayrollHour: v.GetInt("SCHEDULER_PAYROLL_HOUR"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Channel:  v.GetString("REDIS_CHANNEL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "obligation-engine")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_PATH", "obligations.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "obligations")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)

	v.SetDefault("GENERATION_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("GENERATION_ACTOR", "system")
	v.SetDefault("GENERATION_CURRENCY_PRECISION", 2)
	v.SetDefault("GENERATION_CONCURRENCY", 1)
	v.SetDefault("GENERATION_BILL_PREFIX", "")

	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SCHEDULER_INTERVAL", "1h")
	v.SetDefault("SCHEDULER_BILLING_HOUR", 0)
	v.SetDefault("SCHEDULER_PAYROLL_HOUR", 23)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CHANNEL", "obligations.summary")
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: DB_DRIVER must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.Generation.CurrencyPrecision < 0 {
		return fmt.Errorf("config: GENERATION_CURRENCY_PRECISION must not be negative")
	}
	if c.Generation.Concurrency < 1 {
		c.Generation.Concurrency = 1
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("config: SCHEDULER_INTERVAL must be positive")
	}
	for _, h := range []int{c.Scheduler.BillingHour, c.Scheduler.PayrollHour} {
		if h < 0 || h > 23 {
			return fmt.Errorf("config: scheduler hours must be within 0-23, got %d", h)
		}
	}
	if _, err := c.Generation.Location(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
