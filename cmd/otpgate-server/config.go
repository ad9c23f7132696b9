package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/caarlos0/env/v11"
)

const envPrefix = "OTPGATE_"

// serverConfig is read from OTPGATE_* environment variables.
type serverConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	// Backend is one of redis, sqlite, postgres or hybrid. Hybrid keeps
	// pending registrations and codes in Redis and accounts in SQL.
	Backend     string `env:"BACKEND" envDefault:"redis"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPass   string `env:"REDIS_PASSWORD"`
	RedisDB     int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"og"`
	SQLDriver   string `env:"SQL_DRIVER" envDefault:"sqlite"`
	SQLDSN      string `env:"SQL_DSN" envDefault:"file:otpgate.db?_pragma=busy_timeout(5000)"`

	CodeTTL       time.Duration `env:"CODE_TTL" envDefault:"5m"`
	RetentionTTL  time.Duration `env:"RETENTION_TTL" envDefault:"24h"`
	PurgeInterval time.Duration `env:"PURGE_INTERVAL" envDefault:"1h"`

	PasswordScheme string `env:"PASSWORD_SCHEME" envDefault:"argon2"`
	BcryptCost     int    `env:"BCRYPT_COST" envDefault:"0"`

	JWTSecret   string `env:"JWT_SECRET"`
	JWTIssuer   string `env:"JWT_ISSUER" envDefault:"otpgate"`
	JWTAudience string `env:"JWT_AUDIENCE"`

	SMTPHost     string        `env:"SMTP_HOST"`
	SMTPPort     int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
	SMTPFrom     string        `env:"SMTP_FROM"`
	SMTPFromName string        `env:"SMTP_FROM_NAME"`
	SMTPTimeout  time.Duration `env:"SMTP_TIMEOUT" envDefault:"10s"`

	AuditEnabled     bool          `env:"AUDIT_ENABLED" envDefault:"true"`
	AuditSinkTimeout time.Duration `env:"AUDIT_SINK_TIMEOUT" envDefault:"2s"`
	MetricsEnabled   bool          `env:"METRICS_ENABLED" envDefault:"true"`
}

// loadConfig parses environ (KEY=VALUE pairs, as os.Environ returns them).
func loadConfig(environ []string) (serverConfig, error) {
	var cfg serverConfig
	opts := env.Options{
		Prefix:      envPrefix,
		Environment: env.ToMap(environ),
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return serverConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.PasswordScheme = strings.ToLower(strings.TrimSpace(cfg.PasswordScheme))
	if err := cfg.validate(); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

func (c serverConfig) validate() error {
	switch c.Backend {
	case "redis", "sqlite", "postgres", "hybrid":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.usesSQL() && c.sqlDriver() == "" {
		return fmt.Errorf("unknown sql driver %q", c.SQLDriver)
	}
	switch c.PasswordScheme {
	case "argon2", "bcrypt":
	default:
		return fmt.Errorf("unknown password scheme %q", c.PasswordScheme)
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" {
		return errors.New("OTPGATE_SMTP_FROM required when OTPGATE_SMTP_HOST is set")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be > 0")
	}
	return nil
}

func (c serverConfig) usesRedis() bool {
	return c.Backend == "redis" || c.Backend == "hybrid"
}

func (c serverConfig) usesSQL() bool {
	return c.Backend != "redis"
}

// sqlDriver returns the database/sql driver name for the configured backend.
func (c serverConfig) sqlDriver() string {
	switch c.Backend {
	case "sqlite":
		return "sqlite"
	case "postgres":
		return "pgx"
	}
	switch strings.ToLower(c.SQLDriver) {
	case "sqlite":
		return "sqlite"
	case "postgres", "pgx":
		return "pgx"
	}
	return ""
}

// engineConfig maps the service settings onto the library Config.
func (c serverConfig) engineConfig() otpgate.Config {
	cfg := otpgate.DefaultConfig()
	cfg.Registration.CodeTTL = c.CodeTTL
	cfg.Registration.RetentionTTL = c.RetentionTTL
	cfg.Redis.Prefix = c.RedisPrefix
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Audit.SinkTimeout = c.AuditSinkTimeout
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	return cfg
}
