package otpgate

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate/password"
)

// Config holds every tunable of the engine.
//
// Config values are copied into the Engine at Build time and treated as immutable afterwards.
type Config struct {
	Registration RegistrationConfig
	Notification NotificationConfig
	Password     PasswordConfig
	Redis        RedisConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig controls the signup and OTP verification state machine.
type RegistrationConfig struct {
	// CodeTTL is the validity window of an issued code, measured from issuance.
	CodeTTL time.Duration
	// RetentionTTL bounds how long abandoned pending registrations and OTP
	// logs are kept by stores that support expiry. Zero keeps them forever.
	RetentionTTL     time.Duration
	MinPasswordBytes int
	// MaxPasswordBytes caps accepted passwords. A hasher with a tighter
	// limit (bcrypt accepts 72 bytes) lowers it further.
	MaxPasswordBytes int
	MaxNameLength    int
}

/*
====================================
NOTIFICATION CONFIG
====================================
*/

// NotificationConfig controls the content of OTP messages.
type NotificationConfig struct {
	SignupSubject string
	ResendSubject string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters for the default hasher.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
REDIS CONFIG
====================================
*/

// RedisConfig controls key layout of the Redis-backed stores.
type RedisConfig struct {
	Prefix string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// SinkTimeout bounds each sink call through its context. 0 disables the bound.
	SinkTimeout time.Duration
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const (
	defaultCodeTTL          = 5 * time.Minute
	defaultRetentionTTL     = 24 * time.Hour
	defaultMinPasswordBytes = 6
	defaultMaxPasswordBytes = password.DefaultMaxPasswordBytes
	defaultMaxNameLength    = 150
	codeLength              = 6

	defaultAuditSinkTimeout = 2 * time.Second
)

// DefaultConfig returns the baseline configuration: a five minute code
// window, a day of retention for abandoned state, Argon2id at 64 MiB.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Registration: RegistrationConfig{
			CodeTTL:          defaultCodeTTL,
			RetentionTTL:     defaultRetentionTTL,
			MinPasswordBytes: defaultMinPasswordBytes,
			MaxPasswordBytes: defaultMaxPasswordBytes,
			MaxNameLength:    defaultMaxNameLength,
		},
		Notification: NotificationConfig{
			SignupSubject: "Your OTP Code",
			ResendSubject: "Your OTP Code - Resend",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Redis: RedisConfig{
			Prefix: "og",
		},
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: defaultAuditSinkTimeout,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	if c.Registration.CodeTTL <= 0 {
		return errors.New("Registration.CodeTTL must be > 0")
	}
	if c.Registration.RetentionTTL < 0 {
		return errors.New("Registration.RetentionTTL must be >= 0")
	}
	if c.Registration.RetentionTTL > 0 && c.Registration.RetentionTTL < c.Registration.CodeTTL {
		return errors.New("Registration.RetentionTTL must not be shorter than CodeTTL")
	}
	if c.Registration.MinPasswordBytes < 1 {
		return errors.New("Registration.MinPasswordBytes must be >= 1")
	}
	if c.Registration.MaxPasswordBytes < c.Registration.MinPasswordBytes {
		return errors.New("Registration.MaxPasswordBytes must be >= MinPasswordBytes")
	}
	if c.Registration.MaxNameLength < 1 {
		return errors.New("Registration.MaxNameLength must be >= 1")
	}
	if strings.TrimSpace(c.Notification.SignupSubject) == "" {
		return errors.New("Notification.SignupSubject must be set")
	}
	if strings.TrimSpace(c.Notification.ResendSubject) == "" {
		return errors.New("Notification.ResendSubject must be set")
	}
	if strings.ContainsAny(c.Redis.Prefix, " :") {
		return errors.New("Redis.Prefix must not contain spaces or colons")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit.SinkTimeout must be >= 0")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	// every field is a value type
	return cfg
}
