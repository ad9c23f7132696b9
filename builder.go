package otpgate

import (
	"errors"
	"time"

	"github.com/MrEthical07/otpgate/password"
	"github.com/redis/go-redis/v9"
)

// Builder collects collaborators and configuration for an Engine.
// A Builder produces at most one Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	stores Stores

	hasher    Hasher
	notifier  Notifier
	codes     CodeGenerator
	issuer    TokenIssuer
	clock     func() time.Time
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs every store not set through WithStores by Redis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStores sets individual stores. Non-nil fields take precedence over the
// Redis-backed defaults, so a deployment can keep pending registrations and
// codes in Redis while accounts and credentials live in SQL.
func (b *Builder) WithStores(stores Stores) *Builder {
	if stores.Pending != nil {
		b.stores.Pending = stores.Pending
	}
	if stores.OTPs != nil {
		b.stores.OTPs = stores.OTPs
	}
	if stores.Accounts != nil {
		b.stores.Accounts = stores.Accounts
	}
	if stores.Credentials != nil {
		b.stores.Credentials = stores.Credentials
	}
	return b
}

// WithHasher overrides the Argon2id hasher derived from Config.Password.
func (b *Builder) WithHasher(h Hasher) *Builder {
	b.hasher = h
	return b
}

// WithNotifier sets the code delivery channel. Required.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithCodeGenerator overrides the crypto/rand code generator.
func (b *Builder) WithCodeGenerator(g CodeGenerator) *Builder {
	b.codes = g
	return b
}

// WithTokenIssuer overrides the opaque credential token issuer.
func (b *Builder) WithTokenIssuer(issuer TokenIssuer) *Builder {
	b.issuer = issuer
	return b
}

// WithClock overrides time.Now for issuance timestamps and expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the coordinators.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stores := b.stores
	if b.redis != nil {
		defaults := newRedisStores(b.redis, cfg.Redis.Prefix, cfg.Registration.RetentionTTL)
		if stores.Pending == nil {
			stores.Pending = defaults.Pending
		}
		if stores.OTPs == nil {
			stores.OTPs = defaults.OTPs
		}
		if stores.Accounts == nil {
			stores.Accounts = defaults.Accounts
		}
		if stores.Credentials == nil {
			stores.Credentials = defaults.Credentials
		}
	}
	if !stores.complete() {
		return nil, errors.New("redis client or a complete store set required")
	}

	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	hasher := b.hasher
	if hasher == nil {
		ph, err := password.NewArgon2(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = ph
	}

	maxPassword := cfg.Registration.MaxPasswordBytes
	if limiter, ok := hasher.(PasswordLimiter); ok {
		if n := limiter.MaxPasswordBytes(); n > 0 && n < maxPassword {
			maxPassword = n
		}
	}

	codes := b.codes
	if codes == nil {
		codes = NewCodeGenerator(nil)
	}
	issuer := b.issuer
	if issuer == nil {
		issuer = OpaqueTokenIssuer()
	}
	now := b.clock
	if now == nil {
		now = time.Now
	}

	dispatcher := newAuditDispatcher(cfg.Audit, b.auditSink)
	metrics := NewMetrics(cfg.Metrics)
	audit := auditor{dispatcher: dispatcher, now: now}

	engine := &Engine{
		config:  cfg,
		audit:   dispatcher,
		metrics: metrics,
		registration: &RegistrationCoordinator{
			cfg:              cfg.Registration,
			notification:     cfg.Notification,
			pending:          stores.Pending,
			otps:             stores.OTPs,
			accounts:         stores.Accounts,
			credentials:      stores.Credentials,
			hasher:           hasher,
			maxPasswordBytes: maxPassword,
			notifier:         b.notifier,
			codes:            codes,
			issuer:           issuer,
			now:              now,
			audit:            audit,
			metrics:          metrics,
		},
		auth: &AuthCoordinator{
			accounts:    stores.Accounts,
			credentials: stores.Credentials,
			hasher:      hasher,
			issuer:      issuer,
			now:         now,
			audit:       audit,
			metrics:     metrics,
		},
	}

	b.built = true

	return engine, nil
}
