// Command otpgate-server serves the signup, OTP verification and login API
// over HTTP.
//
// Configuration comes from OTPGATE_* environment variables; see config.go.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/httpapi"
	"github.com/MrEthical07/otpgate/jwt"
	"github.com/MrEthical07/otpgate/metrics/export/prometheus"
	"github.com/MrEthical07/otpgate/notify"
	"github.com/MrEthical07/otpgate/password"
	"github.com/MrEthical07/otpgate/storage/sqlstore"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Environ()); err != nil {
		slog.Error("otpgate-server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, environ []string) error {
	cfg, err := loadConfig(environ)
	if err != nil {
		return err
	}

	logger := newLogger(w, cfg.LogLevel)
	slog.SetDefault(logger)

	deps, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	engine, err := buildEngine(cfg, deps, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	opts := httpapi.Options{Logger: logger}
	if cfg.MetricsEnabled {
		metricsHandler, err := prometheus.Handler(engine)
		if err != nil {
			return fmt.Errorf("metrics handler: %w", err)
		}
		opts.Metrics = metricsHandler
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      httpapi.NewRouter(engine, opts),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if deps.sql != nil && cfg.PurgeInterval > 0 && cfg.RetentionTTL > 0 {
		go purgeLoop(ctx, deps.sql, cfg.PurgeInterval, cfg.RetentionTTL, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.Addr),
			slog.String("backend", cfg.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

type backends struct {
	redis redis.UniversalClient
	sql   *sqlstore.Store
}

func openBackends(ctx context.Context, cfg serverConfig) (*backends, error) {
	deps := &backends{}
	if cfg.usesRedis() {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		deps.redis = client
	}
	if cfg.usesSQL() {
		store, err := sqlstore.Open(ctx, cfg.sqlDriver(), cfg.SQLDSN)
		if err != nil {
			if deps.redis != nil {
				_ = deps.redis.Close()
			}
			return nil, err
		}
		deps.sql = store
	}
	return deps, nil
}

func (b *backends) close(logger *slog.Logger) {
	if b.sql != nil {
		if err := b.sql.Close(); err != nil {
			logger.Warn("sql close failed", slog.String("error", err.Error()))
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logger.Warn("redis close failed", slog.String("error", err.Error()))
		}
	}
}

func buildEngine(cfg serverConfig, deps *backends, logger *slog.Logger) (*otpgate.Engine, error) {
	builder := otpgate.New().
		WithConfig(cfg.engineConfig()).
		WithAuditSink(otpgate.NewSlogSink(logger))

	switch cfg.Backend {
	case "redis":
		builder.WithRedis(deps.redis)
	case "sqlite", "postgres":
		builder.WithStores(deps.sql.Stores())
	case "hybrid":
		durable := deps.sql.Stores()
		builder.WithRedis(deps.redis).WithStores(otpgate.Stores{
			Accounts:    durable.Accounts,
			Credentials: durable.Credentials,
		})
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}
	builder.WithNotifier(notifier)

	hasher, err := newHasher(cfg)
	if err != nil {
		return nil, err
	}
	builder.WithHasher(hasher)

	if cfg.JWTSecret != "" {
		issuer, err := jwt.NewIssuer(jwt.Config{
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    []byte(cfg.JWTSecret),
			Issuer:        cfg.JWTIssuer,
			Audience:      cfg.JWTAudience,
		})
		if err != nil {
			return nil, fmt.Errorf("jwt issuer: %w", err)
		}
		builder.WithTokenIssuer(issuer)
	}

	return builder.Build()
}

func newNotifier(cfg serverConfig, logger *slog.Logger) (otpgate.Notifier, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("no SMTP host configured; codes are written to the log")
		return notify.NewLogNotifier(logger), nil
	}
	smtp, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		Timeout:  cfg.SMTPTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp notifier: %w", err)
	}
	return smtp, nil
}

// newHasher returns the configured primary scheme. Hashes written by the
// other scheme still verify, so switching schemes does not lock anyone out.
func newHasher(cfg serverConfig) (otpgate.Hasher, error) {
	pc := cfg.engineConfig().Password
	argon, err := password.NewArgon2(password.Config{
		Memory:      pc.Memory,
		Time:        pc.Time,
		Parallelism: pc.Parallelism,
		SaltLength:  pc.SaltLength,
		KeyLength:   pc.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	if cfg.PasswordScheme == "bcrypt" {
		return password.NewChain(bc, argon), nil
	}
	return password.NewChain(argon, bc), nil
}

func purgeLoop(ctx context.Context, store *sqlstore.Store, every, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, codes, err := store.PurgeStale(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error("purge stale registrations failed", slog.String("error", err.Error()))
				continue
			}
			if pending > 0 || codes > 0 {
				logger.Info("purged stale registrations",
					slog.Int64("pending", pending),
					slog.Int64("codes", codes),
				)
			}
		}
	}
}
