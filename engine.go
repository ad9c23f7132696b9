package otpgate

import (
	"context"
)

// Engine is the assembled service: a RegistrationCoordinator and an
// AuthCoordinator sharing stores, audit dispatch and metrics.
//
// Construct it once at startup with [Builder.Build] and release it with Close
// at shutdown. All methods are safe for concurrent use.
type Engine struct {
	config       Config
	registration *RegistrationCoordinator
	auth         *AuthCoordinator
	audit        *auditDispatcher
	metrics      *Metrics
}

// Registration returns the coordinator for signup, resend and verify.
func (e *Engine) Registration() *RegistrationCoordinator {
	if e == nil {
		return nil
	}
	return e.registration
}

// Auth returns the coordinator for login and bearer authentication.
func (e *Engine) Auth() *AuthCoordinator {
	if e == nil {
		return nil
	}
	return e.auth
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Signup delegates to [RegistrationCoordinator.Signup].
func (e *Engine) Signup(ctx context.Context, firstName, lastName, email, password string) (*SignupResult, error) {
	return e.Registration().Signup(ctx, firstName, lastName, email, password)
}

// Resend delegates to [RegistrationCoordinator.Resend].
func (e *Engine) Resend(ctx context.Context, email string) (*ResendResult, error) {
	return e.Registration().Resend(ctx, email)
}

// Verify delegates to [RegistrationCoordinator.Verify].
func (e *Engine) Verify(ctx context.Context, email, code string) (*VerifyResult, error) {
	return e.Registration().Verify(ctx, email, code)
}

// Login delegates to [AuthCoordinator.Login].
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	return e.Auth().Login(ctx, email, password)
}

// Authenticate delegates to [AuthCoordinator.Authenticate].
func (e *Engine) Authenticate(ctx context.Context, token string) (*Account, error) {
	return e.Auth().Authenticate(ctx, token)
}

// Close flushes pending audit events. Stores and clients passed to the
// Builder are owned by the caller and are not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}
