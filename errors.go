package otpgate

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a caller supplies malformed input. No state is changed.
	ErrValidation = errors.New("validation failed")
	// ErrAccountExists is returned when an account is already registered for the email.
	ErrAccountExists = errors.New("account already exists")
	// ErrNoPendingRegistration is returned when no unverified signup exists for the email.
	ErrNoPendingRegistration = errors.New("no pending registration")
	// ErrInvalidCode is returned when no code was issued for the email or the submitted code does not match.
	ErrInvalidCode = errors.New("invalid code")
	// ErrCodeExpired is returned when the most recently issued code is past its validity window.
	ErrCodeExpired = errors.New("code expired")
	// ErrInvalidCredentials is returned for unknown accounts and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when a bearer credential does not resolve to an account.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNotificationFailure is returned when the notifier could not deliver a code.
	// Pending registration and OTP state written before the send is kept.
	ErrNotificationFailure = errors.New("notification delivery failed")
	// ErrCredentialIssuanceFailure is returned when an account exists but its credential could not be issued.
	// The account is not rolled back; Login issues the credential later.
	ErrCredentialIssuanceFailure = errors.New("credential issuance failed")
	// ErrStoreUnavailable wraps storage backend failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrPasswordHashFailure wraps hasher failures during signup.
	ErrPasswordHashFailure = errors.New("password hash failure")
	// ErrCodeGenerationFailure wraps randomness failures during code generation.
	ErrCodeGenerationFailure = errors.New("code generation failure")
	// ErrEngineNotReady is returned by a zero-value or partially wired coordinator.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrRecordNotFound is the store-level sentinel for a missing record.
	// Store implementations return it (possibly wrapped); coordinators translate it.
	ErrRecordNotFound = errors.New("record not found")
)

// ValidationError reports which input field failed validation and why.
// It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ErrorKind is the coarse category of a failure, used by transport layers to map status codes.
type ErrorKind uint8

const (
	// KindNone is reported for a nil error.
	KindNone ErrorKind = iota
	// KindValidation covers malformed input.
	KindValidation
	// KindConflict covers ErrAccountExists.
	KindConflict
	// KindNotFound covers ErrNoPendingRegistration.
	KindNotFound
	// KindUnauthorized covers ErrInvalidCode, ErrCodeExpired, ErrInvalidCredentials and ErrInvalidToken.
	KindUnauthorized
	// KindDependency covers notification, credential issuance and backend failures.
	KindDependency
	// KindInternal covers anything not produced by this package.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindDependency:
		return "dependency"
	default:
		return "internal"
	}
}

// KindOf classifies err into an ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAccountExists):
		return KindConflict
	case errors.Is(err, ErrNoPendingRegistration):
		return KindNotFound
	case errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken):
		return KindUnauthorized
	case errors.Is(err, ErrNotificationFailure),
		errors.Is(err, ErrCredentialIssuanceFailure),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrPasswordHashFailure),
		errors.Is(err, ErrCodeGenerationFailure),
		errors.Is(err, ErrEngineNotReady):
		return KindDependency
	default:
		return KindInternal
	}
}

func storeError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
