package otpgate

import (
	"context"
	"time"
)

// PendingRegistration is an unverified signup awaiting OTP confirmation.
// At most one exists per normalized email; a repeated signup replaces it.
type PendingRegistration struct {
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	UpdatedAt    time.Time
}

// OTPRecord is one issued code. Records are append-only per email and are
// never mutated; a successful verification deletes all of them for the email.
type OTPRecord struct {
	Email    string
	Code     string
	IssuedAt time.Time
}

// Account is a finalized user record, unique on normalized email.
type Account struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Credential is the single bearer token issued for an account.
// Once created it is reused by every later Verify or Login.
type Credential struct {
	AccountID string
	Token     string
	CreatedAt time.Time
}

// Outcome tags a successful operation.
type Outcome uint8

const (
	// OutcomeOTPSent is returned by Signup.
	OutcomeOTPSent Outcome = iota + 1
	// OutcomeOTPResent is returned by Resend.
	OutcomeOTPResent
	// OutcomeVerified is returned by Verify.
	OutcomeVerified
	// OutcomeLoggedIn is returned by Login.
	OutcomeLoggedIn
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOTPSent:
		return "otp_sent"
	case OutcomeOTPResent:
		return "otp_resent"
	case OutcomeVerified:
		return "verified"
	case OutcomeLoggedIn:
		return "logged_in"
	default:
		return "unknown"
	}
}

// SignupResult is the success shape of Signup.
type SignupResult struct {
	Outcome Outcome
	Email   string
}

// ResendResult is the success shape of Resend.
type ResendResult struct {
	Outcome Outcome
	Email   string
}

// VerifyResult is the success shape of Verify.
type VerifyResult struct {
	Outcome   Outcome
	AccountID string
	Token     string
}

// LoginResult is the success shape of Login.
type LoginResult struct {
	Outcome   Outcome
	AccountID string
	Token     string
}

// Hasher is a one-way password hash and verify capability.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// PasswordLimiter is implemented by hashers that reject passwords above a
// length. Signup validates against it so an over-long password is a
// validation error, not a hashing failure.
type PasswordLimiter interface {
	MaxPasswordBytes() int
}

// Notifier delivers a short message to an email address. Implementations
// make a single bounded attempt; retries are driven by the caller via Resend.
type Notifier interface {
	Send(ctx context.Context, email, subject, body string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, email, subject, body string) error

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, email, subject, body string) error {
	return f(ctx, email, subject, body)
}

// TokenIssuer mints a new, unique credential token for an account.
type TokenIssuer interface {
	IssueToken(accountID string) (string, error)
}

// TokenVerifier is optionally implemented by a TokenIssuer whose tokens carry
// a verifiable signature. The credential store stays authoritative:
// Authenticate only uses the verifier to check that a token it can verify
// names the account it is stored for.
type TokenVerifier interface {
	VerifyToken(token string) (accountID string, err error)
}

// PendingRegistrationStore keeps unverified signups keyed by normalized email.
// UpsertPending must be a single atomic insert-or-replace.
type PendingRegistrationStore interface {
	UpsertPending(ctx context.Context, pending PendingRegistration) error
	GetPending(ctx context.Context, email string) (*PendingRegistration, error)
	DeletePending(ctx context.Context, email string) error
}

// OTPStore is an append-only log of issued codes per email.
// LatestOTP returns the record with the greatest IssuedAt, ties broken by
// insertion order, or ErrRecordNotFound.
type OTPStore interface {
	AppendOTP(ctx context.Context, record OTPRecord) error
	LatestOTP(ctx context.Context, email string) (*OTPRecord, error)
	ListOTPs(ctx context.Context, email string) ([]OTPRecord, error)
	DeleteOTPs(ctx context.Context, email string) error
}

// AccountStore keeps finalized accounts. CreateAccountIfAbsent must be a
// single atomic conditional insert that returns ErrAccountExists when an
// account for the email is already present.
type AccountStore interface {
	CreateAccountIfAbsent(ctx context.Context, account Account) error
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByID(ctx context.Context, id string) (*Account, error)
}

// CredentialStore keeps one credential per account. GetOrCreateCredential
// atomically stores candidate when the account has no credential yet and
// returns whichever credential is stored afterwards; created reports whether
// candidate won.
type CredentialStore interface {
	GetOrCreateCredential(ctx context.Context, candidate Credential) (cred *Credential, created bool, err error)
	GetCredentialByToken(ctx context.Context, token string) (*Credential, error)
}

// Stores groups the four persistence capabilities used by the coordinators.
type Stores struct {
	Pending     PendingRegistrationStore
	OTPs        OTPStore
	Accounts    AccountStore
	Credentials CredentialStore
}

func (s Stores) complete() bool {
	return s.Pending != nil && s.OTPs != nil && s.Accounts != nil && s.Credentials != nil
}
