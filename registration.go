package otpgate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate/password"
	"github.com/google/uuid"
)

// RegistrationCoordinator runs the signup, resend and verify operations and
// owns the pending-registration state machine:
//
//	Signup  -> pending registration upserted, code appended and sent
//	Resend  -> code appended and sent (pending registration untouched)
//	Verify  -> account created once, credential issued, pending + codes removed
//
// It is safe for concurrent use; all cross-request atomicity is delegated to
// the stores' conditional writes.
type RegistrationCoordinator struct {
	cfg          RegistrationConfig
	notification NotificationConfig

	pending     PendingRegistrationStore
	otps        OTPStore
	accounts    AccountStore
	credentials CredentialStore

	hasher           Hasher
	maxPasswordBytes int
	notifier         Notifier
	codes            CodeGenerator
	issuer           TokenIssuer
	now              func() time.Time

	audit   auditor
	metrics *Metrics
}

func (c *RegistrationCoordinator) ready() bool {
	return c != nil &&
		c.pending != nil && c.otps != nil && c.accounts != nil && c.credentials != nil &&
		c.hasher != nil && c.notifier != nil && c.codes != nil && c.issuer != nil && c.now != nil
}

// Signup registers (or re-registers) an unverified profile for email and
// sends a fresh code to it.
//
// A repeated signup before verification replaces the pending profile; codes
// issued earlier stay stored but are shadowed by the newer one. When the
// notifier fails, the pending registration and the code are kept and
// ErrNotificationFailure is returned so the caller can Resend.
func (c *RegistrationCoordinator) Signup(ctx context.Context, firstName, lastName, email, rawPassword string) (*SignupResult, error) {
	if !c.ready() {
		return nil, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if err := c.validateSignup(firstName, lastName, email, rawPassword); err != nil {
		c.metrics.Inc(MetricSignupFailure)
		c.audit.emit(ctx, auditEventSignup, false, email, "", err, nil)
		return nil, err
	}

	if _, err := c.accounts.GetAccountByEmail(ctx, email); err == nil {
		c.metrics.Inc(MetricSignupFailure)
		c.metrics.Inc(MetricSignupAccountExists)
		c.audit.emit(ctx, auditEventSignup, false, email, "", ErrAccountExists, nil)
		return nil, ErrAccountExists
	} else if !errors.Is(err, ErrRecordNotFound) {
		return nil, c.signupFailure(ctx, email, storeError(err))
	}

	hash, err := c.hasher.Hash(rawPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return nil, c.signupFailure(ctx, email, invalidField("password", "too long"))
		}
		return nil, c.signupFailure(ctx, email, fmt.Errorf("%w: %v", ErrPasswordHashFailure, err))
	}

	if err := c.pending.UpsertPending(ctx, PendingRegistration{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: hash,
		UpdatedAt:    c.now().UTC(),
	}); err != nil {
		return nil, c.signupFailure(ctx, email, storeError(err))
	}

	if err := c.issueCode(ctx, email, c.notification.SignupSubject); err != nil {
		return nil, c.signupFailure(ctx, email, err)
	}

	c.metrics.Inc(MetricSignupSuccess)
	c.audit.emit(ctx, auditEventSignup, true, email, "", nil, nil)

	return &SignupResult{Outcome: OutcomeOTPSent, Email: email}, nil
}

func (c *RegistrationCoordinator) signupFailure(ctx context.Context, email string, err error) error {
	c.metrics.Inc(MetricSignupFailure)
	c.audit.emit(ctx, auditEventSignup, false, email, "", err, nil)
	return err
}

func (c *RegistrationCoordinator) validateSignup(firstName, lastName, email, rawPassword string) error {
	if err := validateName("first_name", firstName, c.cfg.MaxNameLength); err != nil {
		return err
	}
	if err := validateName("last_name", lastName, c.cfg.MaxNameLength); err != nil {
		return err
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	return validatePassword(rawPassword, c.cfg.MinPasswordBytes, c.passwordLimit())
}

func (c *RegistrationCoordinator) passwordLimit() int {
	if c.maxPasswordBytes > 0 {
		return c.maxPasswordBytes
	}
	return c.cfg.MaxPasswordBytes
}

// Resend issues and sends another code for an existing pending registration.
// Earlier codes are not invalidated.
func (c *RegistrationCoordinator) Resend(ctx context.Context, email string) (*ResendResult, error) {
	if !c.ready() {
		return nil, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, c.resendFailure(ctx, email, err)
	}

	if _, err := c.pending.GetPending(ctx, email); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, c.resendFailure(ctx, email, ErrNoPendingRegistration)
		}
		return nil, c.resendFailure(ctx, email, storeError(err))
	}

	if err := c.issueCode(ctx, email, c.notification.ResendSubject); err != nil {
		return nil, c.resendFailure(ctx, email, err)
	}

	c.metrics.Inc(MetricResendSuccess)
	c.audit.emit(ctx, auditEventResend, true, email, "", nil, nil)

	return &ResendResult{Outcome: OutcomeOTPResent, Email: email}, nil
}

func (c *RegistrationCoordinator) resendFailure(ctx context.Context, email string, err error) error {
	c.metrics.Inc(MetricResendFailure)
	c.audit.emit(ctx, auditEventResend, false, email, "", err, nil)
	return err
}

// issueCode appends a new OTP record and makes one delivery attempt. The
// record is persisted before sending so a delivered code is always verifiable.
func (c *RegistrationCoordinator) issueCode(ctx context.Context, email, subject string) error {
	code, err := c.codes.Generate()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeGenerationFailure, err)
	}
	if len(code) != codeLength || strings.Trim(code, "0123456789") != "" {
		return fmt.Errorf("%w: generator returned %d characters", ErrCodeGenerationFailure, len(code))
	}

	if err := c.otps.AppendOTP(ctx, OTPRecord{
		Email:    email,
		Code:     code,
		IssuedAt: c.now().UTC(),
	}); err != nil {
		return storeError(err)
	}
	c.metrics.Inc(MetricCodeIssued)

	if err := c.notifier.Send(ctx, email, subject, c.messageBody(code)); err != nil {
		c.metrics.Inc(MetricNotificationFailure)
		return fmt.Errorf("%w: %v", ErrNotificationFailure, err)
	}
	return nil
}

func (c *RegistrationCoordinator) messageBody(code string) string {
	return fmt.Sprintf("Your OTP code is %s. It expires in %s.", code, humanDuration(c.cfg.CodeTTL))
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	s := int(d.Round(time.Second) / time.Second)
	if s == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", s)
}

// Verify checks code against the most recently issued code for email and,
// on success, promotes the pending registration into an account and returns
// its credential.
//
// Check order: latest code exists and matches, latest code not expired,
// pending registration exists, account created atomically. Only the latest
// code is consulted; an older unexpired code is never accepted once a newer
// one was issued. Losing a concurrent creation race yields ErrAccountExists.
//
// Cleanup of the pending registration and every code for email happens after
// account creation, also when credential issuance fails. Cleanup errors are
// audited, not returned: the account already exists at that point.
func (c *RegistrationCoordinator) Verify(ctx context.Context, email, code string) (*VerifyResult, error) {
	if !c.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		c.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}()

	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if err := validateEmail(email); err != nil {
		return nil, c.verifyFailure(ctx, email, MetricVerifyFailure, err)
	}
	if err := validateCode(code); err != nil {
		return nil, c.verifyFailure(ctx, email, MetricVerifyFailure, err)
	}

	latest, err := c.otps.LatestOTP(ctx, email)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, c.verifyFailure(ctx, email, MetricVerifyInvalidCode, ErrInvalidCode)
		}
		return nil, c.verifyFailure(ctx, email, MetricVerifyFailure, storeError(err))
	}

	if subtle.ConstantTimeCompare([]byte(latest.Code), []byte(code)) != 1 {
		return nil, c.verifyFailure(ctx, email, MetricVerifyInvalidCode, ErrInvalidCode)
	}

	if c.now().After(latest.IssuedAt.Add(c.cfg.CodeTTL)) {
		return nil, c.verifyFailure(ctx, email, MetricVerifyExpired, ErrCodeExpired)
	}

	pending, err := c.pending.GetPending(ctx, email)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, c.verifyFailure(ctx, email, MetricVerifyFailure, ErrNoPendingRegistration)
		}
		return nil, c.verifyFailure(ctx, email, MetricVerifyFailure, storeError(err))
	}

	account := Account{
		ID:           uuid.NewString(),
		FirstName:    pending.FirstName,
		LastName:     pending.LastName,
		Email:        email,
		PasswordHash: pending.PasswordHash,
		CreatedAt:    c.now().UTC(),
	}
	if err := c.accounts.CreateAccountIfAbsent(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, c.verifyFailure(ctx, email, MetricVerifyConflict, ErrAccountExists)
		}
		return nil, c.verifyFailure(ctx, email, MetricVerifyFailure, storeError(err))
	}

	cred, _, credErr := getOrCreateCredential(ctx, c.credentials, c.issuer, account.ID, c.now, c.metrics)

	c.cleanup(ctx, email, account.ID)

	if credErr != nil {
		c.metrics.Inc(MetricVerifyFailure)
		c.audit.emit(ctx, auditEventVerify, false, email, account.ID, credErr, reasonMetadata("credential_issuance"))
		return nil, credErr
	}

	c.metrics.Inc(MetricVerifySuccess)
	c.audit.emit(ctx, auditEventVerify, true, email, account.ID, nil, nil)

	return &VerifyResult{Outcome: OutcomeVerified, AccountID: account.ID, Token: cred.Token}, nil
}

func (c *RegistrationCoordinator) verifyFailure(ctx context.Context, email string, metric MetricID, err error) error {
	c.metrics.Inc(metric)
	c.audit.emit(ctx, auditEventVerify, false, email, "", err, nil)
	return err
}

func (c *RegistrationCoordinator) cleanup(ctx context.Context, email, accountID string) {
	if err := c.pending.DeletePending(ctx, email); err != nil && !errors.Is(err, ErrRecordNotFound) {
		c.metrics.Inc(MetricCleanupFailure)
		c.audit.emit(ctx, auditEventCleanup, false, email, accountID, err, reasonMetadata("pending_delete"))
	}
	if err := c.otps.DeleteOTPs(ctx, email); err != nil && !errors.Is(err, ErrRecordNotFound) {
		c.metrics.Inc(MetricCleanupFailure)
		c.audit.emit(ctx, auditEventCleanup, false, email, accountID, err, reasonMetadata("otp_delete"))
	}
}

// getOrCreateCredential returns the account's existing credential or stores a
// freshly issued one. Concurrent callers for the same account all observe
// the single stored token.
func getOrCreateCredential(
	ctx context.Context,
	store CredentialStore,
	issuer TokenIssuer,
	accountID string,
	now func() time.Time,
	metrics *Metrics,
) (*Credential, bool, error) {
	token, err := issuer.IssueToken(accountID)
	if err != nil {
		metrics.Inc(MetricCredentialIssuanceFailure)
		return nil, false, fmt.Errorf("%w: %v", ErrCredentialIssuanceFailure, err)
	}

	cred, created, err := store.GetOrCreateCredential(ctx, Credential{
		AccountID: accountID,
		Token:     token,
		CreatedAt: now().UTC(),
	})
	if err != nil {
		metrics.Inc(MetricCredentialIssuanceFailure)
		return nil, false, fmt.Errorf("%w: %v", ErrCredentialIssuanceFailure, err)
	}
	if created {
		metrics.Inc(MetricCredentialIssued)
	}
	return cred, created, nil
}
