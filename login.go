package otpgate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// AuthCoordinator authenticates existing accounts by email and password and
// resolves bearer credentials back to accounts.
type AuthCoordinator struct {
	accounts    AccountStore
	credentials CredentialStore
	hasher      Hasher
	issuer      TokenIssuer
	now         func() time.Time

	audit   auditor
	metrics *Metrics

	dummyOnce sync.Once
	dummyHash string
}

func (c *AuthCoordinator) ready() bool {
	return c != nil && c.accounts != nil && c.credentials != nil && c.hasher != nil && c.issuer != nil && c.now != nil
}

// Login checks password against the stored hash for email and returns the
// account's credential, creating it on first use. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (c *AuthCoordinator) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if !c.ready() {
		return nil, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, c.loginFailure(ctx, email, "", err, "")
	}
	if password == "" {
		return nil, c.loginFailure(ctx, email, "", invalidField("password", "required"), "")
	}

	account, err := c.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, c.loginFailure(ctx, email, "", storeError(err), "")
		}
		c.burnHash(password)
		return nil, c.loginFailure(ctx, email, "", ErrInvalidCredentials, "unknown_account")
	}

	ok, err := c.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, c.loginFailure(ctx, email, account.ID, ErrInvalidCredentials, "hash_unreadable")
	}
	if !ok {
		return nil, c.loginFailure(ctx, email, account.ID, ErrInvalidCredentials, "password_mismatch")
	}

	cred, _, err := getOrCreateCredential(ctx, c.credentials, c.issuer, account.ID, c.now, c.metrics)
	if err != nil {
		return nil, c.loginFailure(ctx, email, account.ID, err, "credential_issuance")
	}

	c.metrics.Inc(MetricLoginSuccess)
	c.audit.emit(ctx, auditEventLogin, true, email, account.ID, nil, nil)

	return &LoginResult{Outcome: OutcomeLoggedIn, AccountID: account.ID, Token: cred.Token}, nil
}

func (c *AuthCoordinator) loginFailure(ctx context.Context, email, accountID string, err error, reason string) error {
	c.metrics.Inc(MetricLoginFailure)
	var metadata func() map[string]string
	if reason != "" {
		metadata = reasonMetadata(reason)
	}
	c.audit.emit(ctx, auditEventLogin, false, email, accountID, err, metadata)
	return err
}

// burnHash spends roughly one password verification so that unknown
// accounts are not distinguishable by response time.
func (c *AuthCoordinator) burnHash(password string) {
	c.dummyOnce.Do(func() {
		c.dummyHash, _ = c.hasher.Hash("otpgate-enumeration-guard")
	})
	if c.dummyHash != "" {
		_, _ = c.hasher.Verify(password, c.dummyHash)
	}
}

// Authenticate resolves a bearer credential to its account.
func (c *AuthCoordinator) Authenticate(ctx context.Context, token string) (*Account, error) {
	if !c.ready() {
		return nil, ErrEngineNotReady
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, c.authenticateFailure(ctx, "", ErrInvalidToken, "empty_token")
	}

	cred, err := c.credentials.GetCredentialByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, c.authenticateFailure(ctx, "", ErrInvalidToken, "unknown_token")
		}
		return nil, c.authenticateFailure(ctx, "", storeError(err), "")
	}

	// The store decides. Stored tokens from an earlier issuer or signing key
	// stay valid; a token the current issuer does verify must name the
	// account it is stored for.
	if verifier, ok := c.issuer.(TokenVerifier); ok {
		if sub, err := verifier.VerifyToken(token); err == nil && sub != cred.AccountID {
			return nil, c.authenticateFailure(ctx, cred.AccountID, ErrInvalidToken, "subject_mismatch")
		}
	}

	account, err := c.accounts.GetAccountByID(ctx, cred.AccountID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, c.authenticateFailure(ctx, cred.AccountID, ErrInvalidToken, "orphan_credential")
		}
		return nil, c.authenticateFailure(ctx, cred.AccountID, storeError(err), "")
	}

	return account, nil
}

func (c *AuthCoordinator) authenticateFailure(ctx context.Context, accountID string, err error, reason string) error {
	c.metrics.Inc(MetricAuthenticateFailure)
	var metadata func() map[string]string
	if reason != "" {
		metadata = reasonMetadata(reason)
	}
	c.audit.emit(ctx, auditEventAuthenticate, false, "", accountID, err, metadata)
	return err
}
