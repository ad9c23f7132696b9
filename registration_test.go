package otpgate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/otpgate/password"
)

func TestSignupVerifyLoginReusesToken(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Signup(ctx, "A", "B", "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if res.Outcome != OutcomeOTPSent || res.Email != "a@x.com" {
		t.Fatalf("unexpected signup result: %+v", res)
	}

	msgs := e.outbox.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Subject != "Your OTP Code" {
		t.Fatalf("unexpected subject %q", msgs[0].Subject)
	}
	if msgs[0].Body != "Your OTP code is 123456. It expires in 5 minutes." {
		t.Fatalf("unexpected body %q", msgs[0].Body)
	}

	verified, err := e.Verify(ctx, "a@x.com", "123456")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if verified.Outcome != OutcomeVerified || verified.Token == "" || verified.AccountID == "" {
		t.Fatalf("unexpected verify result: %+v", verified)
	}

	login, err := e.Login(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if login.Outcome != OutcomeLoggedIn {
		t.Fatalf("expected OutcomeLoggedIn, got %v", login.Outcome)
	}
	if login.Token != verified.Token {
		t.Fatalf("expected login to reuse token %q, got %q", verified.Token, login.Token)
	}
	if login.AccountID != verified.AccountID {
		t.Fatalf("account id mismatch: %q vs %q", login.AccountID, verified.AccountID)
	}
}

func TestVerifyAfterWindowExpires(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	e.clock.Advance(301 * time.Second)

	_, err := e.Verify(ctx, "a@x.com", "123456")
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
	if !e.hasPending(t, "a@x.com") {
		t.Fatal("expired verify must not remove the pending registration")
	}
}

func TestVerifyAtWindowBoundaryAccepted(t *testing.T) {
	e := newTestEngine(t)

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	e.clock.Advance(5 * time.Minute)

	if _, err := e.Verify(context.Background(), "a@x.com", "123456"); err != nil {
		t.Fatalf("expected code to be valid at exactly the window edge, got %v", err)
	}
}

func TestResendNewestCodeAccepted(t *testing.T) {
	e := newTestEngine(t, withCodes("111111", "222222"))
	ctx := context.Background()

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	e.clock.Advance(time.Second)

	res, err := e.Resend(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	if res.Outcome != OutcomeOTPResent {
		t.Fatalf("expected OutcomeOTPResent, got %v", res.Outcome)
	}
	msgs := e.outbox.messages()
	if len(msgs) != 2 || msgs[1].Subject != "Your OTP Code - Resend" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	if _, err := e.Verify(ctx, "a@x.com", "111111"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected superseded code to be rejected, got %v", err)
	}
	if _, err := e.Verify(ctx, "a@x.com", "222222"); err != nil {
		t.Fatalf("expected newest code to verify, got %v", err)
	}
}

func TestResendKeepsPendingProfile(t *testing.T) {
	e := newTestEngine(t, withCodes("111111", "222222"))
	ctx := context.Background()

	e.mustSignup(t, "Ada", "Lovelace", "ada@example.com", "secret1")
	before, err := e.stores.Pending.GetPending(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}

	e.clock.Advance(time.Minute)
	if _, err := e.Resend(ctx, "ada@example.com"); err != nil {
		t.Fatalf("Resend failed: %v", err)
	}

	after, err := e.stores.Pending.GetPending(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if *before != *after {
		t.Fatalf("resend changed pending registration: %+v -> %+v", before, after)
	}
	if got := e.otpCount(t, "ada@example.com"); got != 2 {
		t.Fatalf("expected 2 codes, got %d", got)
	}
}

func TestResendWithoutSignup(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Resend(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNoPendingRegistration) {
		t.Fatalf("expected ErrNoPendingRegistration, got %v", err)
	}
	if got := e.otpCount(t, "nobody@example.com"); got != 0 {
		t.Fatalf("expected no codes, got %d", got)
	}
	if len(e.outbox.messages()) != 0 {
		t.Fatal("expected no message to be sent")
	}
}

func TestSignupStoresOnePendingAndOneCode(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.mustSignup(t, "A", "B", "  Mixed@Example.COM ", "secret1")

	pending, err := e.stores.Pending.GetPending(ctx, "mixed@example.com")
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if pending.PasswordHash == "" || pending.PasswordHash == "secret1" {
		t.Fatalf("expected hashed password, got %q", pending.PasswordHash)
	}
	records, err := e.stores.OTPs.ListOTPs(ctx, "mixed@example.com")
	if err != nil {
		t.Fatalf("ListOTPs: %v", err)
	}
	if len(records) != 1 || len(records[0].Code) != 6 {
		t.Fatalf("expected one 6-digit code, got %+v", records)
	}
}

func TestRepeatedSignupReplacesPendingProfile(t *testing.T) {
	e := newTestEngine(t, withCodes("111111", "222222"))
	ctx := context.Background()

	e.mustSignup(t, "First", "Try", "a@x.com", "secret1")
	e.clock.Advance(time.Second)
	e.mustSignup(t, "Second", "Try", "a@x.com", "secret2")

	pending, err := e.stores.Pending.GetPending(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if pending.FirstName != "Second" {
		t.Fatalf("expected replaced profile, got %+v", pending)
	}
	if got := e.otpCount(t, "a@x.com"); got != 2 {
		t.Fatalf("expected both codes retained, got %d", got)
	}

	if _, err := e.Verify(ctx, "a@x.com", "111111"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected shadowed code to fail, got %v", err)
	}
	if _, err := e.Verify(ctx, "a@x.com", "222222"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if _, err := e.Login(ctx, "a@x.com", "secret2"); err != nil {
		t.Fatalf("expected second password to be active, got %v", err)
	}
	if _, err := e.Login(ctx, "a@x.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected first password to be replaced, got %v", err)
	}
}

func TestSignupForExistingAccount(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	if _, err := e.Verify(ctx, "a@x.com", "123456"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	_, err := e.Signup(ctx, "C", "D", "A@X.com", "another1")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if e.hasPending(t, "a@x.com") {
		t.Fatal("signup for an existing account must not create a pending registration")
	}
}

func TestSignupNotificationFailureKeepsState(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.outbox.setFailure(errors.New("smtp down"))

	_, err := e.Signup(ctx, "A", "B", "a@x.com", "secret1")
	if !errors.Is(err, ErrNotificationFailure) {
		t.Fatalf("expected ErrNotificationFailure, got %v", err)
	}
	if KindOf(err) != KindDependency {
		t.Fatalf("expected dependency kind, got %v", KindOf(err))
	}
	if !e.hasPending(t, "a@x.com") {
		t.Fatal("pending registration must survive a failed send")
	}
	if got := e.otpCount(t, "a@x.com"); got != 1 {
		t.Fatalf("expected the code to be kept, got %d", got)
	}

	e.outbox.setFailure(nil)
	if _, err := e.Resend(ctx, "a@x.com"); err != nil {
		t.Fatalf("Resend after failed send: %v", err)
	}
	if _, err := e.Verify(ctx, "a@x.com", "123456"); err != nil {
		t.Fatalf("Verify after resend: %v", err)
	}
}

func TestResendNotificationFailure(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	e.outbox.setFailure(errors.New("smtp down"))

	if _, err := e.Resend(ctx, "a@x.com"); !errors.Is(err, ErrNotificationFailure) {
		t.Fatalf("expected ErrNotificationFailure, got %v", err)
	}
	if got := e.otpCount(t, "a@x.com"); got != 2 {
		t.Fatalf("expected the resent code to be persisted, got %d", got)
	}
}

func TestVerifyFailures(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustSignup(t, "A", "B", "a@x.com", "secret1")

	tests := []struct {
		name  string
		email string
		code  string
		want  error
	}{
		{name: "wrong code", email: "a@x.com", code: "654321", want: ErrInvalidCode},
		{name: "prefix of code", email: "a@x.com", code: "12345", want: ErrInvalidCode},
		{name: "no code issued", email: "b@x.com", code: "123456", want: ErrInvalidCode},
		{name: "empty code", email: "a@x.com", code: "   ", want: ErrValidation},
		{name: "code too long", email: "a@x.com", code: "1234567", want: ErrValidation},
		{name: "bad email", email: "not-an-email", code: "123456", want: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Verify(ctx, tt.email, tt.code)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if !e.hasPending(t, "a@x.com") || e.otpCount(t, "a@x.com") != 1 {
		t.Fatal("failed verifications must not change state")
	}
}

func TestVerifyTrimsCodeAndNormalizesEmail(t *testing.T) {
	e := newTestEngine(t)

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	if _, err := e.Verify(context.Background(), "  A@X.COM", " 123456\n"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
}

func TestVerifyWithoutPendingRegistration(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	if err := e.stores.Pending.DeletePending(ctx, "a@x.com"); err != nil {
		t.Fatalf("DeletePending: %v", err)
	}

	_, err := e.Verify(ctx, "a@x.com", "123456")
	if !errors.Is(err, ErrNoPendingRegistration) {
		t.Fatalf("expected ErrNoPendingRegistration, got %v", err)
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not-found kind, got %v", KindOf(err))
	}
}

func TestVerifyCleansUpAllState(t *testing.T) {
	e := newTestEngine(t, withCodes("111111", "222222", "333333"))
	ctx := context.Background()

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	e.clock.Advance(time.Second)
	if _, err := e.Resend(ctx, "a@x.com"); err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	e.clock.Advance(time.Second)
	if _, err := e.Resend(ctx, "a@x.com"); err != nil {
		t.Fatalf("Resend failed: %v", err)
	}

	res, err := e.Verify(ctx, "a@x.com", "333333")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if e.hasPending(t, "a@x.com") {
		t.Fatal("expected pending registration to be removed")
	}
	if got := e.otpCount(t, "a@x.com"); got != 0 {
		t.Fatalf("expected every code removed, got %d", got)
	}

	account, err := e.stores.Accounts.GetAccountByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail: %v", err)
	}
	if account.ID != res.AccountID || account.FirstName != "A" || account.LastName != "B" {
		t.Fatalf("unexpected account: %+v", account)
	}

	if _, err := e.Verify(ctx, "a@x.com", "333333"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected consumed code to be gone, got %v", err)
	}
}

func TestVerifyRetryAfterCrashBeforeCleanup(t *testing.T) {
	f := &failingStore{failDeletePending: true}
	e := newTestEngine(t, withFailures(f))
	ctx := context.Background()

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	if _, err := e.Verify(ctx, "a@x.com", "123456"); err != nil {
		t.Fatalf("Verify must succeed despite cleanup failure, got %v", err)
	}
	if e.Engine.metrics.Value(MetricCleanupFailure) != 1 {
		t.Fatalf("expected one cleanup failure, got %d", e.Engine.metrics.Value(MetricCleanupFailure))
	}

	// Codes were removed, so simulate the crash window by issuing one more.
	f.failDeletePending = false
	if _, err := e.Resend(ctx, "a@x.com"); err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	_, err := e.Verify(ctx, "a@x.com", "123456")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists on retry, got %v", err)
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict kind, got %v", KindOf(err))
	}
}

func TestVerifyCredentialFailureKeepsAccount(t *testing.T) {
	f := &failingStore{failCredential: true}
	e := newTestEngine(t, withFailures(f))
	ctx := context.Background()

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	_, err := e.Verify(ctx, "a@x.com", "123456")
	if !errors.Is(err, ErrCredentialIssuanceFailure) {
		t.Fatalf("expected ErrCredentialIssuanceFailure, got %v", err)
	}

	if _, err := e.stores.Accounts.GetAccountByEmail(ctx, "a@x.com"); err != nil {
		t.Fatalf("account must exist after credential failure: %v", err)
	}
	if e.hasPending(t, "a@x.com") {
		t.Fatal("cleanup must run even when credential issuance fails")
	}

	f.failCredential = false
	login, err := e.Login(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login must recover the credential, got %v", err)
	}
	if login.Token == "" {
		t.Fatal("expected a token from login")
	}
}

func TestVerifyIssuerFailure(t *testing.T) {
	issuer := &countingIssuer{fail: errors.New("entropy exhausted")}
	e := newTestEngine(t, withIssuer(issuer))

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	_, err := e.Verify(context.Background(), "a@x.com", "123456")
	if !errors.Is(err, ErrCredentialIssuanceFailure) {
		t.Fatalf("expected ErrCredentialIssuanceFailure, got %v", err)
	}
	if strings.Contains(err.Error(), "123456") {
		t.Fatal("error leaked the code")
	}
}

func TestSignupValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	long := strings.Repeat("x", 151)

	tests := []struct {
		name        string
		first, last string
		email       string
		password    string
		field       string
	}{
		{name: "missing first name", first: " ", last: "B", email: "a@x.com", password: "secret1", field: "first_name"},
		{name: "missing last name", first: "A", last: "", email: "a@x.com", password: "secret1", field: "last_name"},
		{name: "first name too long", first: long, last: "B", email: "a@x.com", password: "secret1", field: "first_name"},
		{name: "missing email", first: "A", last: "B", email: "  ", password: "secret1", field: "email"},
		{name: "malformed email", first: "A", last: "B", email: "a@", password: "secret1", field: "email"},
		{name: "display name email", first: "A", last: "B", email: "Ann <a@x.com>", password: "secret1", field: "email"},
		{name: "missing password", first: "A", last: "B", email: "a@x.com", password: "", field: "password"},
		{name: "short password", first: "A", last: "B", email: "a@x.com", password: "12345", field: "password"},
		{name: "password past bcrypt limit", first: "A", last: "B", email: "a@x.com", password: strings.Repeat("p", 73), field: "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Signup(ctx, tt.first, tt.last, tt.email, tt.password)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, verr.Field)
			}
			if KindOf(err) != KindValidation {
				t.Fatalf("expected validation kind, got %v", KindOf(err))
			}
		})
	}

	if len(e.outbox.messages()) != 0 {
		t.Fatal("invalid signups must not send anything")
	}
	if e.hasPending(t, "a@x.com") {
		t.Fatal("invalid signups must not store anything")
	}
}

// plainHasher has no length limit of its own.
type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error)          { return "plain:" + pw, nil }
func (plainHasher) Verify(pw, encoded string) (bool, error) { return encoded == "plain:"+pw, nil }

// tooLongHasher reports every password as too long, like a hasher whose
// limit is not advertised through PasswordLimiter.
type tooLongHasher struct{ plainHasher }

func (tooLongHasher) Hash(string) (string, error) { return "", password.ErrPasswordTooLong }

func TestSignupPasswordUpperBound(t *testing.T) {
	ctx := context.Background()

	t.Run("config limit", func(t *testing.T) {
		e := newTestEngine(t,
			withConfig(func(c *Config) { c.Registration.MaxPasswordBytes = 10 }),
			func(b *Builder, _ Stores) { b.WithHasher(plainHasher{}) },
		)
		if _, err := e.Signup(ctx, "A", "B", "a@x.com", strings.Repeat("p", 10)); err != nil {
			t.Fatalf("expected password at the limit accepted: %v", err)
		}
		_, err := e.Signup(ctx, "A", "B", "b@x.com", strings.Repeat("p", 11))
		if KindOf(err) != KindValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
		if e.hasPending(t, "b@x.com") || e.otpCount(t, "b@x.com") != 0 {
			t.Fatal("rejected signup must not store anything")
		}
	})

	t.Run("hasher limit", func(t *testing.T) {
		e := newTestEngine(t)
		if _, err := e.Signup(ctx, "A", "B", "a@x.com", strings.Repeat("p", 72)); err != nil {
			t.Fatalf("expected 72 byte password accepted by bcrypt: %v", err)
		}
	})

	t.Run("hasher rejects", func(t *testing.T) {
		e := newTestEngine(t, func(b *Builder, _ Stores) { b.WithHasher(tooLongHasher{}) })
		_, err := e.Signup(ctx, "A", "B", "a@x.com", "secret1")
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != "password" {
			t.Fatalf("expected password validation error, got %v", err)
		}
		if errors.Is(err, ErrPasswordHashFailure) {
			t.Fatal("too long must not be reported as a hash failure")
		}
		if e.hasPending(t, "a@x.com") {
			t.Fatal("rejected signup must not store anything")
		}
	})
}

func TestNameLengthCountsCharacters(t *testing.T) {
	e := newTestEngine(t)

	name := strings.Repeat("é", 150)
	if _, err := e.Signup(context.Background(), name, "B", "a@x.com", "secret1"); err != nil {
		t.Fatalf("expected 150 multi-byte characters to be accepted, got %v", err)
	}
}

func TestCodeGeneratorFailure(t *testing.T) {
	gen := CodeGeneratorFunc(func() (string, error) { return "", errors.New("no entropy") })
	e := newTestEngine(t, func(b *Builder, _ Stores) { b.WithCodeGenerator(gen) })

	_, err := e.Signup(context.Background(), "A", "B", "a@x.com", "secret1")
	if !errors.Is(err, ErrCodeGenerationFailure) {
		t.Fatalf("expected ErrCodeGenerationFailure, got %v", err)
	}
}

func TestCodeGeneratorMalformedOutputRejected(t *testing.T) {
	e := newTestEngine(t, withCodes("12a456"))

	_, err := e.Signup(context.Background(), "A", "B", "a@x.com", "secret1")
	if !errors.Is(err, ErrCodeGenerationFailure) {
		t.Fatalf("expected ErrCodeGenerationFailure, got %v", err)
	}
}

func TestCustomCodeTTLInMessage(t *testing.T) {
	e := newTestEngine(t, withConfig(func(c *Config) {
		c.Registration.CodeTTL = 90 * time.Second
	}))

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	msgs := e.outbox.messages()
	if len(msgs) != 1 || !strings.HasSuffix(msgs[0].Body, "It expires in 90 seconds.") {
		t.Fatalf("unexpected message: %+v", msgs)
	}

	e.clock.Advance(91 * time.Second)
	if _, err := e.Verify(context.Background(), "a@x.com", "123456"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestNewestExpiredCodeShadowsOlder(t *testing.T) {
	e := newTestEngine(t, withCodes("111111", "222222"))
	ctx := context.Background()

	e.mustSignup(t, "A", "B", "a@x.com", "secret1")
	e.clock.Advance(time.Minute)
	if _, err := e.Resend(ctx, "a@x.com"); err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	e.clock.Advance(5*time.Minute + time.Second)

	if _, err := e.Verify(ctx, "a@x.com", "222222"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired for newest code, got %v", err)
	}
	if _, err := e.Verify(ctx, "a@x.com", "111111"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected older code never to be consulted, got %v", err)
	}
}

func TestZeroValueCoordinatorsNotReady(t *testing.T) {
	var reg RegistrationCoordinator
	if _, err := reg.Signup(context.Background(), "A", "B", "a@x.com", "secret1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	var auth AuthCoordinator
	if _, err := auth.Login(context.Background(), "a@x.com", "secret1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{5 * time.Minute, "5 minutes"},
		{time.Minute, "1 minute"},
		{time.Second, "1 second"},
		{90 * time.Second, "90 seconds"},
	}
	for _, tt := range tests {
		if got := humanDuration(tt.in); got != tt.want {
			t.Fatalf("humanDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
