package otpgate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpgate/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// testClock is a settable clock shared by the engine under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	Email   string
	Subject string
	Body    string
}

// outbox is a Notifier that records every message and optionally fails.
type outbox struct {
	mu   sync.Mutex
	sent []sentMessage
	fail error
}

func (o *outbox) Send(_ context.Context, email, subject, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.sent = append(o.sent, sentMessage{Email: email, Subject: subject, Body: body})
	return nil
}

func (o *outbox) setFailure(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fail = err
}

func (o *outbox) messages() []sentMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]sentMessage(nil), o.sent...)
}

// sequenceCodes hands out the given codes in order, then repeats the last.
func sequenceCodes(codes ...string) CodeGenerator {
	var (
		mu sync.Mutex
		i  int
	)
	return CodeGeneratorFunc(func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	})
}

// countingIssuer numbers its tokens so tests can tell them apart.
type countingIssuer struct {
	mu   sync.Mutex
	n    int
	fail error
}

func (c *countingIssuer) IssueToken(accountID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return "", c.fail
	}
	c.n++
	return fmt.Sprintf("tok-%s-%d", accountID, c.n), nil
}

type testEngine struct {
	*Engine
	redis  *miniredis.Miniredis
	client *redis.Client
	clock  *testClock
	outbox *outbox
	stores Stores
}

type engineOption func(b *Builder, base Stores)

func newTestEngine(t testing.TB, opts ...engineOption) *testEngine {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newTestClock()
	box := &outbox{}

	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Audit.Enabled = false
	base := newRedisStores(rdb, cfg.Redis.Prefix, cfg.Registration.RetentionTTL)

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithHasher(hasher).
		WithNotifier(box).
		WithClock(clock.Now).
		WithCodeGenerator(sequenceCodes("123456"))
	for _, opt := range opts {
		opt(b, base)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{
		Engine: engine,
		redis:  mr,
		client: rdb,
		clock:  clock,
		outbox: box,
		stores: base,
	}
}

func withCodes(codes ...string) engineOption {
	return func(b *Builder, _ Stores) { b.WithCodeGenerator(sequenceCodes(codes...)) }
}

func withConfig(mutate func(*Config)) engineOption {
	return func(b *Builder, _ Stores) {
		cfg := b.config
		mutate(&cfg)
		b.WithConfig(cfg)
	}
}

func withIssuer(issuer TokenIssuer) engineOption {
	return func(b *Builder, _ Stores) { b.WithTokenIssuer(issuer) }
}

// withFailures routes pending and credential calls through f.
func withFailures(f *failingStore) engineOption {
	return func(b *Builder, base Stores) {
		f.Stores = base
		b.WithStores(Stores{Pending: f, Credentials: f})
	}
}

func withAudit(sink AuditSink) engineOption {
	return func(b *Builder, _ Stores) {
		cfg := b.config
		cfg.Audit.Enabled = true
		cfg.Audit.BufferSize = 64
		cfg.Audit.DropIfFull = false
		b.WithConfig(cfg)
		b.WithAuditSink(sink)
	}
}

// mustSignup runs Signup and fails the test on error.
func (e *testEngine) mustSignup(t *testing.T, first, last, email, pw string) {
	t.Helper()
	if _, err := e.Signup(context.Background(), first, last, email, pw); err != nil {
		t.Fatalf("Signup(%q) failed: %v", email, err)
	}
}

func (e *testEngine) otpCount(t *testing.T, email string) int {
	t.Helper()
	records, err := e.stores.OTPs.ListOTPs(context.Background(), email)
	if err != nil {
		t.Fatalf("ListOTPs: %v", err)
	}
	return len(records)
}

func (e *testEngine) hasPending(t *testing.T, email string) bool {
	t.Helper()
	_, err := e.stores.Pending.GetPending(context.Background(), email)
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("GetPending: %v", err)
	}
	return false
}

// failingStore wraps the Redis stores and fails selected operations.
type failingStore struct {
	Stores
	failDeletePending bool
	failCredential    bool
}

var errInjected = errors.New("injected failure")

func (f *failingStore) DeletePending(ctx context.Context, email string) error {
	if f.failDeletePending {
		return errInjected
	}
	return f.Stores.Pending.DeletePending(ctx, email)
}

func (f *failingStore) UpsertPending(ctx context.Context, p PendingRegistration) error {
	return f.Stores.Pending.UpsertPending(ctx, p)
}

func (f *failingStore) GetPending(ctx context.Context, email string) (*PendingRegistration, error) {
	return f.Stores.Pending.GetPending(ctx, email)
}

func (f *failingStore) GetOrCreateCredential(ctx context.Context, c Credential) (*Credential, bool, error) {
	if f.failCredential {
		return nil, false, errInjected
	}
	return f.Stores.Credentials.GetOrCreateCredential(ctx, c)
}

func (f *failingStore) GetCredentialByToken(ctx context.Context, token string) (*Credential, error) {
	return f.Stores.Credentials.GetCredentialByToken(ctx, token)
}
