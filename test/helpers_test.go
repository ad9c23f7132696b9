//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/password"
	"github.com/MrEthical07/otpgate/storage/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// backend is one way of providing the four stores.
type backend struct {
	name  string
	setup func(t *testing.T) otpgate.Stores
}

func newMiniredis(t *testing.T) redis.UniversalClient {
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
	return rdb
}

func newSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sqlstore.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// backends returns every store backend available in this environment.
// miniredis and SQLite always run. Real Redis is added when REDIS_ADDR is
// set, Postgres when OTPGATE_TEST_POSTGRES_DSN is set.
func backends(t *testing.T) []backend {
	t.Helper()
	out := []backend{
		{
			name: "miniredis",
			setup: func(t *testing.T) otpgate.Stores {
				return otpgate.NewRedisStores(newMiniredis(t), "og", time.Hour)
			},
		},
		{
			name: "sqlite",
			setup: func(t *testing.T) otpgate.Stores {
				return newSQLite(t).Stores()
			},
		},
		{
			name: "hybrid",
			setup: func(t *testing.T) otpgate.Stores {
				ephemeral := otpgate.NewRedisStores(newMiniredis(t), "og", time.Hour)
				durable := newSQLite(t).Stores()
				return otpgate.Stores{
					Pending:     ephemeral.Pending,
					OTPs:        ephemeral.OTPs,
					Accounts:    durable.Accounts,
					Credentials: durable.Credentials,
				}
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		out = append(out, backend{
			name: "redis",
			setup: func(t *testing.T) otpgate.Stores {
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				prefix := "og-it-" + time.Now().Format("150405.000000")
				t.Cleanup(func() {
					ctx := context.Background()
					keys, _ := rdb.Keys(ctx, prefix+":*").Result()
					if len(keys) > 0 {
						_ = rdb.Del(ctx, keys...).Err()
					}
					_ = rdb.Close()
				})
				return otpgate.NewRedisStores(rdb, prefix, time.Hour)
			},
		})
	}
	if dsn := os.Getenv("OTPGATE_TEST_POSTGRES_DSN"); dsn != "" {
		out = append(out, backend{
			name: "postgres",
			setup: func(t *testing.T) otpgate.Stores {
				store, err := sqlstore.Open(context.Background(), "pgx", dsn)
				if err != nil {
					t.Fatalf("sqlstore.Open: %v", err)
				}
				t.Cleanup(func() { _ = store.Close() })
				return store.Stores()
			},
		})
	}
	return out
}

type outbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (o *outbox) Send(_ context.Context, email, _, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.codes == nil {
		o.codes = make(map[string]string)
	}
	o.codes[email] = body
	return nil
}

func (o *outbox) last(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.codes[email]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func buildEngine(t *testing.T, stores otpgate.Stores, codes ...string) (*otpgate.Engine, *clock, *outbox) {
	t.Helper()

	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	var (
		mu sync.Mutex
		i  int
	)
	gen := otpgate.CodeGeneratorFunc(func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c, nil
	})

	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	box := &outbox{}
	engine, err := otpgate.New().
		WithStores(stores).
		WithHasher(hasher).
		WithNotifier(box).
		WithCodeGenerator(gen).
		WithClock(clk.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, clk, box
}
