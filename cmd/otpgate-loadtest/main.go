// Command otpgate-loadtest drives signup, verify and login through the
// engine against Redis (or an in-process miniredis) and prints latency
// percentiles per phase.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// outbox records the last code sent to each address.
type outbox struct {
	codes sync.Map
}

func (o *outbox) Send(_ context.Context, email, _, body string) error {
	o.codes.Store(email, body)
	return nil
}

func (o *outbox) codeFor(email string) string {
	v, ok := o.codes.Load(email)
	if !ok {
		return ""
	}
	var code string
	if _, err := fmt.Sscanf(v.(string), "Your OTP code is %6s.", &code); err != nil {
		return ""
	}
	return code
}

func main() {
	var (
		accounts    = flag.Int("accounts", 2000, "number of registrations to drive")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		logins      = flag.Int("logins", 10000, "login + authenticate operations")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "og-load", "redis key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *logins <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and logins must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	// MinCost keeps the run about store latency rather than hashing.
	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hasher: %v\n", err)
		os.Exit(1)
	}

	cfg := otpgate.DefaultConfig()
	cfg.Redis.Prefix = *prefix
	cfg.Audit.Enabled = false

	box := &outbox{}
	engine, err := otpgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithHasher(hasher).
		WithNotifier(box).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	emails := make([]string, *accounts)
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d-%d@example.com", time.Now().UnixNano(), i)
	}
	const secret = "load-test-password"

	signupStats := runPhase(len(emails), *concurrency, func(i int) error {
		_, err := engine.Signup(ctx, "Load", "Test", emails[i], secret)
		return err
	})

	tokens := make([]string, len(emails))
	verifyStats := runPhase(len(emails), *concurrency, func(i int) error {
		res, err := engine.Verify(ctx, emails[i], box.codeFor(emails[i]))
		if err != nil {
			return err
		}
		tokens[i] = res.Token
		return nil
	})

	loginStats := runPhase(*logins, *concurrency, func(i int) error {
		idx := i % len(emails)
		res, err := engine.Login(ctx, emails[idx], secret)
		if err != nil {
			return err
		}
		_, err = engine.Authenticate(ctx, res.Token)
		return err
	})

	fmt.Println("---- results ----")
	printStats("signup", signupStats)
	printStats("verify", verifyStats)
	printStats("login+authenticate", loginStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("verify latency buckets: %v\n", snap.Histograms[otpgate.MetricVerifyLatency])
}

// runPhase runs op for indexes [0, ops) across concurrency workers.
func runPhase(ops, concurrency int, op func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
