// Command hrdesk-loadtest measures route authorization against remembered
// sessions held in Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/hrdesk"
	"github.com/MrEthical07/hrdesk/guard"
	"github.com/MrEthical07/hrdesk/identity"
	"github.com/MrEthical07/hrdesk/session"
	"github.com/MrEthical07/hrdesk/storage"
)

var (
	roles = []string{"USER", "USER", "USER", "MANAGER", "HR", "ADMIN"}
	paths = []string{"/", "/profile", "/leave", "/leave/approvals", "/admin"}
)

func main() {
	var (
		clients     = flag.Int("clients", 20000, "number of remembered clients to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per warm phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "clients, concurrency, and ops must be > 0")
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
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := hrdesk.DefaultConfig()
	cfg.Session.SweepInterval = 0
	cfg.Session.RedisPrefix = "hrdesk-loadtest"
	records := storage.NewRedis(client, cfg.Session.RedisPrefix, cfg.Session.RememberFor)

	ids := make([]string, *clients)
	fmt.Printf("seeding %d remembered sessions...\n", *clients)
	startSeed := time.Now()
	for i := range ids {
		ids[i] = fmt.Sprintf("client-%d", i)
		raw, err := session.EncodeRecord(session.Session{
			Email: fmt.Sprintf("user%d@corp.example", i),
			Role:  roles[i%len(roles)],
		})
		if err == nil {
			err = records.Set(ctx, cfg.Session.StorageKey+":"+ids[i], raw)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	hasher, err := identity.NewArgon2(identity.HasherConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		fmt.Fprintf(os.Stderr, "hasher: %v\n", err)
		os.Exit(1)
	}
	directory, err := identity.NewDirectory(hasher)
	if err != nil {
		fmt.Fprintf(os.Stderr, "directory: %v\n", err)
		os.Exit(1)
	}

	portal, err := hrdesk.New().
		WithConfig(cfg).
		WithRedis(client).
		WithStorage(records).
		WithDirectory(directory).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build portal: %v\n", err)
		os.Exit(1)
	}
	defer portal.Close()

	restoreStats := runPhase(len(ids), *concurrency, func(i int, _ *rand.Rand) bool {
		d := portal.Authorize(ctx, ids[i], "/")
		return d.Outcome == guard.RenderTarget
	})
	authorizeStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) bool {
		portal.Authorize(ctx, ids[r.Intn(len(ids))], paths[r.Intn(len(paths))])
		return true
	})
	activityStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) bool {
		return portal.Activity(ids[r.Intn(len(ids))], session.ActivityPointerMove)
	})

	fmt.Println("---- results ----")
	printStats("restore", restoreStats)
	printStats("authorize", authorizeStats)
	printStats("activity", activityStats)

	snap := portal.MetricsSnapshot()
	fmt.Printf("restored=%d render=%d role_redirect=%d pending=%d\n",
		snap.Counters[hrdesk.MetricSessionRestored],
		snap.Counters[hrdesk.MetricAuthorizeRender],
		snap.Counters[hrdesk.MetricAuthorizeRoleRedirect],
		snap.Counters[hrdesk.MetricAuthorizePending],
	)
}

// runPhase calls op ops times across workers. op reports success; op index i
// runs exactly once.
func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) bool) phaseStats {
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
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				ok := op(i, r)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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
