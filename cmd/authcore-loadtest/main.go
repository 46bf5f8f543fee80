// Command authcore-loadtest drives an Engine through concurrent verify and refresh
// phases and a refresh replay race, printing latency percentiles per phase.
//
// With no -redis-addr (and no REDIS_ADDR) the redis backend runs on miniredis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/registry"
	"github.com/MrEthical07/authcore/users"
)

const loadtestPassword = "loadtest-password"

type sessionState struct {
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		backend     = flag.String("backend", "redis", "registry backend: memory, redis or sqlite")
		userCount   = flag.Int("users", 50, "number of users to seed")
		sessions    = flag.Int("sessions", 2000, "number of sessions to open")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (verify + refresh)")
		races       = flag.Int("races", 200, "refresh tokens raced in the replay phase")
		racers      = flag.Int("racers", 8, "concurrent presenters per raced token")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		sqlitePath  = flag.String("sqlite-path", ":memory:", "sqlite database path for -backend=sqlite")
	)
	flag.Parse()

	if *userCount <= 0 || *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *racers < 2 {
		fmt.Fprintln(os.Stderr, "users, sessions, concurrency and ops must be > 0; racers must be >= 2")
		os.Exit(2)
	}

	ctx := context.Background()

	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessKey = []byte("loadtest-access-key-0123456789abcdefgh")
	cfg.JWT.RefreshKey = []byte("loadtest-refresh-key-0123456789abcdefg")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	store, err := users.NewMemoryStore()
	if err != nil {
		fail("user store: %v", err)
	}

	builder := authcore.New().WithConfig(cfg).WithUserProvider(store).WithMetricsEnabled(true).WithLatencyHistograms(true)
	cleanup, err := wireBackend(ctx, builder, *backend, *redisAddr, *sqlitePath)
	if err != nil {
		fail("backend: %v", err)
	}
	defer cleanup()

	engine, err := builder.Build()
	if err != nil {
		fail("engine build: %v", err)
	}
	defer engine.Close()

	if err := seedUsers(engine, store, *userCount); err != nil {
		fail("seed users: %v", err)
	}

	fmt.Printf("opening %d sessions...\n", *sessions)
	startSeed := time.Now()
	states, err := openSessions(ctx, engine, *userCount, *sessions, *concurrency)
	if err != nil {
		fail("open sessions: %v", err)
	}
	fmt.Printf("opened in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runVerifyPhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)
	race := runReplayRace(ctx, engine, states, *races, *racers)

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
	fmt.Printf("replay race: tokens=%d racers=%d winners=%d replays=%d other=%d\n",
		race.tokens, *racers, race.winners, race.replays, race.other)

	snap := engine.MetricsSnapshot()
	fmt.Printf("metrics: refresh_success=%d replay_detected=%d store_unavailable=%d\n",
		snap.Counters[authcore.MetricRefreshSuccess],
		snap.Counters[authcore.MetricReplayDetected],
		snap.Counters[authcore.MetricStoreUnavailable],
	)

	if race.winners != int64(race.tokens) {
		fmt.Fprintf(os.Stderr, "exactly-one-winner violated: %d winners for %d tokens\n", race.winners, race.tokens)
		os.Exit(1)
	}
}

func wireBackend(ctx context.Context, b *authcore.Builder, backend, redisAddr, sqlitePath string) (func(), error) {
	switch backend {
	case "memory":
		fmt.Println("using in-memory registry")
		return func() {}, nil

	case "redis":
		addr := redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		if addr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				return nil, fmt.Errorf("start miniredis: %w", err)
			}
			client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
			b.WithRedis(client)
			fmt.Printf("using miniredis at %s\n", mr.Addr())
			return func() {
				_ = client.Close()
				mr.Close()
			}, nil
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		b.WithRedis(client)
		fmt.Printf("using redis at %s\n", addr)
		return func() { _ = client.Close() }, nil

	case "sqlite":
		db, err := registry.OpenSQLite(ctx, sqlitePath)
		if err != nil {
			return nil, err
		}
		b.WithRegistry(registry.NewSQL(db, registry.DialectSQLite, time.Now))
		fmt.Printf("using sqlite at %s\n", sqlitePath)
		return func() { _ = db.Close() }, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// seedUsers stores n active users sharing one password hash.
func seedUsers(engine *authcore.Engine, store *users.MemoryStore, n int) error {
	hash, err := engine.HashPassword(loadtestPassword)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		err := store.Put(authcore.User{
			ID:           fmt.Sprintf("u%d", i),
			Username:     fmt.Sprintf("load-%d", i),
			PasswordHash: hash,
			Role:         authcore.RoleUser,
			IsActive:     true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func openSessions(ctx context.Context, engine *authcore.Engine, userCount, n, concurrency int) ([]sessionState, error) {
	states := make([]sessionState, n)

	var (
		wg       sync.WaitGroup
		cursor   int64
		errOnce  sync.Once
		firstErr error
	)
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				pair, err := engine.Login(ctx, fmt.Sprintf("load-%d", i%userCount), loadtestPassword)
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				states[i].access = pair.AccessToken
				states[i].refresh = pair.RefreshToken
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return states, nil
}

func runVerifyPhase(ctx context.Context, engine *authcore.Engine, states []sessionState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand, _ int) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		token := state.access
		state.mu.Unlock()

		_, err := engine.VerifyAccess(ctx, token)
		return err
	})
}

func runRefreshPhase(ctx context.Context, engine *authcore.Engine, states []sessionState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 6151, func(r *rand.Rand, _ int) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()

		pair, err := engine.Refresh(ctx, state.refresh)
		if err != nil {
			return err
		}
		state.access = pair.AccessToken
		state.refresh = pair.RefreshToken
		return nil
	})
}

// runPhase runs ops calls of op across concurrency workers and times each call.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
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

type raceResult struct {
	tokens  int
	winners int64
	replays int64
	other   int64
}

// runReplayRace presents each of the first n refresh tokens from racers goroutines at
// once. Exactly one presenter per token may win.
func runReplayRace(ctx context.Context, engine *authcore.Engine, states []sessionState, n, racers int) raceResult {
	if n > len(states) {
		n = len(states)
	}
	res := raceResult{tokens: n}

	for i := 0; i < n; i++ {
		token := states[i].refresh

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			wins  int64
		)
		for j := 0; j < racers; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := engine.Refresh(ctx, token)
				switch {
				case err == nil:
					atomic.AddInt64(&wins, 1)
				case authcore.KindOf(err) == authcore.KindReplayDetected:
					atomic.AddInt64(&res.replays, 1)
				default:
					atomic.AddInt64(&res.other, 1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if wins == 1 {
			res.winners++
		}
	}
	return res
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

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
