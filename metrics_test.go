package authcore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRefreshSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		1 * time.Millisecond,
		5 * time.Millisecond,
		7 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		90 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		2 * time.Second,
	}
	for _, d := range observations {
		m.Observe(MetricValidateLatency, d)
	}
	// Only the validate histogram exists.
	m.Observe(MetricLoginSuccess, time.Millisecond)

	got := m.Snapshot().Histograms[MetricValidateLatency]
	want := []uint64{2, 1, 1, 1, 1, 1, 1, 1}
	if len(got) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bucket %d: expected %d, got %d", i, want[i], got[i])
		}
	}
	if _, ok := m.Snapshot().Histograms[MetricLoginSuccess]; ok {
		t.Fatal("unexpected histogram for a counter")
	}
}

func TestMetricsSnapshotDisabledIsEmpty(t *testing.T) {
	var m *Metrics
	s := m.Snapshot()
	if len(s.Counters) != 0 || len(s.Histograms) != 0 {
		t.Fatal("expected empty snapshot")
	}
}

func TestEngineMetricsFollowLifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine := buildTestEngine(t, cfg, demoUsers(t), newTestClock())
	ctx := context.Background()

	pair, err := engine.Login(ctx, "user1", "user123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	_, _ = engine.Login(ctx, "user1", "nope-nope")
	_, _ = engine.VerifyAccess(ctx, pair.AccessToken)
	_, _ = engine.VerifyAccess(ctx, "garbage")
	next, _ := engine.Refresh(ctx, pair.RefreshToken)
	_, _ = engine.Refresh(ctx, pair.RefreshToken)
	_ = engine.Logout(ctx, next.AccessToken, next.RefreshToken)

	s := engine.MetricsSnapshot().Counters
	checks := map[MetricID]uint64{
		MetricLoginSuccess:     1,
		MetricLoginFailure:     1,
		MetricSessionCreated:   2,
		MetricVerifySuccess:    1,
		MetricVerifyFailure:    1,
		MetricTokenMalformed:   1,
		MetricRefreshSuccess:   1,
		MetricRefreshFailure:   1,
		MetricReplayDetected:   1,
		MetricLogout:           1,
		MetricStoreUnavailable: 0,
	}
	for id, want := range checks {
		if s[id] != want {
			t.Fatalf("metric %d: expected %d, got %d", id, want, s[id])
		}
	}

	var total uint64
	for _, n := range engine.MetricsSnapshot().Histograms[MetricValidateLatency] {
		total += n
	}
	if total != 2 {
		t.Fatalf("expected 2 latency observations, got %d", total)
	}
}
