package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:   7,
				authcore.MetricReplayDetected: 1,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"authcore_login_success_total 7",
		"authcore_replay_detected_total 1",
		"authcore_store_unavailable_total 0",
		`authcore_validate_latency_seconds_bucket{le="0.005"} 1`,
		`authcore_validate_latency_seconds_bucket{le="+Inf"} 36`,
		"authcore_validate_latency_seconds_count 36",
		"authcore_audit_dropped_total 2",
		"# TYPE authcore_validate_latency_seconds histogram",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderSkipsHistogramWhenLatencyDisabled(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})
	if out := exp.Render(); strings.Contains(out, "latency") {
		t.Fatalf("unexpected histogram output:\n%s", out)
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessKey = []byte("prometheus-access-key-0123456789abcdef")
	cfg.JWT.RefreshKey = []byte("prometheus-refresh-key-0123456789abcde")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true

	engine, err := authcore.New().WithConfig(cfg).WithUserProvider(noUsers{}).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	_, _ = engine.VerifyAccess(context.Background(), "garbage")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	New(engine).Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authcore_token_malformed_total 1") {
		t.Fatalf("expected malformed counter, got:\n%s", rec.Body.String())
	}
}

type noUsers struct{}

func (noUsers) GetUserByUsername(context.Context, string) (authcore.User, error) {
	return authcore.User{}, authcore.ErrUserNotFound
}

func (noUsers) GetUserByID(context.Context, string) (authcore.User, error) {
	return authcore.User{}, authcore.ErrUserNotFound
}
