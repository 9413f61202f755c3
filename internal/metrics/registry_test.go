package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestInitDefault(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	m := InitDefault()
	if m == nil {
		t.Fatal("expected metrics, got nil")
	}

	if m != Default {
		t.Error("expected returned metrics to be same as Default")
	}

	// Calling again should return same instance
	if m2 := GetDefault(); m2 != m {
		t.Error("expected same instance on second call")
	}
}

func TestResetAllowsReinit(t *testing.T) {
	Reset()
	first := InitDefault()
	Reset()
	second := InitDefault()
	t.Cleanup(Reset)

	if first == second {
		t.Error("expected a fresh instance after Reset")
	}
}

func TestNewRegistry(t *testing.T) {
	reg, m := NewRegistry()

	m.SessionRequests.WithLabelValues("login", OutcomeSuccess).Inc()

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "tirecode_session_requests_total" {
			found = true
			break
		}
	}

	if !found {
		t.Error("metrics not registered with custom registry")
	}
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.ObserveRefresh("scheduled", "success")

	handler := HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %v, want %v", w.Code, http.StatusOK)
	}

	if !strings.Contains(w.Body.String(), `tirecode_session_refresh_total{outcome="success",trigger="scheduled"} 1`) {
		t.Errorf("metrics output missing refresh counter:\n%s", w.Body.String())
	}
}

func TestDefaultHandler(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	GetDefault().ObserveArm("refresh", time.Unix(1700000000, 0))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %v, want %v", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected Go runtime collector output")
	}
	if !strings.Contains(body, "tirecode_scheduler_arms_total") {
		t.Error("expected tirecode metrics in default handler output")
	}
}

func TestMultipleRegistries(t *testing.T) {
	reg1, m1 := NewRegistry()
	reg2, m2 := NewRegistry()

	m1.ObserveAPI(http.MethodGet, "/api/v1/lookup", 200, 0)

	mf1, err := reg1.Gather()
	if err != nil {
		t.Fatalf("failed to gather from reg1: %v", err)
	}
	mf2, err := reg2.Gather()
	if err != nil {
		t.Fatalf("failed to gather from reg2: %v", err)
	}

	if len(mf1) == 0 {
		t.Error("reg1 has no metrics")
	}
	// Vectors without observations are not exported.
	for _, mf := range mf2 {
		if mf.GetName() == "tirecode_api_requests_total" {
			t.Error("reg2 should not see reg1 observations")
		}
	}

	if m1 == m2 {
		t.Error("expected different metrics instances")
	}
}
