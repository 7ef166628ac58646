package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()

	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAccountOp("register", "ok")
	m.ObserveHash("hash", time.Millisecond)
	m.ObserveDelivery("sent")
	m.RegisterPoolGauges(func() int64 { return 0 }, func() int64 { return 0 })

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected passthrough, got %d", rr.Code)
	}
}

func TestAccountOpsCounter(t *testing.T) {
	m := New()
	m.ObserveAccountOp("register", "ok")
	m.ObserveAccountOp("register", "ok")
	m.ObserveAccountOp("register", "duplicate")

	if got := counterValue(t, m, "pastr_account_operations_total", map[string]string{"op": "register", "outcome": "ok"}); got != 2 {
		t.Fatalf("expected 2, got %v", got)
	}
	if got := counterValue(t, m, "pastr_account_operations_total", map[string]string{"op": "register", "outcome": "duplicate"}); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /register/activate/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPermanentRedirect)
	})
	h := m.Middleware(mux)

	for _, id := range []string{"a", "b", "c"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/register/activate/"+id, nil))
	}

	got := counterValue(t, m, "http_requests_total", map[string]string{
		"method": "GET",
		"path":   "GET /register/activate/{id}",
		"status": "308",
	})
	if got != 3 {
		t.Fatalf("expected 3 requests under one pattern label, got %v", got)
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.ObserveDelivery("sent")
	m.RegisterPoolGauges(func() int64 { return 2 }, func() int64 { return 5 })

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	for _, want := range []string{
		"pastr_activation_deliveries_total",
		"pastr_hash_pool_in_flight 2",
		"pastr_hash_pool_waiting 5",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q", want)
		}
	}
}
