package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}

		if metrics.HTTPRequestsTotal == nil {
			t.Error("HTTPRequestsTotal is nil")
		}
		if metrics.HTTPRequestDuration == nil {
			t.Error("HTTPRequestDuration is nil")
		}
		if metrics.SweepRunsTotal == nil {
			t.Error("SweepRunsTotal is nil")
		}
		if metrics.SweepErrors == nil {
			t.Error("SweepErrors is nil")
		}
		if metrics.CacheHitsTotal == nil {
			t.Error("CacheHitsTotal is nil")
		}
		if metrics.DBConnectionsActive == nil {
			t.Error("DBConnectionsActive is nil")
		}
	})

	t.Run("nil registry creates a private one", func(t *testing.T) {
		a := NewMetrics(nil)
		b := NewMetrics(nil)

		// Double registration panics on a shared registry.
		a.SweepRunsTotal.Inc()
		if got := testutil.ToFloat64(b.SweepRunsTotal); got != 0 {
			t.Errorf("expected independent registries, got shared counter value %v", got)
		}
	})
}

func TestMetricsHandler(t *testing.T) {
	metrics := NewMetrics(nil)
	metrics.SweepRunsTotal.Inc()
	metrics.SweepErrors.WithLabelValues("invoice").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "fieldvine_sweep_runs_total 1") {
		t.Error("expected sweep run counter in exposition")
	}
	if !strings.Contains(string(body), `fieldvine_sweep_errors_total{stage="invoice"} 1`) {
		t.Error("expected labeled sweep error counter in exposition")
	}
}

func TestInstrumentHandler(t *testing.T) {
	metrics := NewMetrics(nil)

	handler := metrics.InstrumentHandler("/subscriptions/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest("GET", "/subscriptions/999", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/subscriptions/{id}", "404"))
	if got != 1 {
		t.Errorf("expected request counter 1 with route-template label, got %v", got)
	}
}

func TestInstrumentHandler_DefaultsToOK(t *testing.T) {
	metrics := NewMetrics(nil)

	handler := metrics.InstrumentHandler("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200"))
	if got != 1 {
		t.Errorf("expected implicit 200 to be recorded, got %v", got)
	}
}
