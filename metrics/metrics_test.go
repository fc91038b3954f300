package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetrics_Init(t *testing.T) {
	// Init should not panic when called multiple times
	Init()
	Init()
}

func TestMetrics_Handler(t *testing.T) {
	Init()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()

	expectedMetrics := []string{
		"fkpg_query_total",
		"fkpg_query_latency_seconds",
		"fkpg_statement_cache_hits_total",
		"fkpg_statement_cache_misses_total",
		"fkpg_pool_idle_connections",
		"fkpg_pool_acquired_connections",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %q not found in response", metric)
		}
	}
}

func TestMetrics_Increment(t *testing.T) {
	Init()

	QueryTotal.WithLabelValues("extended", "ok").Inc()
	StatementCacheHits.Inc()
	StatementCacheMisses.Inc()
	TransactionTotal.WithLabelValues("commit").Inc()
	QueryLatency.WithLabelValues("extended").Observe(0.001)
	PoolIdleConnections.Set(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `protocol="extended"`) {
		t.Error("Expected label protocol=extended in output")
	}
}
