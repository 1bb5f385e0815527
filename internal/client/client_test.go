package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/observability"
)

func TestWebhookAlertRetriesAreCounted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	metrics := observability.InitMetrics(prometheus.NewRegistry())
	sender := NewWebhookAlertSender(srv.URL, metrics, zerolog.Nop())

	if err := sender.SendAlert(context.Background(), "jordan.reyes", "Budget alert", "threshold crossed"); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("webhook calls = %d, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.AlertDeliveryRetriesTotal); got != 1 {
		t.Errorf("retry counter = %v, want 1", got)
	}
}

func TestInsightsRequestsAndBreakerStateAreRecorded(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"invoice_number":"INV-1001","amount":1200,"confidence":0.9}`))
	}))
	defer srv.Close()

	metrics := observability.InitMetrics(prometheus.NewRegistry())
	c := NewInsightsClient(InsightsConfig{
		BaseURL:             srv.URL,
		ConsecutiveFailures: 1,
		Metrics:             metrics,
	}, zerolog.Nop())

	if _, err := c.ExtractDocument(context.Background(), "s3://bucket/inv.pdf"); err != nil {
		t.Fatalf("ExtractDocument: %v", err)
	}
	ok := metrics.InsightsRequestsTotal.WithLabelValues("extract", "ok")
	if got := testutil.ToFloat64(ok); got != 1 {
		t.Errorf("extract ok counter = %v, want 1", got)
	}

	// One failure trips the breaker and the gauge moves to open.
	fail.Store(true)
	if _, err := c.ExtractDocument(context.Background(), "s3://bucket/inv.pdf"); err == nil {
		t.Fatal("ExtractDocument succeeded against a failing server")
	}
	failed := metrics.InsightsRequestsTotal.WithLabelValues("extract", "error")
	if got := testutil.ToFloat64(failed); got != 1 {
		t.Errorf("extract error counter = %v, want 1", got)
	}
	state := metrics.InsightsCircuitBreakerState.WithLabelValues("insights")
	if got := testutil.ToFloat64(state); got != 2 {
		t.Errorf("breaker gauge = %v, want 2 (open)", got)
	}
}
