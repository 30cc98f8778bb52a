package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRegistered(t *testing.T) {
	Trades.WithLabelValues("buy", "committed").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "stonks_trades_total" {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("stonks_trades_total metric not found")
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	before := testutil.ToFloat64(StubQuotes)
	StubQuotes.Inc()
	if got := testutil.ToFloat64(StubQuotes); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "stonks_quote_stub_total") {
		t.Fatal("expected stub counter in exposition")
	}
}
