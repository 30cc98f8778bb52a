package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuoteCacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stonks_quote_cache_requests_total", Help: "Quote cache lookups by result"},
		[]string{"result"},
	)
	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stonks_quote_provider_requests_total", Help: "Upstream quote requests by provider and outcome"},
		[]string{"provider", "outcome"},
	)
	StubQuotes = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "stonks_quote_stub_total", Help: "Quotes served from the stub table"},
	)
	Trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stonks_trades_total", Help: "Trade requests by side and outcome"},
		[]string{"side", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(QuoteCacheRequests, ProviderRequests, StubQuotes, Trades)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
