// Package metrics exposes Prometheus counters for quoting, balances and swaps.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	QuoteRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "evmswap_quote_refreshes_total", Help: "Quote refresh cycles by network and outcome"},
		[]string{"network", "outcome"},
	)
	QuoteStaleDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "evmswap_quote_stale_discarded_total", Help: "Quote results dropped because their inputs changed while in flight"},
	)
	MetadataFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "evmswap_metadata_fetches_total", Help: "Token metadata lookups by outcome"},
		[]string{"outcome"},
	)
	BalanceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "evmswap_balance_fetches_total", Help: "Native balance lookups by outcome"},
		[]string{"outcome"},
	)
	Swaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "evmswap_swaps_total", Help: "Swap submissions by outcome"},
		[]string{"outcome"},
	)
	ServeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "evmswap_metrics_serve_errors_total", Help: "Metrics listener failures"},
	)
)

func init() {
	prometheus.MustRegister(QuoteRefreshes, QuoteStaleDiscarded, MetadataFetches, BalanceFetches, Swaps, ServeErrors)
}

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// Serve starts a /metrics endpoint on addr in the background.
// The returned server should be shut down by the caller.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ServeErrors.Inc()
		}
	}()
	return srv
}
