// Package metrics exposes the Prometheus metrics of the harvester.
// All metrics are defined in their respective packages (client, pagination,
// export) to maintain modularity and avoid circular dependencies.
//
// This package documents them and serves the /metrics endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the harvester.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves /metrics until its context ends.
type Server struct {
	srv      *http.Server
	listener net.Listener
}

// Listen binds addr and returns a server ready to Serve.
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	return &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.listener)
	}()

	log.Info().Str("addr", s.Addr()).Msg("Serving metrics")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - harvest_requests_total{status} (Counter): Listing requests by HTTP status or transport error class
//   - harvest_request_duration_seconds (Histogram): Listing request duration
//   - harvest_request_errors_total{class} (Counter): Failed requests by class (client, server, rate_limit, network, timeout, decode)
//
// Harvest Metrics (pkg/pagination):
//   - harvest_pages_total{pass, outcome} (Counter): Page fetches by pass (discovery, primary, retry) and outcome (success, failure)
//   - harvest_inflight_fetches{pass} (Gauge): Fetches currently holding a gate slot
//   - harvest_records_total (Counter): Records returned by successful page fetches
//   - harvest_runs_total{status} (Counter): Finished runs by status (complete, partial, aborted)
//   - harvest_run_duration_seconds (Histogram): Run duration
//   - harvest_failed_pages (Gauge): Permanently failed pages of the last run
//
// Export Metrics (pkg/export):
//   - harvest_exports_total{sink, outcome} (Counter): Export attempts by sink
//   - harvest_exported_records_total{sink} (Counter): Records written by sink
//
// Example Prometheus Queries:
//
//   # Page Failure Rate (first pass)
//   sum(rate(harvest_pages_total{pass="primary",outcome="failure"}[5m])) /
//   sum(rate(harvest_pages_total{pass="primary"}[5m]))
//
//   # Retry Recovery Ratio
//   sum(harvest_pages_total{pass="retry",outcome="success"}) / sum(harvest_pages_total{pass="retry"})
//
//   # Rate Limited Requests
//   rate(harvest_request_errors_total{class="rate_limit"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(harvest_request_duration_seconds_bucket[5m]))
