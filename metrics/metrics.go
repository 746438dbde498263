// Package metrics exposes the agent's Prometheus metrics and the
// companion HTTP server the main API server runs alongside itself.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RegistrationAttempts counts heartbeat calls made while waiting
	// for authorization, labeled by result.
	RegistrationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shaka_bootstrap_registration_attempts_total",
		Help: "Registration heartbeats sent while awaiting authorization.",
	}, []string{"result"})

	// BundleBytesDownloaded records the size of the fetched
	// deployment bundle.
	BundleBytesDownloaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shaka_bootstrap_bundle_bytes_downloaded",
		Help: "Size in bytes of the last fully downloaded deployment bundle.",
	})

	// Stage reports the current bootstrap stage as a one-hot gauge.
	Stage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shaka_bootstrap_stage",
		Help: "Current bootstrap stage (1 for the active stage, 0 otherwise).",
	}, []string{"stage"})
)

// SetStage marks the named stage active and clears all others.
func SetStage(stage string) {
	Stage.Reset()
	Stage.WithLabelValues(stage).Set(1)
}

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr.
func New(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
