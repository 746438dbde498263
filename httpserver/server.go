// Package httpserver implements the device-local status server that
// runs for the duration of a bootstrap attempt. It lets an operator on
// the management network observe where a unit is in the flow
// (awaiting authorization, downloading, installing) without tailing
// logs, and exposes the usual liveness/readiness probes alongside a
// Prometheus metrics companion.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/crowdsurfer/shaka-bootstrap/bootstrap"
	"github.com/crowdsurfer/shaka-bootstrap/metrics"
)

// HTTPServerConfig configures the local status server.
type HTTPServerConfig struct {
	ListenAddr  string
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger

	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	DeviceSerial string `json:"device_serial"`
	Registered   bool   `json:"registered"`
	BackendURL   string `json:"backend_url"`
	Stage        string `json:"stage"`
}

type Server struct {
	cfg     *HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	status     *bootstrap.Status
	backendURL string

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
}

// New creates a status server reading live state from status. Either
// listener is disabled by leaving its address empty.
func New(cfg *HTTPServerConfig, status *bootstrap.Status, backendURL string) *Server {
	srv := &Server{
		cfg:        cfg,
		log:        cfg.Log,
		status:     status,
		backendURL: backendURL,
	}
	if cfg.MetricsAddr != "" {
		srv.metricsSrv = metrics.New(cfg.MetricsAddr)
	}
	srv.isReady.Store(true)

	if cfg.ListenAddr != "" {
		srv.srv = &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      srv.getRouter(),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}
	}
	return srv
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.With(srv.httpLogger).Get("/api/status", srv.handleStatus)
	mux.With(srv.httpLogger).Get("/livez", srv.handleLivenessCheck)
	mux.With(srv.httpLogger).Get("/readyz", srv.handleReadinessCheck)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func (srv *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		DeviceSerial: srv.status.Serial(),
		Registered:   srv.status.Registered(),
		BackendURL:   srv.backendURL,
		Stage:        srv.status.Stage(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// RunInBackground starts the status and metrics listeners without
// blocking the bootstrap flow.
func (srv *Server) RunInBackground() {
	if srv.metricsSrv != nil {
		go func() {
			srv.log.With("metricsAddress", srv.cfg.MetricsAddr).Info("Starting metrics server")
			err := srv.metricsSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("Metrics server failed", "err", err)
			}
		}()
	}

	if srv.srv != nil {
		go func() {
			srv.log.Info("Starting status server", "listenAddress", srv.cfg.ListenAddr)
			if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("Status server failed", "err", err)
			}
		}()
	}
}

func (srv *Server) Shutdown() {
	if srv.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
		defer cancel()
		if err := srv.srv.Shutdown(ctx); err != nil {
			srv.log.Error("Graceful status server shutdown failed", "err", err)
		} else {
			srv.log.Info("Status server gracefully stopped")
		}
	}

	if srv.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
		defer cancel()

		if err := srv.metricsSrv.Shutdown(ctx); err != nil {
			srv.log.Error("Graceful metrics server shutdown failed", "err", err)
		} else {
			srv.log.Info("Metrics server gracefully stopped")
		}
	}
}
