package application

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/brunoruyu/lic-detect/internal/persistence"
)

// MonitorServer exposes /health and /metrics when a listen address is
// configured.
type MonitorServer struct {
	srv *http.Server
	log zerolog.Logger
}

// NewMonitorServer builds the HTTP surface. store and cache may be nil; the
// health payload reports each dependency it can reach.
func NewMonitorServer(addr string, reg *prometheus.Registry, store persistence.Pinger, cache persistence.Pinger, log zerolog.Logger) *MonitorServer {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK

		if store != nil {
			if err := store.Ping(ctx); err != nil {
				status["postgres"] = err.Error()
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
			} else {
				status["postgres"] = "ok"
			}
		}
		if cache != nil {
			if err := cache.Ping(ctx); err != nil {
				status["redis"] = err.Error()
			} else {
				status["redis"] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	}).Methods(http.MethodGet)

	return &MonitorServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		log: log.With().Str("component", "monitor").Logger(),
	}
}

// Start serves in the background until Shutdown.
func (m *MonitorServer) Start() {
	go func() {
		m.log.Info().Str("addr", m.srv.Addr).Msg("monitor server listening")
		if err := m.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Error().Err(err).Msg("monitor server failed")
		}
	}()
}

// Shutdown drains in-flight requests.
func (m *MonitorServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
