package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shovel-house/shovel-api/internal/store"
	"github.com/shovel-house/shovel-api/pkg/metrics"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// MetricServer is the operator-facing listener: prometheus metrics and a
// readiness endpoint that checks the database.
type MetricServer struct {
	bindAddress string
	httpServer  *http.Server
	listener    net.Listener
}

// NewMetricServer serves /metrics and /readyz. The settlement collector is
// registered once per process.
func NewMetricServer(bindAddress string, listener net.Listener, s store.Store) *MetricServer {
	if err := prometheus.Register(metrics.NewSettlementStatsCollector(s)); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			zap.S().Named("metrics_server").Warnw("failed to register settlement collector", "error", err)
		}
	}

	router := chi.NewRouter()

	prometheusMetricHandler := metrics.NewPrometheusMetricsHandler()
	router.Handle("/metrics", prometheusMetricHandler.Handler())
	router.Get("/readyz", readiness(s))

	return &MetricServer{
		bindAddress: bindAddress,
		listener:    listener,
		httpServer: &http.Server{
			Addr:              bindAddress,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func readiness(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if err := s.Ping(ctx); err != nil {
			zap.S().Named("metrics_server").Warnw("readiness check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (m *MetricServer) Run(ctx context.Context) error {
	shutdown := make(chan struct{})
	go func() {
		defer close(shutdown)
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		m.httpServer.SetKeepAlivesEnabled(false)
		_ = m.httpServer.Shutdown(ctxTimeout)
		zap.S().Named("metrics_server").Info("metrics server terminated")
	}()

	ticker := time.NewTicker(7 * 24 * time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UniqueUsersPerWeek.Reset()
				zap.S().Named("metrics_server").Info("weekly active users metric reset")
			case <-ctx.Done():
				return
			}
		}
	}()

	zap.S().Named("metrics_server").Infof("serving metrics: %s", m.bindAddress)
	if err := m.httpServer.Serve(m.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdown
	return nil
}
