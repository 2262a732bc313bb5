package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/foodies/internal/health"
)

const shutdownTimeout = 5 * time.Second

// registerObservability добавляет /metrics, /healthz, /livez и /readyz.
func registerObservability(r *mux.Router, healthHandler *healthcheck.Handler) {
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/healthz", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/livez", healthcheck.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", healthHandler.ReadinessHandler).Methods(http.MethodGet)
}

// startMetricsServer запускает отдельный HTTP-сервер метрик и health checks.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	r := mux.NewRouter()
	registerObservability(r, healthHandler)

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// serveHTTP обслуживает listener до отмены ctx и затем останавливает сервер.
func serveHTTP(ctx context.Context, lis net.Listener, handler http.Handler, logger *log.Entry) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP сервер слушает %s", lis.Addr())
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		shutdownHTTP(srv, logger)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
