package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/foodies/internal/api"
	"github.com/vladislavdragonenkov/foodies/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/foodies/internal/health"
	"github.com/vladislavdragonenkov/foodies/internal/service/retention"
	"github.com/vladislavdragonenkov/foodies/internal/version"
)

// newServerRouter собирает маршруты order-api: /api/orders и статический origin.
func newServerRouter(repo domain.ReceivedOrderRepository, publisher domain.OrderEventPublisher, staticDir string, logger *log.Entry) *mux.Router {
	r := mux.NewRouter()
	api.NewOrdersHandler(repo, publisher, logger).Register(r)
	if staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}
	return r
}

// newGRPCServer создаёт gRPC-сервер со стандартным health-сервисом и метриками.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	return grpcServer, healthServer
}

// RunServer запускает order-api: HTTP приём заказов, gRPC health и метрики.
func RunServer(ctx context.Context, cfg ServerConfig) error {
	logger := log.WithField("component", "order-api")

	deps, err := initReceivedOrders(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if deps.closeFn != nil {
			if err := deps.closeFn(); err != nil {
				logger.WithError(err).Warn("failed to close storage")
			}
		}
	}()

	events := initOrderEvents(cfg, logger)
	defer events.close(logger)
	publisher := events.publisher

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	apiLis, err := net.Listen("tcp", cfg.APIAddr)
	if err != nil {
		return err
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = apiLis.Close()
		return err
	}

	grpcServer, healthServer := newGRPCServer(logger)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()

	apiCtx, cancelAPI := context.WithCancel(ctx)
	defer cancelAPI()

	retentionWorker := retention.NewWorker(deps.repo, cfg.OrderRetention,
		retention.WithInterval(cfg.RetentionInterval),
		retention.WithLogger(logger.WithField("worker", "retention")),
	)
	retentionDone := make(chan struct{})
	go func() {
		defer close(retentionDone)
		retentionWorker.Run(apiCtx)
	}()
	defer func() {
		cancelAPI()
		<-retentionDone
	}()
	go func() {
		errCh <- serveHTTP(apiCtx, apiLis, newServerRouter(deps.repo, publisher, cfg.StaticDir, logger), logger)
	}()

	logger.WithFields(version.Fields()).WithFields(log.Fields{
		"api_addr":     apiLis.Addr().String(),
		"grpc_addr":    grpcLis.Addr().String(),
		"storage":      cfg.StorageDriver,
		"kafka_events": publisher != nil,
	}).Info("order-api started")

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		return ctx.Err()
	case err := <-errCh:
		cancelAPI()
		stopGRPC(grpcServer, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}
