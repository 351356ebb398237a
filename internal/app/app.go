package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/ordercore/internal/health"
	"github.com/vladislavdragonenkov/ordercore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ordercore/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/ordercore/internal/service/grpc"
	"github.com/vladislavdragonenkov/ordercore/internal/service/orders"
	"github.com/vladislavdragonenkov/ordercore/internal/version"
)

const (
	serviceName      = "ordercore"
	gracefulShutdown = 5 * time.Second
)

// Run поднимает хранилище, gRPC, HTTP для метрик и (опционально) приём команд из Kafka.
// Возвращает ctx.Err() после штатной остановки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	orderMetrics := metrics.NewOrderMetrics()

	deps, err := initRuntimeDependencies(ctx, cfg, logger, orderMetrics)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	svc := orders.NewService(deps.repo, logger.WithField("layer", "service"),
		orders.WithMetrics(orderMetrics),
		orders.WithRetry(orders.DefaultRetryConfig()),
	)

	grpcServer, healthServer := newGRPCServer(cfg, svc, logger)

	healthHandler := newHealthHandler(deps.storageChecker)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var producer *kafka.Producer
	if brokers := cfg.brokerList(); len(brokers) > 0 {
		// Kafka необязательна: при ошибке сервис работает без приёма команд.
		producer, _ = initKafkaProducer(brokers, logger)
		if producer != nil {
			if consumer, cErr := initCommandConsumer(cfg, svc, orderMetrics, producer, logger); cErr == nil {
				if err := consumer.Start(gctx); err != nil {
					closeKafka(producer, logger)
					return fmt.Errorf("start kafka consumer: %w", err)
				}
				g.Go(func() error {
					<-gctx.Done()
					return consumer.Stop()
				})
			}
		}
		if producer == nil {
			markKafkaUnavailable(healthHandler)
		}
	}
	defer closeKafka(producer, logger)

	metricsSrv := startMetricsServer(gctx, cfg.MetricsAddr, logger, healthHandler)

	g.Go(func() error {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		shutdownHTTP(metricsSrv, logger)
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

// newGRPCServer собирает сервер с цепочкой интерсепторов и сервисами health/reflection.
func newGRPCServer(cfg Config, svc *orders.Service, logger *log.Entry) (*grpc.Server, *health.Server) {
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

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcsvc.RequestIDInterceptor(),
		grpcMetrics.UnaryServerInterceptor(),
		grpcsvc.LoggingInterceptor(logger.WithField("layer", "grpc")),
		grpcsvc.RateLimitInterceptor(cfg.GRPCRateLimit, cfg.GRPCRateBurst),
	))

	grpcsvc.RegisterOrderServiceServer(grpcServer, grpcsvc.NewOrderService(svc, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(grpcServer)

	// Register reflection service for grpcurl
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer, healthServer
}

// stopGRPC пытается остановить сервер штатно, по таймауту обрывает соединения.
func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(gracefulShutdown):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// newHealthHandler регистрирует проверку хранилища, если она есть. Хранилище в памяти проверять нечего.
func newHealthHandler(storage healthcheck.Checker) *healthcheck.Handler {
	h := healthcheck.NewHandler(serviceName, version.GetVersion())
	if storage != nil {
		h.RegisterChecker("storage", storage)
	}
	return h
}

// markKafkaUnavailable переводит сервис в degraded: заказы обслуживаются, команды из Kafka нет.
func markKafkaUnavailable(h *healthcheck.Handler) {
	h.RegisterChecker("kafka", healthcheck.NewOptionalChecker("kafka", func(context.Context) error {
		return errors.New("kafka is configured but unavailable")
	}))
}

func newHTTPHandler(healthHandler *healthcheck.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-эндпоинты.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: newHTTPHandler(healthHandler), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
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

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdown)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
