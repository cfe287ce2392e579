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
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/warehouse/internal/health"
	"github.com/vladislavdragonenkov/warehouse/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/warehouse/internal/metrics"
	"github.com/vladislavdragonenkov/warehouse/internal/service/outbox"
	"github.com/vladislavdragonenkov/warehouse/internal/tracing"
	"github.com/vladislavdragonenkov/warehouse/internal/version"
	"github.com/vladislavdragonenkov/warehouse/internal/warehouse"
	"github.com/vladislavdragonenkov/warehouse/internal/warehouse/observability"
)

const (
	shutdownTimeout = 5 * time.Second
	// grpcServiceName — имя сервиса в gRPC health protocol.
	grpcServiceName = "warehouse"
)

// Runtime держит открытое хранилище, трейсинг и runner операций склада с метриками.
type Runtime struct {
	cfg             Config
	logger          *log.Entry
	deps            *runtimeDependencies
	runner          *warehouse.Runner
	shutdownTracing tracing.ShutdownFunc
}

// NewRuntime подготавливает всё, что нужно для выполнения операций склада.
func NewRuntime(ctx context.Context, cfg Config, logger *log.Entry) (*Runtime, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	provider, shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Mode:         cfg.TracingMode,
		ServiceName:  cfg.ServiceName,
		Version:      version.GetVersion(),
		OTLPEndpoint: cfg.OTLPEndpoint,
		Insecure:     cfg.OTLPInsecure,
	}, logger.WithField("component", "tracing"))
	if err != nil {
		_ = deps.close()
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	runner := warehouse.NewRunner(deps.store,
		warehouse.WithServiceOptions(warehouse.WithLogger(log.WithField("component", "warehouse"))),
		warehouse.WithDecorator(observability.Decorator(
			observability.WithTracer(provider.Tracer(cfg.ServiceName)),
			observability.WithMetrics(metrics.NewWarehouseMetrics()),
		)),
	)

	return &Runtime{
		cfg:             cfg,
		logger:          logger,
		deps:            deps,
		runner:          runner,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Runner возвращает runner единиц работы со слоем наблюдаемости.
func (r *Runtime) Runner() *warehouse.Runner { return r.runner }

// Outbox возвращает outbox хранилища вне единиц работы.
func (r *Runtime) Outbox() domain.OutboxRepository { return r.deps.store.Outbox() }

// Close сбрасывает span и закрывает хранилище.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.shutdownTracing != nil {
		if err := r.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	if err := r.deps.close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}

// Run поднимает relay outbox, gRPC health и HTTP-метрики и работает до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	rt, err := NewRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("runtime close failed")
		}
	}()

	warnInertStorage(cfg, logger)

	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafkaProducer(producer, logger)

	stopWorker, workerDone := startOutboxWorker(ctx, cfg, rt.Outbox(), producer, logger)
	defer shutdownOutboxWorker(stopWorker, workerDone, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", rt.deps.storageChecker)
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(rt.Outbox(), cfg.OutboxMaxPending, cfg.OutboxMaxAge))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	grpcServer, healthServer := newGRPCServer(logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.Shutdown()
		stopGRPC(grpcServer, logger)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// warnInertStorage предупреждает, что in-memory хранилище сервиса никто не пишет:
// операции склада выполняются в других процессах, и relay с health-проверками видят пустой outbox.
func warnInertStorage(cfg Config, logger *log.Entry) bool {
	if cfg.StorageDriver != StorageDriverMemory {
		return false
	}
	logger.WithField("storage_driver", cfg.StorageDriver).
		Warn("memory storage is process-local: outbox relay and health checks observe an empty store, use postgres to relay events")
	return true
}

// newGRPCServer создаёт gRPC-сервер с health protocol, reflection и prometheus-интерсепторами.
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
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

func stopGRPC(grpcServer *grpc.Server, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// startOutboxWorker запускает relay outbox в Kafka. Без producer relay не запускается.
func startOutboxWorker(
	ctx context.Context,
	cfg Config,
	repo domain.OutboxRepository,
	producer *kafka.Producer,
	logger *log.Entry,
) (context.CancelFunc, <-chan struct{}) {
	if producer == nil {
		logger.Info("outbox relay disabled: kafka is not configured")
		return nil, nil
	}

	worker := outbox.NewWorker(
		repo,
		kafka.NewOutboxPublisher(producer, cfg.EventsTopic),
		outbox.WithDLQPublisher(kafka.NewDeadLetterPublisher(producer)),
		outbox.WithMetrics(metrics.NewOutboxMetrics()),
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	logger.WithField("topic", cfg.EventsTopic).Info("outbox relay started")
	return cancel, done
}

// shutdownOutboxWorker останавливает relay и ждёт завершения текущего цикла.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info("outbox relay stopped")
	case <-time.After(shutdownTimeout):
		logger.Warn("outbox relay did not stop in time")
	}
}

// startMetricsServer запускает HTTP-сервер с /metrics и health-эндпоинтами.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
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
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
