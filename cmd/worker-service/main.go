package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/report-autofill/internal/bootstrap"
	"github.com/cuongbtq/report-autofill/internal/config"
	"github.com/cuongbtq/report-autofill/internal/engine"
	"github.com/cuongbtq/report-autofill/internal/metrics"
	"github.com/cuongbtq/report-autofill/internal/worker"
	"github.com/cuongbtq/report-autofill/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		appLogger.Info("RabbitMQ connection established")
	}

	var observers []engine.Observer
	if progress := bootstrap.InitProgress(&cfg.RabbitMQ, rabbitClient, appLogger.Logger); progress != nil {
		defer progress.Close()
		observers = append(observers, progress)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	services, err := bootstrap.InitServices(cfg, appLogger.Logger, metrics.New(registry), observers...)
	if err != nil {
		return err
	}
	defer services.Close()

	workerCfg := &worker.Config{
		Logger:      appLogger.Logger,
		Engine:      services.Engine,
		Profiles:    services.Profiles,
		ConsumerTag: cfg.RabbitMQ.Consumer.Tag,
		Concurrency: cfg.Worker.BatchConcurrency,
		Schedule:    cfg.Worker.Schedule,
	}
	if rabbitClient != nil {
		workerCfg.Deliveries = rabbitClient
	}

	workerInstance, err := worker.NewWorker(workerCfg)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	metricsSrv := startMetricsServer(cfg.Server.Port, registry, appLogger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	var brokerClosed <-chan *amqp.Error
	if rabbitClient != nil {
		brokerClosed = rabbitClient.NotifyClose()
	}

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error", slog.Any("error", err))
		runErr = err
	case amqpErr := <-brokerClosed:
		appLogger.Error("RabbitMQ connection lost", slog.Any("error", amqpErr))
		runErr = fmt.Errorf("rabbitmq connection lost: %v", amqpErr)
	}

	// Cancel context to stop worker; in-flight attempts finish and are recorded
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}

// startMetricsServer exposes /metrics on port when it is set
func startMetricsServer(port int, registry *prometheus.Registry, logger *slog.Logger) *http.Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	logger.Info("Metrics server listening", slog.String("address", srv.Addr))
	return srv
}
