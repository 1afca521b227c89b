package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/compliance-pipeline-client/internal/adapters/http"
	"github.com/kirillkom/compliance-pipeline-client/internal/bootstrap"
	"github.com/kirillkom/compliance-pipeline-client/internal/config"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/usecase"
	"github.com/kirillkom/compliance-pipeline-client/internal/observability/logging"
	"github.com/kirillkom/compliance-pipeline-client/internal/observability/metrics"
)

const serviceName = "compliance-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName, app.Registry)
	httpMetrics := metrics.NewHTTPServerMetrics(serviceName, app.Registry)
	supervisor := usecase.NewSupervisor(app.NewLifecycle, workerMetrics, logger)

	router := httpadapter.NewRouter(supervisor, app.Outcomes, httpadapter.RouterOptions{
		Service:        serviceName,
		MetricsHandler: workerMetrics.Handler(),
		Traffic:        httpMetrics,
		Logger:         logger,
	})
	server := &http.Server{
		Addr:         ":" + cfg.WorkerMetricsPort,
		Handler:      router.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("worker_http_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_http_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("worker_http_shutdown_error", "error", err)
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject+"."+string(domain.EventDocumentUploaded))
	// NATS delivers one message at a time per subscription; sessions run
	// for minutes, so each one gets its own goroutine.
	var running sync.WaitGroup
	err = app.Events.Subscribe(ctx, domain.EventDocumentUploaded, func(_ context.Context, event domain.LifecycleEvent) error {
		if !event.At.IsZero() {
			workerMetrics.ObserveEventLag(time.Since(event.At))
		}
		running.Add(1)
		go func() {
			defer running.Done()
			// failures are logged by the supervisor
			_ = supervisor.HandleDocumentUploaded(ctx, event)
		}()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_subscribe_error", "error", err)
	}
	supervisor.Shutdown()
	running.Wait()
}
