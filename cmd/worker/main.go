package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/antonkurs/docextract/internal/bootstrap"
	"github.com/antonkurs/docextract/internal/config"
	"github.com/antonkurs/docextract/internal/observability/logging"
	"github.com/antonkurs/docextract/internal/observability/metrics"
)

const serviceName = "docextract-worker"

const runTimeout = 5 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	logger.Info("worker subscribed", "subject", cfg.NATSRunSubject, "concurrency", concurrency)
	err = app.Queue.SubscribeRunCreated(ctx, func(handlerCtx context.Context, runID string) error {
		select {
		case sem <- struct{}{}:
		case <-handlerCtx.Done():
			return handlerCtx.Err()
		}
		wg.Add(1)
		// The handler context dies when this callback returns; the run
		// itself executes under the process lifetime context.
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			processRun(ctx, app, workerMetrics, logger, runID)
		}()
		return nil
	})
	if err != nil {
		logger.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}

	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

func processRun(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics, logger *slog.Logger, runID string) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if run, err := app.QueryUC.GetRun(runCtx, runID); err == nil {
		m.ObserveQueueLag(serviceName, time.Since(run.CreatedAt))
	}

	m.StartRun()
	start := time.Now()
	result, err := app.ExecUC.Execute(runCtx, runID)
	m.FinishRun(serviceName, time.Since(start), err)

	if err != nil {
		logger.Error("run failed", "run_id", runID, "error", err)
		return
	}

	if result.Validation != nil {
		m.RecordValidation(serviceName, result.Validation.IsValid)
	}
	for _, sr := range result.SinkResults {
		var sinkErr error
		if !sr.Success {
			sinkErr = errors.New(sr.Error)
		}
		m.RecordSinkWrite(serviceName, sr.SinkName, sinkErr)
	}
	if result.Validation != nil && !result.Validation.IsValid {
		m.RecordCorrectionExport(serviceName)
	}

	logger.Info("run completed",
		"run_id", runID,
		"stage", result.Run.Stage,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
