// Command chat_web serves the chat widget and JSON API over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/ahrav/go-trustrag/infrastructure/middleware"
	"github.com/ahrav/go-trustrag/internal/application"
	"github.com/ahrav/go-trustrag/internal/ports"
	"github.com/ahrav/go-trustrag/internal/shell"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults to $TRUSTRAG_CONFIG)")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "chat_web: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	cfg, err := application.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	logger, err := application.NewLogger(cfg.Logging, "chat_web")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := middleware.InstallTracing(ctx, middleware.TracingOptions{
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewPrometheusMetrics(reg)

	pipeline, err := application.NewPipelineBuilder(cfg, logger, metrics).Build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("close pipeline", zap.Error(err))
		}
	}()

	var evaluator ports.EvaluationService
	if cfg.Server.ServeEvaluations {
		if pipeline.Evaluator == nil {
			logger.Warn("serve_evaluations is set but validation is disabled; /api/evaluate not mounted")
		} else {
			evaluator = pipeline.Evaluator
		}
	}

	svc := middleware.NewQueryObserver(pipeline.RAG, "web", metrics, otel.Tracer("chat_web"), logger.Named("chat"))
	server, err := shell.NewServer(svc, shell.ServerOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Evaluator:      evaluator,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:         logger.Named("http"),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
