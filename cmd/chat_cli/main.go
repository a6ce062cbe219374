// Command chat_cli answers questions typed on standard input.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ahrav/go-trustrag/infrastructure/middleware"
	"github.com/ahrav/go-trustrag/internal/application"
	"github.com/ahrav/go-trustrag/internal/shell"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults to $TRUSTRAG_CONFIG)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "chat_cli: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := application.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := application.NewLogger(cfg.Logging, "chat_cli")
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

	pipeline, err := application.NewPipelineBuilder(cfg, logger, nil).Build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("close pipeline", zap.Error(err))
		}
	}()

	svc := middleware.NewQueryObserver(pipeline.RAG, "console", nil, nil, logger.Named("console"))
	console, err := shell.NewConsole(svc, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	return console.Run(ctx)
}
