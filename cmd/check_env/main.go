// Command check_env verifies that the configured evaluation backend,
// knowledge store, and generation model are reachable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ahrav/go-trustrag/internal/application"
	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

const (
	testQuestion  = "Test question from check_env"
	retrieveQuery = "What models does Cursor support?"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults to $TRUSTRAG_CONFIG)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "check_env: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := application.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := application.NewLogger(cfg.Logging, "check_env")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := application.NewPipelineBuilder(cfg, logger, nil).Build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("close pipeline", zap.Error(err))
		}
	}()

	c := checker{
		evaluator:  pipeline.Evaluator,
		thresholds: cfg.Thresholds(),
		store:      pipeline.Store,
		topK:       cfg.Retrieval.TopK,
		generator:  pipeline.Generator,
	}
	return c.run(ctx, os.Stdout)
}

// checker runs each connectivity check in turn and stops at the first
// failure. A nil evaluator skips the evaluation check.
type checker struct {
	evaluator  ports.EvaluationService
	thresholds map[string]float64
	store      ports.KnowledgeStore
	topK       int
	generator  ports.LLMClient
}

func (c checker) run(ctx context.Context, out io.Writer) error {
	if c.evaluator != nil {
		raw, err := c.evaluator.Evaluate(ctx, ports.EvaluationRequest{
			Query:      testQuestion,
			Response:   testQuestion,
			Prompt:     testQuestion,
			Thresholds: c.thresholds,
		})
		if err != nil {
			return fmt.Errorf("evaluation service: %w", err)
		}
		if _, err := domain.ParseEvaluation(raw, c.thresholds, nil); err != nil {
			return fmt.Errorf("evaluation service: %w", err)
		}
	}

	passages, err := c.store.Search(ctx, retrieveQuery, c.topK)
	if err != nil {
		return fmt.Errorf("knowledge store: %w", err)
	}
	if len(passages) == 0 {
		return errors.New("knowledge store query returned no results: did you forget to sync or build the index?")
	}

	if _, err := c.generator.Complete(ctx, testQuestion, nil); err != nil {
		return fmt.Errorf("generation model: %w", err)
	}

	_, err = fmt.Fprintln(out, "all ok")
	return err
}
