// Command build_index embeds a directory of markdown documents into a
// persisted index usable by the local retrieval backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ahrav/go-trustrag/infrastructure/knowledge"
	"github.com/ahrav/go-trustrag/infrastructure/llm"
	"github.com/ahrav/go-trustrag/internal/application"
)

type options struct {
	configPath  string
	docs        string
	out         string
	upload      string
	batchSize   int
	concurrency int
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "YAML configuration file (defaults to $TRUSTRAG_CONFIG)")
	flag.StringVar(&opts.docs, "docs", "docs", "directory of documents to index")
	flag.StringVar(&opts.out, "out", "", "index location, a path or s3://bucket/key (defaults to retrieval.index_location)")
	flag.StringVar(&opts.upload, "upload", "", "additional s3://bucket/key to upload the index to")
	flag.IntVar(&opts.batchSize, "batch-size", knowledge.DefaultEmbedBatchSize, "chunks per embedding request")
	flag.IntVar(&opts.concurrency, "concurrency", 2, "embedding requests in flight")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "build_index: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := application.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger, err := application.NewLogger(cfg.Logging, "build_index")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := opts.out
	if out == "" {
		out = cfg.Retrieval.IndexLocation
	}
	if out == "" {
		out = "index.json"
	}
	targets := []string{out}
	if opts.upload != "" {
		targets = append(targets, opts.upload)
	}
	locations := make([]knowledge.Location, len(targets))
	for i, t := range targets {
		if locations[i], err = knowledge.ParseLocation(t); err != nil {
			return err
		}
	}

	builder := application.NewPipelineBuilder(cfg, logger, nil)
	embedder, err := builder.Embedder(llm.TaskRetrievalDocument)
	if err != nil {
		return err
	}

	index, err := knowledge.BuildIndex(ctx, os.DirFS(opts.docs), embedder, knowledge.BuildOptions{
		BatchSize:   opts.batchSize,
		Concurrency: opts.concurrency,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	for _, loc := range locations {
		objects, err := builder.ObjectStore(ctx, loc)
		if err != nil {
			return err
		}
		if err := knowledge.SaveIndex(ctx, index, loc, objects); err != nil {
			return err
		}
		logger.Info("index written",
			zap.Stringer("location", loc),
			zap.Int("chunks", len(index.Chunks)),
			zap.String("model", index.Model))
	}
	return nil
}
