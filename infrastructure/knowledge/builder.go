package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-trustrag/internal/ports"
)

// DefaultEmbedBatchSize is the number of chunks sent per embedding call.
const DefaultEmbedBatchSize = 100

// chunkNamespace seeds deterministic chunk ids.
var chunkNamespace = uuid.MustParse("6f1c2f0e-5d0b-4c1e-9f4a-2b7d8e3c1a90")

// BuildOptions tunes BuildIndex.
type BuildOptions struct {
	// BatchSize is the number of chunks per embedding request. Zero selects
	// DefaultEmbedBatchSize.
	BatchSize int

	// Concurrency bounds the embedding requests in flight. Zero means one.
	Concurrency int

	// Extensions lists the file extensions to index. Empty selects
	// .md, .markdown, .mdx and .txt.
	Extensions []string

	Logger *zap.Logger
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultEmbedBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".md", ".markdown", ".mdx", ".txt"}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// BuildIndex reads every matching file under fsys recursively, splits
// each into markdown sections, and embeds the sections with embedder.
// Chunk ids are derived from the source path and section position, so
// rebuilding unchanged documents yields the same ids.
func BuildIndex(ctx context.Context, fsys fs.FS, embedder ports.Embedder, opts BuildOptions) (*Index, error) {
	opts = opts.withDefaults()

	var chunks []Chunk
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !hasExtension(p, opts.Extensions) {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		for i, section := range SplitMarkdown(string(data)) {
			chunks = append(chunks, Chunk{
				ID:     uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", p, i))).String(),
				Source: p,
				Text:   section.Text,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk documents: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no documents with extensions %v found", opts.Extensions)
	}

	opts.Logger.Info("embedding chunks",
		zap.Int("chunks", len(chunks)),
		zap.Int("batch_size", opts.BatchSize),
		zap.String("model", embedder.Model()))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for start := 0; start < len(chunks); start += opts.BatchSize {
		batch := chunks[start:min(start+opts.BatchSize, len(chunks))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vectors, err := embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch at %d: %w", start, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embed batch at %d: got %d vectors for %d chunks", start, len(vectors), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return NewIndex(embedder.Model(), chunks)
}

func hasExtension(p string, exts []string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
