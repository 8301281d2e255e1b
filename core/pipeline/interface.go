package pipeline

import (
	"context"
	"fmt"

	"github.com/siherrmann/playbook/helper"
	"github.com/siherrmann/playbook/model"
)

// Embedder generates embedding vectors via an external provider.
// EmbedBatch must return exactly one vector per input text, in input order.
// Provider failures are wrapped as model.ErrEmbeddingProvider; the pipeline
// never retries, retry policy belongs to the caller.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Pipeline combines chunking and embedding for indexing runs.
type Pipeline struct {
	Chunker  *Chunker
	Embedder Embedder
}

// NewPipeline creates a new processing pipeline.
func NewPipeline(chunker *Chunker, embedder Embedder) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// Process chunks a corpus and embeds every chunk's embedding text.
// Vectors correspond 1:1 by position to the returned chunks.
func (p *Pipeline) Process(ctx context.Context, c *model.Corpus) ([]model.Chunk, [][]float32, error) {
	chunks, err := p.Chunker.Chunk(c)
	if err != nil {
		return nil, nil, err
	}
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.EmbeddingText
	}

	vectors, err := p.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, helper.NewError("embed chunks", err)
	}
	if len(vectors) != len(chunks) {
		return nil, nil, fmt.Errorf("%w: got %d vectors for %d chunks", model.ErrEmbeddingProvider, len(vectors), len(chunks))
	}

	return chunks, vectors, nil
}
