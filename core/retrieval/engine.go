// Package retrieval ranks corpus chunks against conversation text and
// assembles the character-budgeted context block for the agent prompt.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siherrmann/playbook/helper"
	"github.com/siherrmann/playbook/model"
)

// VectorIndex stores chunk vectors and supports similarity queries.
// A rebuild is staged: Rebuild opens a fresh shadow generation, AddChunks
// fills it and Swap publishes it atomically. Queries always run against the
// last published generation and are never blocked by an in-progress rebuild.
type VectorIndex interface {
	// Rebuild discards any staged generation and opens a new empty one.
	Rebuild(ctx context.Context) error

	// AddChunks bulk inserts chunks with their vectors (1:1 by position)
	// into the staged generation. The whole batch fails if any item is
	// malformed. Returns the number of chunks inserted.
	AddChunks(ctx context.Context, chunks []model.Chunk, vectors [][]float32) (int, error)

	// Swap atomically publishes the staged generation, replacing the
	// previous one.
	Swap(ctx context.Context) error

	// Query returns up to k nearest entries by cosine distance, ascending.
	// An empty index yields an empty slice, not an error.
	Query(ctx context.Context, vector []float32, k int) ([]model.QueryResult, error)

	// Info returns entry count and collection metadata.
	Info(ctx context.Context) (model.IndexInfo, error)
}

// QueryEmbedder is the single-text embedding operation the engine needs.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Engine orchestrates query embedding, index lookup and result formatting.
// Queries are independent; the engine holds no per-query state.
type Engine struct {
	index    VectorIndex
	embedder QueryEmbedder
	config   *model.RetrievalConfig
	logger   *slog.Logger
}

// NewEngine creates a new retrieval engine.
func NewEngine(index VectorIndex, embedder QueryEmbedder, config *model.RetrievalConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		index:    index,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}
}

// Retrieve returns the formatted, budgeted context block for a message.
// Failures never propagate past this boundary: any error is logged and
// degrades to an empty string, so a broken retrieval path cannot crash the
// caller's conversation turn.
func (e *Engine) Retrieve(ctx context.Context, userMessage, conversationContext string, k int) string {
	results, err := e.RetrieveResults(ctx, userMessage, conversationContext, k)
	if err != nil {
		e.logger.Error("Retrieval failed, returning empty context", slog.String("error", err.Error()))
		return ""
	}
	return e.format(results)
}

// RetrieveResults is the structured variant of Retrieve for diagnostics and
// tests. Unlike Retrieve it propagates errors faithfully.
func (e *Engine) RetrieveResults(ctx context.Context, userMessage, conversationContext string, k int) ([]model.QueryResult, error) {
	if k <= 0 {
		k = e.config.DefaultTopK
	}

	queryText := buildQueryText(userMessage, conversationContext)

	vector, err := e.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}
	if len(vector) != e.config.EmbeddingDim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index expects %d", model.ErrEmbeddingProvider, len(vector), e.config.EmbeddingDim)
	}

	results, err := e.index.Query(ctx, vector, k)
	if err != nil {
		return nil, helper.NewError("query index", err)
	}

	return results, nil
}

// buildQueryText prepends the conversation context to the current message.
// The separator is part of the embedding contract and must not change.
func buildQueryText(userMessage, conversationContext string) string {
	if conversationContext == "" {
		return userMessage
	}
	return conversationContext + "\n\nCurrent message: " + userMessage
}

// format renders result blocks under the configured character budget.
// A block either fits whole or is dropped together with all lower-ranked
// blocks; partial blocks are never emitted.
func (e *Engine) format(results []model.QueryResult) string {
	var sb strings.Builder
	for _, result := range results {
		block := fmt.Sprintf("=== %s (relevance: %.2f) ===\n%s", result.ChunkID, result.Relevance(), result.Content)
		extra := len(block)
		if sb.Len() > 0 {
			extra += 2 // blank line separator
		}
		if sb.Len()+extra > e.config.CharBudget {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(block)
	}
	return sb.String()
}
