package retrieval

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siherrmann/playbook/model"
)

// fakeIndex returns canned results and records the query it received.
type fakeIndex struct {
	results  []model.QueryResult
	queryErr error
	lastK    int
}

func (f *fakeIndex) Rebuild(ctx context.Context) error { return nil }

func (f *fakeIndex) AddChunks(ctx context.Context, chunks []model.Chunk, vectors [][]float32) (int, error) {
	return len(chunks), nil
}

func (f *fakeIndex) Swap(ctx context.Context) error { return nil }

func (f *fakeIndex) Query(ctx context.Context, vector []float32, k int) ([]model.QueryResult, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.lastK = k
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

func (f *fakeIndex) Info(ctx context.Context) (model.IndexInfo, error) {
	return model.IndexInfo{Count: len(f.results)}, nil
}

// fakeQueryEmbedder returns a fixed vector and records the text it embedded.
type fakeQueryEmbedder struct {
	dim      int
	err      error
	lastText string
}

func (f *fakeQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastText = text
	return make([]float32, f.dim), nil
}

func engineConfig() *model.RetrievalConfig {
	cfg := model.DefaultRetrievalConfig()
	cfg.RetrievableSections = []string{"PRICING"}
	cfg.EmbeddingDim = 8
	cfg.DefaultTopK = 3
	return &cfg
}

func resultFor(id string, distance float64) model.QueryResult {
	return model.QueryResult{
		ChunkID:  id,
		Content:  "content of " + id,
		Distance: distance,
	}
}

func TestEngineRetrieve(t *testing.T) {
	t.Run("Blocks appear in ascending distance order", func(t *testing.T) {
		index := &fakeIndex{results: []model.QueryResult{
			resultFor("PRICING.daypass", 0.10),
			resultFor("PRICING.rooms", 0.20),
			resultFor("PRICING.spa", 0.30),
		}}
		engine := NewEngine(index, &fakeQueryEmbedder{dim: 8}, engineConfig(), nil)

		formatted := engine.Retrieve(context.Background(), "how much", "", 3)

		first := strings.Index(formatted, "PRICING.daypass")
		second := strings.Index(formatted, "PRICING.rooms")
		third := strings.Index(formatted, "PRICING.spa")
		assert.Greater(t, first, -1)
		assert.Less(t, first, second)
		assert.Less(t, second, third)
	})

	t.Run("Block header carries chunk id and relevance", func(t *testing.T) {
		index := &fakeIndex{results: []model.QueryResult{resultFor("PRICING.daypass", 0.25)}}
		engine := NewEngine(index, &fakeQueryEmbedder{dim: 8}, engineConfig(), nil)

		formatted := engine.Retrieve(context.Background(), "how much", "", 1)

		assert.Contains(t, formatted, "=== PRICING.daypass (relevance: 0.75) ===\ncontent of PRICING.daypass")
	})

	t.Run("Blocks are separated by a blank line", func(t *testing.T) {
		index := &fakeIndex{results: []model.QueryResult{
			resultFor("PRICING.daypass", 0.10),
			resultFor("PRICING.rooms", 0.20),
		}}
		engine := NewEngine(index, &fakeQueryEmbedder{dim: 8}, engineConfig(), nil)

		formatted := engine.Retrieve(context.Background(), "how much", "", 2)

		assert.Contains(t, formatted, "content of PRICING.daypass\n\n=== PRICING.rooms")
	})

	t.Run("Output never exceeds the budget and drops whole blocks", func(t *testing.T) {
		big := model.QueryResult{ChunkID: "PRICING.big", Content: strings.Repeat("x", 300), Distance: 0.1}
		small := model.QueryResult{ChunkID: "PRICING.small", Content: "tiny", Distance: 0.2}
		index := &fakeIndex{results: []model.QueryResult{big, small}}

		cfg := engineConfig()
		cfg.CharBudget = 350
		engine := NewEngine(index, &fakeQueryEmbedder{dim: 8}, cfg, nil)

		formatted := engine.Retrieve(context.Background(), "how much", "", 2)

		assert.LessOrEqual(t, len(formatted), 350)
		assert.Contains(t, formatted, "PRICING.big")
		// The second block does not fit whole, so it is dropped entirely
		assert.NotContains(t, formatted, "PRICING.small")
	})

	t.Run("Empty index yields empty string", func(t *testing.T) {
		engine := NewEngine(&fakeIndex{}, &fakeQueryEmbedder{dim: 8}, engineConfig(), nil)

		formatted := engine.Retrieve(context.Background(), "how much", "", 3)
		assert.Equal(t, "", formatted)
	})

	t.Run("Embedder failure degrades to empty string", func(t *testing.T) {
		embedder := &fakeQueryEmbedder{dim: 8, err: fmt.Errorf("%w: timeout", model.ErrEmbeddingProvider)}
		engine := NewEngine(&fakeIndex{}, embedder, engineConfig(), nil)

		formatted := engine.Retrieve(context.Background(), "how much", "", 3)
		assert.Equal(t, "", formatted)
	})

	t.Run("Index failure degrades to empty string", func(t *testing.T) {
		index := &fakeIndex{queryErr: fmt.Errorf("%w: connection refused", model.ErrIndexUnavailable)}
		engine := NewEngine(index, &fakeQueryEmbedder{dim: 8}, engineConfig(), nil)

		formatted := engine.Retrieve(context.Background(), "how much", "", 3)
		assert.Equal(t, "", formatted)
	})
}

func TestEngineRetrieveResults(t *testing.T) {
	t.Run("Errors propagate instead of degrading", func(t *testing.T) {
		embedder := &fakeQueryEmbedder{dim: 8, err: fmt.Errorf("%w: timeout", model.ErrEmbeddingProvider)}
		engine := NewEngine(&fakeIndex{}, embedder, engineConfig(), nil)

		_, err := engine.RetrieveResults(context.Background(), "how much", "", 3)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrEmbeddingProvider)
	})

	t.Run("Error with wrong query vector dimension", func(t *testing.T) {
		engine := NewEngine(&fakeIndex{}, &fakeQueryEmbedder{dim: 4}, engineConfig(), nil)

		_, err := engine.RetrieveResults(context.Background(), "how much", "", 3)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrEmbeddingProvider)
	})

	t.Run("Non-positive k falls back to the configured default", func(t *testing.T) {
		index := &fakeIndex{results: []model.QueryResult{resultFor("PRICING.daypass", 0.1)}}
		engine := NewEngine(index, &fakeQueryEmbedder{dim: 8}, engineConfig(), nil)

		_, err := engine.RetrieveResults(context.Background(), "how much", "", 0)
		require.NoError(t, err)
		assert.Equal(t, 3, index.lastK)
	})

	t.Run("Conversation context is prepended with the message marker", func(t *testing.T) {
		embedder := &fakeQueryEmbedder{dim: 8}
		engine := NewEngine(&fakeIndex{}, embedder, engineConfig(), nil)

		_, err := engine.RetrieveResults(context.Background(), "and for kids?", "guest asked about day passes", 3)
		require.NoError(t, err)
		assert.Equal(t, "guest asked about day passes\n\nCurrent message: and for kids?", embedder.lastText)
	})

	t.Run("Without context the message is embedded as-is", func(t *testing.T) {
		embedder := &fakeQueryEmbedder{dim: 8}
		engine := NewEngine(&fakeIndex{}, embedder, engineConfig(), nil)

		_, err := engine.RetrieveResults(context.Background(), "how much is the day pass", "", 3)
		require.NoError(t, err)
		assert.Equal(t, "how much is the day pass", embedder.lastText)
	})
}
