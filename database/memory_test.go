package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siherrmann/playbook/model"
)

func testChunk(id string) model.Chunk {
	return model.Chunk{
		ID:         id,
		ModuleName: "PRICING",
		SectionKey: id,
		Content:    "content of " + id,
		CharCount:  len("content of " + id),
	}
}

func TestNewMemoryIndex(t *testing.T) {
	t.Run("Valid dimension", func(t *testing.T) {
		idx, err := NewMemoryIndex(4)
		require.NoError(t, err)

		info, err := idx.Info(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, info.Count)
		assert.Equal(t, "memory", info.Backend)
		assert.Equal(t, 4, info.Dimension)
	})

	t.Run("Error with non-positive dimension", func(t *testing.T) {
		_, err := NewMemoryIndex(0)
		assert.Error(t, err)
	})
}

func TestMemoryIndexRebuildCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Rebuild, add and swap publishes chunks", func(t *testing.T) {
		idx, err := NewMemoryIndex(2)
		require.NoError(t, err)

		require.NoError(t, idx.Rebuild(ctx))
		inserted, err := idx.AddChunks(ctx,
			[]model.Chunk{testChunk("daypass"), testChunk("rooms")},
			[][]float32{{1, 0}, {0, 1}},
		)
		require.NoError(t, err)
		assert.Equal(t, 2, inserted)
		require.NoError(t, idx.Swap(ctx))

		info, err := idx.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, info.Count)
		assert.NotEmpty(t, info.Generation)
	})

	t.Run("Error adding without rebuild", func(t *testing.T) {
		idx, err := NewMemoryIndex(2)
		require.NoError(t, err)

		_, err = idx.AddChunks(ctx, []model.Chunk{testChunk("daypass")}, [][]float32{{1, 0}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no rebuild in progress")
	})

	t.Run("Error swapping without rebuild", func(t *testing.T) {
		idx, err := NewMemoryIndex(2)
		require.NoError(t, err)

		err = idx.Swap(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no staged rebuild")
	})

	t.Run("Queries keep seeing the old generation during a rebuild", func(t *testing.T) {
		idx, err := NewMemoryIndex(2)
		require.NoError(t, err)

		require.NoError(t, idx.Rebuild(ctx))
		_, err = idx.AddChunks(ctx, []model.Chunk{testChunk("daypass")}, [][]float32{{1, 0}})
		require.NoError(t, err)
		require.NoError(t, idx.Swap(ctx))

		// Open a new rebuild but do not publish it yet
		require.NoError(t, idx.Rebuild(ctx))
		_, err = idx.AddChunks(ctx, []model.Chunk{testChunk("rooms")}, [][]float32{{0, 1}})
		require.NoError(t, err)

		results, err := idx.Query(ctx, []float32{0, 1}, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "daypass", results[0].ChunkID)

		require.NoError(t, idx.Swap(ctx))

		results, err = idx.Query(ctx, []float32{0, 1}, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "rooms", results[0].ChunkID)
	})

	t.Run("Generation changes on every publish", func(t *testing.T) {
		idx, err := NewMemoryIndex(2)
		require.NoError(t, err)

		first, err := idx.Info(ctx)
		require.NoError(t, err)

		require.NoError(t, idx.Rebuild(ctx))
		require.NoError(t, idx.Swap(ctx))

		second, err := idx.Info(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, first.Generation, second.Generation)
	})
}

func TestMemoryIndexAddChunksValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("Error with count mismatch", func(t *testing.T) {
		idx, err := NewMemoryIndex(2)
		require.NoError(t, err)
		require.NoError(t, idx.Rebuild(ctx))

		_, err = idx.AddChunks(ctx, []model.Chunk{testChunk("daypass")}, [][]float32{{1, 0}, {0, 1}})
		assert.Error(t, err)
	})

	t.Run("Error with wrong vector dimension rejects the whole batch", func(t *testing.T) {
		idx, err := NewMemoryIndex(2)
		require.NoError(t, err)
		require.NoError(t, idx.Rebuild(ctx))

		_, err = idx.AddChunks(ctx,
			[]model.Chunk{testChunk("daypass"), testChunk("rooms")},
			[][]float32{{1, 0}, {0, 1, 2}},
		)
		require.Error(t, err)
		require.NoError(t, idx.Swap(ctx))

		info, err := idx.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, info.Count, "a failed batch must not leave partial state")
	})

	t.Run("Error with empty chunk id", func(t *testing.T) {
		idx, err := NewMemoryIndex(2)
		require.NoError(t, err)
		require.NoError(t, idx.Rebuild(ctx))

		_, err = idx.AddChunks(ctx, []model.Chunk{{}}, [][]float32{{1, 0}})
		assert.Error(t, err)
	})
}

func TestMemoryIndexQuery(t *testing.T) {
	ctx := context.Background()

	populate := func(t *testing.T) *MemoryIndex {
		t.Helper()
		idx, err := NewMemoryIndex(2)
		require.NoError(t, err)
		require.NoError(t, idx.Rebuild(ctx))
		_, err = idx.AddChunks(ctx,
			[]model.Chunk{testChunk("daypass"), testChunk("rooms"), testChunk("spa")},
			[][]float32{{1, 0}, {0, 1}, {0.7, 0.7}},
		)
		require.NoError(t, err)
		require.NoError(t, idx.Swap(ctx))
		return idx
	}

	t.Run("Results ordered by ascending cosine distance", func(t *testing.T) {
		idx := populate(t)

		results, err := idx.Query(ctx, []float32{1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "daypass", results[0].ChunkID)
		assert.Equal(t, "spa", results[1].ChunkID)
		assert.Equal(t, "rooms", results[2].ChunkID)
		assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
		assert.LessOrEqual(t, results[1].Distance, results[2].Distance)
	})

	t.Run("Self query has near-zero distance", func(t *testing.T) {
		idx := populate(t)

		results, err := idx.Query(ctx, []float32{0, 1}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "rooms", results[0].ChunkID)
		assert.InDelta(t, 0, results[0].Distance, 1e-6)
	})

	t.Run("K larger than index returns everything", func(t *testing.T) {
		idx := populate(t)

		results, err := idx.Query(ctx, []float32{1, 0}, 100)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("Empty index returns empty slice", func(t *testing.T) {
		idx, err := NewMemoryIndex(2)
		require.NoError(t, err)

		results, err := idx.Query(ctx, []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Error with wrong query dimension", func(t *testing.T) {
		idx := populate(t)

		_, err := idx.Query(ctx, []float32{1, 0, 0}, 5)
		assert.Error(t, err)
	})

	t.Run("Result carries chunk fields", func(t *testing.T) {
		idx := populate(t)

		results, err := idx.Query(ctx, []float32{1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "content of daypass", results[0].Content)
		assert.Equal(t, "PRICING", results[0].ModuleName)
		assert.Equal(t, "daypass", results[0].SectionKey)
		assert.Equal(t, len("content of daypass"), results[0].CharCount)
	})
}
