package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/siherrmann/playbook/helper"
	"github.com/siherrmann/playbook/model"
)

// memoryEntry is one indexed chunk with its vector.
type memoryEntry struct {
	chunkID    string
	content    string
	moduleName string
	sectionKey string
	charCount  int
	vector     []float32
	norm       float64
}

// memoryGeneration is an immutable snapshot of the index contents.
type memoryGeneration struct {
	id      uuid.UUID
	entries []memoryEntry
}

// MemoryIndex is a brute-force cosine similarity index held in memory.
// Published generations are immutable and swapped atomically, so queries
// never block on a rebuild and never observe a partially filled index.
// Safe for concurrent use.
type MemoryIndex struct {
	dimension int

	active atomic.Pointer[memoryGeneration]

	mu      sync.Mutex // guards staging
	staging *memoryGeneration
}

// NewMemoryIndex creates an empty in-memory index for vectors of the given
// dimension.
func NewMemoryIndex(dimension int) (*MemoryIndex, error) {
	if dimension <= 0 {
		return nil, helper.NewError("create memory index", fmt.Errorf("dimension must be positive, got %d", dimension))
	}
	idx := &MemoryIndex{dimension: dimension}
	idx.active.Store(&memoryGeneration{id: uuid.New()})
	return idx, nil
}

// Rebuild opens a fresh empty staging generation, discarding any previous
// staged state. The published generation keeps serving queries.
func (idx *MemoryIndex) Rebuild(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.staging = &memoryGeneration{id: uuid.New()}
	return nil
}

// AddChunks bulk inserts into the staging generation. The batch is validated
// up front; a single malformed item fails the whole call and leaves the
// staging generation untouched.
func (idx *MemoryIndex) AddChunks(ctx context.Context, chunks []model.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, helper.NewError("add chunks", fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors)))
	}

	entries := make([]memoryEntry, 0, len(chunks))
	for i, chunk := range chunks {
		if chunk.ID == "" {
			return 0, helper.NewError("add chunks", fmt.Errorf("chunk at position %d has an empty id", i))
		}
		if len(vectors[i]) != idx.dimension {
			return 0, helper.NewError("add chunks", fmt.Errorf("vector for chunk %q has dimension %d, index expects %d", chunk.ID, len(vectors[i]), idx.dimension))
		}
		vector := make([]float32, len(vectors[i]))
		copy(vector, vectors[i])
		entries = append(entries, memoryEntry{
			chunkID:    chunk.ID,
			content:    chunk.Content,
			moduleName: chunk.ModuleName,
			sectionKey: chunk.SectionKey,
			charCount:  chunk.CharCount,
			vector:     vector,
			norm:       vectorNorm(vector),
		})
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.staging == nil {
		return 0, helper.NewError("add chunks", errors.New("no rebuild in progress, call Rebuild first"))
	}
	idx.staging.entries = append(idx.staging.entries, entries...)
	return len(entries), nil
}

// Swap publishes the staging generation atomically.
func (idx *MemoryIndex) Swap(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.staging == nil {
		return helper.NewError("swap index", errors.New("no staged rebuild to publish"))
	}
	idx.active.Store(idx.staging)
	idx.staging = nil
	return nil
}

// Query returns up to k nearest entries by cosine distance, ascending.
// Ties keep insertion order. An empty index yields an empty slice.
func (idx *MemoryIndex) Query(ctx context.Context, vector []float32, k int) ([]model.QueryResult, error) {
	if len(vector) != idx.dimension {
		return nil, helper.NewError("query index", fmt.Errorf("query vector has dimension %d, index expects %d", len(vector), idx.dimension))
	}
	generation := idx.active.Load()
	if generation == nil || len(generation.entries) == 0 || k <= 0 {
		return []model.QueryResult{}, nil
	}

	queryNorm := vectorNorm(vector)
	results := make([]model.QueryResult, 0, len(generation.entries))
	for _, entry := range generation.entries {
		results = append(results, model.QueryResult{
			ChunkID:    entry.chunkID,
			Content:    entry.content,
			ModuleName: entry.moduleName,
			SectionKey: entry.sectionKey,
			Distance:   cosineDistance(entry.vector, entry.norm, vector, queryNorm),
			CharCount:  entry.charCount,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Info returns the published entry count and generation.
func (idx *MemoryIndex) Info(ctx context.Context) (model.IndexInfo, error) {
	generation := idx.active.Load()
	info := model.IndexInfo{
		Backend:   "memory",
		Dimension: idx.dimension,
	}
	if generation != nil {
		info.Count = len(generation.entries)
		info.Generation = generation.id
	}
	return info, nil
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineDistance is 1 - cosine similarity. Zero vectors get the maximum
// distance of 1.
func cosineDistance(a []float32, normA float64, b []float32, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot/(normA*normB)
}
