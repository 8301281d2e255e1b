package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Chunk is one retrievable unit of the corpus.
// Content carries the exact sub-tree serialization injected back into the
// agent context; EmbeddingText is only used for similarity matching.
type Chunk struct {
	ID            string `json:"id"`
	ModuleName    string `json:"module_name"`
	SectionKey    string `json:"section_key"`
	Content       string `json:"content"`
	EmbeddingText string `json:"embedding_text"`
	CharCount     int    `json:"char_count"`
}

// ChunkID builds the globally unique chunk identity "{section}.{key}".
func ChunkID(moduleName, sectionKey string) string {
	return fmt.Sprintf("%s.%s", moduleName, sectionKey)
}

// QueryResult is one index hit for a retrieval query.
// Results are ordered by ascending Distance; ties keep index insertion order.
type QueryResult struct {
	ChunkID    string  `json:"chunk_id"`
	Content    string  `json:"content"`
	ModuleName string  `json:"module_name"`
	SectionKey string  `json:"section_key"`
	Distance   float64 `json:"distance"`
	CharCount  int     `json:"char_count"`
}

// Relevance converts the cosine distance back to a similarity score.
func (r QueryResult) Relevance() float64 {
	return 1 - r.Distance
}

// IndexInfo describes the current state of a vector index for health checks.
type IndexInfo struct {
	Count      int       `json:"count"`
	Generation uuid.UUID `json:"generation"`
	Backend    string    `json:"backend"`
	Dimension  int       `json:"dimension"`
}
