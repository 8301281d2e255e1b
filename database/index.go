package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/playbook/helper"
	"github.com/siherrmann/playbook/model"
	loadSql "github.com/siherrmann/playbook/sql"
)

// IndexDBHandlerFunctions defines the interface for index database operations.
type IndexDBHandlerFunctions interface {
	Rebuild(ctx context.Context) error
	AddChunks(ctx context.Context, chunks []model.Chunk, vectors [][]float32) (int, error)
	Swap(ctx context.Context) error
	Query(ctx context.Context, vector []float32, k int) ([]model.QueryResult, error)
	Info(ctx context.Context) (model.IndexInfo, error)
}

// IndexDBHandler is the pgvector-backed chunk index. Rebuilds go through a
// staging table that publish swaps in atomically, so similarity queries keep
// running against the last published generation throughout a rebuild.
type IndexDBHandler struct {
	db        *helper.Database
	dimension int
}

// NewIndexDBHandler creates a new index database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewIndexDBHandler(db *helper.Database, embeddingDim int, force bool) (*IndexDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	indexDbHandler := &IndexDBHandler{
		db:        db,
		dimension: embeddingDim,
	}

	err := loadSql.LoadChunksSql(indexDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = indexDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized IndexDBHandler")

	return indexDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary extensions, indexes, and triggers.
func (h *IndexDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// Rebuild opens a fresh staging table, discarding any previously staged rows.
// The published generation keeps serving queries.
func (h *IndexDBHandler) Rebuild(ctx context.Context) error {
	_, err := h.db.Instance.ExecContext(
		ctx,
		`SELECT begin_chunks_rebuild($1)`,
		h.dimension,
	)
	if err != nil {
		return helper.NewError("begin rebuild", err)
	}
	return nil
}

// AddChunks bulk inserts chunks into the staging table in one transaction.
// The batch is validated up front; any malformed item fails the whole call
// and the transaction is rolled back.
func (h *IndexDBHandler) AddChunks(ctx context.Context, chunks []model.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, helper.NewError("add chunks", fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors)))
	}
	for i, chunk := range chunks {
		if chunk.ID == "" {
			return 0, helper.NewError("add chunks", fmt.Errorf("chunk at position %d has an empty id", i))
		}
		if len(vectors[i]) != h.dimension {
			return 0, helper.NewError("add chunks", fmt.Errorf("vector for chunk %q has dimension %d, index expects %d", chunk.ID, len(vectors[i]), h.dimension))
		}
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return 0, helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `SELECT stage_chunk($1, $2, $3::jsonb, $4::vector)`)
	if err != nil {
		return 0, helper.NewError("prepare statement", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		metadata := model.Metadata{
			"module_name": chunk.ModuleName,
			"section_key": chunk.SectionKey,
			"char_count":  chunk.CharCount,
		}
		_, err := stmt.ExecContext(
			ctx,
			chunk.ID,
			chunk.Content,
			metadata,
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return 0, helper.NewError(fmt.Sprintf("stage chunk %s", chunk.ID), err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return 0, helper.NewError("commit", err)
	}

	return len(chunks), nil
}

// Swap publishes the staged generation atomically.
func (h *IndexDBHandler) Swap(ctx context.Context) error {
	var generation uuid.UUID
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT publish_chunks()`,
	).Scan(&generation)
	if err != nil {
		return helper.NewError("publish chunks", err)
	}

	h.db.Logger.Info("Published index generation", "generation", generation.String())

	return nil
}

// Query returns up to k nearest chunks by cosine distance, ascending.
// Backend failures are wrapped as model.ErrIndexUnavailable.
func (h *IndexDBHandler) Query(ctx context.Context, vector []float32, k int) ([]model.QueryResult, error) {
	if len(vector) != h.dimension {
		return nil, helper.NewError("query index", fmt.Errorf("query vector has dimension %d, index expects %d", len(vector), h.dimension))
	}
	if k <= 0 {
		return []model.QueryResult{}, nil
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_similarity($1::vector, $2)`,
		pgvector.NewVector(vector),
		k,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	results := []model.QueryResult{}
	for rows.Next() {
		result := model.QueryResult{}
		metadata := model.Metadata{}
		err := rows.Scan(
			&result.ChunkID,
			&result.Content,
			&metadata,
			&result.Distance,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		if moduleName, ok := metadata["module_name"].(string); ok {
			result.ModuleName = moduleName
		}
		if sectionKey, ok := metadata["section_key"].(string); ok {
			result.SectionKey = sectionKey
		}
		if charCount, ok := metadata["char_count"].(float64); ok {
			result.CharCount = int(charCount)
		}

		results = append(results, result)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrIndexUnavailable, err)
	}

	return results, nil
}

// Info returns the published chunk count and generation.
func (h *IndexDBHandler) Info(ctx context.Context) (model.IndexInfo, error) {
	info := model.IndexInfo{
		Backend:   "pgvector",
		Dimension: h.dimension,
	}

	var count int64
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_chunks_info()`,
	).Scan(&count, &info.Generation)
	if err != nil {
		return model.IndexInfo{}, fmt.Errorf("%w: %v", model.ErrIndexUnavailable, err)
	}
	info.Count = int(count)

	return info, nil
}
