// Package playbook turns a YAML policy corpus into an always-on core prompt
// plus a vector-retrievable chunk index for conversational agents.
package playbook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/siherrmann/playbook/core/corpus"
	"github.com/siherrmann/playbook/core/pipeline"
	"github.com/siherrmann/playbook/core/prompt"
	"github.com/siherrmann/playbook/core/retrieval"
	"github.com/siherrmann/playbook/database"
	"github.com/siherrmann/playbook/helper"
	"github.com/siherrmann/playbook/model"
	loadSql "github.com/siherrmann/playbook/sql"
)

// Playbook provides a unified interface to corpus loading, indexing,
// retrieval and the always-on core prompt.
type Playbook struct {
	DB        *helper.Database
	Index     retrieval.VectorIndex
	Pipeline  *pipeline.Pipeline
	Engine    *retrieval.Engine
	Assembler *prompt.Assembler

	config     *model.RetrievalConfig
	corpusPath string
	// Logging
	log *slog.Logger
}

// NewPlaybook creates a Playbook with an in-memory vector index. Suited for
// tests and single-process deployments where the index is rebuilt on start.
func NewPlaybook(corpusPath string, config *model.RetrievalConfig, embedder pipeline.Embedder) (*Playbook, error) {
	logger := newLogger()

	config, err := prepareConfig(config, embedder)
	if err != nil {
		return nil, err
	}

	index, err := database.NewMemoryIndex(config.EmbeddingDim)
	if err != nil {
		return nil, helper.NewError("create memory index", err)
	}

	return assemble(corpusPath, config, embedder, index, nil, logger), nil
}

// NewPlaybookWithDatabase creates a Playbook backed by a pgvector index so
// the chunk index survives restarts and is shared between processes.
func NewPlaybookWithDatabase(corpusPath string, config *model.RetrievalConfig, embedder pipeline.Embedder, dbConfig *helper.DatabaseConfiguration) (*Playbook, error) {
	logger := newLogger()

	config, err := prepareConfig(config, embedder)
	if err != nil {
		return nil, err
	}

	db := helper.NewDatabase("playbook", dbConfig, logger)
	err = loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// force=false to not reload if functions already exist
	index, err := database.NewIndexDBHandler(db, config.EmbeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create index handler", err)
	}

	return assemble(corpusPath, config, embedder, index, db, logger), nil
}

func newLogger() *slog.Logger {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	return slog.New(helper.NewPrettyHandler(os.Stdout, opts))
}

// prepareConfig fills defaults, validates the configuration and checks that
// the embedder's vector size matches the configured index dimension. A
// mismatch here would otherwise only surface on the first indexing run.
func prepareConfig(config *model.RetrievalConfig, embedder pipeline.Embedder) (*model.RetrievalConfig, error) {
	if config == nil {
		defaults := model.DefaultRetrievalConfig()
		config = &defaults
	}
	if embedder == nil {
		return nil, helper.NewError("embedder validation", fmt.Errorf("embedder is nil"))
	}
	if embedder.Dimension() != config.EmbeddingDim {
		return nil, helper.NewError("embedder validation", fmt.Errorf("embedder produces %d-dimensional vectors, configuration expects %d", embedder.Dimension(), config.EmbeddingDim))
	}
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("configuration validation", err)
	}
	return config, nil
}

func assemble(corpusPath string, config *model.RetrievalConfig, embedder pipeline.Embedder, index retrieval.VectorIndex, db *helper.Database, logger *slog.Logger) *Playbook {
	chunker := pipeline.NewChunker(config, logger)
	processingPipeline := pipeline.NewPipeline(chunker, embedder)
	engine := retrieval.NewEngine(index, embedder, config, logger)

	source := func(ctx context.Context) (*model.Corpus, error) {
		return corpus.Load(corpusPath)
	}
	assembler := prompt.NewAssembler(source, config, logger)

	return &Playbook{
		DB:         db,
		Index:      index,
		Pipeline:   processingPipeline,
		Engine:     engine,
		Assembler:  assembler,
		config:     config,
		corpusPath: corpusPath,
		log:        logger,
	}
}

// IndexAll loads the corpus, chunks and embeds it and publishes a fresh
// index generation. With rebuild false it is an idempotent warmup: a
// populated index is left untouched and its chunk count returned. Queries
// against the previous generation keep working during a rebuild.
func (p *Playbook) IndexAll(ctx context.Context, rebuild bool) (int, error) {
	if !rebuild {
		info, err := p.Index.Info(ctx)
		if err != nil {
			return 0, helper.NewError("read index info", err)
		}
		if info.Count > 0 {
			p.log.Info("Index already populated, skipping", slog.Int("count", info.Count))
			return info.Count, nil
		}
	}

	loadedCorpus, err := corpus.Load(p.corpusPath)
	if err != nil {
		return 0, helper.NewError("load corpus", err)
	}

	chunks, vectors, err := p.Pipeline.Process(ctx, loadedCorpus)
	if err != nil {
		return 0, helper.NewError("process corpus", err)
	}

	p.log.Info("Processed corpus into chunks", slog.Int("num_chunks", len(chunks)))

	err = p.Index.Rebuild(ctx)
	if err != nil {
		return 0, helper.NewError("begin index rebuild", err)
	}

	inserted, err := p.Index.AddChunks(ctx, chunks, vectors)
	if err != nil {
		return 0, helper.NewError("add chunks", err)
	}

	err = p.Index.Swap(ctx)
	if err != nil {
		return 0, helper.NewError("publish index", err)
	}

	p.log.Info("Published index", slog.Int("num_chunks", inserted))

	return inserted, nil
}

// Retrieve returns the formatted context block for a message, or an empty
// string when retrieval fails or nothing is indexed.
func (p *Playbook) Retrieve(ctx context.Context, userMessage, conversationContext string, k int) string {
	return p.Engine.Retrieve(ctx, userMessage, conversationContext, k)
}

// RetrieveResults returns ranked raw results and propagates errors.
func (p *Playbook) RetrieveResults(ctx context.Context, userMessage, conversationContext string, k int) ([]model.QueryResult, error) {
	return p.Engine.RetrieveResults(ctx, userMessage, conversationContext, k)
}

// CorePrompt returns the cached always-on prompt, building it on first call.
func (p *Playbook) CorePrompt(ctx context.Context) (string, error) {
	return p.Assembler.Get(ctx)
}

// ReloadCorePrompt re-reads the corpus and rebuilds the always-on prompt.
func (p *Playbook) ReloadCorePrompt(ctx context.Context) (string, error) {
	return p.Assembler.Reload(ctx)
}

// IndexInfo returns the published chunk count and index metadata.
func (p *Playbook) IndexInfo(ctx context.Context) (model.IndexInfo, error) {
	return p.Index.Info(ctx)
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat.
// Only available with the pgvector backend.
func (p *Playbook) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	handler, ok := p.Index.(*database.IndexDBHandler)
	if !ok {
		return helper.NewError("change index type", fmt.Errorf("index backend does not support index tuning"))
	}
	return handler.ChangeIndexType(ctx, indexType, params)
}

// Close releases the embedder and the database connection if present.
func (p *Playbook) Close() error {
	if closer, ok := p.Pipeline.Embedder.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return helper.NewError("close embedder", err)
		}
	}
	if p.DB != nil && p.DB.Instance != nil {
		return p.DB.Instance.Close()
	}
	return nil
}
