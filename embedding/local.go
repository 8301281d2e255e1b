package embedding

import (
	"context"
	"fmt"

	"github.com/knights-analytics/hugot"

	"github.com/siherrmann/playbook/helper"
	"github.com/siherrmann/playbook/model"
)

// LocalModelName is the default local sentence transformer model.
// It produces 384-dimensional embeddings.
const LocalModelName = "sentence-transformers/all-MiniLM-L6-v2"

const localModelDimension = 384

// LocalEmbedder generates embeddings with a local ONNX sentence transformer.
// No network access is needed after the initial model download.
type LocalEmbedder struct {
	session *hugot.Session
	run     func(texts []string) ([][]float32, error)
}

// NewLocalEmbedder downloads the model if needed and initializes a hugot
// session with the Go backend. Call Close when done to release the session.
func NewLocalEmbedder() (*LocalEmbedder, error) {
	modelPath, err := helper.PrepareModel(LocalModelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return &LocalEmbedder{
		session: session,
		run: func(texts []string) ([][]float32, error) {
			result, err := sentencePipeline.RunPipeline(texts)
			if err != nil {
				return nil, err
			}
			return result.Embeddings, nil
		},
	}, nil
}

// EmbedBatch generates one vector per input text, in input order.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEmbeddingProvider, err)
	}

	vectors, err := e.run(texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEmbeddingProvider, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", model.ErrEmbeddingProvider, len(vectors), len(texts))
	}

	return vectors, nil
}

// EmbedQuery generates a vector embedding for a single text.
func (e *LocalEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimension returns the embedding vector size.
func (e *LocalEmbedder) Dimension() int {
	return localModelDimension
}

// Close destroys the hugot session.
func (e *LocalEmbedder) Close() error {
	return e.session.Destroy()
}
