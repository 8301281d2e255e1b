// Package embedding provides embedding providers for the indexing pipeline:
// an OpenAI-compatible HTTP adapter and a local ONNX sentence transformer.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/siherrmann/playbook/helper"
	"github.com/siherrmann/playbook/model"
)

// Default configuration values.
const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultModel        = "text-embedding-3-large"
	DefaultTimeout      = 60 * time.Second
	DefaultMaxBatchSize = 2048
	DefaultAPIKeyEnv    = "OPENAI_API_KEY"
)

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig holds configuration for the OpenAI embedding provider.
type OpenAIConfig struct {
	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// APIKeyEnv names the environment variable holding the API key
	// (default: OPENAI_API_KEY).
	APIKeyEnv string

	// Model is the embedding model to use (default: text-embedding-3-large).
	Model string

	// Dimension overrides the default dimension for the model.
	Dimension int

	// MaxBatchSize caps the number of inputs per API request; larger
	// batches are split (default: 2048).
	MaxBatchSize int

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration
}

// OpenAIEmbedder generates embeddings via an OpenAI-compatible API.
// It never retries; retry policy belongs to the caller. All provider
// failures are wrapped as model.ErrEmbeddingProvider.
type OpenAIEmbedder struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	model        string
	dimension    int
	maxBatchSize int
}

// embeddingRequest is the OpenAI API request format.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the OpenAI API response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIEmbedder creates a new OpenAI embedding provider.
func NewOpenAIEmbedder(config OpenAIConfig) (*OpenAIEmbedder, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.APIKeyEnv == "" {
		config.APIKeyEnv = DefaultAPIKeyEnv
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultMaxBatchSize
	}

	apiKey := os.Getenv(config.APIKeyEnv)
	if apiKey == "" {
		return nil, helper.NewError("openai configuration validation", fmt.Errorf("environment variable %s is not set", config.APIKeyEnv))
	}

	dimension := config.Dimension
	if dimension == 0 {
		var ok bool
		dimension, ok = modelDimensions[config.Model]
		if !ok {
			return nil, helper.NewError("openai configuration validation", fmt.Errorf("unknown model %q, set Dimension explicitly", config.Model))
		}
	}

	return &OpenAIEmbedder{
		client: &http.Client{
			Timeout: config.Timeout,
		},
		baseURL:      config.BaseURL,
		apiKey:       apiKey,
		model:        config.Model,
		dimension:    dimension,
		maxBatchSize: config.MaxBatchSize,
	}, nil
}

// EmbedBatch generates one vector per input text, in input order. Batches
// larger than the configured maximum are split into sequential requests.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.maxBatchSize {
		end := start + e.maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedQuery generates a vector embedding for a single text.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimension returns the embedding vector size.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// embed runs a single API request for at most maxBatchSize inputs.
func (e *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Model: e.model,
		Input: texts,
	}

	// Only text-embedding-3-* models accept a dimensions parameter.
	if e.model == "text-embedding-3-small" || e.model == "text-embedding-3-large" {
		reqBody.Dimensions = e.dimension
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", model.ErrEmbeddingProvider, err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+"/embeddings",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", model.ErrEmbeddingProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", model.ErrEmbeddingProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", model.ErrEmbeddingProvider, err)
	}

	var embedResp embeddingResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", model.ErrEmbeddingProvider, err)
	}

	if embedResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrEmbeddingProvider, embedResp.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", model.ErrEmbeddingProvider, resp.StatusCode, string(body))
	}

	if len(embedResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", model.ErrEmbeddingProvider, len(embedResp.Data), len(texts))
	}

	// Convert float64 to float32 and order by index.
	vectors := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", model.ErrEmbeddingProvider, data.Index)
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		vectors[data.Index] = vector
	}
	for i, vector := range vectors {
		if vector == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", model.ErrEmbeddingProvider, i)
		}
	}

	return vectors, nil
}
