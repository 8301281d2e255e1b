package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RetrievalConfig configures corpus partitioning, embedding-text synthesis
// and result assembly. The representative-query table is the main retrieval
// quality lever: it maps subsection keys to phrases users actually type, so
// vocabulary mismatch between corpus and queries is fixed by editing config,
// not code.
type RetrievalConfig struct {
	// Section partitioning
	AlwaysOnSections    []string `yaml:"always_on_sections"`
	RetrievableSections []string `yaml:"retrievable_sections"`

	// Embedding-text synthesis
	SectionDescriptions   map[string]string   `yaml:"section_descriptions,omitempty"`
	RepresentativeQueries map[string][]string `yaml:"representative_queries,omitempty"`
	PreviewMaxChars       int                 `yaml:"preview_max_chars"`

	// Retrieval
	CharBudget   int `yaml:"char_budget"`
	DefaultTopK  int `yaml:"default_top_k"`
	EmbeddingDim int `yaml:"embedding_dim"`
}

// DefaultRetrievalConfig returns a config with sensible limits.
// Section lists are empty and must be set per corpus.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		PreviewMaxChars: 2000,
		CharBudget:      20000,
		DefaultTopK:     12,
		EmbeddingDim:    3072,
	}
}

// LoadRetrievalConfig reads a RetrievalConfig from a YAML file,
// filling unset limits with defaults.
func LoadRetrievalConfig(path string) (*RetrievalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading retrieval config: %w", err)
	}
	cfg := DefaultRetrievalConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing retrieval config: %w", err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

func applyConfigDefaults(cfg *RetrievalConfig) {
	defaults := DefaultRetrievalConfig()
	if cfg.PreviewMaxChars <= 0 {
		cfg.PreviewMaxChars = defaults.PreviewMaxChars
	}
	if cfg.CharBudget <= 0 {
		cfg.CharBudget = defaults.CharBudget
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = defaults.DefaultTopK
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = defaults.EmbeddingDim
	}
}

// Validate checks that the config can drive indexing and retrieval.
func (c *RetrievalConfig) Validate() error {
	if len(c.RetrievableSections) == 0 && len(c.AlwaysOnSections) == 0 {
		return fmt.Errorf("no always-on or retrievable sections configured")
	}
	seen := make(map[string]bool, len(c.AlwaysOnSections))
	for _, name := range c.AlwaysOnSections {
		seen[name] = true
	}
	for _, name := range c.RetrievableSections {
		if seen[name] {
			return fmt.Errorf("section %q is both always-on and retrievable", name)
		}
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.EmbeddingDim)
	}
	return nil
}
