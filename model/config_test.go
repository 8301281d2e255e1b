package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetrievalConfig(t *testing.T) {
	cfg := DefaultRetrievalConfig()

	assert.Equal(t, 2000, cfg.PreviewMaxChars)
	assert.Equal(t, 20000, cfg.CharBudget)
	assert.Equal(t, 12, cfg.DefaultTopK)
	assert.Equal(t, 3072, cfg.EmbeddingDim)
	assert.Empty(t, cfg.AlwaysOnSections)
	assert.Empty(t, cfg.RetrievableSections)
}

func TestLoadRetrievalConfig(t *testing.T) {
	t.Run("Valid config file with defaults filled", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "retrieval.yaml")
		content := `always_on_sections:
  - IDENTITY
retrievable_sections:
  - PRICING
  - POLICY
section_descriptions:
  PRICING: Prices and payment conditions
representative_queries:
  daypass_sales_protocol:
    - cuánto cuesta el pasadía
embedding_dim: 384
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		cfg, err := LoadRetrievalConfig(path)
		require.NoError(t, err)

		assert.Equal(t, []string{"IDENTITY"}, cfg.AlwaysOnSections)
		assert.Equal(t, []string{"PRICING", "POLICY"}, cfg.RetrievableSections)
		assert.Equal(t, "Prices and payment conditions", cfg.SectionDescriptions["PRICING"])
		assert.Equal(t, []string{"cuánto cuesta el pasadía"}, cfg.RepresentativeQueries["daypass_sales_protocol"])
		assert.Equal(t, 384, cfg.EmbeddingDim)
		// Unset limits fall back to defaults
		assert.Equal(t, 20000, cfg.CharBudget)
		assert.Equal(t, 2000, cfg.PreviewMaxChars)
		assert.Equal(t, 12, cfg.DefaultTopK)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := LoadRetrievalConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("Malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("always_on_sections: [unclosed"), 0600))

		_, err := LoadRetrievalConfig(path)
		assert.Error(t, err)
	})
}

func TestRetrievalConfigValidate(t *testing.T) {
	t.Run("Valid config", func(t *testing.T) {
		cfg := DefaultRetrievalConfig()
		cfg.AlwaysOnSections = []string{"IDENTITY"}
		cfg.RetrievableSections = []string{"PRICING"}

		assert.NoError(t, cfg.Validate())
	})

	t.Run("Error with no sections", func(t *testing.T) {
		cfg := DefaultRetrievalConfig()

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no always-on or retrievable sections")
	})

	t.Run("Error with overlapping sections", func(t *testing.T) {
		cfg := DefaultRetrievalConfig()
		cfg.AlwaysOnSections = []string{"PRICING"}
		cfg.RetrievableSections = []string{"PRICING"}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "both always-on and retrievable")
	})

	t.Run("Error with non-positive embedding dimension", func(t *testing.T) {
		cfg := DefaultRetrievalConfig()
		cfg.AlwaysOnSections = []string{"IDENTITY"}
		cfg.EmbeddingDim = 0

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must be positive")
	})
}
