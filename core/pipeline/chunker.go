package pipeline

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/siherrmann/playbook/model"
)

// Chunker partitions the retrievable corpus sections into addressable chunks,
// one per direct child key. Each chunk carries the exact JSON serialization
// of its sub-tree and a synthesized embedding text used only for similarity
// matching.
type Chunker struct {
	config *model.RetrievalConfig
	logger *slog.Logger
}

// NewChunker creates a new corpus chunker.
func NewChunker(config *model.RetrievalConfig, logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{
		config: config,
		logger: logger,
	}
}

// Chunk builds the chunk set for a corpus. Sections are visited in the order
// of the configured retrievable-section list; child keys in document order.
// The output is deterministic: repeated calls on the same corpus yield
// byte-identical content and embedding text for every chunk id.
func (c *Chunker) Chunk(corpus *model.Corpus) ([]model.Chunk, error) {
	if corpus == nil || corpus.Root == nil {
		return nil, fmt.Errorf("%w: corpus is empty", model.ErrCorpusParse)
	}

	var chunks []model.Chunk
	seen := make(map[string]bool)

	for _, sectionName := range c.config.RetrievableSections {
		section, ok := corpus.Section(sectionName)
		if !ok {
			continue
		}
		if section.Kind != model.KindMapping {
			c.logger.Warn("Skipping retrievable section that is not a mapping", slog.String("section", sectionName))
			continue
		}

		for _, entry := range section.Entries {
			id := model.ChunkID(sectionName, entry.Key)
			if seen[id] {
				c.logger.Warn("Skipping duplicate chunk id", slog.String("chunk_id", id))
				continue
			}
			seen[id] = true

			content := singleEntryJSON(entry.Key, entry.Value)
			chunks = append(chunks, model.Chunk{
				ID:            id,
				ModuleName:    sectionName,
				SectionKey:    entry.Key,
				Content:       content,
				EmbeddingText: c.buildEmbeddingText(sectionName, entry.Key, entry.Value),
				CharCount:     len(content),
			})
		}
	}

	return chunks, nil
}

// singleEntryJSON serializes {key: value} as indented JSON.
func singleEntryJSON(key string, value *model.Node) string {
	wrapper := &model.Node{
		Kind:    model.KindMapping,
		Entries: []model.MapEntry{{Key: key, Value: value}},
	}
	return wrapper.JSON()
}

// buildEmbeddingText synthesizes the retrieval-optimized representation of a
// chunk: section description, readable key, curated representative queries
// from config and a capped flattened content preview.
func (c *Chunker) buildEmbeddingText(sectionName, key string, value *model.Node) string {
	description := c.config.SectionDescriptions[sectionName]
	if description == "" {
		description = humanize(sectionName)
	}

	var sb strings.Builder
	sb.WriteString(description)
	sb.WriteString(": ")
	sb.WriteString(humanize(key))
	sb.WriteString(".")

	if phrases := c.config.RepresentativeQueries[key]; len(phrases) > 0 {
		sb.WriteString(" Representative queries: ")
		sb.WriteString(strings.Join(phrases, ", "))
		sb.WriteString(".")
	}

	if preview := flattenPreview(value, c.config.PreviewMaxChars); preview != "" {
		sb.WriteString(" ")
		sb.WriteString(preview)
	}

	return sb.String()
}

// humanize turns a corpus key into readable text ("daypass_sales_protocol"
// becomes "daypass sales protocol").
func humanize(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// flattenPreview walks a sub-tree collecting map keys and string values in
// document order, joined by single spaces. The result never exceeds limit and
// pieces are not cut mid-token unless a single piece alone exceeds the limit.
func flattenPreview(n *model.Node, limit int) string {
	if limit <= 0 {
		return ""
	}

	var sb strings.Builder
	appendPiece := func(piece string) bool {
		if piece == "" {
			return true
		}
		extra := len(piece)
		if sb.Len() > 0 {
			extra++ // separator
		}
		if sb.Len()+extra > limit {
			if sb.Len() == 0 {
				sb.WriteString(cutAtWordBoundary(piece, limit))
			}
			return false
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(piece)
		return true
	}

	collectPreview(n, appendPiece)
	return sb.String()
}

// collectPreview walks the tree depth first, feeding pieces to appendPiece
// until it reports that the limit is reached.
func collectPreview(n *model.Node, appendPiece func(string) bool) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case model.KindMapping:
		for _, entry := range n.Entries {
			// Keys often encode salient policy terms, include them too.
			if !appendPiece(humanize(entry.Key)) {
				return false
			}
			if !collectPreview(entry.Value, appendPiece) {
				return false
			}
		}
	case model.KindSequence:
		for _, item := range n.Items {
			if !collectPreview(item, appendPiece) {
				return false
			}
		}
	default:
		if n.Tag == "" || n.Tag == "!!str" {
			return appendPiece(strings.TrimSpace(n.Value))
		}
	}
	return true
}

// cutAtWordBoundary shortens a piece to at most limit characters, preferring
// the last space before the limit.
func cutAtWordBoundary(piece string, limit int) string {
	if len(piece) <= limit {
		return piece
	}
	cut := piece[:limit]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}
