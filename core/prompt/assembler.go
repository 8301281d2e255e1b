// Package prompt builds and caches the always-resident part of the agent
// prompt. The cache is an immutable snapshot swapped atomically, so readers
// never observe a half-built string.
package prompt

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/siherrmann/playbook/helper"
	"github.com/siherrmann/playbook/model"
)

// corePreamble precedes the always-on sections in every prompt.
const corePreamble = `You are a customer-facing assistant. Follow the playbook below exactly.
Never invent policies, prices or availability: if the playbook does not cover
a question, say so and offer to hand over to a human agent. Always answer in
the language the guest writes in.`

// coreUsageInstructions closes the always-on prompt.
const coreUsageInstructions = `Additional playbook sections relevant to the current message are appended
under "RELEVANT PLAYBOOK SECTIONS". Treat them with the same authority as the
core playbook above. If a retrieved section contradicts the core playbook,
the core playbook wins.`

// CorpusSource provides the current corpus, re-read on every reload.
type CorpusSource func(ctx context.Context) (*model.Corpus, error)

// Assembler extracts the always-on corpus sections and caches the assembled
// prompt for the process lifetime. Safe for concurrent use.
type Assembler struct {
	source CorpusSource
	config *model.RetrievalConfig
	logger *slog.Logger

	cached atomic.Pointer[string]
	mu     sync.Mutex // serializes rebuilds
}

// NewAssembler creates a new always-on prompt assembler.
func NewAssembler(source CorpusSource, config *model.RetrievalConfig, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		source: source,
		config: config,
		logger: logger,
	}
}

// Get returns the cached core prompt, building it on first call.
func (a *Assembler) Get(ctx context.Context) (string, error) {
	if cached := a.cached.Load(); cached != nil {
		return *cached, nil
	}
	return a.Reload(ctx)
}

// Reload re-reads the corpus, rebuilds the prompt and swaps the cache.
// Concurrent readers keep seeing the previous value until the swap.
func (a *Assembler) Reload(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	corpus, err := a.source(ctx)
	if err != nil {
		return "", helper.NewError("load corpus for core prompt", err)
	}

	built := a.build(corpus)
	a.cached.Store(&built)

	a.logger.Debug("Rebuilt core prompt", slog.Int("length", len(built)))

	return built, nil
}

// Invalidate drops the cached prompt; the next Get rebuilds it.
func (a *Assembler) Invalidate() {
	a.cached.Store(nil)
}

// build assembles preamble, always-on sections and usage instructions.
// Output is deterministic for a given corpus and configuration.
func (a *Assembler) build(corpus *model.Corpus) string {
	var sb strings.Builder
	sb.WriteString(corePreamble)
	sb.WriteString("\n\n=== CORE PLAYBOOK ===\n")

	for _, sectionName := range a.config.AlwaysOnSections {
		section, ok := corpus.Section(sectionName)
		if !ok {
			a.logger.Warn("Always-on section missing from corpus", slog.String("section", sectionName))
			continue
		}
		sb.WriteString("\n--- ")
		sb.WriteString(sectionName)
		sb.WriteString(" ---\n")
		sb.WriteString(section.JSON())
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(coreUsageInstructions)

	return sb.String()
}
