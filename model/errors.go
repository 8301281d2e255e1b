package model

import "errors"

// Error kinds surfaced at the component boundaries.
// Wrap with fmt.Errorf("%w: ...") and check with errors.Is.
var (
	// ErrCorpusParse marks a malformed source document. Fatal at load time,
	// aborts indexing; an already built index or cached prompt is unaffected.
	ErrCorpusParse = errors.New("corpus parse error")

	// ErrEmbeddingProvider marks a network, timeout or rate-limit failure of
	// the embedding provider. The core never retries; retry policy belongs to
	// the caller.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrIndexUnavailable marks an unreachable index backend. Retrieval
	// degrades to an empty result instead of crashing the conversation turn.
	ErrIndexUnavailable = errors.New("index unavailable")
)
