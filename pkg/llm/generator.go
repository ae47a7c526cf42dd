// Package llm defines the Generator capability the orchestration core
// consumes for text generation (spec §4.3), deliberately narrow: the core
// never talks to a network provider directly. Concrete provider adapters
// are an external collaborator; this package only ships deterministic,
// non-network implementations used for tests and manual smoke-testing
// (StubGenerator, EchoGenerator).
package llm

import "context"

// Options carries the tunable generation parameters the core forwards to
// a Generator, opaque to the orchestrator otherwise.
type Options struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Result is the outcome of a successful generation.
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamChunk is one piece of a streaming generation.
type StreamChunk struct {
	Content string
	Done    bool
}

// Generator is the capability interface the core consumes.
type Generator interface {
	// Generate performs a single, non-streaming generation call.
	Generate(ctx context.Context, systemPrompt, prompt string, opts Options) (Result, error)

	// GenerateStream performs a streaming generation call. The returned
	// channel is closed when generation finishes or ctx is canceled; a
	// non-nil error terminates the stream without necessarily closing it
	// gracefully (the caller should stop reading on error).
	GenerateStream(ctx context.Context, systemPrompt, prompt string, opts Options) (<-chan StreamChunk, error)

	// ProviderName and ModelName identify the backing provider/model for
	// cost accounting and progress reporting.
	ProviderName() string
	ModelName() string
}
