package llm

import (
	"context"
	"strings"
)

// EchoGenerator round-trips the prompt it is given. It exists for manual
// CLI smoke-testing (cmd/orchestrator) where a human wants to see the
// orchestrator's context construction without wiring a real provider.
type EchoGenerator struct{}

func (EchoGenerator) Generate(_ context.Context, systemPrompt, prompt string, _ Options) (Result, error) {
	content := "[" + systemPrompt + "]\n" + prompt
	return Result{
		Content:          content,
		PromptTokens:     approxTokens(systemPrompt) + approxTokens(prompt),
		CompletionTokens: approxTokens(content),
		TotalTokens:      approxTokens(systemPrompt) + approxTokens(prompt) + approxTokens(content),
	}, nil
}

func (e EchoGenerator) GenerateStream(ctx context.Context, systemPrompt, prompt string, opts Options) (<-chan StreamChunk, error) {
	res, err := e.Generate(ctx, systemPrompt, prompt, opts)
	if err != nil {
		return nil, err
	}
	words := strings.Fields(res.Content)
	ch := make(chan StreamChunk, len(words)+1)
	for _, w := range words {
		ch <- StreamChunk{Content: w + " "}
	}
	ch <- StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (EchoGenerator) ProviderName() string { return "echo" }
func (EchoGenerator) ModelName() string    { return "echo-1" }

// approxTokens is a crude, provider-independent token estimate (~4 chars
// per token) good enough for the smoke-test harness's accounting.
func approxTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) / 4
	if n == 0 {
		return 1
	}
	return n
}
