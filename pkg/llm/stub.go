package llm

import (
	"context"
	"sync"
)

// Step is one scripted outcome for a StubGenerator key.
type Step struct {
	Result Result
	Err    error
}

// StubGenerator is a deterministic, non-network Generator used by the test
// suite and scenarios S1-S6 of spec §8. Calls are keyed by the exact
// systemPrompt text. Each Agent role uses one fixed system prompt in every
// stage it runs in, so keys distinguish roles; the stage is not part of
// the key.
//
// A key with a non-empty scripted sequence pops one Step per call, in
// order, and then falls back to the static per-key Response once the
// sequence is exhausted (or immediately if no sequence was scripted) —
// this is how S2/S3 express "Timeout twice then success" and "Timeout
// four times" without any network involved.
type StubGenerator struct {
	mu        sync.Mutex
	sequences map[string][]Step
	responses map[string]Result
	def       Result

	provider string
	model    string
}

// NewStubGenerator constructs a StubGenerator whose calls return def by
// default for any key that was never scripted or given a static response.
func NewStubGenerator(def Result) *StubGenerator {
	return &StubGenerator{
		sequences: make(map[string][]Step),
		responses: make(map[string]Result),
		def:       def,
		provider:  "stub",
		model:     "stub-1",
	}
}

// SetResponse fixes the static result returned for key once any scripted
// sequence for that key is exhausted.
func (s *StubGenerator) SetResponse(key string, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[key] = r
}

// Script queues steps to be returned, in order, one per call, for key.
func (s *StubGenerator) Script(key string, steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[key] = append(s.sequences[key], steps...)
}

func (s *StubGenerator) Generate(_ context.Context, systemPrompt, _ string, _ Options) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if queue, ok := s.sequences[systemPrompt]; ok && len(queue) > 0 {
		step := queue[0]
		s.sequences[systemPrompt] = queue[1:]
		return step.Result, step.Err
	}
	if r, ok := s.responses[systemPrompt]; ok {
		return r, nil
	}
	return s.def, nil
}

func (s *StubGenerator) GenerateStream(ctx context.Context, systemPrompt, prompt string, opts Options) (<-chan StreamChunk, error) {
	res, err := s.Generate(ctx, systemPrompt, prompt, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Content: res.Content, Done: true}
	close(ch)
	return ch, nil
}

func (s *StubGenerator) ProviderName() string { return s.provider }
func (s *StubGenerator) ModelName() string    { return s.model }
