package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubGeneratorScriptThenFallback(t *testing.T) {
	g := NewStubGenerator(Result{Content: "default"})
	g.Script("key",
		Step{Err: &Error{Kind: KindTimeout, Message: "timeout 1"}},
		Step{Err: &Error{Kind: KindTimeout, Message: "timeout 2"}},
		Step{Result: Result{Content: "ok"}},
	)

	_, err := g.Generate(context.Background(), "key", "p", Options{})
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, KindTimeout, lerr.Kind)

	_, err = g.Generate(context.Background(), "key", "p", Options{})
	require.Error(t, err)

	res, err := g.Generate(context.Background(), "key", "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)

	// sequence exhausted: falls back to default
	res, err = g.Generate(context.Background(), "key", "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "default", res.Content)
}

func TestStubGeneratorStaticResponsePerKey(t *testing.T) {
	g := NewStubGenerator(Result{Content: "default"})
	g.SetResponse("PROJECT_MANAGER/REQUIREMENTS_ANALYSIS", Result{Content: "pm output"})
	g.SetResponse("ARCHITECT/ARCHITECTURE_DESIGN", Result{Content: "arch output"})

	res, err := g.Generate(context.Background(), "PROJECT_MANAGER/REQUIREMENTS_ANALYSIS", "", Options{})
	require.NoError(t, err)
	assert.Equal(t, "pm output", res.Content)

	res, err = g.Generate(context.Background(), "ARCHITECT/ARCHITECTURE_DESIGN", "", Options{})
	require.NoError(t, err)
	assert.Equal(t, "arch output", res.Content)
}

func TestErrorIsRetryable(t *testing.T) {
	assert.True(t, (&Error{Kind: KindTimeout}).IsRetryable())
	assert.True(t, (&Error{Kind: KindRateLimited}).IsRetryable())
	assert.False(t, (&Error{Kind: KindInvalidRequest}).IsRetryable())
	assert.False(t, (&Error{Kind: KindProviderError}).IsRetryable())
	assert.True(t, (&Error{Kind: KindProviderError, Retryable: true}).IsRetryable())
}

func TestEchoGeneratorRoundTrips(t *testing.T) {
	g := EchoGenerator{}
	res, err := g.Generate(context.Background(), "sys", "hello world", Options{})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "hello world")
	assert.Contains(t, res.Content, "sys")
}
