package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProvider struct{ name string }

func (s *stubProvider) Complete(context.Context, Request) (Response, error) { return Response{}, nil }
func (s *stubProvider) Stream(context.Context, Request) (Streamer, error)   { return nil, ErrStreamingUnsupported }

func TestRegistryResolveByPrefix(t *testing.T) {
	r := NewRegistry()
	anthropic := &stubProvider{name: "anthropic"}
	r.Register("anthropic", anthropic)

	p, model, err := r.Resolve("anthropic:claude-3-5-sonnet-latest")
	require.NoError(t, err)
	require.Same(t, anthropic, p)
	require.Equal(t, "claude-3-5-sonnet-latest", model)
}

func TestRegistryResolveUnknownPrefixNoFallback(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Resolve("bedrock:claude")
	require.Error(t, err)
}

func TestRegistryResolveFallbackForBareModel(t *testing.T) {
	r := NewRegistry()
	fallback := &stubProvider{name: "fallback"}
	r.SetFallback(fallback)

	p, model, err := r.Resolve("gpt-4o")
	require.NoError(t, err)
	require.Same(t, fallback, p)
	require.Equal(t, "gpt-4o", model)
}

func TestRegistryResolveNoProviderAtAll(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Resolve("anything")
	require.Error(t, err)
}
