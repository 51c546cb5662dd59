package contextcache

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
	"github.com/hrayleung/Jin-sub003/genengine/repository"
)

type fakeCreator struct {
	calls int
	name  string
	err   error
}

func (f *fakeCreator) CreateCachedContent(_ context.Context, _ domain.CreateCacheRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.name, nil
}

func systemMessage(text string) domain.Message {
	return domain.Message{
		Role:  domain.RoleSystem,
		Parts: []domain.ContentPart{{Kind: domain.PartText, Text: text}},
	}
}

func userMessage(text string) domain.Message {
	return domain.Message{
		Role:  domain.RoleUser,
		Parts: []domain.ContentPart{{Kind: domain.PartText, Text: text}},
	}
}

// longSystemPrompt is comfortably past the explicit-cache token threshold
// (2048 tokens at ~4 chars per token).
func longSystemPrompt() string {
	return strings.Repeat("You are a precise assistant. ", 400)
}

func newRequest(provider domain.Provider, model string, messages ...domain.Message) *domain.GenerationRequest {
	return &domain.GenerationRequest{
		Provider:     provider,
		Model:        model,
		Messages:     messages,
		CacheOptions: domain.ContextCacheOptions{Mode: domain.CacheModeAutomatic},
	}
}

func TestNegotiate_ModeOffIsIdentity(t *testing.T) {
	creator := &fakeCreator{name: "cachedContents/abc"}
	n := NewNegotiator(repository.NewMemoryCacheRegistry(), creator)

	req := newRequest(domain.ProviderGemini, "gemini-2.5-pro",
		systemMessage(longSystemPrompt()), userMessage("hi"))
	req.CacheOptions.Mode = domain.CacheModeOff

	before := *req
	beforeMsgs := len(req.Messages)

	n.Negotiate(context.Background(), req)

	assert.Equal(t, before.CacheOptions, req.CacheOptions, "mode off must be a strict identity")
	assert.Len(t, req.Messages, beforeMsgs)
	assert.Zero(t, creator.calls)
}

func TestNegotiate_KeyBasedSetsDeterministicKey(t *testing.T) {
	n := NewNegotiator(repository.NewMemoryCacheRegistry(), nil)

	req1 := newRequest(domain.ProviderOpenAI, "gpt-5", systemMessage("be terse"), userMessage("q"))
	req2 := newRequest(domain.ProviderOpenAI, "gpt-5", systemMessage("be terse"), userMessage("other question"))

	n.Negotiate(context.Background(), req1)
	n.Negotiate(context.Background(), req2)

	require.NotEmpty(t, req1.CacheOptions.CacheKey)
	assert.True(t, strings.HasPrefix(req1.CacheOptions.CacheKey, "jin-prefix-"))
	assert.Equal(t, req1.CacheOptions.CacheKey, req2.CacheOptions.CacheKey,
		"key depends on the stable prefix, not on user turns")

	// Changing the system prompt changes the key.
	req3 := newRequest(domain.ProviderOpenAI, "gpt-5", systemMessage("be verbose"), userMessage("q"))
	n.Negotiate(context.Background(), req3)
	assert.NotEqual(t, req1.CacheOptions.CacheKey, req3.CacheOptions.CacheKey)

	// No remote call, no message rewriting for the key-based family.
	assert.Len(t, req1.Messages, 2)
}

func TestAutomaticOpenAICacheKey_ToolOrderIndependent(t *testing.T) {
	msgs := []domain.Message{systemMessage("sys")}
	a := []domain.ToolDefinition{
		{Name: "alpha", Description: "first", Required: []string{"x"}},
		{Name: "beta", Description: "second", Required: []string{"y", "z"}},
	}
	b := []domain.ToolDefinition{a[1], a[0]}

	assert.Equal(t,
		AutomaticOpenAICacheKey("gpt-5", msgs, a),
		AutomaticOpenAICacheKey("gpt-5", msgs, b),
		"tool declaration order must not change the key")

	changed := []domain.ToolDefinition{a[0], {Name: "beta", Description: "changed", Required: []string{"y", "z"}}}
	assert.NotEqual(t,
		AutomaticOpenAICacheKey("gpt-5", msgs, a),
		AutomaticOpenAICacheKey("gpt-5", msgs, changed))
}

func TestNegotiate_PrefixWindowSetsStrategyOnly(t *testing.T) {
	n := NewNegotiator(repository.NewMemoryCacheRegistry(), nil)

	req := newRequest(domain.ProviderAnthropic, "claude-sonnet-4", systemMessage("sys"), userMessage("q"))
	n.Negotiate(context.Background(), req)

	assert.Equal(t, domain.StrategyPrefixWindow, req.CacheOptions.Strategy)
	assert.Empty(t, req.CacheOptions.CacheKey)
	assert.Empty(t, req.CacheOptions.CachedResourceName)
	assert.Len(t, req.Messages, 2)
}

func TestNegotiate_UnsupportedProviderUntouched(t *testing.T) {
	n := NewNegotiator(repository.NewMemoryCacheRegistry(), nil)

	req := newRequest(domain.Provider("mistral"), "mistral-large", systemMessage(longSystemPrompt()))
	before := *req
	n.Negotiate(context.Background(), req)

	assert.Equal(t, before.CacheOptions, req.CacheOptions)
}

func TestNegotiate_ExplicitSkipsShortSystemPrompt(t *testing.T) {
	creator := &fakeCreator{name: "cachedContents/abc"}
	n := NewNegotiator(repository.NewMemoryCacheRegistry(), creator)

	req := newRequest(domain.ProviderGemini, "gemini-2.5-flash",
		systemMessage("short prompt"), userMessage("q"))
	n.Negotiate(context.Background(), req)

	assert.Zero(t, creator.calls, "a prompt under the token threshold must never hit the provider")
	assert.Empty(t, req.CacheOptions.CachedResourceName)
	assert.Len(t, req.Messages, 2)
}

func TestNegotiate_ExplicitSkipsWithoutSystemMessage(t *testing.T) {
	creator := &fakeCreator{name: "cachedContents/abc"}
	n := NewNegotiator(repository.NewMemoryCacheRegistry(), creator)

	req := newRequest(domain.ProviderGemini, "gemini-2.5-flash", userMessage("q"))
	n.Negotiate(context.Background(), req)

	assert.Zero(t, creator.calls)
}

func TestNegotiate_ExplicitCreatesOnceThenReuses(t *testing.T) {
	creator := &fakeCreator{name: "cachedContents/xyz"}
	registry := repository.NewMemoryCacheRegistry()
	n := NewNegotiator(registry, creator)

	first := newRequest(domain.ProviderGemini, "gemini-2.5-pro",
		systemMessage(longSystemPrompt()), userMessage("q1"))
	n.Negotiate(context.Background(), first)

	require.Equal(t, 1, creator.calls)
	assert.Equal(t, "cachedContents/xyz", first.CacheOptions.CachedResourceName)
	assert.Equal(t, domain.CacheModeExplicit, first.CacheOptions.Mode)
	require.Len(t, first.Messages, 1, "system message must be stripped on success")
	assert.Equal(t, domain.RoleUser, first.Messages[0].Role)
	assert.NoError(t, first.CacheOptions.Validate(), "rewritten options must honor mutual exclusion")

	// Second request within the registry TTL: zero remote calls.
	second := newRequest(domain.ProviderGemini, "gemini-2.5-pro",
		systemMessage(longSystemPrompt()), userMessage("q2"))
	n.Negotiate(context.Background(), second)

	assert.Equal(t, 1, creator.calls, "registry hit must not re-create the resource")
	assert.Equal(t, "cachedContents/xyz", second.CacheOptions.CachedResourceName)
}

func TestNegotiate_ExplicitCreationFailureDegradesSilently(t *testing.T) {
	creator := &fakeCreator{err: errors.New("permission denied")}
	n := NewNegotiator(repository.NewMemoryCacheRegistry(), creator)

	req := newRequest(domain.ProviderGemini, "gemini-2.5-pro",
		systemMessage(longSystemPrompt()), userMessage("q"))
	before := *req
	beforeMsgs := len(req.Messages)

	n.Negotiate(context.Background(), req)

	assert.Equal(t, 1, creator.calls)
	assert.Equal(t, before.CacheOptions, req.CacheOptions, "failed negotiation must leave the request unmodified")
	assert.Len(t, req.Messages, beforeMsgs)
}

func TestNegotiate_ExplicitAlreadyBoundResourcePassesThrough(t *testing.T) {
	creator := &fakeCreator{name: "cachedContents/other"}
	n := NewNegotiator(repository.NewMemoryCacheRegistry(), creator)

	req := newRequest(domain.ProviderGemini, "gemini-2.5-pro", userMessage("q"))
	req.CacheOptions = domain.ContextCacheOptions{
		Mode:               domain.CacheModeExplicit,
		CachedResourceName: "cachedContents/caller-owned",
	}
	n.Negotiate(context.Background(), req)

	assert.Zero(t, creator.calls)
	assert.Equal(t, "cachedContents/caller-owned", req.CacheOptions.CachedResourceName)
}

func TestNormalizeCacheModel(t *testing.T) {
	cases := []struct {
		provider domain.Provider
		in       string
		want     string
	}{
		{domain.ProviderGemini, "gemini-2.5-pro", "models/gemini-2.5-pro"},
		{domain.ProviderGemini, "models/gemini-2.5-pro", "models/gemini-2.5-pro"},
		{domain.ProviderVertex, "gemini-2.5-pro", "publishers/google/models/gemini-2.5-pro"},
		{domain.ProviderVertex, "models/gemini-2.5-pro", "publishers/google/models/gemini-2.5-pro"},
		{domain.ProviderVertex, "publishers/google/models/gemini-2.5-pro", "publishers/google/models/gemini-2.5-pro"},
		{domain.ProviderOpenAI, "gpt-5", "gpt-5"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, normalizeCacheModel(c.provider, c.in), "%s/%s", c.provider, c.in)
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abc"))
	assert.Equal(t, 25, estimateTokens(strings.Repeat("x", 100)))
}
