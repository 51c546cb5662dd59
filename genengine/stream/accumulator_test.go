package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
)

func TestAccumulator_TextCoalescing(t *testing.T) {
	acc := NewAccumulator()
	acc.AppendText("Hel")
	acc.AppendText("lo ")
	acc.AppendText("world")

	parts := acc.BuildContentParts()
	require.Len(t, parts, 1, "consecutive text deltas must coalesce into one part")
	assert.Equal(t, domain.PartText, parts[0].Kind)
	assert.Equal(t, "Hello world", parts[0].Text)
}

func TestAccumulator_EmptyTextIsNoop(t *testing.T) {
	acc := NewAccumulator()
	acc.AppendText("")
	assert.Empty(t, acc.BuildContentParts())

	acc.AppendText("a")
	acc.AppendText("")
	acc.AppendText("b")
	parts := acc.BuildContentParts()
	require.Len(t, parts, 1)
	assert.Equal(t, "ab", parts[0].Text)
}

func TestAccumulator_MediaBreaksTextRun(t *testing.T) {
	acc := NewAccumulator()
	acc.AppendText("a")
	acc.AppendImage(domain.ImageContent{MimeType: "image/png", URL: "https://example.com/x.png"})
	acc.AppendText("b")

	parts := acc.BuildContentParts()
	require.Len(t, parts, 3, "no coalescing across an intervening non-text part")
	assert.Equal(t, domain.PartText, parts[0].Kind)
	assert.Equal(t, "a", parts[0].Text)
	assert.Equal(t, domain.PartImage, parts[1].Kind)
	assert.Equal(t, "https://example.com/x.png", parts[1].Image.URL)
	assert.Equal(t, domain.PartText, parts[2].Kind)
	assert.Equal(t, "b", parts[2].Text)
}

func TestAccumulator_MediaNeverCoalesces(t *testing.T) {
	acc := NewAccumulator()
	acc.AppendImage(domain.ImageContent{URL: "a"})
	acc.AppendImage(domain.ImageContent{URL: "b"})
	acc.AppendVideo(domain.VideoContent{URL: "c"})

	parts := acc.BuildContentParts()
	require.Len(t, parts, 3)
	assert.Equal(t, domain.PartImage, parts[0].Kind)
	assert.Equal(t, domain.PartImage, parts[1].Kind)
	assert.Equal(t, domain.PartVideo, parts[2].Kind)
}

func TestAccumulator_ThinkingTrailingSignatureAttach(t *testing.T) {
	acc := NewAccumulator()
	acc.AppendThinking(domain.ThinkingDelta{Text: "hello"})
	acc.AppendThinking(domain.ThinkingDelta{Signature: "SIG"})
	acc.AppendThinking(domain.ThinkingDelta{Text: " world", Signature: "SIG"})

	parts := acc.BuildContentParts()
	require.Len(t, parts, 1, "text, trailing signature and continuation are one block")
	require.Equal(t, domain.PartThinking, parts[0].Kind)
	assert.Equal(t, "hello world", parts[0].Thinking.Text)
	assert.Equal(t, "SIG", parts[0].Thinking.Signature)
}

func TestAccumulator_ThinkingSignatureFirst(t *testing.T) {
	// Providers that send the signature with the first delta.
	acc := NewAccumulator()
	acc.AppendThinking(domain.ThinkingDelta{Text: "step one", Signature: "S1"})
	acc.AppendThinking(domain.ThinkingDelta{Text: ", step two", Signature: "S1"})

	parts := acc.BuildContentParts()
	require.Len(t, parts, 1)
	assert.Equal(t, "step one, step two", parts[0].Thinking.Text)
	assert.Equal(t, "S1", parts[0].Thinking.Signature)
}

func TestAccumulator_ThinkingNewBlockOnSignatureChange(t *testing.T) {
	acc := NewAccumulator()
	acc.AppendThinking(domain.ThinkingDelta{Text: "first", Signature: "S1"})
	acc.AppendThinking(domain.ThinkingDelta{Text: "second", Signature: "S2"})

	parts := acc.BuildContentParts()
	require.Len(t, parts, 2, "non-empty text with a different signature starts a new block")
	assert.Equal(t, "first", parts[0].Thinking.Text)
	assert.Equal(t, "S1", parts[0].Thinking.Signature)
	assert.Equal(t, "second", parts[1].Thinking.Text)
	assert.Equal(t, "S2", parts[1].Thinking.Signature)
}

func TestAccumulator_RedactedThinkingIsOpaque(t *testing.T) {
	acc := NewAccumulator()
	acc.AppendThinking(domain.ThinkingDelta{Text: "visible", Signature: "S1"})
	acc.AppendThinking(domain.ThinkingDelta{Redacted: true, RedactedPayload: "BLOB1"})
	acc.AppendThinking(domain.ThinkingDelta{Redacted: true, RedactedPayload: "BLOB2"})

	parts := acc.BuildContentParts()
	require.Len(t, parts, 3, "redacted fragments never merge")
	assert.Equal(t, domain.PartRedactedThinking, parts[1].Kind)
	assert.Equal(t, "BLOB1", parts[1].RedactedPayload)
	assert.Equal(t, "BLOB2", parts[2].RedactedPayload)
}

func TestAccumulator_RedactedBreaksThinkingRun(t *testing.T) {
	acc := NewAccumulator()
	acc.AppendThinking(domain.ThinkingDelta{Text: "a", Signature: "S"})
	acc.AppendThinking(domain.ThinkingDelta{Redacted: true, RedactedPayload: "X"})
	acc.AppendThinking(domain.ThinkingDelta{Text: "b", Signature: "S"})

	parts := acc.BuildContentParts()
	require.Len(t, parts, 3)
	assert.Equal(t, "a", parts[0].Thinking.Text)
	assert.Equal(t, "b", parts[2].Thinking.Text)
}

func TestAccumulator_MalformedThinkingDeltaAbsorbed(t *testing.T) {
	acc := NewAccumulator()
	acc.AppendThinking(domain.ThinkingDelta{})
	assert.Empty(t, acc.BuildContentParts())

	acc.AppendThinking(domain.ThinkingDelta{Text: "x", Signature: "S"})
	acc.AppendThinking(domain.ThinkingDelta{})
	parts := acc.BuildContentParts()
	require.Len(t, parts, 1)
	assert.Equal(t, "x", parts[0].Thinking.Text)
}

func TestAccumulator_ToolCallMerge(t *testing.T) {
	acc := NewAccumulator()
	acc.UpsertToolCall(domain.ToolCall{ID: "1", Name: "f", Args: map[string]any{"a": 1}})
	acc.UpsertToolCall(domain.ToolCall{ID: "1", Name: "", Args: map[string]any{"b": 2}})

	calls := acc.BuildToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "f", calls[0].Name, "empty incoming name must not clobber the first one")
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, calls[0].Args)
}

func TestAccumulator_ToolCallIncomingArgsWin(t *testing.T) {
	acc := NewAccumulator()
	acc.UpsertToolCall(domain.ToolCall{ID: "1", Name: "f", Args: map[string]any{"q": "partial"}})
	acc.UpsertToolCall(domain.ToolCall{ID: "1", Args: map[string]any{"q": "full query"}, Signature: "sig"})

	calls := acc.BuildToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "full query", calls[0].Args["q"])
	assert.Equal(t, "sig", calls[0].Signature)
}

func TestAccumulator_ToolCallOrderIsFirstSeen(t *testing.T) {
	acc := NewAccumulator()
	acc.UpsertToolCall(domain.ToolCall{ID: "b", Name: "second"})
	acc.UpsertToolCall(domain.ToolCall{ID: "a", Name: "first"})
	acc.UpsertToolCall(domain.ToolCall{ID: "b", Args: map[string]any{"x": 1}})

	calls := acc.BuildToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "b", calls[0].ID)
	assert.Equal(t, "a", calls[1].ID)
}

func TestAccumulator_SearchActivityMerge(t *testing.T) {
	acc := NewAccumulator()
	acc.UpsertSearchActivity(domain.SearchActivity{ID: "s1", Query: "go generics", Status: "searching"})
	acc.UpsertSearchActivity(domain.SearchActivity{
		ID:      "s1",
		Status:  "done",
		Results: []domain.SearchResult{{Title: "spec", URL: "https://go.dev"}},
	})
	// Identical merge repeated: combinator must stay idempotent.
	acc.UpsertSearchActivity(domain.SearchActivity{
		ID:      "s1",
		Status:  "done",
		Results: []domain.SearchResult{{Title: "spec", URL: "https://go.dev"}},
	})

	acts := acc.BuildSearchActivities()
	require.Len(t, acts, 1)
	assert.Equal(t, "go generics", acts[0].Query)
	assert.Equal(t, "done", acts[0].Status)
	assert.Len(t, acts[0].Results, 1)
}

func TestAccumulator_BuildIsRepeatable(t *testing.T) {
	acc := NewAccumulator()
	acc.AppendText("a")
	acc.AppendImage(domain.ImageContent{URL: "u"})

	first := acc.BuildContentParts()
	second := acc.BuildContentParts()
	assert.Equal(t, first, second)

	// Building must not close the open segment.
	acc.AppendText("b")
	acc.AppendText("c")
	parts := acc.BuildContentParts()
	require.Len(t, parts, 3)
	assert.Equal(t, "bc", parts[2].Text)
}

func TestAccumulator_InterleavedKindsPreserveOrder(t *testing.T) {
	acc := NewAccumulator()
	acc.AppendThinking(domain.ThinkingDelta{Text: "think", Signature: "S"})
	acc.AppendText("answer ")
	acc.UpsertToolCall(domain.ToolCall{ID: "t1", Name: "lookup"})
	acc.AppendText("continues")
	acc.AppendVideo(domain.VideoContent{URL: "v"})

	parts := acc.BuildContentParts()
	require.Len(t, parts, 3, "tool calls are not inlined into content ordering")
	assert.Equal(t, domain.PartThinking, parts[0].Kind)
	assert.Equal(t, domain.PartText, parts[1].Kind)
	assert.Equal(t, "answer continues", parts[1].Text, "tool call must not break the text run")
	assert.Equal(t, domain.PartVideo, parts[2].Kind)
}
