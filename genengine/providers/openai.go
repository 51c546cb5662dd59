package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
)

// OpenAIProvider adapts the OpenAI Chat Completions API to the engine's
// streaming contract.
type OpenAIProvider struct {
	apiKey string
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{apiKey: apiKey}
}

// Stream sends the request with streaming enabled and returns a channel of
// deltas. The negotiated cache key, when present, rides along as
// prompt_cache_key so the provider routes equal prefixes to the same slot.
func (p *OpenAIProvider) Stream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.Delta, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openai provider has no API key")
	}
	client := openai.NewClient(option.WithAPIKey(p.apiKey))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.CacheOptions.CacheKey != "" {
		params.PromptCacheKey = openai.String(req.CacheOptions.CacheKey)
	}

	var tools []openai.ChatCompletionToolUnionParam
	for _, t := range req.Tools {
		tools = append(tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  openai.FunctionParameters(t.InputSchema),
				},
			},
		})
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)

	deltas := make(chan domain.Delta)
	go func() {
		defer close(deltas)
		defer stream.Close()

		calls := newToolCallAssembler()
		emit := func(d domain.Delta) bool {
			select {
			case deltas <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta

			if delta.Content != "" {
				if !emit(domain.Delta{Kind: domain.DeltaText, Text: delta.Content}) {
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				if call, ok := calls.feed(tc); ok {
					if !emit(domain.Delta{Kind: domain.DeltaToolCall, ToolCall: call}) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			logrus.WithError(err).WithField("model", req.Model).Warn("[OPENAI] Stream aborted")
			return
		}

		// Calls whose argument JSON never became parseable mid-stream still
		// surface with whatever arguments assembled by the end.
		for _, call := range calls.flush() {
			if !emit(domain.Delta{Kind: domain.DeltaToolCall, ToolCall: call}) {
				return
			}
		}
	}()
	return deltas, nil
}

// toolCallAssembler rebuilds tool calls from argument fragments. OpenAI
// streams arguments as raw JSON pieces keyed by choice index; a call is
// emitted as soon as its ID is known and re-emitted (upsert) whenever the
// accumulated arguments parse.
type toolCallAssembler struct {
	byIndex map[int64]*assemblingCall
	order   []int64
}

type assemblingCall struct {
	id      string
	name    string
	rawArgs string
	emitted bool
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{byIndex: make(map[int64]*assemblingCall)}
}

func (a *toolCallAssembler) feed(tc openai.ChatCompletionChunkChoiceDeltaToolCall) (*domain.ToolCall, bool) {
	call, ok := a.byIndex[tc.Index]
	if !ok {
		call = &assemblingCall{}
		a.byIndex[tc.Index] = call
		a.order = append(a.order, tc.Index)
	}
	if tc.ID != "" {
		call.id = tc.ID
	}
	if tc.Function.Name != "" {
		call.name = tc.Function.Name
	}
	call.rawArgs += tc.Function.Arguments

	if call.id == "" {
		return nil, false
	}

	var args map[string]any
	if call.rawArgs != "" {
		if err := json.Unmarshal([]byte(call.rawArgs), &args); err != nil {
			// Arguments still partial. Announce the call once so the UI can
			// show it early; argument upserts follow when the JSON completes.
			if call.emitted {
				return nil, false
			}
			call.emitted = true
			return &domain.ToolCall{ID: call.id, Name: call.name}, true
		}
	}
	call.emitted = true
	return &domain.ToolCall{ID: call.id, Name: call.name, Args: args}, true
}

func (a *toolCallAssembler) flush() []*domain.ToolCall {
	var out []*domain.ToolCall
	for _, idx := range a.order {
		call := a.byIndex[idx]
		if call.emitted || call.id == "" {
			continue
		}
		var args map[string]any
		_ = json.Unmarshal([]byte(call.rawArgs), &args)
		out = append(out, &domain.ToolCall{ID: call.id, Name: call.name, Args: args})
	}
	return out
}

func toOpenAIMessages(messages []domain.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		text := m.Text()
		if text == "" {
			continue
		}
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(text))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(text))
		default:
			out = append(out, openai.UserMessage(text))
		}
	}
	return out
}
