package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
)

// GeminiProvider adapts the Google Gemini API to the engine's streaming
// contract. The same adapter serves the Vertex backend; only the client
// configuration differs.
type GeminiProvider struct {
	apiKey  string
	backend genai.Backend
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey, backend: genai.BackendGeminiAPI}
}

func NewVertexProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey, backend: genai.BackendVertexAI}
}

func (p *GeminiProvider) newClient(ctx context.Context) (*genai.Client, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("gemini provider has no API key")
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: p.backend,
	})
}

// CreateCachedContent creates a provider-side cached resource holding the
// system prompt and returns its resource name.
func (p *GeminiProvider) CreateCachedContent(ctx context.Context, req domain.CreateCacheRequest) (string, error) {
	client, err := p.newClient(ctx)
	if err != nil {
		return "", err
	}

	cache, err := client.Caches.Create(ctx, req.Model, &genai.CreateCachedContentConfig{
		DisplayName: req.DisplayName,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemText}},
		},
		TTL: time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create cached content: %w", err)
	}
	return cache.Name, nil
}

// Stream sends the request and returns a channel of deltas. The channel is
// closed when the provider finishes, fails, or ctx is cancelled; mid-stream
// errors are logged and end the stream.
func (p *GeminiProvider) Stream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.Delta, error) {
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{}
	if req.CacheOptions.CachedResourceName != "" {
		cfg.CachedContent = req.CacheOptions.CachedResourceName
	} else if system := req.SystemText(); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, "")
	}

	var functionDecls []*genai.FunctionDeclaration
	for _, t := range req.Tools {
		functionDecls = append(functionDecls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGenaiSchema(t.InputSchema, t.Required),
		})
	}
	// A request bound to a cached resource must not redeclare tools; the
	// resource carries them.
	if len(functionDecls) > 0 && cfg.CachedContent == "" {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: functionDecls}}
	}

	contents := toGenaiContents(req.Messages)

	deltas := make(chan domain.Delta)
	go func() {
		defer close(deltas)

		seq := 0
		for resp, err := range client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
			if err != nil {
				if ctx.Err() == nil {
					logrus.WithError(err).WithField("model", req.Model).Warn("[GEMINI] Stream aborted")
				}
				return
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				for _, d := range geminiPartDeltas(part, &seq) {
					select {
					case deltas <- d:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return deltas, nil
}

// geminiPartDeltas maps one streamed part to engine deltas. seq numbers the
// tool calls of this attempt; Gemini omits call IDs on some models.
func geminiPartDeltas(part *genai.Part, seq *int) []domain.Delta {
	var out []domain.Delta

	if part.Thought {
		out = append(out, domain.Delta{
			Kind: domain.DeltaThinking,
			Thinking: &domain.ThinkingDelta{
				Text:      part.Text,
				Signature: string(part.ThoughtSignature),
			},
		})
		return out
	}

	if part.Text != "" {
		out = append(out, domain.Delta{Kind: domain.DeltaText, Text: part.Text})
	}

	if part.InlineData != nil {
		if strings.HasPrefix(part.InlineData.MIMEType, "video/") {
			out = append(out, domain.Delta{
				Kind:  domain.DeltaVideo,
				Video: &domain.VideoContent{MimeType: part.InlineData.MIMEType, Data: part.InlineData.Data},
			})
		} else {
			out = append(out, domain.Delta{
				Kind:  domain.DeltaImage,
				Image: &domain.ImageContent{MimeType: part.InlineData.MIMEType, Data: part.InlineData.Data},
			})
		}
	}

	if part.FunctionCall != nil {
		id := part.FunctionCall.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", *seq)
		}
		*seq++
		out = append(out, domain.Delta{
			Kind: domain.DeltaToolCall,
			ToolCall: &domain.ToolCall{
				ID:   id,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			},
		})
	}

	return out
}

func toGenaiContents(messages []domain.Message) []*genai.Content {
	var contents []*genai.Content
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			continue
		}
		role := genai.RoleUser
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		for _, p := range m.Parts {
			switch p.Kind {
			case domain.PartText:
				if p.Text != "" {
					parts = append(parts, &genai.Part{Text: p.Text})
				}
			case domain.PartImage:
				if p.Image != nil && len(p.Image.Data) > 0 {
					parts = append(parts, &genai.Part{
						InlineData: &genai.Blob{MIMEType: p.Image.MimeType, Data: p.Image.Data},
					})
				}
			case domain.PartVideo:
				if p.Video != nil && len(p.Video.Data) > 0 {
					parts = append(parts, &genai.Part{
						InlineData: &genai.Blob{MIMEType: p.Video.MimeType, Data: p.Video.Data},
					})
				}
			}
		}
		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}
	return contents
}

func toGenaiSchema(input map[string]any, required []string) *genai.Schema {
	schema := &genai.Schema{Type: "object"}
	if t, ok := input["type"].(string); ok && t != "" {
		schema.Type = genai.Type(t)
	}
	if props, ok := input["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			child := &genai.Schema{Type: "string"}
			if m, ok := raw.(map[string]any); ok {
				if t, ok := m["type"].(string); ok && t != "" {
					child.Type = genai.Type(t)
				}
				if d, ok := m["description"].(string); ok {
					child.Description = d
				}
			}
			schema.Properties[name] = child
		}
	}
	schema.Required = required
	return schema
}
