package domain

// Provider identifies an upstream model API.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderGemini    Provider = "gemini"
	ProviderVertex    Provider = "vertex"
)

// ProviderFamily groups providers by how their prompt caching works. The
// mapping is fixed; it is resolved once per request and dispatched by switch.
type ProviderFamily int

const (
	// FamilyUnsupported providers get no cache handling at all.
	FamilyUnsupported ProviderFamily = iota
	// FamilyKeyBased providers accept a client-supplied cache key and cache
	// by exact key match (OpenAI prompt_cache_key).
	FamilyKeyBased
	// FamilyPrefixWindow providers cache automatically on the growing
	// conversation prefix; no client-side resource management.
	FamilyPrefixWindow
	// FamilyExplicit providers require an out-of-band cached resource that
	// later requests reference by name (Gemini / Vertex CachedContent).
	FamilyExplicit
)

// CacheFamily resolves the caching family for a provider.
func (p Provider) CacheFamily() ProviderFamily {
	switch p {
	case ProviderOpenAI:
		return FamilyKeyBased
	case ProviderAnthropic, ProviderDeepSeek:
		return FamilyPrefixWindow
	case ProviderGemini, ProviderVertex:
		return FamilyExplicit
	default:
		return FamilyUnsupported
	}
}

// Message roles as they appear in outgoing requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of an outgoing request.
type Message struct {
	Role  string        `json:"role"`
	Parts []ContentPart `json:"parts"`
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolDefinition describes one tool offered to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Required    []string       `json:"required,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// GenerationRequest is the provider-agnostic outgoing request. The cache
// negotiator may rewrite Messages and CacheOptions in place before dispatch;
// Model and Provider are never altered by it.
type GenerationRequest struct {
	Provider     Provider            `json:"provider"`
	Model        string              `json:"model"`
	Messages     []Message           `json:"messages"`
	Tools        []ToolDefinition    `json:"tools,omitempty"`
	CacheOptions ContextCacheOptions `json:"cache_options"`
}

// SystemText returns the concatenated text of the first system-role message,
// or "" when there is none.
func (r *GenerationRequest) SystemText() string {
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			return m.Text()
		}
	}
	return ""
}

// DropSystemMessage removes the first system-role message from the request.
func (r *GenerationRequest) DropSystemMessage() {
	for i, m := range r.Messages {
		if m.Role == RoleSystem {
			r.Messages = append(r.Messages[:i], r.Messages[i+1:]...)
			return
		}
	}
}
