package domain

// PartKind tags one entry of the ordered content sequence produced by a
// generation attempt.
type PartKind string

const (
	PartText             PartKind = "text"
	PartImage            PartKind = "image"
	PartVideo            PartKind = "video"
	PartThinking         PartKind = "thinking"
	PartRedactedThinking PartKind = "redacted_thinking"
)

// ImageContent is an image emitted by the model (inline bytes or a URL).
type ImageContent struct {
	MimeType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
}

// VideoContent is a video emitted by the model.
type VideoContent struct {
	MimeType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
}

// ThinkingContent is one reasoning block. The signature is the provider's
// cryptographic attestation for the block; it may arrive after the text.
type ThinkingContent struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// ContentPart is one resolved element of a final (or in-progress) response.
// Exactly one payload field is set, matching Kind.
type ContentPart struct {
	Kind            PartKind         `json:"kind"`
	Text            string           `json:"text,omitempty"`
	Image           *ImageContent    `json:"image,omitempty"`
	Video           *VideoContent    `json:"video,omitempty"`
	Thinking        *ThinkingContent `json:"thinking,omitempty"`
	RedactedPayload string           `json:"redacted_payload,omitempty"`
}

// ToolCall is the model's intent to invoke a tool. Identity is the ID;
// providers may stream the same call several times with partial arguments.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Args      map[string]any `json:"args,omitempty"`
	Signature string         `json:"signature,omitempty"`
}

// SearchResult is one hit surfaced by a provider-side search tool.
type SearchResult struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchActivity records one provider-side search operation. Identity is the
// ID; updates for the same activity are folded via Merge.
type SearchActivity struct {
	ID      string         `json:"id"`
	Query   string         `json:"query,omitempty"`
	Queries []string       `json:"queries,omitempty"`
	Results []SearchResult `json:"results,omitempty"`
	Status  string         `json:"status,omitempty"`
}

// Merge folds a later update into an existing activity. The combinator is
// idempotent: merging the same update twice yields the same record.
func (a SearchActivity) Merge(in SearchActivity) SearchActivity {
	out := a
	if in.Query != "" {
		out.Query = in.Query
	}
	if in.Status != "" {
		out.Status = in.Status
	}
	for _, q := range in.Queries {
		if !containsString(out.Queries, q) {
			out.Queries = append(out.Queries, q)
		}
	}
	for _, r := range in.Results {
		if !containsResult(out.Results, r) {
			out.Results = append(out.Results, r)
		}
	}
	return out
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func containsResult(xs []SearchResult, r SearchResult) bool {
	for _, x := range xs {
		if x == r {
			return true
		}
	}
	return false
}

// DeltaKind tags one incremental fragment of a streamed response.
type DeltaKind string

const (
	DeltaText           DeltaKind = "text"
	DeltaImage          DeltaKind = "image"
	DeltaVideo          DeltaKind = "video"
	DeltaThinking       DeltaKind = "thinking"
	DeltaToolCall       DeltaKind = "tool_call"
	DeltaSearchActivity DeltaKind = "search_activity"
)

// ThinkingDelta is one reasoning fragment. Redacted fragments carry an opaque
// payload instead of text; plain fragments carry text and, possibly trailing,
// the block signature.
type ThinkingDelta struct {
	Text            string `json:"text,omitempty"`
	Signature       string `json:"signature,omitempty"`
	Redacted        bool   `json:"redacted,omitempty"`
	RedactedPayload string `json:"redacted_payload,omitempty"`
}

// Delta is one tagged event from a provider's response stream. Exactly one
// payload field is set, matching Kind.
type Delta struct {
	Kind     DeltaKind       `json:"kind"`
	Text     string          `json:"text,omitempty"`
	Image    *ImageContent   `json:"image,omitempty"`
	Video    *VideoContent   `json:"video,omitempty"`
	Thinking *ThinkingDelta  `json:"thinking,omitempty"`
	ToolCall *ToolCall       `json:"tool_call,omitempty"`
	Search   *SearchActivity `json:"search,omitempty"`
}
