package stream

import (
	"sync"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
)

// partRef is a tagged index into one of the typed segment stores. The ordered
// ref sequence is the single source of truth for final content ordering.
type partRef struct {
	kind    domain.PartKind
	index   int
	payload string // redacted thinking only
}

// Accumulator folds the unordered, heterogeneous fragments of one generation
// attempt into an ordered content sequence plus id-indexed tool-call and
// search-activity collections.
//
// Exactly one logical writer (the owning session's receive loop) may call the
// mutating operations. The Build* projections are safe to call from any
// goroutine at any time; the UI polls them for incremental rendering while
// the stream is still running.
type Accumulator struct {
	mu sync.Mutex

	refs     []partRef
	texts    []string
	images   []domain.ImageContent
	videos   []domain.VideoContent
	thinking []domain.ThinkingContent

	// Currently open segment, tracked directly instead of re-deriving it
	// from the tail of refs. openKind is "" when nothing is open.
	openKind  domain.PartKind
	openIndex int

	toolCalls map[string]domain.ToolCall
	toolOrder []string

	searches    map[string]domain.SearchActivity
	searchOrder []string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		toolCalls: make(map[string]domain.ToolCall),
		searches:  make(map[string]domain.SearchActivity),
	}
}

// Append routes a tagged delta to the matching operation. Unknown kinds are
// ignored; the transport validates deltas before they get here.
func (a *Accumulator) Append(d domain.Delta) {
	switch d.Kind {
	case domain.DeltaText:
		a.AppendText(d.Text)
	case domain.DeltaImage:
		if d.Image != nil {
			a.AppendImage(*d.Image)
		}
	case domain.DeltaVideo:
		if d.Video != nil {
			a.AppendVideo(*d.Video)
		}
	case domain.DeltaThinking:
		if d.Thinking != nil {
			a.AppendThinking(*d.Thinking)
		}
	case domain.DeltaToolCall:
		if d.ToolCall != nil {
			a.UpsertToolCall(*d.ToolCall)
		}
	case domain.DeltaSearchActivity:
		if d.Search != nil {
			a.UpsertSearchActivity(*d.Search)
		}
	}
}

// AppendText appends a text delta. Consecutive text deltas coalesce into one
// logical run; providers emit text in many small pieces and the part count
// must stay bounded by the number of distinct runs, not the delta count.
func (a *Accumulator) AppendText(delta string) {
	if delta == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.openKind == domain.PartText {
		a.texts[a.openIndex] += delta
		return
	}
	a.texts = append(a.texts, delta)
	a.openSegment(domain.PartText, len(a.texts)-1)
}

// AppendImage opens a new image part. Media parts are never coalesced.
func (a *Accumulator) AppendImage(img domain.ImageContent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.images = append(a.images, img)
	a.openSegment(domain.PartImage, len(a.images)-1)
}

// AppendVideo opens a new video part. Media parts are never coalesced.
func (a *Accumulator) AppendVideo(v domain.VideoContent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.videos = append(a.videos, v)
	a.openSegment(domain.PartVideo, len(a.videos)-1)
}

// AppendThinking appends a reasoning delta. A block is the run of thinking
// deltas sharing one signature, but providers disagree on ordering: some send
// the signature with the first delta, others attach it after the text. The
// rules below tolerate both without a provider-specific branch:
//
//  1. empty text + signature, and the open segment is a thinking block with a
//     different stored signature: overwrite that signature in place (trailing
//     signature attach), nothing else changes.
//  2. open segment is a thinking block whose signature already equals the
//     incoming one (both absent counts as equal): append the text, which
//     continues the open block.
//  3. otherwise open a new thinking segment.
//
// Redacted deltas always become a new opaque, non-mergeable part.
func (a *Accumulator) AppendThinking(d domain.ThinkingDelta) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if d.Redacted {
		a.refs = append(a.refs, partRef{kind: domain.PartRedactedThinking, payload: d.RedactedPayload})
		a.openKind = domain.PartRedactedThinking
		return
	}
	if d.Text == "" && d.Signature == "" {
		return
	}

	if a.openKind == domain.PartThinking {
		open := &a.thinking[a.openIndex]
		if d.Text == "" && d.Signature != "" && open.Signature != d.Signature {
			open.Signature = d.Signature
			return
		}
		if open.Signature == d.Signature {
			open.Text += d.Text
			return
		}
	}

	a.thinking = append(a.thinking, domain.ThinkingContent{Text: d.Text, Signature: d.Signature})
	a.openSegment(domain.PartThinking, len(a.thinking)-1)
}

// UpsertToolCall records a tool call or merges a later update into the first
// occurrence. Arguments merge shallowly with incoming keys winning, which
// lets later deltas refine partially streamed JSON; the name sticks once seen
// for providers that only send it on the first fragment.
func (a *Accumulator) UpsertToolCall(call domain.ToolCall) {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.toolCalls[call.ID]
	if !ok {
		if call.Args != nil {
			call.Args = copyArgs(call.Args)
		}
		a.toolCalls[call.ID] = call
		a.toolOrder = append(a.toolOrder, call.ID)
		return
	}

	merged := existing
	if len(call.Args) > 0 {
		args := copyArgs(existing.Args)
		for k, v := range call.Args {
			args[k] = v
		}
		merged.Args = args
	}
	if call.Signature != "" {
		merged.Signature = call.Signature
	}
	if call.Name != "" {
		merged.Name = call.Name
	}
	a.toolCalls[call.ID] = merged
}

// UpsertSearchActivity records a search activity or folds an update into the
// existing record via the domain combinator.
func (a *Accumulator) UpsertSearchActivity(activity domain.SearchActivity) {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.searches[activity.ID]
	if !ok {
		a.searches[activity.ID] = activity
		a.searchOrder = append(a.searchOrder, activity.ID)
		return
	}
	a.searches[activity.ID] = existing.Merge(activity)
}

// BuildContentParts projects the reference sequence into concrete content
// parts. Pure and repeatable; called once per rendered frame while streaming.
func (a *Accumulator) BuildContentParts() []domain.ContentPart {
	a.mu.Lock()
	defer a.mu.Unlock()

	parts := make([]domain.ContentPart, 0, len(a.refs))
	for _, ref := range a.refs {
		switch ref.kind {
		case domain.PartText:
			parts = append(parts, domain.ContentPart{Kind: domain.PartText, Text: a.texts[ref.index]})
		case domain.PartImage:
			img := a.images[ref.index]
			parts = append(parts, domain.ContentPart{Kind: domain.PartImage, Image: &img})
		case domain.PartVideo:
			v := a.videos[ref.index]
			parts = append(parts, domain.ContentPart{Kind: domain.PartVideo, Video: &v})
		case domain.PartThinking:
			th := a.thinking[ref.index]
			parts = append(parts, domain.ContentPart{Kind: domain.PartThinking, Thinking: &th})
		case domain.PartRedactedThinking:
			parts = append(parts, domain.ContentPart{Kind: domain.PartRedactedThinking, RedactedPayload: ref.payload})
		}
	}
	return parts
}

// BuildToolCalls projects tool calls in first-seen order. Tool calls are not
// inlined into the content sequence; consumers join them separately.
func (a *Accumulator) BuildToolCalls() []domain.ToolCall {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.ToolCall, 0, len(a.toolOrder))
	for _, id := range a.toolOrder {
		out = append(out, a.toolCalls[id])
	}
	return out
}

// BuildSearchActivities projects search activities in first-seen order.
func (a *Accumulator) BuildSearchActivities() []domain.SearchActivity {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.SearchActivity, 0, len(a.searchOrder))
	for _, id := range a.searchOrder {
		out = append(out, a.searches[id])
	}
	return out
}

// openSegment appends a reference for a freshly opened segment and records it
// as the open one.
func (a *Accumulator) openSegment(kind domain.PartKind, index int) {
	a.refs = append(a.refs, partRef{kind: kind, index: index})
	a.openKind = kind
	a.openIndex = index
}

func copyArgs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
