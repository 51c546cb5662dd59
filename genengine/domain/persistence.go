package domain

import (
	"context"
	"time"
)

// Transcript is the finalized output of one generation attempt, handed to
// durable storage when its session ends. Partial output from a cancelled or
// failed attempt is still a valid transcript.
type Transcript struct {
	ConversationID   string           `json:"conversation_id"`
	AttemptID        string           `json:"attempt_id"`
	Model            string           `json:"model,omitempty"`
	Parts            []ContentPart    `json:"parts"`
	ToolCalls        []ToolCall       `json:"tool_calls,omitempty"`
	SearchActivities []SearchActivity `json:"search_activities,omitempty"`
	Cancelled        bool             `json:"cancelled,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      time.Time        `json:"completed_at"`
}

// TranscriptStore receives finalized transcripts. Storage format and
// mechanism are the implementation's business.
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, t *Transcript) error
}
