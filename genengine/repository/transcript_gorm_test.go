package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
)

func newTestTranscriptStore(t *testing.T) *TranscriptGormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := NewTranscriptGormStore(db)
	require.NoError(t, store.Init(context.Background()))
	return store
}

func TestTranscriptGormStore_SaveAndListRoundTrip(t *testing.T) {
	store := newTestTranscriptStore(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	completed := time.Now().UTC().Truncate(time.Second)

	original := &domain.Transcript{
		ConversationID: "conv-1",
		AttemptID:      "attempt-1",
		Model:          "gemini-2.5-pro",
		Parts: []domain.ContentPart{
			{Kind: domain.PartThinking, Thinking: &domain.ThinkingContent{Text: "reasoning", Signature: "sig"}},
			{Kind: domain.PartText, Text: "hello world"},
		},
		ToolCalls: []domain.ToolCall{
			{ID: "t1", Name: "lookup", Args: map[string]any{"q": "weather"}},
		},
		SearchActivities: []domain.SearchActivity{
			{ID: "s1", Query: "weather berlin", Status: "done"},
		},
		StartedAt:   started,
		CompletedAt: completed,
	}
	require.NoError(t, store.SaveTranscript(ctx, original))

	got, err := store.ListByConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "attempt-1", got[0].AttemptID)
	assert.Equal(t, "gemini-2.5-pro", got[0].Model)
	require.Len(t, got[0].Parts, 2)
	assert.Equal(t, domain.PartThinking, got[0].Parts[0].Kind)
	assert.Equal(t, "sig", got[0].Parts[0].Thinking.Signature)
	assert.Equal(t, "hello world", got[0].Parts[1].Text)
	require.Len(t, got[0].ToolCalls, 1)
	assert.Equal(t, "lookup", got[0].ToolCalls[0].Name)
	require.Len(t, got[0].SearchActivities, 1)
	assert.Equal(t, "weather berlin", got[0].SearchActivities[0].Query)
	assert.False(t, got[0].Cancelled)
}

func TestTranscriptGormStore_CancelledPartialAttempt(t *testing.T) {
	store := newTestTranscriptStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTranscript(ctx, &domain.Transcript{
		ConversationID: "conv-1",
		AttemptID:      "attempt-cancelled",
		Parts:          []domain.ContentPart{{Kind: domain.PartText, Text: "partial"}},
		Cancelled:      true,
		StartedAt:      time.Now().UTC(),
		CompletedAt:    time.Now().UTC(),
	}))

	got, err := store.ListByConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Cancelled)
	assert.Equal(t, "partial", got[0].Parts[0].Text)
}

func TestTranscriptGormStore_ListOrdersByCompletion(t *testing.T) {
	store := newTestTranscriptStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"attempt-b", "attempt-a"} {
		require.NoError(t, store.SaveTranscript(ctx, &domain.Transcript{
			ConversationID: "conv-1",
			AttemptID:      id,
			Parts:          []domain.ContentPart{{Kind: domain.PartText, Text: id}},
			StartedAt:      base.Add(time.Duration(-2+i) * time.Minute),
			CompletedAt:    base.Add(time.Duration(-2+i) * time.Minute),
		}))
	}

	got, err := store.ListByConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "attempt-b", got[0].AttemptID)
	assert.Equal(t, "attempt-a", got[1].AttemptID)

	other, err := store.ListByConversation(ctx, "conv-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
