package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
)

// transcriptModel is the persistence model for GORM. It keeps the domain
// struct free of storage tags; the variable-shape collections are stored as
// JSON columns.
type transcriptModel struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	ConversationID   string `gorm:"column:conversation_id;index"`
	AttemptID        string `gorm:"column:attempt_id;uniqueIndex"`
	Model            string
	Parts            string `gorm:"type:text"`
	ToolCalls        string `gorm:"column:tool_calls;type:text"`
	SearchActivities string `gorm:"column:search_activities;type:text"`
	Cancelled        bool   `gorm:"not null;default:false"`
	StartedAt        time.Time
	CompletedAt      time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

func (transcriptModel) TableName() string {
	return "transcripts"
}

// TranscriptGormStore implements domain.TranscriptStore using GORM.
type TranscriptGormStore struct {
	db *gorm.DB
}

func NewTranscriptGormStore(db *gorm.DB) *TranscriptGormStore {
	return &TranscriptGormStore{db: db}
}

// Init creates the schema via AutoMigrate.
func (s *TranscriptGormStore) Init(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&transcriptModel{})
}

// SaveTranscript appends a finalized attempt. Transcripts are immutable; the
// unique attempt id makes retried saves idempotent instead of duplicating.
func (s *TranscriptGormStore) SaveTranscript(ctx context.Context, t *domain.Transcript) error {
	model, err := toTranscriptModel(t)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListByConversation returns all finalized attempts of a conversation,
// oldest first.
func (s *TranscriptGormStore) ListByConversation(ctx context.Context, conversationID string) ([]*domain.Transcript, error) {
	var models []transcriptModel
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("completed_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domain.Transcript, 0, len(models))
	for _, m := range models {
		t, err := fromTranscriptModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

func toTranscriptModel(t *domain.Transcript) (transcriptModel, error) {
	parts, err := json.Marshal(t.Parts)
	if err != nil {
		return transcriptModel{}, fmt.Errorf("failed to marshal transcript parts: %w", err)
	}
	toolCalls, err := json.Marshal(t.ToolCalls)
	if err != nil {
		return transcriptModel{}, fmt.Errorf("failed to marshal transcript tool calls: %w", err)
	}
	searches, err := json.Marshal(t.SearchActivities)
	if err != nil {
		return transcriptModel{}, fmt.Errorf("failed to marshal transcript search activities: %w", err)
	}

	return transcriptModel{
		ConversationID:   t.ConversationID,
		AttemptID:        t.AttemptID,
		Model:            t.Model,
		Parts:            string(parts),
		ToolCalls:        string(toolCalls),
		SearchActivities: string(searches),
		Cancelled:        t.Cancelled,
		StartedAt:        t.StartedAt,
		CompletedAt:      t.CompletedAt,
	}, nil
}

func fromTranscriptModel(m transcriptModel) (*domain.Transcript, error) {
	t := &domain.Transcript{
		ConversationID: m.ConversationID,
		AttemptID:      m.AttemptID,
		Model:          m.Model,
		Cancelled:      m.Cancelled,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}
	if err := json.Unmarshal([]byte(m.Parts), &t.Parts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript parts: %w", err)
	}
	if err := json.Unmarshal([]byte(m.ToolCalls), &t.ToolCalls); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript tool calls: %w", err)
	}
	if err := json.Unmarshal([]byte(m.SearchActivities), &t.SearchActivities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript search activities: %w", err)
	}
	return t, nil
}
