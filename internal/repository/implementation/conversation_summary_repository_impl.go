package implementation

import (
	"context"
	"errors"
	"time"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/model"
	"ai-assistant-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationSummaryRepositoryImpl struct {
	db *gorm.DB
}

func NewConversationSummaryRepository(db *gorm.DB) contract.ConversationSummaryRepository {
	return &ConversationSummaryRepositoryImpl{db: db}
}

func (r *ConversationSummaryRepositoryImpl) Upsert(ctx context.Context, summary *entity.ConversationSummary) error {
	if summary.Id == uuid.Nil {
		summary.Id = uuid.New()
	}
	m := &model.ConversationSummary{
		Id:             summary.Id,
		ConversationId: summary.ConversationId,
		Summary:        summary.Summary,
		MessageCount:   summary.MessageCount,
		CreatedAt:      summary.CreatedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"summary", "message_count", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return err
	}
	now := time.Now()
	summary.UpdatedAt = &now
	return nil
}

func (r *ConversationSummaryRepositoryImpl) FindByConversationId(ctx context.Context, conversationId uuid.UUID) (*entity.ConversationSummary, error) {
	var m model.ConversationSummary
	err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationId).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var updatedAt *time.Time
	if !m.UpdatedAt.IsZero() {
		t := m.UpdatedAt
		updatedAt = &t
	}
	return &entity.ConversationSummary{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		Summary:        m.Summary,
		MessageCount:   m.MessageCount,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      updatedAt,
	}, nil
}

func (r *ConversationSummaryRepositoryImpl) DeleteByConversationId(ctx context.Context, conversationId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("conversation_id = ?", conversationId).Delete(&model.ConversationSummary{}).Error
}
