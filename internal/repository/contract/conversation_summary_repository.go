package contract

import (
	"context"

	"ai-assistant-be/internal/entity"

	"github.com/google/uuid"
)

type ConversationSummaryRepository interface {
	// Upsert writes the summary row for the conversation, creating it on
	// first use.
	Upsert(ctx context.Context, summary *entity.ConversationSummary) error
	FindByConversationId(ctx context.Context, conversationId uuid.UUID) (*entity.ConversationSummary, error)
	DeleteByConversationId(ctx context.Context, conversationId uuid.UUID) error
}
