package entity

import (
	"time"

	"github.com/google/uuid"
)

// ConversationSummary is the rolling summary, one row per conversation.
type ConversationSummary struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	Summary        string
	MessageCount   int
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}
