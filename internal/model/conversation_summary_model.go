package model

import (
	"time"

	"github.com/google/uuid"
)

type ConversationSummary struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Summary        string    `gorm:"type:text"`
	MessageCount   int       `gorm:"default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (ConversationSummary) TableName() string {
	return "conversation_summaries"
}
