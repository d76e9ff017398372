package entity

import (
	"time"

	"github.com/google/uuid"
)

// Episode is one indexed conversational exchange used for semantic recall.
type Episode struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	MessageId      uuid.UUID
	UserId         uuid.UUID
	Content        string
	EmbeddingValue []float32
	ChunkIndex     int
	CreatedAt      time.Time
}
