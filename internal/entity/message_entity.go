package entity

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	Role           string
	Content        string
	// RouteDecision is the serialized routing payload for assistant messages.
	RouteDecision []byte
	// Completed is false when generation degraded or retrieval failed entirely.
	Completed bool
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}
