package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CreateConversationRequest struct {
	Title     string `json:"title,omitempty"`
	Incognito bool   `json:"incognito,omitempty"`
}

type CreateConversationResponse struct {
	Id uuid.UUID `json:"id"`
}

type GetAllConversationsResponse struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Incognito bool       `json:"incognito"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type GetMessagesResponse struct {
	Id            uuid.UUID       `json:"id"`
	Role          string          `json:"role"`
	Content       string          `json:"content"`
	Completed     bool            `json:"completed"`
	RouteDecision json.RawMessage `json:"route_decision,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ChatRequest struct {
	ConversationId uuid.UUID `json:"conversation_id,omitempty"`
	Message        string    `json:"message" validate:"required"`
	KBPrefix       string    `json:"kb_prefix,omitempty"`
	AgentType      string    `json:"agent_type,omitempty"`
	Debug          bool      `json:"debug,omitempty"`
	Incognito      bool      `json:"incognito,omitempty"`
}

type ChatResponseMessage struct {
	Id        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatResponse struct {
	ConversationId uuid.UUID            `json:"conversation_id"`
	RequestId      string               `json:"request_id"`
	Sent           *ChatResponseMessage `json:"sent"`
	Reply          *ChatResponseMessage `json:"reply"`
	RouteDecision  json.RawMessage      `json:"route_decision,omitempty"`
}

type DeleteConversationRequest struct {
	ConversationId uuid.UUID `json:"conversation_id" validate:"required"`
}

type WatchlistItemResponse struct {
	Id        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// SummaryUpdateMessage is the watermill payload requesting a summary refresh.
type SummaryUpdateMessage struct {
	ConversationId uuid.UUID `json:"conversation_id"`
}
