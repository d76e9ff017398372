package contract

import (
	"context"

	"ai-assistant-be/internal/entity"

	"github.com/google/uuid"
)

// ScoredEpisode pairs an episode with its cosine similarity to a query vector.
type ScoredEpisode struct {
	Episode    *entity.Episode
	Similarity float64
}

type EpisodeRepository interface {
	CreateBulk(ctx context.Context, episodes []*entity.Episode) error
	DeleteByMessageId(ctx context.Context, messageId uuid.UUID) error
	DeleteByConversationId(ctx context.Context, conversationId uuid.UUID) error
	// SearchSimilar returns episodes ordered by similarity, excluding the
	// given message ids and anything below the threshold.
	SearchSimilar(ctx context.Context, embedding []float32, conversationId uuid.UUID, limit int, excludeMessageIds []uuid.UUID, threshold float64) ([]*ScoredEpisode, error)
}
