package contract

import (
	"context"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/repository/specification"

	"github.com/google/uuid"
)

type WatchlistRepository interface {
	Create(ctx context.Context, item *entity.WatchlistItem) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.WatchlistItem, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
