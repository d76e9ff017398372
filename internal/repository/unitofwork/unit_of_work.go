package unitofwork

import (
	"context"

	"ai-assistant-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ConversationRepository() contract.ConversationRepository
	MessageRepository() contract.MessageRepository
	EpisodeRepository() contract.EpisodeRepository
	ConversationSummaryRepository() contract.ConversationSummaryRepository
	WatchlistRepository() contract.WatchlistRepository
}
