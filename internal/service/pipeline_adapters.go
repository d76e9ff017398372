package service

import (
	"context"
	"fmt"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/repository/specification"
	"ai-assistant-be/internal/repository/unitofwork"
	"ai-assistant-be/pkg/rag/pipeline"
	"ai-assistant-be/pkg/watchlist"

	"github.com/google/uuid"
)

// HistoryStoreAdapter exposes the message repository as the pipeline's
// history collaborator.
type HistoryStoreAdapter struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewHistoryStoreAdapter(uowFactory unitofwork.RepositoryFactory) *HistoryStoreAdapter {
	return &HistoryStoreAdapter{uowFactory: uowFactory}
}

func (a *HistoryStoreAdapter) ListRecent(ctx context.Context, conversationID string, limit int) ([]pipeline.HistoryMessage, error) {
	convId, err := uuid.Parse(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}

	uow := a.uowFactory.NewUnitOfWork(ctx)
	messages, err := uow.MessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: convId},
		specification.CompletedOnly{},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit},
	)
	if err != nil {
		return nil, err
	}

	out := make([]pipeline.HistoryMessage, len(messages))
	for i, m := range messages {
		out[i] = pipeline.HistoryMessage{
			ID:      m.Id.String(),
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return out, nil
}

// SummaryStoreAdapter exposes the summary repository to the pipeline.
type SummaryStoreAdapter struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewSummaryStoreAdapter(uowFactory unitofwork.RepositoryFactory) *SummaryStoreAdapter {
	return &SummaryStoreAdapter{uowFactory: uowFactory}
}

func (a *SummaryStoreAdapter) Get(ctx context.Context, conversationID string) (string, error) {
	convId, err := uuid.Parse(conversationID)
	if err != nil {
		return "", fmt.Errorf("invalid conversation id: %w", err)
	}

	uow := a.uowFactory.NewUnitOfWork(ctx)
	summary, err := uow.ConversationSummaryRepository().FindByConversationId(ctx, convId)
	if err != nil {
		return "", err
	}
	if summary == nil {
		return "", nil
	}
	return summary.Summary, nil
}

// WatchlistStoreAdapter backs the capture service with the watchlist
// repository.
type WatchlistStoreAdapter struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewWatchlistStoreAdapter(uowFactory unitofwork.RepositoryFactory) *WatchlistStoreAdapter {
	return &WatchlistStoreAdapter{uowFactory: uowFactory}
}

func (a *WatchlistStoreAdapter) ListFirstPage(ctx context.Context, userID string, pageSize int) ([]watchlist.Item, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	uow := a.uowFactory.NewUnitOfWork(ctx)
	items, err := uow.WatchlistRepository().FindAll(ctx,
		specification.Filter("user_id", uid),
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: pageSize},
	)
	if err != nil {
		return nil, err
	}

	out := make([]watchlist.Item, len(items))
	for i, item := range items {
		out[i] = watchlist.Item{ID: item.Id.String(), Title: item.Title}
	}
	return out, nil
}

func (a *WatchlistStoreAdapter) Add(ctx context.Context, userID, title string) error {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}

	uow := a.uowFactory.NewUnitOfWork(ctx)
	return uow.WatchlistRepository().Create(ctx, &entity.WatchlistItem{
		Id:     uuid.New(),
		UserId: uid,
		Title:  title,
		Source: "auto_capture",
	})
}
