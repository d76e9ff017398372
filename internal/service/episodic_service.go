package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/repository/unitofwork"
	"ai-assistant-be/pkg/embedding"
	"ai-assistant-be/pkg/utils"

	"github.com/google/uuid"
)

// IEpisodicService indexes completed turns and recalls them semantically.
type IEpisodicService interface {
	// IndexTurn embeds one user/assistant exchange and stores its chunks.
	// Re-indexing the same message replaces the previous chunks.
	IndexTurn(ctx context.Context, conversationId, messageId, userId uuid.UUID, userMessage, assistantReply string) error

	// Recall returns relevant prior exchanges as a context block, excluding
	// the given message ids (they are already in the history window).
	Recall(ctx context.Context, conversationID, query string, topK int, excludeIDs []string) (string, error)
}

type episodicService struct {
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
	threshold         float64
}

func NewEpisodicService(
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
	threshold float64,
) IEpisodicService {
	if threshold <= 0 {
		threshold = 0.5
	}
	return &episodicService{
		uowFactory:        uowFactory,
		embeddingProvider: embeddingProvider,
		threshold:         threshold,
	}
}

func (es *episodicService) IndexTurn(ctx context.Context, conversationId, messageId, userId uuid.UUID, userMessage, assistantReply string) error {
	content := fmt.Sprintf("User: %s\nAssistant: %s", userMessage, assistantReply)

	// ChunkSize 1500 chars with 200 overlap, same budget the embedding model
	// handles comfortably elsewhere in the system.
	chunks := utils.SplitText(content, 1500, 200)

	episodes := make([]*entity.Episode, 0, len(chunks))
	for i, chunk := range chunks {
		res, err := es.embeddingProvider.Generate(ctx, chunk, "RETRIEVAL_DOCUMENT")
		if err != nil {
			return fmt.Errorf("failed to embed chunk %d: %w", i, err)
		}
		episodes = append(episodes, &entity.Episode{
			Id:             uuid.New(),
			ConversationId: conversationId,
			MessageId:      messageId,
			UserId:         userId,
			Content:        chunk,
			EmbeddingValue: res.Embedding.Values,
			ChunkIndex:     i,
			CreatedAt:      time.Now(),
		})
	}

	uow := es.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.EpisodeRepository().DeleteByMessageId(ctx, messageId); err != nil {
		return err
	}
	if err := uow.EpisodeRepository().CreateBulk(ctx, episodes); err != nil {
		return err
	}
	return uow.Commit()
}

func (es *episodicService) Recall(ctx context.Context, conversationID, query string, topK int, excludeIDs []string) (string, error) {
	convId, err := uuid.Parse(conversationID)
	if err != nil {
		return "", fmt.Errorf("invalid conversation id: %w", err)
	}

	res, err := es.embeddingProvider.Generate(ctx, query, "RETRIEVAL_QUERY")
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	var excludes []uuid.UUID
	for _, id := range excludeIDs {
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		excludes = append(excludes, parsed)
	}

	uow := es.uowFactory.NewUnitOfWork(ctx)
	scored, err := uow.EpisodeRepository().SearchSimilar(ctx, res.Embedding.Values, convId, topK, excludes, es.threshold)
	if err != nil {
		return "", err
	}
	if len(scored) == 0 {
		return "", nil
	}

	log.Printf("[EPISODIC] Recalled %d episodes for conversation %s", len(scored), conversationID)

	sections := make([]string, len(scored))
	for i, s := range scored {
		sections[i] = s.Episode.Content
	}
	return strings.Join(sections, "\n\n"), nil
}
