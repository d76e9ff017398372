package implementation

import (
	"context"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/mapper"
	"ai-assistant-be/internal/model"
	"ai-assistant-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type EpisodeRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.EpisodeMapper
}

func NewEpisodeRepository(db *gorm.DB) contract.EpisodeRepository {
	return &EpisodeRepositoryImpl{
		db:     db,
		mapper: mapper.NewEpisodeMapper(),
	}
}

func (r *EpisodeRepositoryImpl) CreateBulk(ctx context.Context, episodes []*entity.Episode) error {
	if len(episodes) == 0 {
		return nil
	}
	models := make([]*model.Episode, len(episodes))
	for i, e := range episodes {
		models[i] = r.mapper.ToModel(e)
	}

	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return err
	}

	for i, m := range models {
		*episodes[i] = *r.mapper.ToEntity(m)
	}
	return nil
}

func (r *EpisodeRepositoryImpl) DeleteByMessageId(ctx context.Context, messageId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("message_id = ?", messageId).Delete(&model.Episode{}).Error
}

func (r *EpisodeRepositoryImpl) DeleteByConversationId(ctx context.Context, conversationId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("conversation_id = ?", conversationId).Delete(&model.Episode{}).Error
}

func (r *EpisodeRepositoryImpl) SearchSimilar(ctx context.Context, embedding []float32, conversationId uuid.UUID, limit int, excludeMessageIds []uuid.UUID, threshold float64) ([]*contract.ScoredEpisode, error) {
	if limit <= 0 {
		limit = 5
	}

	// Cosine distance in pgvector is 1 - cosine_similarity, so the score is
	// 1 - (embedding_value <=> query_vector).
	type result struct {
		model.Episode
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	query := r.db.WithContext(ctx).
		Table("episodes").
		Select("episodes.*, 1 - (embedding_value <=> ?) as similarity", queryVector).
		Where("conversation_id = ?", conversationId).
		Where("1 - (embedding_value <=> ?) >= ?", queryVector, threshold)

	if len(excludeMessageIds) > 0 {
		query = query.Where("message_id NOT IN ?", excludeMessageIds)
	}

	err := query.
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*contract.ScoredEpisode, len(results))
	for i, res := range results {
		scored[i] = &contract.ScoredEpisode{
			Episode:    r.mapper.ToEntity(&res.Episode),
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}
