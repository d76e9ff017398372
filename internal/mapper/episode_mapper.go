package mapper

import (
	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/model"

	"github.com/pgvector/pgvector-go"
)

type EpisodeMapper struct{}

func NewEpisodeMapper() *EpisodeMapper {
	return &EpisodeMapper{}
}

func (m *EpisodeMapper) ToEntity(e *model.Episode) *entity.Episode {
	if e == nil {
		return nil
	}
	return &entity.Episode{
		Id:             e.Id,
		ConversationId: e.ConversationId,
		MessageId:      e.MessageId,
		UserId:         e.UserId,
		Content:        e.Content,
		EmbeddingValue: e.EmbeddingValue.Slice(),
		ChunkIndex:     e.ChunkIndex,
		CreatedAt:      e.CreatedAt,
	}
}

func (m *EpisodeMapper) ToModel(e *entity.Episode) *model.Episode {
	if e == nil {
		return nil
	}
	return &model.Episode{
		Id:             e.Id,
		ConversationId: e.ConversationId,
		MessageId:      e.MessageId,
		UserId:         e.UserId,
		Content:        e.Content,
		EmbeddingValue: pgvector.NewVector(e.EmbeddingValue),
		ChunkIndex:     e.ChunkIndex,
		CreatedAt:      e.CreatedAt,
	}
}

func (m *EpisodeMapper) ToEntities(episodes []*model.Episode) []*entity.Episode {
	entities := make([]*entity.Episode, len(episodes))
	for i, e := range episodes {
		entities[i] = m.ToEntity(e)
	}
	return entities
}
