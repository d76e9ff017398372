package implementation

import (
	"context"
	"time"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/model"
	"ai-assistant-be/internal/repository/contract"
	"ai-assistant-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WatchlistRepositoryImpl struct {
	db *gorm.DB
}

func NewWatchlistRepository(db *gorm.DB) contract.WatchlistRepository {
	return &WatchlistRepositoryImpl{db: db}
}

func (r *WatchlistRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *WatchlistRepositoryImpl) Create(ctx context.Context, item *entity.WatchlistItem) error {
	if item.Id == uuid.Nil {
		item.Id = uuid.New()
	}
	m := &model.WatchlistItem{
		Id:        item.Id,
		UserId:    item.UserId,
		Title:     item.Title,
		Source:    item.Source,
		CreatedAt: item.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	item.CreatedAt = m.CreatedAt
	return nil
}

func (r *WatchlistRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.WatchlistItem{}, id).Error
}

func (r *WatchlistRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.WatchlistItem, error) {
	var models []*model.WatchlistItem
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.WatchlistItem, len(models))
	for i, m := range models {
		var deletedAt *time.Time
		if m.DeletedAt.Valid {
			t := m.DeletedAt.Time
			deletedAt = &t
		}
		entities[i] = &entity.WatchlistItem{
			Id:        m.Id,
			UserId:    m.UserId,
			Title:     m.Title,
			Source:    m.Source,
			CreatedAt: m.CreatedAt,
			DeletedAt: deletedAt,
			IsDeleted: m.DeletedAt.Valid,
		}
	}
	return entities, nil
}

func (r *WatchlistRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.WatchlistItem{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
