package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WatchlistItem struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId    uuid.UUID      `gorm:"type:uuid;not null;index"`
	Title     string         `gorm:"type:varchar(255);not null"`
	Source    string         `gorm:"type:varchar(50);default:'manual'"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (WatchlistItem) TableName() string {
	return "watchlist_items"
}
