package entity

import (
	"time"

	"github.com/google/uuid"
)

type WatchlistItem struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	Title     string
	Source    string // "auto_capture" or "manual"
	CreatedAt time.Time
	DeletedAt *time.Time
	IsDeleted bool
}
