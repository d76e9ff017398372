package memory

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryRepository keeps per-user memory facts in process memory. Facts are
// best-effort by contract, so an eviction only means a colder next turn.
type MemoryRepository struct {
	cache *cache.Cache
}

func NewMemoryRepository() *MemoryRepository {
	// Default expiration of 24 hours, purging expired entries every hour.
	c := cache.New(24*time.Hour, 1*time.Hour)
	return &MemoryRepository{
		cache: c,
	}
}

func (r *MemoryRepository) Append(userID, fact string) {
	facts := r.Facts(userID)
	for _, f := range facts {
		if f == fact {
			return
		}
	}
	r.cache.Set(userID, append(facts, fact), cache.DefaultExpiration)
}

func (r *MemoryRepository) Facts(userID string) []string {
	if x, found := r.cache.Get(userID); found {
		return x.([]string)
	}
	return nil
}

func (r *MemoryRepository) Clear(userID string) {
	r.cache.Delete(userID)
}
