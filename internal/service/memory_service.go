package service

import (
	"context"
	"strings"

	"ai-assistant-be/internal/repository/memory"
)

// IMemoryService manages long-lived user memory. Both operations are
// best-effort: Load degrades to empty, MaybeWrite never reports failure.
type IMemoryService interface {
	Load(ctx context.Context, userID string) (string, error)
	MaybeWrite(ctx context.Context, userID, message string)
}

type memoryService struct {
	repo *memory.MemoryRepository
}

func NewMemoryService(repo *memory.MemoryRepository) IMemoryService {
	return &memoryService{repo: repo}
}

func (ms *memoryService) Load(ctx context.Context, userID string) (string, error) {
	facts := ms.repo.Facts(userID)
	if len(facts) == 0 {
		return "", nil
	}
	return "- " + strings.Join(facts, "\n- "), nil
}

// Phrases that mark a user statement as worth remembering.
var memoryMarkers = []string{
	"my name is",
	"i live in",
	"i like",
	"i love",
	"i hate",
	"i prefer",
	"remember that",
	"我叫",
	"我喜欢",
	"我讨厌",
	"记住",
}

// MaybeWrite stores the message as a memory fact when it carries a marker
// phrase. Long messages are skipped; memory holds facts, not transcripts.
func (ms *memoryService) MaybeWrite(ctx context.Context, userID, message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" || len([]rune(trimmed)) > 200 {
		return
	}

	lower := strings.ToLower(trimmed)
	for _, marker := range memoryMarkers {
		if strings.Contains(lower, marker) {
			ms.repo.Append(userID, trimmed)
			return
		}
	}
}
