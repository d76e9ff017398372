package watchlist

import (
	"context"
	"errors"
	"testing"

	"ai-assistant-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }
func (nopLogger) GetLogs(string, int, int) ([]logger.LogEntry, error) {
	return nil, nil
}
func (nopLogger) GetLogById(string) (*logger.LogEntry, error) { return nil, nil }

type fakeStore struct {
	existing []Item
	listErr  error
	addErr   map[string]error
	added    []string
}

func (f *fakeStore) ListFirstPage(_ context.Context, _ string, _ int) ([]Item, error) {
	return f.existing, f.listErr
}

func (f *fakeStore) Add(_ context.Context, _ string, title string) error {
	if err := f.addErr[title]; err != nil {
		return err
	}
	f.added = append(f.added, title)
	return nil
}

func capture(store *fakeStore, cfg Config, message string) []string {
	s := NewCaptureService(store, cfg, nopLogger{})
	return s.Capture(context.Background(), "user-1", message)
}

func TestCaptureRequiresWatchIntent(t *testing.T) {
	store := &fakeStore{}
	added := capture(store, DefaultConfig(), "《盗梦空间》是一部好电影")
	assert.Empty(t, added, "bracketed title without an intent keyword is ignored")
	assert.Empty(t, store.added)
}

func TestCaptureBracketedTitles(t *testing.T) {
	store := &fakeStore{}
	added := capture(store, DefaultConfig(), "把《盗梦空间》和「星际穿越」加入片单")

	assert.Equal(t, []string{"盗梦空间", "星际穿越"}, added)
	assert.Equal(t, store.added, added)
}

func TestCaptureListItemsWithYears(t *testing.T) {
	store := &fakeStore{}
	message := "add to my watchlist:\n- Inception (2010)\n2. Interstellar（2014）\n* Dune"
	added := capture(store, DefaultConfig(), message)

	assert.Equal(t, []string{"Inception", "Interstellar", "Dune"}, added)
}

func TestCaptureKeywordStripFallback(t *testing.T) {
	store := &fakeStore{}
	added := capture(store, DefaultConfig(), "加入盗梦空间")

	assert.Equal(t, []string{"盗梦空间"}, added)
}

func TestCaptureDedupsAgainstExistingItems(t *testing.T) {
	store := &fakeStore{
		existing: []Item{{ID: "1", Title: "盗梦空间"}},
	}
	added := capture(store, DefaultConfig(), "加入盗梦空间")

	assert.Empty(t, added, "a title already on the watchlist is not re-added")
	assert.Empty(t, store.added)
}

func TestCaptureDedupIsCaseAndSpacingInsensitive(t *testing.T) {
	store := &fakeStore{
		existing: []Item{{ID: "1", Title: "Inception"}},
	}
	added := capture(store, DefaultConfig(), `add "inception " to my watchlist`)

	assert.Empty(t, added)
}

func TestCapturePerTurnCap(t *testing.T) {
	store := &fakeStore{}
	message := "加入《电影一》《电影二》《电影三》"
	added := capture(store, Config{PageSize: 10, MaxPerTurn: 2}, message)

	assert.Len(t, added, 2)
}

func TestCaptureListFailureDegradesToEmptyScan(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db down")}
	added := capture(store, DefaultConfig(), "加入《盗梦空间》")

	assert.Equal(t, []string{"盗梦空间"}, added, "a failed dedup scan never blocks the capture")
}

func TestCapturePerCandidateAddFailureIsSkipped(t *testing.T) {
	store := &fakeStore{
		addErr: map[string]error{"电影一": errors.New("constraint violation")},
	}
	added := capture(store, DefaultConfig(), "加入《电影一》《电影二》")

	assert.Equal(t, []string{"电影二"}, added)
}
