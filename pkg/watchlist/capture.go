// Package watchlist extracts watch-intent titles from user messages and adds
// them to the user's watchlist as a best-effort post-turn side effect.
package watchlist

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"ai-assistant-be/internal/pkg/logger"
)

// Item is an existing watchlist entry as the dedup scan sees it.
type Item struct {
	ID    string
	Title string
}

// Store persists watchlist entries. ListFirstPage returns a bounded first
// page only; dedup against it is an accepted approximation.
type Store interface {
	ListFirstPage(ctx context.Context, userID string, pageSize int) ([]Item, error)
	Add(ctx context.Context, userID, title string) error
}

// Config bounds one capture pass.
type Config struct {
	PageSize   int // existing items scanned for dedup
	MaxPerTurn int // new titles added per message
}

func DefaultConfig() Config {
	return Config{PageSize: 50, MaxPerTurn: 5}
}

// CaptureService is the heuristic extractor. It never returns an error: a
// failed dedup scan degrades to an empty scan and per-candidate persistence
// failures are logged and skipped.
type CaptureService struct {
	store  Store
	cfg    Config
	logger logger.ILogger
}

func NewCaptureService(store Store, cfg Config, log logger.ILogger) *CaptureService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	if cfg.MaxPerTurn <= 0 {
		cfg.MaxPerTurn = DefaultConfig().MaxPerTurn
	}
	return &CaptureService{store: store, cfg: cfg, logger: log}
}

// Intent keywords gating the whole pass. Matching is case-insensitive.
var triggerKeywords = []string{
	"add to watchlist",
	"add to my watchlist",
	"watchlist",
	"want to watch",
	"remind me to watch",
	"加入",
	"想看",
	"加到片单",
	"追剧单",
}

var (
	// Bracketed title patterns, CJK quotation marks included.
	bracketPatterns = []*regexp.Regexp{
		regexp.MustCompile(`《([^《》]+)》`),
		regexp.MustCompile(`「([^「」]+)」`),
		regexp.MustCompile(`“([^“”]+)”`),
		regexp.MustCompile(`"([^"]+)"`),
	}

	// List-item lines with an optional trailing year, e.g. "- Inception (2010)".
	listItemPattern = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)、])\s*(.+?)\s*$`)

	trailingYearPattern = regexp.MustCompile(`\s*[（(]\d{4}[)）]\s*$`)
)

// Capture runs the full gate-extract-dedup-persist pass and returns the
// titles actually added, in extraction order.
func (s *CaptureService) Capture(ctx context.Context, userID, message string) []string {
	if !hasWatchIntent(message) {
		return nil
	}

	candidates := extractCandidates(message)
	if len(candidates) == 0 {
		return nil
	}

	existing := make(map[string]bool)
	items, err := s.store.ListFirstPage(ctx, userID, s.cfg.PageSize)
	if err != nil {
		s.logger.Warn("WatchlistCapture", "Dedup scan failed, proceeding without it", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
	for _, item := range items {
		existing[normalizeTitle(item.Title)] = true
	}

	var added []string
	for _, title := range candidates {
		if len(added) >= s.cfg.MaxPerTurn {
			break
		}
		key := normalizeTitle(title)
		if key == "" || existing[key] {
			continue
		}
		existing[key] = true

		if err := s.store.Add(ctx, userID, title); err != nil {
			s.logger.Warn("WatchlistCapture", "Failed to add title", map[string]interface{}{
				"user_id": userID,
				"title":   title,
				"error":   err.Error(),
			})
			continue
		}
		added = append(added, title)
	}

	if len(added) > 0 {
		s.logger.Info("WatchlistCapture", "Captured titles", map[string]interface{}{
			"user_id": userID,
			"count":   len(added),
		})
	}
	return added
}

func hasWatchIntent(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range triggerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// extractCandidates applies the pattern families in precedence order:
// bracketed titles first, then list items, then the keyword-stripped
// remainder of the whole message as a last resort.
func extractCandidates(message string) []string {
	seen := make(map[string]bool)
	var out []string
	push := func(raw string) {
		title := cleanTitle(raw)
		if title == "" {
			return
		}
		key := normalizeTitle(title)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, title)
	}

	for _, pat := range bracketPatterns {
		for _, m := range pat.FindAllStringSubmatch(message, -1) {
			push(m[1])
		}
	}

	for _, m := range listItemPattern.FindAllStringSubmatch(message, -1) {
		push(m[1])
	}

	if len(out) == 0 {
		push(stripKeywords(message))
	}
	return out
}

// stripKeywords removes the intent keywords from the message so the bare
// remainder can serve as a title, e.g. "加入盗梦空间" yields "盗梦空间".
func stripKeywords(message string) string {
	rest := message
	for _, kw := range triggerKeywords {
		idx := strings.Index(strings.ToLower(rest), kw)
		for idx >= 0 {
			rest = rest[:idx] + rest[idx+len(kw):]
			idx = strings.Index(strings.ToLower(rest), kw)
		}
	}
	rest = strings.TrimSpace(rest)
	if rest == "" || len([]rune(rest)) > 60 {
		return ""
	}
	return rest
}

func cleanTitle(raw string) string {
	title := trailingYearPattern.ReplaceAllString(raw, "")
	title = strings.Trim(title, " \t\"'“”「」《》.,:;!?")
	if title == "" || len([]rune(title)) > 120 {
		return ""
	}
	return title
}

// normalizeTitle folds case and drops spaces and punctuation so "盗梦空间"
// and " 盗梦空间 " or "Inception" and "inception" compare equal.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
