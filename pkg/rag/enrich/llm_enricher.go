// Package enrich produces media recommendations when the retrieval context
// cannot ground the user's request by itself.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/rag/router"
)

// Recommendation is one suggested title surfaced to the client.
type Recommendation struct {
	Title     string `json:"title"`
	MediaType string `json:"media_type"`
	Year      int    `json:"year,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// LLMEnricher asks the configured LLM for recommendations constrained by the
// routing signals.
type LLMEnricher struct {
	llmProvider llm.LLMProvider
	maxItems    int
	logger      *log.Logger
}

func NewLLMEnricher(llmProvider llm.LLMProvider, maxItems int, logger *log.Logger) *LLMEnricher {
	if maxItems <= 0 {
		maxItems = 5
	}
	return &LLMEnricher{
		llmProvider: llmProvider,
		maxItems:    maxItems,
		logger:      logger,
	}
}

func (e *LLMEnricher) Enrich(ctx context.Context, decision *router.Decision, combinedContext string) (string, interface{}, error) {
	prompt := e.buildPrompt(decision, combinedContext)

	raw, err := e.llmProvider.Chat(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", nil, fmt.Errorf("enrichment call failed: %w", err)
	}

	recs, err := parseRecommendations(raw)
	if err != nil {
		e.logger.Printf("[WARN] Unparseable enrichment output: %v", err)
		return "", nil, nil
	}
	if len(recs) > e.maxItems {
		recs = recs[:e.maxItems]
	}
	if len(recs) == 0 {
		return "", nil, nil
	}

	var b strings.Builder
	b.WriteString("### Strategy: recommendations\n\n")
	for _, r := range recs {
		if r.Year > 0 {
			fmt.Fprintf(&b, "- %s (%d, %s): %s\n", r.Title, r.Year, r.MediaType, r.Reason)
		} else {
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.MediaType, r.Reason)
		}
	}
	return b.String(), recs, nil
}

func (e *LLMEnricher) buildPrompt(decision *router.Decision, combinedContext string) string {
	var constraints []string
	if decision != nil {
		if decision.MediaTypeHint != "" {
			constraints = append(constraints, "media type: "+decision.MediaTypeHint)
		}
		if len(decision.ExtractedEntities) > 0 {
			constraints = append(constraints, "related to: "+strings.Join(decision.ExtractedEntities, ", "))
		}
	}
	constraint := "none"
	if len(constraints) > 0 {
		constraint = strings.Join(constraints, "; ")
	}

	return fmt.Sprintf(`Recommend up to %d titles matching the constraints. Respond with a JSON array only, each item shaped as {"title","media_type","year","reason"}.

Constraints: %s

Context:
%s`, e.maxItems, constraint, combinedContext)
}

func parseRecommendations(raw string) ([]Recommendation, error) {
	trimmed := strings.TrimSpace(raw)

	// Models wrap JSON in fences or prose; cut down to the outermost array.
	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in output")
	}

	var recs []Recommendation
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}
