// Package router decides which knowledge base and retrieval strategies serve
// a turn. The decision logic itself is pluggable; this package fixes the
// decision shape and the normalization rules the UI depends on.
package router

import (
	"context"
	"strings"

	"ai-assistant-be/pkg/rag"
)

// Request is the routing input, awaited once at pipeline start.
type Request struct {
	Message     string
	SessionID   string
	RequestedKB string
	AgentType   string
}

// Decision is the routing output.
type Decision struct {
	KBPrefix             string   `json:"kb_prefix"`
	WorkerName           string   `json:"worker_name"`
	Confidence           float64  `json:"confidence"`
	Reason               string   `json:"reason,omitempty"`
	Reasoning            string   `json:"reasoning,omitempty"`
	AgentType            string   `json:"agent_type"`
	SelectedAgent        string   `json:"selected_agent"`
	RecommendedAgentType string   `json:"recommended_agent_type,omitempty"`
	ExtractedEntities    []string `json:"extracted_entities,omitempty"`
	RecommendIntent      bool     `json:"recommend_intent,omitempty"`
	MediaTypeHint        string   `json:"media_type_hint,omitempty"`
	HasFilterConstraints bool     `json:"has_filter_constraints,omitempty"`

	// Plan is an optional router-provided multi-strategy plan. When empty the
	// pipeline builds a one-spec plan from the resolved agent type.
	Plan rag.Plan `json:"-"`
}

// Router is the external routing collaborator.
type Router interface {
	Route(ctx context.Context, req Request) (*Decision, error)
}

// ResolveAgentType extracts the effective agent type from a worker name of
// form "{kb_prefix}:{agent_type}:{agent_mode}". Falls back to the requested
// agent type when the format doesn't match.
func ResolveAgentType(workerName, requested string) string {
	parts := strings.Split(workerName, ":")
	if len(parts) == 3 && parts[1] != "" {
		return parts[1]
	}
	return requested
}

// UseRetrieval reports whether the kb prefix selects a retrieval-backed turn.
func UseRetrieval(kbPrefix string) bool {
	return kbPrefix != "" && kbPrefix != "general"
}

// Normalize stabilizes the decision payload for UI consumption: agent_type
// and selected_agent are always set, and reason is mirrored into reasoning
// when the latter is absent.
func (d *Decision) Normalize(requestedAgent string) {
	d.AgentType = ResolveAgentType(d.WorkerName, requestedAgent)
	if d.AgentType == "" {
		d.AgentType = requestedAgent
	}
	d.SelectedAgent = d.AgentType
	if d.Reasoning == "" && d.Reason != "" {
		d.Reasoning = d.Reason
	}
}
