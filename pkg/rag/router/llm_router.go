package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ai-assistant-be/pkg/llm"
)

const classifyPromptTemplate = `You are a routing classifier for a conversational assistant.
Given the user message, answer with a single JSON object:
{"kb_prefix": "<media|notes|general>", "agent_type": "<hybrid|vector|graph>", "confidence": <0..1>, "reason": "<short>", "extracted_entities": ["..."], "recommend_intent": <bool>, "media_type_hint": "<movie|tv|''>", "has_filter_constraints": <bool>}

User message:
%s`

// LLMRouter classifies the turn with one LLM call. It is the default Router
// implementation; deployments with a dedicated routing service swap it out
// behind the Router interface.
type LLMRouter struct {
	provider llm.LLMProvider
}

var _ Router = &LLMRouter{}

func NewLLMRouter(provider llm.LLMProvider) *LLMRouter {
	return &LLMRouter{provider: provider}
}

func (r *LLMRouter) Route(ctx context.Context, req Request) (*Decision, error) {
	raw, err := r.provider.Generate(ctx, fmt.Sprintf(classifyPromptTemplate, req.Message), llm.WithTemperature(0.0))
	if err != nil {
		return nil, fmt.Errorf("routing classification failed: %w", err)
	}

	decision := &Decision{
		KBPrefix:  req.RequestedKB,
		AgentType: req.AgentType,
	}

	var parsed struct {
		KBPrefix             string   `json:"kb_prefix"`
		AgentType            string   `json:"agent_type"`
		Confidence           float64  `json:"confidence"`
		Reason               string   `json:"reason"`
		ExtractedEntities    []string `json:"extracted_entities"`
		RecommendIntent      bool     `json:"recommend_intent"`
		MediaTypeHint        string   `json:"media_type_hint"`
		HasFilterConstraints bool     `json:"has_filter_constraints"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		// Model went off-script: fall back to the requested kb/agent.
		decision.Reason = "classification unparseable, using requested defaults"
		return decision, nil
	}

	if parsed.KBPrefix != "" {
		decision.KBPrefix = parsed.KBPrefix
	}
	agent := parsed.AgentType
	if agent == "" {
		agent = req.AgentType
	}
	decision.WorkerName = fmt.Sprintf("%s:%s:default", decision.KBPrefix, agent)
	decision.Confidence = parsed.Confidence
	decision.Reason = parsed.Reason
	decision.ExtractedEntities = parsed.ExtractedEntities
	decision.RecommendIntent = parsed.RecommendIntent
	decision.MediaTypeHint = parsed.MediaTypeHint
	decision.HasFilterConstraints = parsed.HasFilterConstraints
	decision.RecommendedAgentType = agent

	return decision, nil
}

// extractJSON trims any prose around the first JSON object in the reply.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
