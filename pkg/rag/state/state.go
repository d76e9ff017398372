// Package state holds the per-turn conversation state. One State instance
// exists per turn; it is never shared across concurrent turns and never
// persisted as-is. Stages mutate it only through sparse patches.
package state

import (
	"time"

	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/rag"
	"ai-assistant-be/pkg/rag/router"
)

// State is the accumulated turn record.
type State struct {
	// Request identity and flags, fixed at pipeline entry.
	RequestID      string
	ConversationID string
	UserID         string
	UserMessageID  string
	Message        string
	Stream         bool
	Debug          bool
	Incognito      bool

	// Routing outcome.
	KBPrefix      string
	WorkerName    string
	RouteDecision *router.Decision
	AgentType     string
	UseRetrieval  bool
	RouteLatency  time.Duration

	// Recall outcome, all best-effort.
	MemoryContext   string
	Summary         string
	History         []llm.Message
	EpisodicContext string

	// Execution outcome.
	Response   string
	Aggregated *rag.RunResult
	Completed  bool
}

// Patch carries only the keys a stage changed. Nil fields leave the base
// value untouched.
type Patch struct {
	KBPrefix      *string
	WorkerName    *string
	RouteDecision *router.Decision
	AgentType     *string
	UseRetrieval  *bool
	RouteLatency  *time.Duration

	MemoryContext   *string
	Summary         *string
	History         *[]llm.Message
	EpisodicContext *string

	Response   *string
	Aggregated *rag.RunResult
	Completed  *bool
}

// Apply merges a sparse patch over the base state and returns the new state.
func (s State) Apply(p Patch) State {
	if p.KBPrefix != nil {
		s.KBPrefix = *p.KBPrefix
	}
	if p.WorkerName != nil {
		s.WorkerName = *p.WorkerName
	}
	if p.RouteDecision != nil {
		s.RouteDecision = p.RouteDecision
	}
	if p.AgentType != nil {
		s.AgentType = *p.AgentType
	}
	if p.UseRetrieval != nil {
		s.UseRetrieval = *p.UseRetrieval
	}
	if p.RouteLatency != nil {
		s.RouteLatency = *p.RouteLatency
	}
	if p.MemoryContext != nil {
		s.MemoryContext = *p.MemoryContext
	}
	if p.Summary != nil {
		s.Summary = *p.Summary
	}
	if p.History != nil {
		s.History = *p.History
	}
	if p.EpisodicContext != nil {
		s.EpisodicContext = *p.EpisodicContext
	}
	if p.Response != nil {
		s.Response = *p.Response
	}
	if p.Aggregated != nil {
		s.Aggregated = p.Aggregated
	}
	if p.Completed != nil {
		s.Completed = *p.Completed
	}
	return s
}

// Helpers for building patches without intermediate variables.

func String(v string) *string { return &v }

func Bool(v bool) *bool { return &v }

func Duration(v time.Duration) *time.Duration { return &v }

func Messages(v []llm.Message) *[]llm.Message { return &v }
