package rag

import (
	"context"
	"time"
)

// RunSpec describes one retrieval strategy execution within a plan.
// Produced by routing, consumed by the fan-out executors. Immutable.
type RunSpec struct {
	AgentType  string        `json:"agent_type"`
	WorkerName string        `json:"worker_name"`
	Timeout    time.Duration `json:"timeout"`
}

// Plan is an ordered list of retrieval specs to execute for one turn.
// Plan order is the deterministic tie-break order for aggregation and
// context assembly, regardless of completion order.
type Plan []RunSpec

// AgentTypes returns the plan's agent types in plan order.
func (p Plan) AgentTypes() []string {
	agents := make([]string, len(p))
	for i, spec := range p {
		agents[i] = spec.AgentType
	}
	return agents
}

// MaxTimeout returns the largest per-run timeout in the plan.
func (p Plan) MaxTimeout() time.Duration {
	var max time.Duration
	for _, spec := range p {
		if spec.Timeout > max {
			max = spec.Timeout
		}
	}
	return max
}

// RetrievalMetadata identifies the origin of a retrieval result.
type RetrievalMetadata struct {
	SourceID   string `json:"source_id"`
	SourceType string `json:"source_type"`
}

// Retrieval is one scored evidence item returned by a strategy.
type Retrieval struct {
	Score       float64           `json:"score"`
	Granularity string            `json:"granularity"`
	Metadata    RetrievalMetadata `json:"metadata"`
	Evidence    string            `json:"evidence"`
}

// RefItem is a referenced knowledge object (chunk, entity or relationship).
type RefItem struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content,omitempty"`
}

// Reference groups the knowledge objects a strategy cited.
type Reference struct {
	Chunks        []RefItem `json:"chunks"`
	Entities      []RefItem `json:"entities"`
	Relationships []RefItem `json:"relationships"`
}

// RunResult is the outcome of one strategy execution. A non-empty Err marks
// Context/Answer unusable for synthesis; the rest is kept for diagnostics.
type RunResult struct {
	AgentType    string                 `json:"agent_type"`
	Context      string                 `json:"context"`
	Answer       string                 `json:"answer"`
	Reference    Reference              `json:"reference"`
	Retrievals   []Retrieval            `json:"retrieval_results"`
	ExecutionLog map[string]interface{} `json:"execution_log,omitempty"`
	Err          string                 `json:"error,omitempty"`
}

// Failed reports whether this run is unusable for synthesis.
func (r *RunResult) Failed() bool {
	return r.Err != ""
}

// Retriever is the external collaborator that executes a single retrieval
// strategy. Implementations must honor ctx cancellation; the executors bound
// each call with the spec's timeout.
type Retriever interface {
	Retrieve(ctx context.Context, spec RunSpec, query string) (*RunResult, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, spec RunSpec, query string) (*RunResult, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, spec RunSpec, query string) (*RunResult, error) {
	return f(ctx, spec, query)
}
