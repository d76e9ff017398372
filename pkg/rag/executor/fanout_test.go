package executor

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/rag"
	"ai-assistant-be/pkg/rag/aggregate"
	"ai-assistant-be/pkg/rag/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// stubLLM answers every call with a fixed response or error.
type stubLLM struct {
	answer string
	err    error
	chunks []llm.Chunk
}

func (s *stubLLM) Chat(_ context.Context, _ []llm.Message, _ ...llm.Option) (string, error) {
	return s.answer, s.err
}

func (s *stubLLM) Generate(_ context.Context, _ string, _ ...llm.Option) (string, error) {
	return s.answer, s.err
}

func (s *stubLLM) ChatStream(_ context.Context, _ []llm.Message, _ ...llm.Option) (<-chan llm.Chunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan llm.Chunk, len(s.chunks))
	for _, c := range s.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func delayedRetriever(delays map[string]time.Duration) rag.Retriever {
	return rag.RetrieverFunc(func(ctx context.Context, spec rag.RunSpec, _ string) (*rag.RunResult, error) {
		select {
		case <-time.After(delays[spec.AgentType]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &rag.RunResult{AgentType: spec.AgentType, Context: spec.AgentType + " context"}, nil
	})
}

func TestRunOneTimeout(t *testing.T) {
	slow := rag.RetrieverFunc(func(ctx context.Context, _ rag.RunSpec, _ string) (*rag.RunResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	res := runOne(context.Background(), slow, rag.RunSpec{
		AgentType: "hybrid",
		Timeout:   10 * time.Millisecond,
	}, "q")

	require.True(t, res.Failed())
	assert.Equal(t, "timeout after 0.01s", res.Err)
	assert.Equal(t, "hybrid", res.AgentType)
}

func TestRunOneRetrieverError(t *testing.T) {
	failing := rag.RetrieverFunc(func(_ context.Context, _ rag.RunSpec, _ string) (*rag.RunResult, error) {
		return nil, errors.New("connection refused")
	})

	res := runOne(context.Background(), failing, rag.RunSpec{AgentType: "vector", Timeout: time.Second}, "q")
	assert.Equal(t, "connection refused", res.Err)
	assert.Equal(t, "vector", res.AgentType)
}

func TestRunPlanRetrievalKeepsPlanOrder(t *testing.T) {
	// The fast run finishes first; results must still come back in plan order.
	e := NewFanoutExecutor(delayedRetriever(map[string]time.Duration{
		"slow": 50 * time.Millisecond,
		"fast": 0,
	}), aggregate.New(), &stubLLM{}, nil, time.Second, testLogger())

	plan := rag.Plan{
		{AgentType: "slow", Timeout: time.Second},
		{AgentType: "fast", Timeout: time.Second},
	}
	outcome := e.RunPlanRetrieval(context.Background(), plan, "q")

	require.Len(t, outcome.Runs, 2)
	assert.Equal(t, "slow", outcome.Runs[0].AgentType)
	assert.Equal(t, "fast", outcome.Runs[1].AgentType)
	assert.Equal(t,
		"### Strategy: slow\n\nslow context\n\n---\n\n### Strategy: fast\n\nfast context",
		outcome.CombinedContext)
}

func TestRunPlanBlockingGenerationFailureDegrades(t *testing.T) {
	e := NewFanoutExecutor(delayedRetriever(map[string]time.Duration{"hybrid": 0}),
		aggregate.New(), &stubLLM{err: errors.New("model unavailable")}, nil, time.Second, testLogger())

	plan := rag.Plan{{AgentType: "hybrid", Timeout: time.Second}}
	outcome := e.RunPlanBlocking(context.Background(), plan, "q", nil, nil)

	assert.Equal(t, ApologyMessage, outcome.Answer)
	assert.False(t, outcome.Completed)
	assert.Equal(t, "model unavailable", outcome.Aggregated.Err)
}

func TestRunPlanBlockingPassThroughSkipsGeneration(t *testing.T) {
	answering := rag.RetrieverFunc(func(_ context.Context, spec rag.RunSpec, _ string) (*rag.RunResult, error) {
		return &rag.RunResult{AgentType: spec.AgentType, Answer: "direct answer"}, nil
	})
	// An erroring LLM proves generation is never called.
	e := NewFanoutExecutor(answering, aggregate.New(), &stubLLM{err: errors.New("must not be called")}, nil, time.Second, testLogger())

	plan := rag.Plan{{AgentType: "hybrid", Timeout: time.Second}}
	outcome := e.RunPlanBlocking(context.Background(), plan, "q", nil, nil)

	assert.Equal(t, "direct answer", outcome.Answer)
	assert.True(t, outcome.Completed)
}

func TestBuildContextFromRunsSkipsFailedAndEmpty(t *testing.T) {
	combined := BuildContextFromRuns([]*rag.RunResult{
		{AgentType: "hybrid", Context: "hybrid context"},
		{AgentType: "vector", Err: "timeout after 8s", Context: "must be skipped"},
		{AgentType: "graph", Context: ""},
		nil,
	})
	assert.Equal(t, "### Strategy: hybrid\n\nhybrid context", combined)
}

func TestShouldEnrich(t *testing.T) {
	tests := []struct {
		name     string
		decision *router.Decision
		combined string
		want     bool
	}{
		{
			name: "nil decision",
			want: false,
		},
		{
			name:     "recommend intent with tv hint",
			decision: &router.Decision{RecommendIntent: true, MediaTypeHint: "tv"},
			want:     true,
		},
		{
			name:     "recommend intent with series hint",
			decision: &router.Decision{RecommendIntent: true, MediaTypeHint: "series"},
			want:     true,
		},
		{
			name:     "movie hint needs filter constraints",
			decision: &router.Decision{RecommendIntent: true, MediaTypeHint: "movie"},
			combined: "some context mentioning nothing",
			want:     true, // falls through to branch (c): no entities at all
		},
		{
			name: "movie hint with filter constraints",
			decision: &router.Decision{
				RecommendIntent:      true,
				MediaTypeHint:        "movie",
				HasFilterConstraints: true,
			},
			want: true,
		},
		{
			name: "entity already grounded in context",
			decision: &router.Decision{
				ExtractedEntities: []string{"Inception"},
			},
			combined: "### Strategy: hybrid\n\nThe film inception explores dreams.",
			want:     false,
		},
		{
			name: "entity missing from context",
			decision: &router.Decision{
				ExtractedEntities: []string{"Inception"},
			},
			combined: "unrelated context",
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldEnrich(tt.decision, tt.combined)
			if got != tt.want {
				t.Errorf("ShouldEnrich() = %v, want %v", got, tt.want)
			}
		})
	}
}
