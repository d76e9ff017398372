package aggregate

import (
	"context"
	"testing"

	"ai-assistant-be/pkg/rag"

	"github.com/stretchr/testify/assert"
)

func result(agent, answer, errMsg string, retrievals ...rag.Retrieval) *rag.RunResult {
	return &rag.RunResult{
		AgentType:  agent,
		Answer:     answer,
		Retrievals: retrievals,
		Err:        errMsg,
	}
}

func retrieval(granularity, sourceID, evidence string) rag.Retrieval {
	return rag.Retrieval{
		Granularity: granularity,
		Metadata:    rag.RetrievalMetadata{SourceID: sourceID},
		Evidence:    evidence,
	}
}

func TestReduceSingleAnswerPassThrough(t *testing.T) {
	a := New()
	merged := a.Reduce(context.Background(), []*rag.RunResult{
		result("hybrid", "the answer", ""),
	}, nil)

	assert.False(t, merged.Failed())
	assert.Equal(t, "the answer", merged.Answer)
	assert.Equal(t, "hybrid", merged.AgentType)
}

func TestReduceMultipleAnswersWithoutSynthesizer(t *testing.T) {
	a := New()
	merged := a.Reduce(context.Background(), []*rag.RunResult{
		result("hybrid", "answer one", ""),
		result("vector", "answer two", ""),
	}, nil)

	// Left empty for the downstream generation step.
	assert.Empty(t, merged.Answer)
	assert.False(t, merged.Failed())
}

func TestReducePartialFailureKeepsSurvivors(t *testing.T) {
	a := New()
	merged := a.Reduce(context.Background(), []*rag.RunResult{
		result("hybrid", "", "timeout after 8s"),
		result("vector", "survivor", "", retrieval("chunk", "s1", "ev")),
	}, nil)

	assert.False(t, merged.Failed())
	assert.Equal(t, "survivor", merged.Answer)
	assert.Len(t, merged.Retrievals, 1)
}

func TestReduceAllFailed(t *testing.T) {
	tests := []struct {
		name    string
		results []*rag.RunResult
		wantErr string
	}{
		{
			name: "first reported error wins",
			results: []*rag.RunResult{
				result("hybrid", "", "timeout after 8s"),
				result("vector", "", "connection refused"),
			},
			wantErr: "timeout after 8s",
		},
		{
			name: "generic error when none reported",
			results: []*rag.RunResult{
				{AgentType: "hybrid", Err: " "},
			},
			wantErr: " ",
		},
		{
			name:    "empty input",
			results: nil,
			wantErr: ErrAllStrategiesFailed,
		},
	}

	a := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := a.Reduce(context.Background(), tt.results, nil)
			assert.True(t, merged.Failed())
			assert.Equal(t, tt.wantErr, merged.Err)
		})
	}
}

func TestReduceDeterministicTieBreak(t *testing.T) {
	// Same inputs in completion order A and completion order B must reduce
	// identically once the preferred (plan) order is applied.
	r1 := result("hybrid", "", "",
		retrieval("chunk", "shared", "hybrid version"),
		retrieval("chunk", "h-only", "hybrid only"))
	r2 := result("vector", "", "",
		retrieval("chunk", "shared", "vector version"),
		retrieval("entity", "v-only", "vector only"))

	planOrder := []string{"hybrid", "vector"}
	a := New()

	first := a.Reduce(context.Background(), []*rag.RunResult{r1, r2}, planOrder)
	second := a.Reduce(context.Background(), []*rag.RunResult{r2, r1}, planOrder)

	assert.Equal(t, first.Retrievals, second.Retrievals)
	assert.Equal(t, "hybrid version", first.Retrievals[0].Evidence,
		"the plan-order winner keeps the shared source")
	assert.Len(t, first.Retrievals, 3)
}

func TestReduceDedupeByGranularityAndSource(t *testing.T) {
	a := New()
	merged := a.Reduce(context.Background(), []*rag.RunResult{
		result("hybrid", "", "",
			retrieval("chunk", "s1", "first"),
			retrieval("entity", "s1", "different granularity survives")),
		result("vector", "", "",
			retrieval("chunk", "s1", "duplicate dropped")),
	}, nil)

	assert.Len(t, merged.Retrievals, 2)
	assert.Equal(t, "first", merged.Retrievals[0].Evidence)
}

type stubSynthesizer struct {
	out string
	err error
}

func (s stubSynthesizer) Synthesize(_ context.Context, _ []string, _ []rag.Retrieval, _ SynthesisConfig) (string, error) {
	return s.out, s.err
}

func TestReduceSynthesisPath(t *testing.T) {
	a := New().WithSynthesis(stubSynthesizer{out: "merged answer"}, SynthesisConfig{MaxChars: 6})
	merged := a.Reduce(context.Background(), []*rag.RunResult{
		result("hybrid", "answer one", ""),
		result("vector", "answer two", ""),
	}, nil)

	assert.Equal(t, "merged", merged.Answer, "synthesized output is truncated to MaxChars")
}
