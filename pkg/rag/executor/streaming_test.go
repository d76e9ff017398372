package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/rag"
	"ai-assistant-be/pkg/rag/aggregate"
	"ai-assistant-be/pkg/rag/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func collect(events <-chan stream.Event) []stream.Event {
	var out []stream.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func countStatus(events []stream.Event, status stream.Status) int {
	n := 0
	for _, ev := range events {
		if ev.Status() == status {
			n++
		}
	}
	return n
}

func TestStreamHappyPathEndsWithSingleDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewStreamingExecutor(
		delayedRetriever(map[string]time.Duration{"hybrid": 0, "vector": 0}),
		aggregate.New(),
		&stubLLM{chunks: []llm.Chunk{{Content: "Hello"}, {Content: " world"}, {Done: true}}},
		nil, time.Second, testLogger())

	events := collect(e.Stream(context.Background(), StreamRequest{
		Plan: rag.Plan{
			{AgentType: "hybrid", Timeout: time.Second},
			{AgentType: "vector", Timeout: time.Second},
		},
		Query: "q",
	}))

	require.NotEmpty(t, events)
	assert.Equal(t, stream.StatusStart, events[0].Status())
	assert.Equal(t, 1, countStatus(events, stream.StatusDone))
	assert.Equal(t, stream.StatusDone, events[len(events)-1].Status())
	assert.Equal(t, 2, countStatus(events, stream.StatusProgress))

	done := events[len(events)-1].(stream.Done)
	assert.True(t, done.Completed)

	var answer string
	for _, ev := range events {
		if tok, ok := ev.(stream.Token); ok {
			answer += tok.Content
		}
	}
	assert.Equal(t, "Hello world", answer)
}

func TestStreamTotalRetrievalFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	failing := rag.RetrieverFunc(func(_ context.Context, _ rag.RunSpec, _ string) (*rag.RunResult, error) {
		return nil, errors.New("backend down")
	})
	e := NewStreamingExecutor(failing, aggregate.New(), &stubLLM{}, nil, time.Second, testLogger())

	events := collect(e.Stream(context.Background(), StreamRequest{
		Plan:  rag.Plan{{AgentType: "hybrid", Timeout: time.Second}},
		Query: "q",
	}))

	assert.Equal(t, 1, countStatus(events, stream.StatusError))
	assert.Equal(t, 1, countStatus(events, stream.StatusDone))
	done := events[len(events)-1].(stream.Done)
	assert.False(t, done.Completed)
}

func TestStreamGenerationFailureEmitsErrorThenDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewStreamingExecutor(
		delayedRetriever(map[string]time.Duration{"hybrid": 0}),
		aggregate.New(),
		&stubLLM{err: errors.New("model unavailable")},
		nil, time.Second, testLogger())

	events := collect(e.Stream(context.Background(), StreamRequest{
		Plan:  rag.Plan{{AgentType: "hybrid", Timeout: time.Second}},
		Query: "q",
	}))

	assert.Equal(t, 1, countStatus(events, stream.StatusError))
	require.Equal(t, stream.StatusDone, events[len(events)-1].Status())
	assert.False(t, events[len(events)-1].(stream.Done).Completed)
}

func TestStreamFinalizeRunsBeforeDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewStreamingExecutor(
		delayedRetriever(map[string]time.Duration{"hybrid": 0}),
		aggregate.New(),
		&stubLLM{chunks: []llm.Chunk{{Content: "ok", Done: true}}},
		nil, time.Second, testLogger())

	finalized := false
	events := collect(e.Stream(context.Background(), StreamRequest{
		Plan:  rag.Plan{{AgentType: "hybrid", Timeout: time.Second}},
		Query: "q",
		Finalize: func(_ context.Context, outcome *TurnOutcome) ([]stream.Event, error) {
			finalized = true
			assert.Equal(t, "ok", outcome.Answer)
			return []stream.Event{stream.WatchlistCapture{Added: []string{"Inception"}}}, nil
		},
	}))

	assert.True(t, finalized)
	// The finalize extra frame precedes the terminal done.
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, stream.StatusWatchlistCapture, events[len(events)-2].Status())
	assert.Equal(t, stream.StatusDone, events[len(events)-1].Status())
}

func TestStreamConsumerGoneJoinsSubtasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	blocked := rag.RetrieverFunc(func(ctx context.Context, spec rag.RunSpec, _ string) (*rag.RunResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := NewStreamingExecutor(blocked, aggregate.New(), &stubLLM{}, nil, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	events := e.Stream(ctx, StreamRequest{
		Plan: rag.Plan{
			{AgentType: "hybrid", Timeout: time.Minute},
			{AgentType: "vector", Timeout: time.Minute},
		},
		Query: "q",
	})

	cancel()
	// Channel must close with all retrieval goroutines joined; goleak verifies.
	for range events {
	}
}
