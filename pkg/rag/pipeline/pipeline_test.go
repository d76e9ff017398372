package pipeline

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
	"ai-assistant-be/pkg/rag/executor"
	"ai-assistant-be/pkg/rag/router"
	"ai-assistant-be/pkg/rag/state"
	"ai-assistant-be/pkg/rag/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type stubRouter struct {
	decision *router.Decision
	err      error
}

func (s stubRouter) Route(_ context.Context, _ router.Request) (*router.Decision, error) {
	return s.decision, s.err
}

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

type stubHistory struct {
	messages []HistoryMessage
	err      error
}

func (s stubHistory) ListRecent(_ context.Context, _ string, _ int) ([]HistoryMessage, error) {
	return s.messages, s.err
}

type stubMemory struct {
	value string
	err   error
}

func (s stubMemory) Load(_ context.Context, _ string) (string, error) { return s.value, s.err }

type stubSummaries struct {
	value string
	err   error
}

func (s stubSummaries) Get(_ context.Context, _ string) (string, error) { return s.value, s.err }

type stubEpisodic struct {
	value    string
	err      error
	excludes []string
}

func (s *stubEpisodic) Recall(_ context.Context, _, _ string, _ int, excludeIDs []string) (string, error) {
	s.excludes = excludeIDs
	return s.value, s.err
}

func newTestPipeline(rt router.Router, retriever rag.Retriever, provider llm.LLMProvider,
	history HistoryStore, memory MemoryService, summaries SummaryStore, episodic EpisodicMemory) *Pipeline {
	fanout := executor.NewFanoutExecutor(retriever, aggregate.New(), provider, nil, time.Second, testLogger())
	streamer := executor.NewStreamingExecutor(retriever, aggregate.New(), provider, nil, time.Second, testLogger())
	return New(rt, fanout, streamer, provider, history, memory, summaries, episodic, nil,
		Config{DefaultTimeout: time.Second, AnswerTimeout: time.Second}, testLogger())
}

func okRetriever(context_ string) rag.Retriever {
	return rag.RetrieverFunc(func(_ context.Context, spec rag.RunSpec, _ string) (*rag.RunResult, error) {
		return &rag.RunResult{AgentType: spec.AgentType, Context: context_}, nil
	})
}

func TestInvokeGeneralTurn(t *testing.T) {
	p := newTestPipeline(
		stubRouter{decision: &router.Decision{KBPrefix: "general"}},
		nil,
		&stubLLM{answer: "general answer"},
		nil, nil, nil, nil)

	st, err := p.Invoke(context.Background(), state.State{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "general answer", st.Response)
	assert.True(t, st.Completed)
	assert.False(t, st.UseRetrieval)
}

func TestInvokeGeneralTurnDegradesOnGenerationFailure(t *testing.T) {
	p := newTestPipeline(
		stubRouter{decision: &router.Decision{KBPrefix: "general"}},
		nil,
		&stubLLM{err: errors.New("model unavailable")},
		nil, nil, nil, nil)

	st, err := p.Invoke(context.Background(), state.State{Message: "hi"})
	require.NoError(t, err, "a degraded general turn is not an error")
	assert.Equal(t, executor.ApologyMessage, st.Response)
	assert.False(t, st.Completed)
}

func TestInvokeRetrievalTurn(t *testing.T) {
	p := newTestPipeline(
		stubRouter{decision: &router.Decision{KBPrefix: "media", WorkerName: "media:hybrid:default"}},
		okRetriever("retrieved context"),
		&stubLLM{answer: "grounded answer"},
		nil, nil, nil, nil)

	st, err := p.Invoke(context.Background(), state.State{Message: "who directed Inception?", AgentType: "hybrid"})
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", st.Response)
	assert.True(t, st.Completed)
	assert.True(t, st.UseRetrieval)
	assert.Equal(t, "hybrid", st.AgentType)
}

func TestInvokeTotalRetrievalFailure(t *testing.T) {
	failing := rag.RetrieverFunc(func(_ context.Context, _ rag.RunSpec, _ string) (*rag.RunResult, error) {
		return nil, errors.New("backend down")
	})
	p := newTestPipeline(
		stubRouter{decision: &router.Decision{KBPrefix: "media", WorkerName: "media:hybrid:default"}},
		failing,
		&stubLLM{},
		nil, nil, nil, nil)

	_, err := p.Invoke(context.Background(), state.State{Message: "q", AgentType: "hybrid"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTotalRetrievalFailure)
}

func TestInvokeRoutingFailureIsFatal(t *testing.T) {
	p := newTestPipeline(stubRouter{err: errors.New("classifier down")}, nil, &stubLLM{}, nil, nil, nil, nil)

	_, err := p.Invoke(context.Background(), state.State{Message: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routing failed")
}

func TestInvokeRejectsStreamFlag(t *testing.T) {
	p := newTestPipeline(stubRouter{decision: &router.Decision{KBPrefix: "general"}}, nil, &stubLLM{}, nil, nil, nil, nil)

	_, err := p.Invoke(context.Background(), state.State{Message: "q", Stream: true})
	require.Error(t, err)
}

func TestRecallFailureIsolation(t *testing.T) {
	// Memory fails, summary succeeds, history fails: only the failed lookups
	// degrade to empty.
	p := newTestPipeline(
		stubRouter{decision: &router.Decision{KBPrefix: "general"}},
		nil,
		&stubLLM{answer: "ok"},
		stubHistory{err: errors.New("db down")},
		stubMemory{err: errors.New("cache down")},
		stubSummaries{value: "the summary"},
		&stubEpisodic{value: "prior exchange"})

	st, err := p.Invoke(context.Background(), state.State{Message: "hi", UserID: "u1", ConversationID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, st.MemoryContext)
	assert.Empty(t, st.History)
	assert.Equal(t, "the summary", st.Summary)
	assert.Equal(t, "prior exchange", st.EpisodicContext)
}

func TestRecallSkippedUnderIncognito(t *testing.T) {
	episodic := &stubEpisodic{value: "must not be recalled"}
	p := newTestPipeline(
		stubRouter{decision: &router.Decision{KBPrefix: "general"}},
		nil,
		&stubLLM{answer: "ok"},
		stubHistory{messages: []HistoryMessage{{ID: "m1", Role: "user", Content: "old"}}},
		stubMemory{value: "remembered"},
		stubSummaries{value: "summary"},
		episodic)

	st, err := p.Invoke(context.Background(), state.State{Message: "hi", Incognito: true})
	require.NoError(t, err)
	assert.Empty(t, st.MemoryContext)
	assert.Empty(t, st.Summary)
	assert.Empty(t, st.History)
	assert.Empty(t, st.EpisodicContext)
	assert.Nil(t, episodic.excludes, "episodic recall never ran")
}

func TestRecallHistoryWindowAndExcludes(t *testing.T) {
	// Store returns newest first including the just-created user message.
	history := stubHistory{messages: []HistoryMessage{
		{ID: "current", Role: "user", Content: "the new message"},
		{ID: "m3", Role: "assistant", Content: "third"},
		{ID: "m2", Role: "user", Content: "second"},
		{ID: "m1", Role: "assistant", Content: "first"},
	}}
	episodic := &stubEpisodic{}

	p := newTestPipeline(
		stubRouter{decision: &router.Decision{KBPrefix: "general"}},
		nil,
		&stubLLM{answer: "ok"},
		history, nil, nil, episodic)

	st, err := p.Invoke(context.Background(), state.State{
		Message:       "the new message",
		UserMessageID: "current",
	})
	require.NoError(t, err)

	// Chronological order, current message dropped.
	require.Len(t, st.History, 3)
	assert.Equal(t, "first", st.History[0].Content)
	assert.Equal(t, "third", st.History[2].Content)

	// Episodic excludes the current message plus the window ids.
	assert.Equal(t, []string{"current", "m3", "m2", "m1"}, episodic.excludes)
}

func TestStreamGeneralTurnEventOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPipeline(
		stubRouter{decision: &router.Decision{KBPrefix: "general"}},
		nil,
		&stubLLM{chunks: []llm.Chunk{{Content: "Hi"}, {Done: true}}},
		nil, nil, nil, nil)

	var events []stream.Event
	for ev := range p.Stream(context.Background(), state.State{Message: "hello", Stream: true}, nil) {
		events = append(events, ev)
	}

	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, stream.StatusStart, events[0].Status())
	assert.Equal(t, stream.StatusRouteDecision, events[1].Status())
	assert.Equal(t, stream.StatusDone, events[len(events)-1].Status())
	assert.True(t, events[len(events)-1].(stream.Done).Completed)
}

func TestStreamRoutingFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPipeline(stubRouter{err: errors.New("classifier down")}, nil, &stubLLM{}, nil, nil, nil, nil)

	var events []stream.Event
	for ev := range p.Stream(context.Background(), state.State{Message: "q", Stream: true}, nil) {
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, stream.StatusStart, events[0].Status())
	assert.Equal(t, stream.StatusError, events[1].Status())
	assert.Equal(t, stream.StatusDone, events[2].Status())
	assert.False(t, events[2].(stream.Done).Completed)
}

func TestStreamRetrievalFinalizeSeesFinalState(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPipeline(
		stubRouter{decision: &router.Decision{KBPrefix: "media", WorkerName: "media:hybrid:default"}},
		okRetriever("ctx"),
		&stubLLM{chunks: []llm.Chunk{{Content: "grounded", Done: true}}},
		nil, nil, nil, nil)

	var finalState state.State
	finalize := func(_ context.Context, st state.State, outcome *executor.TurnOutcome) ([]stream.Event, error) {
		finalState = st
		return nil, nil
	}

	var events []stream.Event
	for ev := range p.Stream(context.Background(), state.State{Message: "q", AgentType: "hybrid", Stream: true}, finalize) {
		events = append(events, ev)
	}

	assert.Equal(t, "grounded", finalState.Response)
	assert.True(t, finalState.Completed)
	assert.Equal(t, stream.StatusDone, events[len(events)-1].Status())
}
