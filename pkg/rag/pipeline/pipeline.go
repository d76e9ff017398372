// Package pipeline orchestrates one conversational turn through three
// sequential stages sharing an accumulating state: route, recall, execute.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/rag"
	"ai-assistant-be/pkg/rag/executor"
	"ai-assistant-be/pkg/rag/router"
	"ai-assistant-be/pkg/rag/state"
	"ai-assistant-be/pkg/rag/stream"
)

// ErrTotalRetrievalFailure marks a turn where every retrieval strategy failed.
var ErrTotalRetrievalFailure = errors.New("all retrieval strategies failed")

// HistoryMessage is one stored message as the recall stage sees it.
type HistoryMessage struct {
	ID      string
	Role    string
	Content string
}

// HistoryStore lists recent completed messages, newest first.
type HistoryStore interface {
	ListRecent(ctx context.Context, conversationID string, limit int) ([]HistoryMessage, error)
}

// MemoryService loads the user's long-lived memory context.
type MemoryService interface {
	Load(ctx context.Context, userID string) (string, error)
}

// SummaryStore loads the rolling conversation summary.
type SummaryStore interface {
	Get(ctx context.Context, conversationID string) (string, error)
}

// EpisodicMemory recalls semantically relevant prior turns, excluding message
// ids already present in the history window.
type EpisodicMemory interface {
	Recall(ctx context.Context, conversationID, query string, topK int, excludeIDs []string) (string, error)
}

// LegacyKBHandler is the optional legacy knowledge-base streaming path. When
// present it owns the whole streamed retrieval turn, including the done frame.
type LegacyKBHandler interface {
	Stream(ctx context.Context, st state.State) <-chan stream.Event
}

// FinalizeFunc persists the turn and schedules post-processing. Extra events
// it returns are emitted before the done frame.
type FinalizeFunc func(ctx context.Context, st state.State, outcome *executor.TurnOutcome) ([]stream.Event, error)

// Config bounds the pipeline's recall and execution behavior.
type Config struct {
	HistoryWindow  int           // completed messages recalled per turn
	EpisodicTopK   int           // prior turns recalled semantically
	DefaultTimeout time.Duration // per-run retrieval budget when the router gives none
	AnswerTimeout  time.Duration // single generation budget
}

func DefaultConfig() Config {
	return Config{
		HistoryWindow:  8,
		EpisodicTopK:   5,
		DefaultTimeout: 8 * time.Second,
		AnswerTimeout:  30 * time.Second,
	}
}

// Pipeline drives one turn: route -> recall -> execute. Recall failures
// degrade silently; route and execute failures are fatal for the turn.
type Pipeline struct {
	router      router.Router
	fanout      *executor.FanoutExecutor
	streamer    *executor.StreamingExecutor
	llmProvider llm.LLMProvider

	history   HistoryStore
	memory    MemoryService
	summaries SummaryStore
	episodic  EpisodicMemory
	legacy    LegacyKBHandler

	cfg    Config
	logger *log.Logger
}

func New(
	rt router.Router,
	fanout *executor.FanoutExecutor,
	streamer *executor.StreamingExecutor,
	llmProvider llm.LLMProvider,
	history HistoryStore,
	memory MemoryService,
	summaries SummaryStore,
	episodic EpisodicMemory,
	legacy LegacyKBHandler,
	cfg Config,
	logger *log.Logger,
) *Pipeline {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultConfig().HistoryWindow
	}
	if cfg.EpisodicTopK <= 0 {
		cfg.EpisodicTopK = DefaultConfig().EpisodicTopK
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = DefaultConfig().AnswerTimeout
	}
	return &Pipeline{
		router:      rt,
		fanout:      fanout,
		streamer:    streamer,
		llmProvider: llmProvider,
		history:     history,
		memory:      memory,
		summaries:   summaries,
		episodic:    episodic,
		legacy:      legacy,
		cfg:         cfg,
		logger:      logger,
	}
}

// Invoke runs a blocking turn and returns the final state.
func (p *Pipeline) Invoke(ctx context.Context, st state.State) (state.State, error) {
	st, err := p.route(ctx, st)
	if err != nil {
		return st, err
	}
	st = p.recall(ctx, st)
	return p.execute(ctx, st)
}

// Stream runs a streamed turn. The returned channel closes after the turn's
// single done frame (or, on consumer disconnect, after all subtasks joined).
func (p *Pipeline) Stream(ctx context.Context, st state.State, finalize FinalizeFunc) <-chan stream.Event {
	out := make(chan stream.Event)
	go func() {
		defer close(out)
		send := func(ev stream.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		send(stream.Start{})

		st, err := p.route(ctx, st)
		if err != nil {
			send(stream.Error{Message: err.Error()})
			send(stream.Done{Completed: false})
			return
		}
		send(stream.RouteDecision{Decision: st.RouteDecision})

		st = p.recall(ctx, st)

		switch {
		case st.UseRetrieval && p.legacy != nil:
			for ev := range p.legacy.Stream(ctx, st) {
				if !send(ev) {
					return
				}
			}
		case st.UseRetrieval:
			p.streamRetrieval(ctx, st, finalize, send)
		default:
			p.streamGeneral(ctx, st, finalize, send)
		}
	}()
	return out
}

// --- route stage ---

func (p *Pipeline) route(ctx context.Context, st state.State) (state.State, error) {
	start := time.Now()
	decision, err := p.router.Route(ctx, router.Request{
		Message:     st.Message,
		SessionID:   st.ConversationID,
		RequestedKB: st.KBPrefix,
		AgentType:   st.AgentType,
	})
	latency := time.Since(start)
	if err != nil {
		return st, fmt.Errorf("routing failed: %w", err)
	}

	decision.Normalize(st.AgentType)
	useRetrieval := router.UseRetrieval(decision.KBPrefix)

	p.logger.Printf("[ROUTE] kb=%s agent=%s retrieval=%v latency=%s",
		decision.KBPrefix, decision.AgentType, useRetrieval, latency)

	return st.Apply(state.Patch{
		KBPrefix:      state.String(decision.KBPrefix),
		WorkerName:    state.String(decision.WorkerName),
		RouteDecision: decision,
		AgentType:     state.String(decision.AgentType),
		UseRetrieval:  state.Bool(useRetrieval),
		RouteLatency:  state.Duration(latency),
	}), nil
}

// --- recall stage ---

// recall gathers best-effort context. Each lookup is failure-isolated: an
// error degrades that one value to empty without aborting the stage or
// touching the others. The whole stage is skipped under incognito.
func (p *Pipeline) recall(ctx context.Context, st state.State) state.State {
	if st.Incognito {
		return st
	}

	var (
		memCtx   string
		summary  string
		messages []llm.Message
		ids      []string
	)

	var wg sync.WaitGroup
	if p.memory != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := p.memory.Load(ctx, st.UserID)
			if err != nil {
				p.logger.Printf("[WARN] Memory recall failed: %v", err)
				return
			}
			memCtx = v
		}()
	}
	if p.summaries != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := p.summaries.Get(ctx, st.ConversationID)
			if err != nil {
				p.logger.Printf("[WARN] Summary recall failed: %v", err)
				return
			}
			summary = v
		}()
	}
	if p.history != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			messages, ids = p.recallHistory(ctx, st)
		}()
	}
	wg.Wait()

	// Episodic recall runs after history so it can exclude the ids already
	// present in the window. Same isolation rules.
	var episodic string
	if p.episodic != nil {
		excludes := append([]string{st.UserMessageID}, ids...)
		v, err := p.episodic.Recall(ctx, st.ConversationID, st.Message, p.cfg.EpisodicTopK, excludes)
		if err != nil {
			p.logger.Printf("[WARN] Episodic recall failed: %v", err)
		} else {
			episodic = v
		}
	}

	return st.Apply(state.Patch{
		MemoryContext:   state.String(memCtx),
		Summary:         state.String(summary),
		History:         state.Messages(messages),
		EpisodicContext: state.String(episodic),
	})
}

func (p *Pipeline) recallHistory(ctx context.Context, st state.State) ([]llm.Message, []string) {
	recent, err := p.history.ListRecent(ctx, st.ConversationID, p.cfg.HistoryWindow+1)
	if err != nil {
		p.logger.Printf("[WARN] History recall failed: %v", err)
		return nil, nil
	}

	// Drop the just-created user message, cap to the window, and restore
	// chronological order (the store returns newest first).
	filtered := make([]HistoryMessage, 0, len(recent))
	for _, m := range recent {
		if m.ID == st.UserMessageID {
			continue
		}
		filtered = append(filtered, m)
	}
	if len(filtered) > p.cfg.HistoryWindow {
		filtered = filtered[:p.cfg.HistoryWindow]
	}

	messages := make([]llm.Message, len(filtered))
	ids := make([]string, len(filtered))
	for i, m := range filtered {
		j := len(filtered) - 1 - i
		messages[j] = llm.Message{Role: m.Role, Content: m.Content}
		ids[i] = m.ID
	}
	return messages, ids
}

// --- execute stage ---

func (p *Pipeline) execute(ctx context.Context, st state.State) (state.State, error) {
	if st.Stream {
		return st, errors.New("streamed turns must go through Stream")
	}

	if !st.UseRetrieval {
		return p.generalCompletion(ctx, st), nil
	}

	outcome := p.fanout.RunPlanBlocking(ctx, p.buildPlan(st), st.Message, st.RouteDecision, p.generationHistory(st))
	if outcome.Aggregated.Failed() && outcome.Answer == "" {
		return st, fmt.Errorf("%w: %s", ErrTotalRetrievalFailure, outcome.Aggregated.Err)
	}

	return st.Apply(state.Patch{
		Response:   state.String(outcome.Answer),
		Aggregated: outcome.Aggregated,
		Completed:  state.Bool(outcome.Completed),
	}), nil
}

// generalCompletion answers without retrieval. A generation failure degrades
// to the apology message, never an error.
func (p *Pipeline) generalCompletion(ctx context.Context, st state.State) state.State {
	genCtx, cancel := context.WithTimeout(ctx, p.cfg.AnswerTimeout)
	defer cancel()

	history := append(p.generationHistory(st), llm.Message{Role: "user", Content: st.Message})
	answer, err := p.llmProvider.Chat(genCtx, history)
	if err != nil {
		p.logger.Printf("[ERROR] General completion failed: %v", err)
		return st.Apply(state.Patch{
			Response:  state.String(executor.ApologyMessage),
			Completed: state.Bool(false),
		})
	}
	return st.Apply(state.Patch{
		Response:  state.String(answer),
		Completed: state.Bool(true),
	})
}

func (p *Pipeline) streamRetrieval(ctx context.Context, st state.State, finalize FinalizeFunc, send func(stream.Event) bool) {
	req := executor.StreamRequest{
		Plan:     p.buildPlan(st),
		Query:    st.Message,
		Decision: st.RouteDecision,
		History:  p.generationHistory(st),
		Debug:    st.Debug,
	}
	if finalize != nil {
		req.Finalize = func(fctx context.Context, outcome *executor.TurnOutcome) ([]stream.Event, error) {
			final := st.Apply(state.Patch{
				Response:   state.String(outcome.Answer),
				Aggregated: outcome.Aggregated,
				Completed:  state.Bool(outcome.Completed),
			})
			return finalize(fctx, final, outcome)
		}
	}

	events := p.streamer.Stream(ctx, req)
	for ev := range events {
		if !send(ev) {
			// Consumer gone; drain so the executor can join its tasks.
			for range events {
			}
			return
		}
	}
}

// streamGeneral streams a non-retrieval completion: tokens, finalize, done.
func (p *Pipeline) streamGeneral(ctx context.Context, st state.State, finalize FinalizeFunc, send func(stream.Event) bool) {
	genCtx, cancel := context.WithTimeout(ctx, p.cfg.AnswerTimeout)
	defer cancel()

	history := append(p.generationHistory(st), llm.Message{Role: "user", Content: st.Message})

	answer := ""
	completed := false
	chunks, err := p.llmProvider.ChatStream(genCtx, history)
	if err != nil {
		send(stream.Error{Message: "generation failed: " + err.Error()})
		answer = executor.ApologyMessage
	} else {
		var buf []byte
		for chunk := range chunks {
			if chunk.Content != "" {
				buf = append(buf, chunk.Content...)
				send(stream.Token{Content: chunk.Content})
			}
			if chunk.Done {
				break
			}
		}
		if genCtx.Err() != nil {
			send(stream.Error{Message: "generation timeout: budget exhausted"})
			answer = executor.ApologyMessage
		} else {
			answer = string(buf)
			completed = true
		}
	}

	final := st.Apply(state.Patch{
		Response:  state.String(answer),
		Completed: state.Bool(completed),
	})
	if finalize != nil {
		extra, err := finalize(ctx, final, &executor.TurnOutcome{Answer: answer, Completed: completed})
		for _, ev := range extra {
			send(ev)
		}
		if err != nil {
			p.logger.Printf("[ERROR] Turn finalization failed: %v", err)
			send(stream.Error{Message: "failed to persist the turn"})
			completed = false
		}
	}
	send(stream.Done{Completed: completed})
}

// buildPlan uses the router-provided multi-spec plan when present, otherwise
// a one-spec plan from the resolved agent type. Zero timeouts get the default.
func (p *Pipeline) buildPlan(st state.State) rag.Plan {
	var plan rag.Plan
	if st.RouteDecision != nil && len(st.RouteDecision.Plan) > 0 {
		plan = append(plan, st.RouteDecision.Plan...)
	} else {
		plan = rag.Plan{{AgentType: st.AgentType, WorkerName: st.WorkerName}}
	}
	for i := range plan {
		if plan[i].Timeout <= 0 {
			plan[i].Timeout = p.cfg.DefaultTimeout
		}
	}
	return plan
}

// generationHistory prepends the recalled context as system messages.
func (p *Pipeline) generationHistory(st state.State) []llm.Message {
	var msgs []llm.Message
	if st.MemoryContext != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: "What you remember about the user:\n" + st.MemoryContext})
	}
	if st.Summary != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: "Conversation so far:\n" + st.Summary})
	}
	if st.EpisodicContext != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: "Relevant prior exchanges:\n" + st.EpisodicContext})
	}
	return append(msgs, st.History...)
}
