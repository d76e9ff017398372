package executor

import (
	"context"
	"log"
	"sync"
	"time"

	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/rag"
	"ai-assistant-be/pkg/rag/aggregate"
	"ai-assistant-be/pkg/rag/router"
	"ai-assistant-be/pkg/rag/stream"
)

// StreamRequest carries everything one streamed turn needs.
type StreamRequest struct {
	Plan     rag.Plan
	Query    string
	Decision *router.Decision
	History  []llm.Message
	Debug    bool

	// Finalize runs after generation and before the done event, so the
	// terminal frame is only emitted once persistence/post-processing for
	// the turn has run. Extra events it returns (e.g. watchlist captures)
	// are emitted before done. Nil skips finalization explicitly.
	Finalize func(ctx context.Context, outcome *TurnOutcome) ([]stream.Event, error)
}

// StreamingExecutor is the event-emitting variant of the fan-out executor.
// Progress frames follow completion order; the synthesized context for
// generation still follows plan order.
type StreamingExecutor struct {
	retriever     rag.Retriever
	aggregator    *aggregate.Aggregator
	llmProvider   llm.LLMProvider
	enricher      Enricher
	answerTimeout time.Duration
	logger        *log.Logger
}

func NewStreamingExecutor(
	retriever rag.Retriever,
	aggregator *aggregate.Aggregator,
	llmProvider llm.LLMProvider,
	enricher Enricher,
	answerTimeout time.Duration,
	logger *log.Logger,
) *StreamingExecutor {
	return &StreamingExecutor{
		retriever:     retriever,
		aggregator:    aggregator,
		llmProvider:   llmProvider,
		enricher:      enricher,
		answerTimeout: answerTimeout,
		logger:        logger,
	}
}

// Stream executes the plan and emits events on the returned channel. The
// channel is closed after exactly one done frame. If the consumer stops
// (ctx cancelled), all pending fan-out tasks are cancelled and awaited
// before the channel closes; nothing is left running in the background.
func (e *StreamingExecutor) Stream(ctx context.Context, req StreamRequest) <-chan stream.Event {
	out := make(chan stream.Event)
	go func() {
		defer close(out)
		e.run(ctx, req, out)
	}()
	return out
}

type emitter struct {
	ctx  context.Context
	out  chan<- stream.Event
	dead bool
}

// send delivers an event unless the consumer is gone. Once delivery fails
// the emitter stays dead so later frames don't block.
func (em *emitter) send(ev stream.Event) bool {
	if em.dead {
		return false
	}
	select {
	case em.out <- ev:
		return true
	case <-em.ctx.Done():
		em.dead = true
		return false
	}
}

func (e *StreamingExecutor) run(ctx context.Context, req StreamRequest, out chan<- stream.Event) {
	// The overall deadline is fixed once: the slowest allowed retrieval
	// plus the answer budget. A stalled upstream stream can never push the
	// turn past it.
	deadline := time.Now().Add(req.Plan.MaxTimeout() + e.answerTimeout)

	em := &emitter{ctx: ctx, out: out}
	em.send(stream.Start{})

	outcome := &TurnOutcome{}
	outcome.Runs = e.fanOut(ctx, req, em)

	if outcome.Runs == nil {
		// Consumer disconnected mid-retrieval; tasks are already joined.
		return
	}

	outcome.Aggregated = e.aggregator.Reduce(ctx, outcome.Runs, req.Plan.AgentTypes())
	outcome.CombinedContext = BuildContextFromRuns(outcome.Runs)

	if req.Debug {
		em.send(stream.ExecutionLog{Entries: outcome.Aggregated.ExecutionLog})
		em.send(stream.RagRuns{Runs: outcome.Runs})
	}

	errored := false
	if outcome.Aggregated.Failed() {
		em.send(stream.Error{Message: outcome.Aggregated.Err})
		errored = true
	} else {
		errored = !e.answer(ctx, req, em, outcome, deadline)
	}

	if req.Finalize != nil {
		extra, err := req.Finalize(ctx, outcome)
		for _, ev := range extra {
			em.send(ev)
		}
		if err != nil {
			e.logger.Printf("[ERROR] Turn finalization failed: %v", err)
			if !errored {
				em.send(stream.Error{Message: "failed to persist the turn"})
			}
		}
	}

	em.send(stream.Done{Completed: outcome.Completed})
}

// fanOut runs the plan and emits progress in completion order with a
// monotonically non-decreasing counter. Returns results in plan order, or
// nil when the consumer disconnected (after joining all tasks).
func (e *StreamingExecutor) fanOut(ctx context.Context, req StreamRequest, em *emitter) []*rag.RunResult {
	total := len(req.Plan)
	results := make([]*rag.RunResult, total)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type indexed struct {
		idx int
		res *rag.RunResult
	}
	resCh := make(chan indexed, total)

	var wg sync.WaitGroup
	for i, spec := range req.Plan {
		wg.Add(1)
		go func(i int, spec rag.RunSpec) {
			defer wg.Done()
			resCh <- indexed{i, runOne(runCtx, e.retriever, spec, req.Query)}
		}(i, spec)
	}

	completed := 0
	for completed < total {
		select {
		case r := <-resCh:
			results[r.idx] = r.res
			completed++
			em.send(stream.Progress{
				Stage:          "retrieval",
				Completed:      completed,
				Total:          total,
				Error:          r.res.Err,
				AgentType:      r.res.AgentType,
				RetrievalCount: len(r.res.Retrievals),
			})
		case <-ctx.Done():
			cancel()
			wg.Wait()
			return nil
		}
	}
	wg.Wait()
	return results
}

// answer streams the generated tokens. Returns false when an error frame was
// emitted (the answer degraded to the apology message).
func (e *StreamingExecutor) answer(ctx context.Context, req StreamRequest, em *emitter, outcome *TurnOutcome, deadline time.Time) bool {
	// Pass-through: exactly one strategy already answered.
	if outcome.Aggregated.Answer != "" {
		em.send(stream.Token{Content: outcome.Aggregated.Answer})
		outcome.Answer = outcome.Aggregated.Answer
		outcome.Completed = true
		return true
	}

	combined := outcome.CombinedContext
	if ShouldEnrich(req.Decision, combined) && e.enricher != nil {
		extra, items, err := e.enricher.Enrich(ctx, req.Decision, combined)
		if err != nil {
			e.logger.Printf("[WARN] Enrichment failed: %v", err)
		} else {
			if extra != "" {
				combined = combined + "\n\n---\n\n" + extra
				outcome.CombinedContext = combined
			}
			if items != nil {
				outcome.Recommendations = items
				em.send(stream.Recommendations{Items: items})
			}
		}
	}

	genCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	chunks, err := e.llmProvider.ChatStream(genCtx, BuildGenerationMessages(req.Query, combined, req.History))
	if err != nil {
		return e.degrade(em, outcome, "generation failed: "+err.Error())
	}

	var answer []byte
	for {
		// Each chunk waits cooperatively against the remaining budget;
		// there is no fixed per-chunk timeout.
		remaining := time.Until(deadline)
		if remaining <= 0 {
			cancel()
			return e.degrade(em, outcome, "generation timeout: budget exhausted")
		}

		timer := time.NewTimer(remaining)
		select {
		case chunk, ok := <-chunks:
			timer.Stop()
			if !ok {
				outcome.Answer = string(answer)
				outcome.Aggregated.Answer = outcome.Answer
				outcome.Completed = true
				return true
			}
			if chunk.Content != "" {
				answer = append(answer, chunk.Content...)
				em.send(stream.Token{Content: chunk.Content})
			}
			if chunk.Done {
				outcome.Answer = string(answer)
				outcome.Aggregated.Answer = outcome.Answer
				outcome.Completed = true
				return true
			}
		case <-timer.C:
			cancel()
			return e.degrade(em, outcome, "generation timeout: budget exhausted")
		case <-ctx.Done():
			timer.Stop()
			cancel()
			return false
		}
	}
}

func (e *StreamingExecutor) degrade(em *emitter, outcome *TurnOutcome, msg string) bool {
	e.logger.Printf("[ERROR] %s", msg)
	outcome.Answer = ApologyMessage
	outcome.Aggregated.Err = msg
	outcome.Completed = false
	em.send(stream.Error{Message: msg})
	return false
}
