// Package executor runs a retrieval plan concurrently under independent time
// budgets and merges the partial results into one answer context.
package executor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/rag"
	"ai-assistant-be/pkg/rag/aggregate"
	"ai-assistant-be/pkg/rag/router"
)

// ApologyMessage is the degraded user-facing answer when generation fails.
const ApologyMessage = "Sorry, an error occurred while generating the answer. Please try again."

// Enricher is the external recommendation collaborator. It may contribute
// extra context text and a payload surfaced to the client.
type Enricher interface {
	Enrich(ctx context.Context, decision *router.Decision, combinedContext string) (extra string, items interface{}, err error)
}

// PlanOutcome is the result of executing a retrieval plan.
type PlanOutcome struct {
	// Runs holds one result per spec, in plan order. Timed-out or failed
	// runs carry a non-empty Err and are kept for diagnostics.
	Runs []*rag.RunResult

	Aggregated      *rag.RunResult
	CombinedContext string
}

// TurnOutcome extends PlanOutcome with the single generation step.
type TurnOutcome struct {
	PlanOutcome

	Answer          string
	Recommendations interface{}

	// Completed is false when generation degraded to the apology message.
	Completed bool
}

// FanoutExecutor is the blocking plan executor.
type FanoutExecutor struct {
	retriever     rag.Retriever
	aggregator    *aggregate.Aggregator
	llmProvider   llm.LLMProvider
	enricher      Enricher
	answerTimeout time.Duration
	logger        *log.Logger
}

func NewFanoutExecutor(
	retriever rag.Retriever,
	aggregator *aggregate.Aggregator,
	llmProvider llm.LLMProvider,
	enricher Enricher,
	answerTimeout time.Duration,
	logger *log.Logger,
) *FanoutExecutor {
	return &FanoutExecutor{
		retriever:     retriever,
		aggregator:    aggregator,
		llmProvider:   llmProvider,
		enricher:      enricher,
		answerTimeout: answerTimeout,
		logger:        logger,
	}
}

// RunPlanRetrieval launches every spec concurrently, each bounded by its own
// timeout. A timed-out run degrades to an error result instead of failing the
// batch. The combined context is assembled in plan order regardless of which
// run finished first.
func (e *FanoutExecutor) RunPlanRetrieval(ctx context.Context, plan rag.Plan, query string) *PlanOutcome {
	results := make([]*rag.RunResult, len(plan))

	var wg sync.WaitGroup
	for i, spec := range plan {
		wg.Add(1)
		go func(i int, spec rag.RunSpec) {
			defer wg.Done()
			results[i] = runOne(ctx, e.retriever, spec, query)
		}(i, spec)
	}
	wg.Wait()

	aggregated := e.aggregator.Reduce(ctx, results, plan.AgentTypes())
	combined := BuildContextFromRuns(results)

	e.logger.Printf("[FANOUT] Plan of %d completed: %d failed, context %d chars",
		len(plan), countFailed(results), len(combined))

	return &PlanOutcome{
		Runs:            results,
		Aggregated:      aggregated,
		CombinedContext: combined,
	}
}

// RunPlanBlocking executes retrieval, the enrichment gate and exactly one
// generation call. Generation failures degrade to an apology string recorded
// as the aggregated error; they are never re-raised.
func (e *FanoutExecutor) RunPlanBlocking(
	ctx context.Context,
	plan rag.Plan,
	query string,
	decision *router.Decision,
	history []llm.Message,
) *TurnOutcome {
	planOutcome := e.RunPlanRetrieval(ctx, plan, query)

	outcome := &TurnOutcome{PlanOutcome: *planOutcome}
	if planOutcome.Aggregated.Failed() {
		return outcome
	}

	// A single pass-through answer skips the redundant generation call.
	if planOutcome.Aggregated.Answer != "" {
		outcome.Answer = planOutcome.Aggregated.Answer
		outcome.Completed = true
		return outcome
	}

	combined := planOutcome.CombinedContext
	if ShouldEnrich(decision, combined) && e.enricher != nil {
		extra, items, err := e.enricher.Enrich(ctx, decision, combined)
		if err != nil {
			e.logger.Printf("[WARN] Enrichment failed: %v", err)
		} else {
			if extra != "" {
				combined = combined + "\n\n---\n\n" + extra
				outcome.CombinedContext = combined
			}
			outcome.Recommendations = items
		}
	}

	answer, err := e.generate(ctx, query, combined, history)
	if err != nil {
		e.logger.Printf("[ERROR] Generation failed: %v", err)
		outcome.Answer = ApologyMessage
		outcome.Aggregated.Err = err.Error()
		return outcome
	}

	outcome.Answer = answer
	outcome.Aggregated.Answer = answer
	outcome.Completed = true
	return outcome
}

// generate issues the single answer call under its own timeout, independent
// of the retrieval timeouts.
func (e *FanoutExecutor) generate(ctx context.Context, query, combined string, history []llm.Message) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, e.answerTimeout)
	defer cancel()

	type outcome struct {
		answer string
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		answer, err := e.llmProvider.Chat(genCtx, BuildGenerationMessages(query, combined, history))
		ch <- outcome{answer, err}
	}()

	select {
	case out := <-ch:
		return out.answer, out.err
	case <-genCtx.Done():
		return "", fmt.Errorf("generation timeout after %gs", e.answerTimeout.Seconds())
	}
}

// runOne executes one spec bounded by its timeout. Shared by the blocking and
// streaming executors.
func runOne(ctx context.Context, retriever rag.Retriever, spec rag.RunSpec, query string) *rag.RunResult {
	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	type outcome struct {
		res *rag.RunResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := retriever.Retrieve(runCtx, spec, query)
		ch <- outcome{res, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return &rag.RunResult{AgentType: spec.AgentType, Err: out.err.Error()}
		}
		res := out.res
		if res == nil {
			res = &rag.RunResult{}
		}
		if res.AgentType == "" {
			res.AgentType = spec.AgentType
		}
		return res
	case <-runCtx.Done():
		return &rag.RunResult{
			AgentType: spec.AgentType,
			Err:       fmt.Sprintf("timeout after %gs", spec.Timeout.Seconds()),
		}
	}
}

// BuildContextFromRuns concatenates each non-error run's context under a
// strategy header, in the order the runs are given (plan order). Output is
// deterministic for a fixed run order regardless of completion order.
func BuildContextFromRuns(runs []*rag.RunResult) string {
	var sections []string
	for _, run := range runs {
		if run == nil || run.Failed() || run.Context == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("### Strategy: %s\n\n%s", run.AgentType, run.Context))
	}
	return strings.Join(sections, "\n\n---\n\n")
}

// BuildGenerationMessages assembles the single generation call's input.
func BuildGenerationMessages(query, combined string, history []llm.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	if combined != "" {
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: "Answer using the retrieved context below.\n\n" + combined,
		})
	}
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: query})
	return messages
}

// ShouldEnrich evaluates the enrichment gate. The three branches short-circuit
// in this fixed order; do not reorder them.
func ShouldEnrich(decision *router.Decision, combined string) bool {
	if decision == nil {
		return false
	}
	// (a) recommend intent with a strong media-type hint.
	if decision.RecommendIntent && (decision.MediaTypeHint == "tv" || decision.MediaTypeHint == "series") {
		return true
	}
	// (b) recommend intent, movie hint, explicit filter constraints.
	if decision.RecommendIntent && decision.MediaTypeHint == "movie" && decision.HasFilterConstraints {
		return true
	}
	// (c) trigger only when no extracted entity is grounded in the context.
	lower := strings.ToLower(combined)
	for _, entity := range decision.ExtractedEntities {
		if entity == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(entity)) {
			return false
		}
	}
	return true
}

func countFailed(runs []*rag.RunResult) int {
	n := 0
	for _, r := range runs {
		if r != nil && r.Failed() {
			n++
		}
	}
	return n
}
