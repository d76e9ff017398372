// Package aggregate reduces the partial results of a retrieval fan-out into
// one result. The reduction is deterministic: ties are broken by a configured
// preferred-agent order (default: plan order), never by completion time.
package aggregate

import (
	"context"
	"sort"

	"ai-assistant-be/pkg/rag"
)

// ErrAllStrategiesFailed is the generic error recorded when every run failed
// without reporting its own error string.
const ErrAllStrategiesFailed = "all retrieval strategies failed"

// SynthesisConfig bounds the optional multi-answer synthesis step.
type SynthesisConfig struct {
	MaxChars         int
	MaxEvidenceItems int
	EvidenceStrategy string
}

// Synthesizer merges several independent answers into one. It is an external
// collaborator; the aggregator only hands it deduplicated evidence.
type Synthesizer interface {
	Synthesize(ctx context.Context, answers []string, evidence []rag.Retrieval, cfg SynthesisConfig) (string, error)
}

// Aggregator reduces run results. The zero value (no synthesizer) is valid:
// multiple independent answers are then left empty for a later single
// generation step.
type Aggregator struct {
	synthesizer Synthesizer
	synthesis   *SynthesisConfig
}

func New() *Aggregator {
	return &Aggregator{}
}

// WithSynthesis enables synthesizer delegation for multi-answer reductions.
func (a *Aggregator) WithSynthesis(s Synthesizer, cfg SynthesisConfig) *Aggregator {
	a.synthesizer = s
	a.synthesis = &cfg
	return a
}

// Reduce folds the run results into one. preferredOrder lists agent types in
// tie-break priority; agents not listed keep their input order after the
// listed ones. Pass nil to use input (plan) order.
func (a *Aggregator) Reduce(ctx context.Context, results []*rag.RunResult, preferredOrder []string) *rag.RunResult {
	ordered := orderByPreference(results, preferredOrder)

	var ok, failed []*rag.RunResult
	for _, r := range ordered {
		if r == nil {
			continue
		}
		if r.Failed() {
			failed = append(failed, r)
		} else {
			ok = append(ok, r)
		}
	}

	if len(ok) == 0 {
		errMsg := ErrAllStrategiesFailed
		for _, f := range failed {
			if f.Err != "" {
				errMsg = f.Err
				break
			}
		}
		return &rag.RunResult{
			Err:          errMsg,
			ExecutionLog: mergeExecutionLogs(failed),
		}
	}

	merged := &rag.RunResult{
		AgentType:    ok[0].AgentType,
		Retrievals:   dedupeRetrievals(ok),
		Reference:    mergeReferences(ok),
		ExecutionLog: mergeExecutionLogs(ordered),
	}
	merged.Answer = a.resolveAnswer(ctx, ok, merged.Retrievals)

	return merged
}

// resolveAnswer applies the pass-through / synthesis / defer rules.
func (a *Aggregator) resolveAnswer(ctx context.Context, ok []*rag.RunResult, evidence []rag.Retrieval) string {
	var answers []string
	for _, r := range ok {
		if r.Answer != "" {
			answers = append(answers, r.Answer)
		}
	}

	switch {
	case len(answers) == 1:
		// Single usable answer: pass through verbatim and skip the
		// redundant generation call.
		return answers[0]
	case len(answers) > 1 && a.synthesizer != nil && a.synthesis != nil:
		cfg := *a.synthesis
		if cfg.MaxEvidenceItems > 0 && len(evidence) > cfg.MaxEvidenceItems {
			evidence = evidence[:cfg.MaxEvidenceItems]
		}
		synthesized, err := a.synthesizer.Synthesize(ctx, answers, evidence, cfg)
		if err != nil {
			return ""
		}
		if cfg.MaxChars > 0 && len(synthesized) > cfg.MaxChars {
			synthesized = synthesized[:cfg.MaxChars]
		}
		return synthesized
	default:
		// Zero answers, or multiple without synthesis: leave empty for
		// the single generation step downstream.
		return ""
	}
}

func orderByPreference(results []*rag.RunResult, preferredOrder []string) []*rag.RunResult {
	if len(preferredOrder) == 0 {
		return results
	}
	rank := make(map[string]int, len(preferredOrder))
	for i, agent := range preferredOrder {
		rank[agent] = i
	}
	ordered := make([]*rag.RunResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, iOK := rank[safeAgent(ordered[i])]
		rj, jOK := rank[safeAgent(ordered[j])]
		if iOK && jOK {
			return ri < rj
		}
		return iOK && !jOK
	})
	return ordered
}

func safeAgent(r *rag.RunResult) string {
	if r == nil {
		return ""
	}
	return r.AgentType
}

// dedupeRetrievals flattens all retrievals, keeping the first occurrence of
// each (granularity, source_id) pair in tie-break order.
func dedupeRetrievals(ok []*rag.RunResult) []rag.Retrieval {
	type key struct {
		granularity string
		sourceID    string
	}
	seen := make(map[key]bool)
	var out []rag.Retrieval
	for _, r := range ok {
		for _, item := range r.Retrievals {
			k := key{item.Granularity, item.Metadata.SourceID}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, item)
		}
	}
	return out
}

// mergeReferences unions the reference sets, deduplicated by id with the same
// tie-break order as retrievals.
func mergeReferences(ok []*rag.RunResult) rag.Reference {
	var merged rag.Reference
	seenChunks := make(map[string]bool)
	seenEntities := make(map[string]bool)
	seenRels := make(map[string]bool)

	for _, r := range ok {
		merged.Chunks = appendUnique(merged.Chunks, r.Reference.Chunks, seenChunks)
		merged.Entities = appendUnique(merged.Entities, r.Reference.Entities, seenEntities)
		merged.Relationships = appendUnique(merged.Relationships, r.Reference.Relationships, seenRels)
	}
	return merged
}

func appendUnique(dst []rag.RefItem, src []rag.RefItem, seen map[string]bool) []rag.RefItem {
	for _, item := range src {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		dst = append(dst, item)
	}
	return dst
}

func mergeExecutionLogs(results []*rag.RunResult) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, r := range results {
		if r == nil || len(r.ExecutionLog) == 0 {
			continue
		}
		if _, exists := merged[r.AgentType]; !exists {
			merged[r.AgentType] = r.ExecutionLog
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}
