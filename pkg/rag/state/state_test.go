package state

import (
	"reflect"
	"testing"
	"time"

	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/rag"
	"ai-assistant-be/pkg/rag/router"
)

func TestApplyEmptyPatchLeavesStateUntouched(t *testing.T) {
	base := State{
		RequestID: "r1",
		Message:   "hello",
		KBPrefix:  "media",
		Completed: true,
	}

	got := base.Apply(Patch{})
	if !reflect.DeepEqual(got, base) {
		t.Errorf("Apply(empty) changed the state: %+v != %+v", got, base)
	}
}

func TestApplyMergesOnlyPatchedFields(t *testing.T) {
	base := State{
		RequestID: "r1",
		KBPrefix:  "general",
		AgentType: "hybrid",
		Summary:   "old summary",
	}

	got := base.Apply(Patch{
		KBPrefix:     String("media"),
		UseRetrieval: Bool(true),
		RouteLatency: Duration(42 * time.Millisecond),
		History:      Messages([]llm.Message{{Role: "user", Content: "hi"}}),
	})

	if got.KBPrefix != "media" {
		t.Errorf("KBPrefix = %q, want %q", got.KBPrefix, "media")
	}
	if !got.UseRetrieval {
		t.Error("UseRetrieval not applied")
	}
	if got.RouteLatency != 42*time.Millisecond {
		t.Errorf("RouteLatency = %v, want 42ms", got.RouteLatency)
	}
	if len(got.History) != 1 {
		t.Errorf("History length = %d, want 1", len(got.History))
	}

	// Unpatched fields survive.
	if got.RequestID != "r1" || got.AgentType != "hybrid" || got.Summary != "old summary" {
		t.Errorf("unpatched fields changed: %+v", got)
	}
	// The base is a value receiver; the original must be untouched.
	if base.KBPrefix != "general" {
		t.Error("Apply mutated the base state")
	}
}

func TestApplyPointerFields(t *testing.T) {
	decision := &router.Decision{KBPrefix: "media"}
	aggregated := &rag.RunResult{Answer: "done"}

	got := State{}.Apply(Patch{
		RouteDecision: decision,
		Aggregated:    aggregated,
		Response:      String("reply"),
		Completed:     Bool(true),
	})

	if got.RouteDecision != decision {
		t.Error("RouteDecision not applied")
	}
	if got.Aggregated != aggregated {
		t.Error("Aggregated not applied")
	}
	if got.Response != "reply" || !got.Completed {
		t.Errorf("Response/Completed = %q/%v", got.Response, got.Completed)
	}
}
