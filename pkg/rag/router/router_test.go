package router

import (
	"testing"
)

func TestResolveAgentType(t *testing.T) {
	tests := []struct {
		name       string
		workerName string
		requested  string
		want       string
	}{
		{
			name:       "well formed worker name",
			workerName: "media:hybrid:default",
			requested:  "vector",
			want:       "hybrid",
		},
		{
			name:       "too few segments falls back",
			workerName: "media:hybrid",
			requested:  "vector",
			want:       "vector",
		},
		{
			name:       "empty middle segment falls back",
			workerName: "media::default",
			requested:  "vector",
			want:       "vector",
		},
		{
			name:       "empty worker name falls back",
			workerName: "",
			requested:  "graph",
			want:       "graph",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveAgentType(tt.workerName, tt.requested)
			if got != tt.want {
				t.Errorf("ResolveAgentType(%q, %q) = %q, want %q", tt.workerName, tt.requested, got, tt.want)
			}
		})
	}
}

func TestUseRetrieval(t *testing.T) {
	tests := []struct {
		kbPrefix string
		want     bool
	}{
		{"media", true},
		{"notes", true},
		{"general", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := UseRetrieval(tt.kbPrefix); got != tt.want {
			t.Errorf("UseRetrieval(%q) = %v, want %v", tt.kbPrefix, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	d := &Decision{
		KBPrefix:   "media",
		WorkerName: "media:hybrid:default",
		Reason:     "classified as media lookup",
	}
	d.Normalize("vector")

	if d.AgentType != "hybrid" {
		t.Errorf("AgentType = %q, want %q", d.AgentType, "hybrid")
	}
	if d.SelectedAgent != "hybrid" {
		t.Errorf("SelectedAgent = %q, want %q", d.SelectedAgent, "hybrid")
	}
	if d.Reasoning != "classified as media lookup" {
		t.Errorf("Reasoning = %q, want mirror of Reason", d.Reasoning)
	}
}

func TestNormalizeKeepsExistingReasoning(t *testing.T) {
	d := &Decision{Reason: "short", Reasoning: "already detailed"}
	d.Normalize("hybrid")

	if d.Reasoning != "already detailed" {
		t.Errorf("Reasoning = %q, want untouched value", d.Reasoning)
	}
	if d.AgentType != "hybrid" {
		t.Errorf("AgentType = %q, want requested fallback", d.AgentType)
	}
}
