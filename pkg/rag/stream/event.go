// Package stream defines the event protocol emitted while answering a turn.
// The wire contract is one JSON object per frame: {status, content?, request_id?}.
// Every stream ends with exactly one "done" frame.
package stream

import "encoding/json"

// Status tags an event variant.
type Status string

const (
	StatusStart            Status = "start"
	StatusProgress         Status = "progress"
	StatusToken            Status = "token"
	StatusRouteDecision    Status = "route_decision"
	StatusRecommendations  Status = "recommendations"
	StatusExecutionLog     Status = "execution_log"
	StatusRagRuns          Status = "rag_runs"
	StatusWatchlistCapture Status = "watchlist_auto_capture"
	StatusError            Status = "error"
	StatusDone             Status = "done"
)

// Event is a closed sum over the stream statuses. Each variant carries only
// the fields valid for that status.
type Event interface {
	Status() Status
	content() interface{}
}

// Start opens a stream.
type Start struct{}

func (Start) Status() Status { return StatusStart }
func (Start) content() interface{} { return nil }

// Progress reports retrieval fan-out progress in completion order.
// Stage, Completed, Total and Error are always present on the wire with
// explicit defaults; this is a hard UI contract.
type Progress struct {
	Stage          string `json:"stage"`
	Completed      int    `json:"completed"`
	Total          int    `json:"total"`
	Error          string `json:"error"`
	AgentType      string `json:"agent_type,omitempty"`
	RetrievalCount int    `json:"retrieval_count,omitempty"`
}

func (Progress) Status() Status { return StatusProgress }
func (p Progress) content() interface{} { return p }

// Token is one UTF-8 fragment of the generated answer. Fragments are
// concatenated in emission order.
type Token struct {
	Content string
}

func (Token) Status() Status { return StatusToken }
func (t Token) content() interface{} { return t.Content }

// RouteDecision surfaces the normalized routing payload.
type RouteDecision struct {
	Decision interface{}
}

func (RouteDecision) Status() Status { return StatusRouteDecision }
func (r RouteDecision) content() interface{} { return r.Decision }

// Recommendations carries enrichment output appended to the turn.
type Recommendations struct {
	Items interface{}
}

func (Recommendations) Status() Status { return StatusRecommendations }
func (r Recommendations) content() interface{} { return r.Items }

// ExecutionLog is a debug-channel frame with per-run diagnostics. It is
// interleaved with token frames but tagged distinctly so consumers can
// separate diagnostics from generation output.
type ExecutionLog struct {
	AgentType string                 `json:"agent_type,omitempty"`
	Entries   map[string]interface{} `json:"entries"`
}

func (ExecutionLog) Status() Status { return StatusExecutionLog }
func (e ExecutionLog) content() interface{} { return e }

// RagRuns is a debug-channel frame dumping the raw run results.
type RagRuns struct {
	Runs interface{}
}

func (RagRuns) Status() Status { return StatusRagRuns }
func (r RagRuns) content() interface{} { return r.Runs }

// WatchlistCapture announces titles auto-added from the user message.
type WatchlistCapture struct {
	Added []string `json:"added"`
}

func (WatchlistCapture) Status() Status { return StatusWatchlistCapture }
func (w WatchlistCapture) content() interface{} { return w }

// Error reports a turn-level failure. At most one per stream, always
// followed by Done.
type Error struct {
	Message string
}

func (Error) Status() Status { return StatusError }
func (e Error) content() interface{} { return map[string]string{"message": e.Message} }

// Done terminates the stream. Completed is false when generation degraded.
type Done struct {
	Completed bool `json:"completed"`
}

func (Done) Status() Status { return StatusDone }
func (d Done) content() interface{} { return d }

type frame struct {
	Status    Status      `json:"status"`
	Content   interface{} `json:"content,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// Frame serializes an event into its wire representation.
func Frame(ev Event, requestID string) ([]byte, error) {
	return json.Marshal(frame{
		Status:    ev.Status(),
		Content:   ev.content(),
		RequestID: requestID,
	})
}
