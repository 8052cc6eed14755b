package emit

import "time"

// Event messages emitted by the engine. Msg carries one of these for engine
// events; custom emitters may use any other value.
const (
	MsgRunStart        = "run_start"
	MsgNodeStart       = "node_start"
	MsgNodeEnd         = "node_end"
	MsgRoutingDecision = "routing_decision"
	MsgRunComplete     = "run_complete"
	MsgRunFailed       = "run_failed"
)

// Event represents an observability event emitted during a graph run.
//
// Events are emitted to an Emitter which can:
//   - Log through slog or a raw writer
//   - Open OpenTelemetry spans
//   - Keep an in-memory history for the run trace
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string `json:"run_id"`

	// Step is the number of nodes started so far in the run (1-indexed).
	// Zero for run_start.
	Step int `json:"step"`

	// NodeID identifies the node the event is about.
	// Empty string for run-level events.
	NodeID string `json:"node_id,omitempty"`

	// Msg names the event, usually one of the Msg* constants.
	Msg string `json:"msg"`

	// Time is when the event was emitted.
	Time time.Time `json:"time"`

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "latency_ms": node execution duration in milliseconds
	//   - "label": routing decision label
	//   - "next": node chosen by the edge table
	//   - "error": error text
	//   - "status": run outcome
	Meta map[string]interface{} `json:"meta,omitempty"`
}
