package agent

import "encoding/json"

// EventType identifies one kind of progress event emitted during a chat
// turn. Transport framing (SSE) is applied at the HTTP layer; the
// orchestrator deals only in typed events.
type EventType string

const (
	// EventText carries one streamed fragment of assistant prose in Content.
	EventText EventType = "text"
	// EventToolStart announces a tool invocation before it runs, carrying
	// the tool name and its raw input.
	EventToolStart EventType = "tool_start"
	// EventToolComplete carries a tool's summarized result in Summary.
	EventToolComplete EventType = "tool_complete"
	// EventToolError reports a failed tool invocation. The turn continues;
	// the model sees the error and can react.
	EventToolError EventType = "tool_error"
	// EventSearchResults carries structured prospecting results for the UI,
	// in addition to the textual summary the model receives.
	EventSearchResults EventType = "apollo_results"
	// EventUsage reports token and cost accounting after each model turn.
	EventUsage EventType = "usage"
	// EventError reports a fatal turn error. Always followed by EventDone.
	EventError EventType = "error"
	// EventDone terminates the stream. Emitted exactly once per turn.
	EventDone EventType = "done"
)

// UsageReport is the accounting payload of an EventUsage event.
type UsageReport struct {
	InputTokens   int64   `json:"input_tokens"`
	OutputTokens  int64   `json:"output_tokens"`
	ApolloCredits int64   `json:"apollo_credits,omitempty"`
	CostUSD       float64 `json:"cost_usd"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
}

// Event is one progress update streamed to the caller during a chat turn.
// The JSON field names are the wire contract consumed by the frontend.
type Event struct {
	Type        EventType       `json:"type"`
	Content     string          `json:"content,omitempty"`
	Tool        string          `json:"tool,omitempty"`
	ToolCallID  string          `json:"tool_call_id,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Data        any             `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
	Usage       *UsageReport    `json:"usage,omitempty"`
	SessionUUID string          `json:"session_uuid,omitempty"`
}
