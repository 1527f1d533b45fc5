package model

import (
	"encoding/json"
	"time"
)

// ToolExecStatus is the recorded outcome of one tool invocation.
type ToolExecStatus string

const (
	ToolExecSuccess ToolExecStatus = "success"
	ToolExecError   ToolExecStatus = "error"
	ToolExecPartial ToolExecStatus = "partial"
)

// ToolExecution is the audit record of one tool invocation. It is a log,
// not working state: created once per invocation and never mutated.
type ToolExecution struct {
	ID              int64           `json:"id"`
	SessionID       int64           `json:"session_id"`
	MessageID       *int64          `json:"message_id,omitempty"`
	ToolName        string          `json:"tool_name"`
	ToolCallID      string          `json:"tool_call_id"`
	Input           json.RawMessage `json:"tool_input"`
	Output          json.RawMessage `json:"tool_output"`
	Status          ToolExecStatus  `json:"status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	DurationMS      int64           `json:"execution_time_ms"`
	CreditsConsumed int64           `json:"credits_consumed"`
	CostUSD         float64         `json:"cost_usd"`
	CreatedAt       time.Time       `json:"created_at"`
}
