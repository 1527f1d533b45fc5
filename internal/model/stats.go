package model

import "time"

// ActivityStats aggregates recent activity across sessions, tool calls and
// enrichment runs. Collected over a lookback window for health monitoring.
type ActivityStats struct {
	ActiveSessions int     `json:"active_sessions"`
	InputTokens    int64   `json:"input_tokens"`
	OutputTokens   int64   `json:"output_tokens"`
	ApolloCredits  int64   `json:"apollo_credits"`
	CostUSD        float64 `json:"cost_usd"`

	ToolCalls  int `json:"tool_calls"`
	ToolErrors int `json:"tool_errors"`

	EnrichAttempted int `json:"enrich_attempted"`
	EnrichCompleted int `json:"enrich_completed"`
	EnrichFailed    int `json:"enrich_failed"`

	Since       time.Time `json:"since"`
	CollectedAt time.Time `json:"collected_at"`
}
