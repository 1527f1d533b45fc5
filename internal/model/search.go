package model

import (
	"encoding/json"
	"time"
)

// SearchRecord is the audit row written for every prospecting search so it
// shows up in usage accounting.
type SearchRecord struct {
	ID              int64           `json:"id"`
	SessionID       int64           `json:"session_id"`
	SearchType      string          `json:"search_type"`
	Query           string          `json:"search_query,omitempty"`
	Filters         json.RawMessage `json:"filters_applied,omitempty"`
	ResultsCount    int             `json:"results_count"`
	CreditsConsumed int64           `json:"apollo_credits_consumed"`
	CostUSD         float64         `json:"cost_total_usd"`
	ClientTag       string          `json:"client_tag,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
