package model

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
)

// Session is one continuous conversation between a user and the agent.
// Token and cost counters are monotonically non-decreasing and are updated
// only by the session manager as a side effect of message append.
type Session struct {
	ID            int64          `json:"id"`
	UUID          string         `json:"session_uuid"`
	Title         string         `json:"title,omitempty"`
	ClientTag     string         `json:"client_tag,omitempty"`
	Status        SessionStatus  `json:"status"`
	ProfileDraft  map[string]any `json:"icp_draft,omitempty"`
	ProfileID     *int64         `json:"icp_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	InputTokens   int64          `json:"total_input_tokens"`
	OutputTokens  int64          `json:"total_output_tokens"`
	ApolloCredits int64          `json:"total_apollo_credits"`
	CostUSD       float64        `json:"total_cost_usd"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	LastMessageAt *time.Time     `json:"last_message_at,omitempty"`

	// Messages is populated by lookups that load the conversation,
	// ordered by creation time.
	Messages []Message `json:"messages,omitempty"`
}

// Metadata keys written by the tool handlers. Internal code goes through the
// typed accessors below instead of inspecting the raw map.
const (
	metaLastSearch     = "last_apollo_search"
	metaLastEnrichment = "last_enrichment"
)

// SearchSummary is the typed view of the last prospecting search stored in
// session metadata.
type SearchSummary struct {
	Type       string         `json:"type"`
	Count      int            `json:"count"`
	Returned   int            `json:"returned"`
	CompanyIDs []int64        `json:"company_ids,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

// EnrichmentSummary is the typed view of the last enrichment run stored in
// session metadata.
type EnrichmentSummary struct {
	CompanyIDs  []int64 `json:"company_ids"`
	EmailsFound int     `json:"emails_found"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
}

// LastSearch returns the last search summary, or false if none was recorded.
func (s *Session) LastSearch() (SearchSummary, bool) {
	var sum SearchSummary
	ok := decodeMetadata(s.Metadata, metaLastSearch, &sum)
	return sum, ok
}

// SetLastSearch records the search summary in the metadata bag.
func (s *Session) SetLastSearch(sum SearchSummary) {
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	s.Metadata[metaLastSearch] = encodeMetadata(sum)
}

// LastEnrichment returns the last enrichment summary, or false if none was
// recorded.
func (s *Session) LastEnrichment() (EnrichmentSummary, bool) {
	var sum EnrichmentSummary
	ok := decodeMetadata(s.Metadata, metaLastEnrichment, &sum)
	return sum, ok
}

// SetLastEnrichment records the enrichment summary in the metadata bag.
func (s *Session) SetLastEnrichment(sum EnrichmentSummary) {
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	s.Metadata[metaLastEnrichment] = encodeMetadata(sum)
}

// encodeMetadata converts a typed summary into the plain map form the
// metadata bag stores, so merges stay shallow and JSON-roundtrip safe.
func encodeMetadata(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func decodeMetadata(meta map[string]any, key string, dst any) bool {
	if meta == nil {
		return false
	}
	entry, ok := meta[key]
	if !ok || entry == nil {
		return false
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// SessionSummary aggregates session statistics for the summary endpoint.
type SessionSummary struct {
	SessionID     int64          `json:"session_id"`
	UUID          string         `json:"session_uuid"`
	MessageCount  int            `json:"message_count"`
	ToolStats     map[string]int `json:"tool_stats"`
	InputTokens   int64          `json:"total_input_tokens"`
	OutputTokens  int64          `json:"total_output_tokens"`
	ApolloCredits int64          `json:"total_apollo_credits"`
	CostUSD       float64        `json:"total_cost_usd"`
	Status        SessionStatus  `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	LastMessageAt *time.Time     `json:"last_message_at,omitempty"`
}
