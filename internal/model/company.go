package model

import "time"

// EnrichmentStatus tracks where a company is in the enrichment flow.
type EnrichmentStatus string

const (
	EnrichmentPending   EnrichmentStatus = "pending"
	EnrichmentCompleted EnrichmentStatus = "completed"
	EnrichmentFailed    EnrichmentStatus = "failed"
	EnrichmentNotNeeded EnrichmentStatus = "not_needed"
)

// Enrichment source tags recorded on a company.
const (
	SourceWebScrape = "web_scrape"
	SourceApollo    = "apollo"
	SourceBoth      = "both"
)

// Company is the slice of the CRUD layer's company record the enrichment
// engine reads and patches. Ownership of the full record stays with the
// CRUD layer; the engine only touches the enrichment fields.
type Company struct {
	ID               int64            `json:"id"`
	Name             string           `json:"name"`
	Website          string           `json:"website,omitempty"`
	Email            string           `json:"email,omitempty"`
	EmailDomain      string           `json:"email_domain,omitempty"`
	GenericEmails    []string         `json:"generic_emails,omitempty"`
	EnrichmentStatus EnrichmentStatus `json:"enrichment_status,omitempty"`
	EnrichmentSource string           `json:"enrichment_source,omitempty"`
	EnrichedAt       *time.Time       `json:"enrichment_date,omitempty"`
}
