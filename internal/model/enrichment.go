package model

// OutcomeStatus is the per-company result of an enrichment batch.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// EnrichmentOutcome is one company's result within a batch. A batch always
// produces exactly one outcome per input company, regardless of failures.
type EnrichmentOutcome struct {
	CompanyID   int64         `json:"company_id"`
	CompanyName string        `json:"company_name"`
	Status      OutcomeStatus `json:"status"`
	Emails      []string      `json:"emails_found"`
	Error       string        `json:"error,omitempty"`
}
