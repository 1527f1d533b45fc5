package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-agent/internal/cost"
	"github.com/sells-group/outreach-agent/internal/model"
	"github.com/sells-group/outreach-agent/internal/session"
	"github.com/sells-group/outreach-agent/internal/store"
	"github.com/sells-group/outreach-agent/pkg/apollo"
)

// Enricher is the enrichment engine dependency of the tool handlers.
type Enricher interface {
	EnrichCompanies(ctx context.Context, ids []int64, force bool) ([]model.EnrichmentOutcome, error)
}

// ToolOutcome is what a tool invocation produced. Content goes back to the
// model; Data, when set, is surfaced to the UI as a structured event.
type ToolOutcome struct {
	Content string
	Data    any
	Credits int64
	CostUSD float64
}

// Handlers executes typed tool commands against the session's state and
// the external services.
type Handlers struct {
	sessions *session.Manager
	store    store.Store
	apollo   apollo.Client
	enricher Enricher
	calc     *cost.Calculator
}

// NewHandlers wires the tool handlers.
func NewHandlers(sessions *session.Manager, st store.Store, ap apollo.Client, enricher Enricher, calc *cost.Calculator) *Handlers {
	return &Handlers{
		sessions: sessions,
		store:    st,
		apollo:   ap,
		enricher: enricher,
		calc:     calc,
	}
}

// Execute dispatches a command to its handler.
func (h *Handlers) Execute(ctx context.Context, sess *model.Session, cmd Command) (*ToolOutcome, error) {
	switch c := cmd.(type) {
	case SaveProfileCommand:
		return h.saveProfile(ctx, sess, c)
	case SearchCommand:
		return h.search(ctx, sess, c)
	case EnrichCommand:
		return h.enrich(ctx, sess, c)
	case VerifyEmailsCommand:
		return h.verifyEmails(c)
	case SessionContextCommand:
		return h.sessionContext(ctx, sess)
	case UpdateDraftCommand:
		return h.updateDraft(ctx, sess, c)
	default:
		return nil, eris.Errorf("agent: no handler for %T", cmd)
	}
}

func (h *Handlers) saveProfile(ctx context.Context, sess *model.Session, cmd SaveProfileCommand) (*ToolOutcome, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, eris.New("agent: profile name is required")
	}

	p := &model.Profile{
		Name:         cmd.Name,
		Description:  cmd.Description,
		Industry:     firstNonEmpty(cmd.Industry, draftString(sess, "industry")),
		CompanySize:  firstNonEmpty(cmd.CompanySize, draftString(sess, "company_size")),
		JobTitles:    firstNonEmpty(cmd.JobTitles, draftString(sess, "job_titles")),
		Geography:    firstNonEmpty(cmd.Geography, draftString(sess, "geography")),
		RevenueRange: firstNonEmpty(cmd.RevenueRange, draftString(sess, "revenue_range")),
		Keywords:     firstNonEmpty(cmd.Keywords, draftString(sess, "keywords")),
		Status:       "active",
	}
	if err := h.store.CreateProfile(ctx, p); err != nil {
		return nil, err
	}
	if err := h.sessions.ClearProfileDraft(ctx, sess, p.ID); err != nil {
		return nil, err
	}

	return &ToolOutcome{
		Content: fmt.Sprintf("Saved targeting profile %q with ID %d. The draft has been cleared.", p.Name, p.ID),
	}, nil
}

func (h *Handlers) search(ctx context.Context, sess *model.Session, cmd SearchCommand) (*ToolOutcome, error) {
	switch cmd.SearchType {
	case "companies":
		return h.searchCompanies(ctx, sess, cmd)
	case "people":
		return h.searchPeople(ctx, sess, cmd)
	default:
		return nil, eris.Errorf("agent: unsupported search type %q", cmd.SearchType)
	}
}

func (h *Handlers) searchCompanies(ctx context.Context, sess *model.Session, cmd SearchCommand) (*ToolOutcome, error) {
	ranges := make([]string, len(cmd.EmployeeRanges))
	for i, r := range cmd.EmployeeRanges {
		ranges[i] = apollo.NormalizeEmployeeRange(r)
	}

	resp, err := h.apollo.SearchOrganizations(ctx, apollo.OrganizationSearchRequest{
		Locations:      cmd.Locations,
		EmployeeRanges: ranges,
		Industries:     cmd.Industries,
		Keywords:       cmd.Keywords,
		PerPage:        cmd.PerPage,
	})
	if err != nil {
		if errors.Is(err, apollo.ErrCreditsExhausted) {
			return creditsExhaustedOutcome(), nil
		}
		return nil, err
	}

	// Persist results so later enrichment can reference them by ID.
	type companyResult struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Website string `json:"website,omitempty"`
	}
	ids := make([]int64, 0, len(resp.Organizations))
	results := make([]companyResult, 0, len(resp.Organizations))
	for _, org := range resp.Organizations {
		c := &model.Company{
			Name:             org.Name,
			Website:          org.WebsiteURL,
			EmailDomain:      org.PrimaryDomain,
			EnrichmentStatus: model.EnrichmentPending,
			EnrichmentSource: model.SourceApollo,
		}
		if err := h.store.CreateCompany(ctx, c); err != nil {
			return nil, err
		}
		ids = append(ids, c.ID)
		results = append(results, companyResult{ID: c.ID, Name: c.Name, Website: c.Website})
	}

	credits := int64(len(resp.Organizations))
	if err := h.recordSearch(ctx, sess, cmd, len(resp.Organizations), credits); err != nil {
		return nil, err
	}

	sess.SetLastSearch(model.SearchSummary{
		Type:       "companies",
		Count:      resp.Pagination.TotalEntries,
		Returned:   len(resp.Organizations),
		CompanyIDs: ids,
		Params:     searchParams(cmd),
	})
	if err := h.sessions.MergeMetadata(ctx, sess, sess.Metadata); err != nil {
		return nil, err
	}

	content := apollo.FormatOrganizationResults(resp.Organizations, resp.Pagination.TotalEntries)
	if len(ids) > 0 {
		content += fmt.Sprintf("\n\nStored with company IDs %s. Pass \"all\" to enrich_companies to enrich them.", joinIDs(ids))
	}
	return &ToolOutcome{
		Content: content,
		Data: map[string]any{
			"search_type": "companies",
			"total":       resp.Pagination.TotalEntries,
			"companies":   results,
		},
		Credits: credits,
		CostUSD: h.calc.ApolloCredits(credits),
	}, nil
}

func (h *Handlers) searchPeople(ctx context.Context, sess *model.Session, cmd SearchCommand) (*ToolOutcome, error) {
	resp, err := h.apollo.SearchPeople(ctx, apollo.PeopleSearchRequest{
		Titles:      cmd.Titles,
		Seniorities: cmd.Seniorities,
		Locations:   cmd.Locations,
		PerPage:     cmd.PerPage,
	})
	if err != nil {
		if errors.Is(err, apollo.ErrCreditsExhausted) {
			return creditsExhaustedOutcome(), nil
		}
		return nil, err
	}

	credits := int64(len(resp.People))
	if err := h.recordSearch(ctx, sess, cmd, len(resp.People), credits); err != nil {
		return nil, err
	}

	sess.SetLastSearch(model.SearchSummary{
		Type:     "people",
		Count:    resp.Pagination.TotalEntries,
		Returned: len(resp.People),
		Params:   searchParams(cmd),
	})
	if err := h.sessions.MergeMetadata(ctx, sess, sess.Metadata); err != nil {
		return nil, err
	}

	return &ToolOutcome{
		Content: apollo.FormatPeopleResults(resp.People, resp.Pagination.TotalEntries),
		Data: map[string]any{
			"search_type": "people",
			"total":       resp.Pagination.TotalEntries,
			"people":      resp.People,
		},
		Credits: credits,
		CostUSD: h.calc.ApolloCredits(credits),
	}, nil
}

// creditsExhaustedOutcome turns an Apollo 402 into a structured fallback
// signal rather than a tool error, so the model steers the conversation
// toward web-scrape enrichment of companies already stored.
func creditsExhaustedOutcome() *ToolOutcome {
	return &ToolOutcome{
		Content: "Apollo credits are exhausted, so no new prospecting is possible right now. " +
			"Fall back to web scraping: enrich_companies still works on companies stored earlier in this session.",
		Data: map[string]any{
			"needs_fallback": true,
			"reason":         "apollo_credits_exhausted",
		},
	}
}

func (h *Handlers) recordSearch(ctx context.Context, sess *model.Session, cmd SearchCommand, results int, credits int64) error {
	filters, err := json.Marshal(searchParams(cmd))
	if err != nil {
		return eris.Wrap(err, "agent: marshal search filters")
	}
	return h.store.InsertSearchRecord(ctx, &model.SearchRecord{
		SessionID:       sess.ID,
		SearchType:      cmd.SearchType,
		Query:           cmd.Keywords,
		Filters:         filters,
		ResultsCount:    results,
		CreditsConsumed: credits,
		CostUSD:         h.calc.ApolloCredits(credits),
		ClientTag:       sess.ClientTag,
	})
}

func (h *Handlers) enrich(ctx context.Context, sess *model.Session, cmd EnrichCommand) (*ToolOutcome, error) {
	ids := cmd.CompanyIDs
	if cmd.All {
		sum, ok := sess.LastSearch()
		if !ok || len(sum.CompanyIDs) == 0 {
			return nil, eris.New("agent: no previous company search to enrich; run search_apollo first")
		}
		ids = sum.CompanyIDs
	}
	if len(ids) == 0 {
		return nil, eris.New("agent: no company IDs to enrich")
	}

	outcomes, err := h.enricher.EnrichCompanies(ctx, ids, cmd.Force)
	if err != nil {
		return nil, err
	}

	sum := model.EnrichmentSummary{CompanyIDs: ids}
	var lines []string
	for _, o := range outcomes {
		switch o.Status {
		case model.OutcomeCompleted:
			sum.Completed++
			sum.EmailsFound += len(o.Emails)
			lines = append(lines, fmt.Sprintf("- %s: %s", o.CompanyName, formatEmails(o.Emails)))
		case model.OutcomeSkipped:
			sum.Skipped++
			if len(o.Emails) > 0 {
				sum.EmailsFound += len(o.Emails)
				lines = append(lines, fmt.Sprintf("- %s: %s (%s)", o.CompanyName, formatEmails(o.Emails), o.Error))
			} else {
				lines = append(lines, fmt.Sprintf("- %s: skipped (%s)", o.CompanyName, o.Error))
			}
		case model.OutcomeFailed:
			sum.Failed++
			lines = append(lines, fmt.Sprintf("- %s: failed (%s)", nameOrID(o), o.Error))
		}
	}

	sess.SetLastEnrichment(sum)
	if err := h.sessions.MergeMetadata(ctx, sess, sess.Metadata); err != nil {
		return nil, err
	}

	content := fmt.Sprintf("Enriched %d companies: %d completed, %d failed, %d skipped, %d emails found.\n%s",
		len(ids), sum.Completed, sum.Failed, sum.Skipped, sum.EmailsFound, strings.Join(lines, "\n"))
	return &ToolOutcome{
		Content: content,
		Data:    map[string]any{"outcomes": outcomes},
	}, nil
}

var emailSyntax = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func (h *Handlers) verifyEmails(cmd VerifyEmailsCommand) (*ToolOutcome, error) {
	if len(cmd.Emails) == 0 {
		return nil, eris.New("agent: no emails to verify")
	}

	type verdict struct {
		Email string `json:"email"`
		Valid bool   `json:"valid"`
		Note  string `json:"note,omitempty"`
	}

	seen := map[string]bool{}
	var verdicts []verdict
	valid := 0
	for _, raw := range cmd.Emails {
		addr := strings.ToLower(strings.TrimSpace(raw))
		if seen[addr] {
			continue
		}
		seen[addr] = true

		switch {
		case !emailSyntax.MatchString(addr):
			verdicts = append(verdicts, verdict{Email: addr, Valid: false, Note: "malformed address"})
		case strings.Contains(addr, ".."):
			verdicts = append(verdicts, verdict{Email: addr, Valid: false, Note: "consecutive dots"})
		default:
			verdicts = append(verdicts, verdict{Email: addr, Valid: true})
			valid++
		}
	}

	var lines []string
	for _, v := range verdicts {
		if v.Valid {
			lines = append(lines, fmt.Sprintf("- %s: valid", v.Email))
		} else {
			lines = append(lines, fmt.Sprintf("- %s: invalid (%s)", v.Email, v.Note))
		}
	}

	return &ToolOutcome{
		Content: fmt.Sprintf("Verified %d unique addresses, %d valid.\n%s", len(verdicts), valid, strings.Join(lines, "\n")),
		Data:    map[string]any{"verdicts": verdicts},
	}, nil
}

func (h *Handlers) sessionContext(ctx context.Context, sess *model.Session) (*ToolOutcome, error) {
	count, err := h.store.CountMessages(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %s: %d messages, status %s.\n", sess.UUID, count, sess.Status)

	if len(sess.ProfileDraft) > 0 {
		keys := make([]string, 0, len(sess.ProfileDraft))
		for k := range sess.ProfileDraft {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("ICP draft:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, sess.ProfileDraft[k])
		}
	} else {
		b.WriteString("No ICP draft yet.\n")
	}
	if sess.ProfileID != nil {
		fmt.Fprintf(&b, "Saved profile ID: %d\n", *sess.ProfileID)
	}

	if sum, ok := sess.LastSearch(); ok {
		fmt.Fprintf(&b, "Last search: %s, %d total, %d returned.\n", sum.Type, sum.Count, sum.Returned)
	}
	if sum, ok := sess.LastEnrichment(); ok {
		fmt.Fprintf(&b, "Last enrichment: %d emails across %d companies.\n", sum.EmailsFound, len(sum.CompanyIDs))
	}
	fmt.Fprintf(&b, "Usage: %d input tokens, %d output tokens, %d Apollo credits, $%.4f total.",
		sess.InputTokens, sess.OutputTokens, sess.ApolloCredits, sess.CostUSD)

	return &ToolOutcome{Content: b.String()}, nil
}

func (h *Handlers) updateDraft(ctx context.Context, sess *model.Session, cmd UpdateDraftCommand) (*ToolOutcome, error) {
	if len(cmd.Fields) == 0 {
		return nil, eris.New("agent: no draft fields to update")
	}
	if err := h.sessions.MergeProfileDraft(ctx, sess, cmd.Fields, nil); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(sess.ProfileDraft))
	for k := range sess.ProfileDraft {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &ToolOutcome{
		Content: fmt.Sprintf("Draft updated. Current fields: %s.", strings.Join(keys, ", ")),
	}, nil
}

func searchParams(cmd SearchCommand) map[string]any {
	params := map[string]any{"search_type": cmd.SearchType}
	if len(cmd.Locations) > 0 {
		params["locations"] = cmd.Locations
	}
	if len(cmd.EmployeeRanges) > 0 {
		params["employee_ranges"] = cmd.EmployeeRanges
	}
	if len(cmd.Industries) > 0 {
		params["industries"] = cmd.Industries
	}
	if cmd.Keywords != "" {
		params["keywords"] = cmd.Keywords
	}
	if len(cmd.Titles) > 0 {
		params["titles"] = cmd.Titles
	}
	if len(cmd.Seniorities) > 0 {
		params["seniorities"] = cmd.Seniorities
	}
	return params
}

func formatEmails(emails []string) string {
	if len(emails) == 0 {
		return "no emails found"
	}
	return strings.Join(emails, ", ")
}

func nameOrID(o model.EnrichmentOutcome) string {
	if o.CompanyName != "" {
		return o.CompanyName
	}
	return fmt.Sprintf("company %d", o.CompanyID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func draftString(sess *model.Session, key string) string {
	if sess.ProfileDraft == nil {
		return ""
	}
	if v, ok := sess.ProfileDraft[key].(string); ok {
		return v
	}
	return ""
}
