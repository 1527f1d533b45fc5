package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-agent/internal/model"
	"github.com/sells-group/outreach-agent/internal/store"
	"github.com/sells-group/outreach-agent/pkg/apollo"
)

// startDelay spaces out worker starts so a batch does not burst all its
// first requests at once.
const startDelay = 500 * time.Millisecond

// EmailFinder is the scraping dependency of the engine.
type EmailFinder interface {
	FindGenericEmails(ctx context.Context, website string) ([]FoundEmail, error)
}

// BulkEnricher supplies Apollo firmographic data for a set of domains,
// used to fill in missing websites before any scraping happens.
type BulkEnricher interface {
	BulkEnrichOrganizations(ctx context.Context, domains []string) ([]apollo.Organization, error)
}

// Options tunes engine behavior.
type Options struct {
	// MaxConcurrent bounds in-flight enrichments. Values below 1 mean 3.
	MaxConcurrent int
	// Recency is how fresh a prior enrichment must be to be reused
	// instead of re-scraped. Values <= 0 mean 7 days.
	Recency time.Duration
	// Bulk, when set, pre-fills company websites from Apollo bulk
	// enrichment before the scrape pass. Nil disables the pre-pass.
	Bulk BulkEnricher
}

// Engine enriches companies with generic contact emails. Runs are bounded
// in concurrency and always yield exactly one outcome per requested
// company; a company never ends a run still pending.
type Engine struct {
	store         store.Store
	finder        EmailFinder
	bulk          BulkEnricher
	maxConcurrent int
	recency       time.Duration
}

// NewEngine creates an Engine.
func NewEngine(st store.Store, finder EmailFinder, opts Options) *Engine {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 3
	}
	if opts.Recency <= 0 {
		opts.Recency = 7 * 24 * time.Hour
	}
	return &Engine{
		store:         st,
		finder:        finder,
		bulk:          opts.Bulk,
		maxConcurrent: opts.MaxConcurrent,
		recency:       opts.Recency,
	}
}

// EnrichCompanies enriches the given companies concurrently. Companies
// without a website are marked not_needed and skipped; companies enriched
// within the recency window are skipped with their stored emails unless
// force is set. Outcomes are returned in input order.
func (e *Engine) EnrichCompanies(ctx context.Context, ids []int64, force bool) ([]model.EnrichmentOutcome, error) {
	companies, err := e.store.GetCompaniesByIDs(ctx, ids)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: load companies")
	}
	byID := make(map[int64]*model.Company, len(companies))
	for i := range companies {
		byID[companies[i].ID] = &companies[i]
	}

	if e.bulk != nil {
		e.applyBulkData(ctx, companies)
	}

	outcomes := make([]model.EnrichmentOutcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)

	started := 0
	for i, id := range ids {
		c, ok := byID[id]
		if !ok {
			outcomes[i] = model.EnrichmentOutcome{
				CompanyID: id,
				Status:    model.OutcomeFailed,
				Error:     "company not found",
			}
			continue
		}

		if outcome, done := e.precheck(ctx, c, force); done {
			outcomes[i] = outcome
			continue
		}

		if started > 0 {
			select {
			case <-gctx.Done():
			case <-time.After(startDelay):
			}
		}
		started++

		i, c := i, c
		g.Go(func() error {
			outcomes[i] = e.enrichOne(gctx, c)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, eris.Wrap(err, "enrich: batch")
	}
	return outcomes, nil
}

// precheck handles the skip policies that do not require scraping. The
// second return is true when the company's outcome is already decided.
func (e *Engine) precheck(ctx context.Context, c *model.Company, force bool) (model.EnrichmentOutcome, bool) {
	if strings.TrimSpace(c.Website) == "" {
		c.EnrichmentStatus = model.EnrichmentNotNeeded
		if err := e.store.UpdateCompanyEnrichment(ctx, c); err != nil {
			zap.L().Warn("enrich: mark not_needed failed",
				zap.Int64("company_id", c.ID), zap.Error(err))
		}
		return model.EnrichmentOutcome{
			CompanyID:   c.ID,
			CompanyName: c.Name,
			Status:      model.OutcomeSkipped,
			Error:       "No website URL",
		}, true
	}

	// Any recent attempt counts, failed ones included, so a flaky site
	// is not hammered on every batch.
	if !force && c.EnrichedAt != nil && time.Since(*c.EnrichedAt) < e.recency {
		return model.EnrichmentOutcome{
			CompanyID:   c.ID,
			CompanyName: c.Name,
			Status:      model.OutcomeSkipped,
			Emails:      c.GenericEmails,
			Error:       "Recently enriched",
		}, true
	}

	return model.EnrichmentOutcome{}, false
}

// enrichOne scrapes a single company and persists the result. Failures are
// recorded as failed, never left pending.
func (e *Engine) enrichOne(ctx context.Context, c *model.Company) model.EnrichmentOutcome {
	now := time.Now().UTC()

	found, err := e.finder.FindGenericEmails(ctx, c.Website)
	if err != nil {
		c.EnrichmentStatus = model.EnrichmentFailed
		c.EnrichedAt = &now
		if uerr := e.store.UpdateCompanyEnrichment(ctx, c); uerr != nil {
			zap.L().Warn("enrich: mark failed errored",
				zap.Int64("company_id", c.ID), zap.Error(uerr))
		}
		zap.L().Warn("enrich: company failed",
			zap.Int64("company_id", c.ID),
			zap.String("website", c.Website),
			zap.Error(err))
		return model.EnrichmentOutcome{
			CompanyID:   c.ID,
			CompanyName: c.Name,
			Status:      model.OutcomeFailed,
			Error:       err.Error(),
		}
	}

	scraped := make([]string, len(found))
	for i, fe := range found {
		scraped[i] = fe.Address
	}

	// Scraped addresses add to what is already known; they never replace
	// a primary email sourced from Apollo.
	known := strings.TrimSpace(c.Email)
	c.GenericEmails = unionEmails(known, scraped)
	if known == "" && len(scraped) > 0 {
		c.Email = scraped[0]
		if _, domain, ok := strings.Cut(scraped[0], "@"); ok {
			c.EmailDomain = domain
		}
	}
	switch {
	case known != "" && len(scraped) > 0:
		c.EnrichmentSource = model.SourceBoth
	case len(scraped) > 0:
		c.EnrichmentSource = model.SourceWebScrape
	case known != "":
		c.EnrichmentSource = model.SourceApollo
	}
	c.EnrichmentStatus = model.EnrichmentCompleted
	c.EnrichedAt = &now

	if err := e.store.UpdateCompanyEnrichment(ctx, c); err != nil {
		return model.EnrichmentOutcome{
			CompanyID:   c.ID,
			CompanyName: c.Name,
			Status:      model.OutcomeFailed,
			Error:       err.Error(),
		}
	}

	zap.L().Info("enrich: company completed",
		zap.Int64("company_id", c.ID),
		zap.Int("emails_found", len(c.GenericEmails)))
	return model.EnrichmentOutcome{
		CompanyID:   c.ID,
		CompanyName: c.Name,
		Status:      model.OutcomeCompleted,
		Emails:      c.GenericEmails,
	}
}

// applyBulkData fills in missing websites from Apollo bulk enrichment,
// keyed by email domain. Credit exhaustion degrades to whatever partial
// data came back; it never fails the batch.
func (e *Engine) applyBulkData(ctx context.Context, companies []model.Company) {
	var domains []string
	need := make(map[string][]*model.Company)
	for i := range companies {
		c := &companies[i]
		if c.EmailDomain == "" || strings.TrimSpace(c.Website) != "" {
			continue
		}
		if _, ok := need[c.EmailDomain]; !ok {
			domains = append(domains, c.EmailDomain)
		}
		need[c.EmailDomain] = append(need[c.EmailDomain], c)
	}
	if len(domains) == 0 {
		return
	}

	orgs, err := e.bulk.BulkEnrichOrganizations(ctx, domains)
	if err != nil {
		zap.L().Warn("enrich: apollo bulk data incomplete",
			zap.Int("domains", len(domains)), zap.Error(err))
	}
	for _, org := range orgs {
		if org.WebsiteURL == "" {
			continue
		}
		for _, c := range need[org.PrimaryDomain] {
			c.Website = org.WebsiteURL
		}
	}
}

// unionEmails merges the already known email with freshly scraped ones,
// deduplicating case-insensitively with the known address first.
func unionEmails(known string, scraped []string) []string {
	emails := make([]string, 0, len(scraped)+1)
	seen := make(map[string]bool, len(scraped)+1)
	if known != "" {
		emails = append(emails, known)
		seen[strings.ToLower(known)] = true
	}
	for _, addr := range scraped {
		key := strings.ToLower(addr)
		if seen[key] {
			continue
		}
		seen[key] = true
		emails = append(emails, addr)
	}
	return emails
}
