package enrich

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-agent/internal/resilience"
)

// genericPrefixes are the mailbox local parts treated as company-level
// contact addresses rather than personal ones. Includes the Italian forms
// the client base needs.
var genericPrefixes = []string{
	"info", "contact", "sales", "support", "hello", "team",
	"admin", "general", "office", "mail", "contatti", "vendite",
}

// contactPaths are probed after the homepage, most specific first. Only
// the first few are fetched to bound cost per company.
var contactPaths = []string{
	"/contact", "/contacts", "/contactus", "/contact-us",
	"/contatti", "/chi-siamo", "/about", "/about-us",
}

// maxContactPages bounds how many contact paths are fetched per site.
const maxContactPages = 3

const (
	homepageConfidence    = 0.8
	contactPageConfidence = 1.0
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// FoundEmail is one generic address extracted from a company site.
type FoundEmail struct {
	Address    string  `json:"address"`
	Page       string  `json:"page"`
	Confidence float64 `json:"confidence"`
}

// Finder scrapes a company website for generic contact emails. Fetches are
// rate limited across all callers so concurrent enrichment does not hammer
// anyone's site.
type Finder struct {
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.Policy
}

// NewFinder creates a Finder with the given per-request timeout. The rate
// limiter allows two fetches per second with a small burst.
func NewFinder(timeout time.Duration) *Finder {
	return &Finder{
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		retry: resilience.Policy{
			Attempts:  2,
			BaseDelay: time.Second,
			OnRetry:   resilience.Logged("scrape", "fetch"),
		},
	}
}

// FindGenericEmails fetches the homepage and up to maxContactPages contact
// pages of website and returns deduplicated generic addresses scoped to the
// site's own domain, highest confidence first.
func (f *Finder) FindGenericEmails(ctx context.Context, website string) ([]FoundEmail, error) {
	base, domain, err := normalizeWebsite(website)
	if err != nil {
		return nil, err
	}

	found := map[string]FoundEmail{}

	collect := func(page string, confidence float64) {
		body, err := f.fetch(ctx, page)
		if err != nil {
			zap.L().Debug("enrich: page fetch failed",
				zap.String("page", page), zap.Error(err))
			return
		}
		for _, addr := range extractGenericEmails(body, domain) {
			prev, ok := found[addr]
			if !ok || confidence > prev.Confidence {
				found[addr] = FoundEmail{Address: addr, Page: page, Confidence: confidence}
			}
		}
	}

	collect(base, homepageConfidence)
	for i, path := range contactPaths {
		if i >= maxContactPages {
			break
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "enrich: find emails")
		}
		collect(base+path, contactPageConfidence)
	}

	emails := make([]FoundEmail, 0, len(found))
	for _, fe := range found {
		emails = append(emails, fe)
	}
	sort.Slice(emails, func(i, j int) bool {
		if emails[i].Confidence != emails[j].Confidence {
			return emails[i].Confidence > emails[j].Confidence
		}
		return emails[i].Address < emails[j].Address
	})
	return emails, nil
}

// fetch retrieves one page, retrying rate-limit and server-side failures.
func (f *Finder) fetch(ctx context.Context, page string) (string, error) {
	return resilience.Do(ctx, f.retry, func(ctx context.Context) (string, error) {
		return f.fetchOnce(ctx, page)
	})
}

func (f *Finder) fetchOnce(ctx context.Context, page string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "enrich: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		return "", eris.Wrapf(err, "enrich: build request %s", page)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; OutreachBot/1.0)")

	resp, err := f.http.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "enrich: fetch %s", page)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("enrich: fetch %s: status %d", page, resp.StatusCode)
		if resilience.TransientStatus(resp.StatusCode) {
			return "", resilience.Transient(err, resp.StatusCode)
		}
		return "", err
	}

	// 1MB is plenty for the contact details we are after.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", eris.Wrapf(err, "enrich: read %s", page)
	}
	return string(body), nil
}

// normalizeWebsite returns the scheme+host base URL and the bare domain
// (without www.) used to scope extracted addresses.
func normalizeWebsite(website string) (base, domain string, err error) {
	raw := strings.TrimSpace(website)
	if raw == "" {
		return "", "", eris.New("enrich: empty website")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", eris.Wrapf(err, "enrich: parse website %q", website)
	}
	domain = strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	base = u.Scheme + "://" + u.Host
	return base, domain, nil
}

// extractGenericEmails pulls addresses out of page HTML, keeping only
// generic mailboxes on the company's own domain.
func extractGenericEmails(body, domain string) []string {
	seen := map[string]bool{}
	var out []string
	for _, raw := range emailPattern.FindAllString(body, -1) {
		addr := strings.ToLower(raw)
		if seen[addr] {
			continue
		}
		local, addrDomain, ok := strings.Cut(addr, "@")
		if !ok {
			continue
		}
		if strings.TrimPrefix(addrDomain, "www.") != domain {
			continue
		}
		if !isGenericLocal(local) {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

// isGenericLocal reports whether the mailbox local part looks like a shared
// company address. Matches exact prefixes plus compound forms such as
// "sales.emea" or "emea-sales".
func isGenericLocal(local string) bool {
	for _, p := range genericPrefixes {
		if local == p || strings.HasPrefix(local, p+".") || strings.HasPrefix(local, p+"-") ||
			strings.HasSuffix(local, "."+p) || strings.HasSuffix(local, "-"+p) {
			return true
		}
	}
	return false
}
