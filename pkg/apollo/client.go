package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the Apollo.io REST API.
const defaultBaseURL = "https://api.apollo.io/api/v1"

// bulkEnrichBatchSize is Apollo's documented maximum per bulk enrich call.
const bulkEnrichBatchSize = 10

// ErrCreditsExhausted is returned when Apollo rejects a call with HTTP 402.
// Callers can treat it as a signal to fall back to web scraping.
var ErrCreditsExhausted = errors.New("apollo: credits exhausted")

// Client defines the Apollo.io API operations used by the agent.
type Client interface {
	SearchOrganizations(ctx context.Context, req OrganizationSearchRequest) (*OrganizationSearchResponse, error)
	SearchPeople(ctx context.Context, req PeopleSearchRequest) (*PeopleSearchResponse, error)
	BulkEnrichOrganizations(ctx context.Context, domains []string) ([]Organization, error)
	Health(ctx context.Context) error
}

// OrganizationSearchRequest is the body for POST /mixed_companies/search.
type OrganizationSearchRequest struct {
	Locations      []string `json:"organization_locations,omitempty"`
	EmployeeRanges []string `json:"organization_num_employees_ranges,omitempty"`
	Industries     []string `json:"q_organization_keyword_tags,omitempty"`
	Keywords       string   `json:"q_organization_name,omitempty"`
	Page           int      `json:"page,omitempty"`
	PerPage        int      `json:"per_page,omitempty"`
}

// Organization is one company record returned by Apollo.
type Organization struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	WebsiteURL            string `json:"website_url"`
	PrimaryDomain         string `json:"primary_domain"`
	Industry              string `json:"industry"`
	EstimatedNumEmployees int    `json:"estimated_num_employees"`
	City                  string `json:"city"`
	State                 string `json:"state"`
	Country               string `json:"country"`
	LinkedinURL           string `json:"linkedin_url"`
}

// Pagination echoes Apollo's paging envelope.
type Pagination struct {
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalEntries int `json:"total_entries"`
	TotalPages   int `json:"total_pages"`
}

// OrganizationSearchResponse is the response from POST /mixed_companies/search.
type OrganizationSearchResponse struct {
	Organizations []Organization `json:"organizations"`
	Pagination    Pagination     `json:"pagination"`
}

// PeopleSearchRequest is the body for POST /mixed_people/search.
type PeopleSearchRequest struct {
	Titles              []string `json:"person_titles,omitempty"`
	Seniorities         []string `json:"person_seniorities,omitempty"`
	Locations           []string `json:"person_locations,omitempty"`
	OrganizationDomains []string `json:"q_organization_domains_list,omitempty"`
	Page                int      `json:"page,omitempty"`
	PerPage             int      `json:"per_page,omitempty"`
}

// Person is one contact record returned by Apollo.
type Person struct {
	ID           string        `json:"id"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	Name         string        `json:"name"`
	Title        string        `json:"title"`
	Email        string        `json:"email"`
	LinkedinURL  string        `json:"linkedin_url"`
	City         string        `json:"city"`
	State        string        `json:"state"`
	Country      string        `json:"country"`
	Organization *Organization `json:"organization,omitempty"`
}

// PeopleSearchResponse is the response from POST /mixed_people/search.
type PeopleSearchResponse struct {
	People     []Person   `json:"people"`
	Pagination Pagination `json:"pagination"`
}

// bulkEnrichResponse is the response from POST /organizations/bulk_enrich.
type bulkEnrichResponse struct {
	Organizations []Organization `json:"organizations"`
}

// APIError is returned when Apollo responds with a non-2xx status other
// than 402.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apollo: HTTP %d: %s", e.StatusCode, e.Body)
}

// seniorityMap normalizes conversational seniority terms to Apollo's enum.
var seniorityMap = map[string]string{
	"owner":           "owner",
	"founder":         "founder",
	"co-founder":      "founder",
	"ceo":             "c_suite",
	"cto":             "c_suite",
	"cfo":             "c_suite",
	"coo":             "c_suite",
	"cmo":             "c_suite",
	"c-suite":         "c_suite",
	"c_suite":         "c_suite",
	"executive":       "c_suite",
	"partner":         "partner",
	"vp":              "vp",
	"vice president":  "vp",
	"head":            "head",
	"director":        "director",
	"manager":         "manager",
	"senior":          "senior",
	"entry":           "entry",
	"entry level":     "entry",
	"intern":          "intern",
}

// sizeRanges normalizes friendly employee-count labels to Apollo's range
// strings.
var sizeRanges = map[string]string{
	"1-10":       "1,10",
	"11-50":      "11,50",
	"51-200":     "51,200",
	"201-500":    "201,500",
	"501-1000":   "501,1000",
	"1001-5000":  "1001,5000",
	"5001-10000": "5001,10000",
	"10000+":     "10001+",
	"10001+":     "10001+",
}

// NormalizeSeniority maps a conversational seniority term to Apollo's enum
// value. Unknown terms pass through lowercased so the API can reject them.
func NormalizeSeniority(term string) string {
	key := strings.ToLower(strings.TrimSpace(term))
	if v, ok := seniorityMap[key]; ok {
		return v
	}
	return key
}

// NormalizeEmployeeRange maps a friendly size label to Apollo's range
// string. Unknown labels pass through unchanged.
func NormalizeEmployeeRange(label string) string {
	key := strings.ReplaceAll(strings.TrimSpace(label), " ", "")
	if v, ok := sizeRanges[key]; ok {
		return v
	}
	return label
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Apollo client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchOrganizations(ctx context.Context, req OrganizationSearchRequest) (*OrganizationSearchResponse, error) {
	if req.PerPage <= 0 {
		req.PerPage = 25
	}
	var resp OrganizationSearchResponse
	if err := c.post(ctx, "/mixed_companies/search", req, &resp); err != nil {
		return nil, eris.Wrap(err, "apollo: search organizations")
	}
	return &resp, nil
}

func (c *httpClient) SearchPeople(ctx context.Context, req PeopleSearchRequest) (*PeopleSearchResponse, error) {
	if req.PerPage <= 0 {
		req.PerPage = 25
	}
	for i, s := range req.Seniorities {
		req.Seniorities[i] = NormalizeSeniority(s)
	}
	var resp PeopleSearchResponse
	if err := c.post(ctx, "/mixed_people/search", req, &resp); err != nil {
		return nil, eris.Wrap(err, "apollo: search people")
	}
	return &resp, nil
}

// BulkEnrichOrganizations enriches domains in batches of ten, returning all
// organizations in input order. A credits failure mid-run returns the
// organizations collected so far along with ErrCreditsExhausted.
func (c *httpClient) BulkEnrichOrganizations(ctx context.Context, domains []string) ([]Organization, error) {
	var all []Organization
	for start := 0; start < len(domains); start += bulkEnrichBatchSize {
		end := start + bulkEnrichBatchSize
		if end > len(domains) {
			end = len(domains)
		}

		var resp bulkEnrichResponse
		body := map[string]any{"domains": domains[start:end]}
		if err := c.post(ctx, "/organizations/bulk_enrich", body, &resp); err != nil {
			if errors.Is(err, ErrCreditsExhausted) {
				return all, err
			}
			return nil, eris.Wrap(err, "apollo: bulk enrich organizations")
		}
		all = append(all, resp.Organizations...)
	}
	return all, nil
}

func (c *httpClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/health", nil)
	if err != nil {
		return eris.Wrap(err, "apollo: create health request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "apollo: health check")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("apollo: health check status %d", resp.StatusCode)
	}
	return nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode == http.StatusPaymentRequired {
		return ErrCreditsExhausted
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return eris.Wrap(err, "unmarshal response")
		}
	}
	return nil
}
