package instantly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the Instantly v2 API.
const defaultBaseURL = "https://api.instantly.ai/api/v2"

// Client defines the Instantly operations used to push verified leads into
// outreach campaigns.
type Client interface {
	ListCampaigns(ctx context.Context) ([]Campaign, error)
	AddLeadsToCampaign(ctx context.Context, campaignID string, leads []Lead) (*AddLeadsResult, error)
	Health(ctx context.Context) error
}

// Campaign is one outreach campaign.
type Campaign struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status int    `json:"status"`
}

// Lead is one contact pushed into a campaign.
type Lead struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Website     string `json:"website,omitempty"`
}

// AddLeadsResult summarizes a lead push.
type AddLeadsResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// APIError is returned when Instantly responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("instantly: HTTP %d: %s", e.StatusCode, e.Body)
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

// NewClient creates a new Instantly client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	var resp struct {
		Items []Campaign `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/campaigns", nil, &resp); err != nil {
		return nil, eris.Wrap(err, "instantly: list campaigns")
	}
	return resp.Items, nil
}

func (c *httpClient) AddLeadsToCampaign(ctx context.Context, campaignID string, leads []Lead) (*AddLeadsResult, error) {
	result := &AddLeadsResult{}
	for _, lead := range leads {
		body := map[string]any{
			"campaign":     campaignID,
			"email":        lead.Email,
			"first_name":   lead.FirstName,
			"last_name":    lead.LastName,
			"company_name": lead.CompanyName,
			"website":      lead.Website,
		}
		if err := c.do(ctx, http.MethodPost, "/leads", body, nil); err != nil {
			var apiErr *APIError
			// Duplicate leads are skipped, not fatal.
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
				result.Skipped++
				continue
			}
			return result, eris.Wrapf(err, "instantly: add lead %s", lead.Email)
		}
		result.Added++
	}
	return result, nil
}

func (c *httpClient) Health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/campaigns?limit=1", nil, nil); err != nil {
		return eris.Wrap(err, "instantly: health check")
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
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
