package instantly

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCampaigns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/campaigns", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"items": []Campaign{{ID: "c1", Name: "Q3 HVAC outreach", Status: 1}},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	campaigns, err := c.ListCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, "Q3 HVAC outreach", campaigns[0].Name)
}

func TestAddLeadsToCampaign(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/leads", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	result, err := c.AddLeadsToCampaign(context.Background(), "c1", []Lead{
		{Email: "info@acme.com", CompanyName: "Acme"},
		{Email: "sales@globex.com", CompanyName: "Globex"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, bodies, 2)
	assert.Equal(t, "c1", bodies[0]["campaign"])
	assert.Equal(t, "info@acme.com", bodies[0]["email"])
}

func TestAddLeadsToCampaign_SkipsDuplicates(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "duplicate lead", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	result, err := c.AddLeadsToCampaign(context.Background(), "c1", []Lead{
		{Email: "dup@acme.com"},
		{Email: "new@acme.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Skipped)
}

func TestAddLeadsToCampaign_FatalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.AddLeadsToCampaign(context.Background(), "c1", []Lead{{Email: "x@acme.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"items": []Campaign{}})
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	assert.NoError(t, c.Health(context.Background()))
}
