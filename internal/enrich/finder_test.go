package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-agent/internal/resilience"
)

func TestNormalizeWebsite(t *testing.T) {
	tests := []struct {
		in         string
		wantBase   string
		wantDomain string
		wantErr    bool
	}{
		{in: "https://www.acme.com", wantBase: "https://www.acme.com", wantDomain: "acme.com"},
		{in: "acme.com", wantBase: "https://acme.com", wantDomain: "acme.com"},
		{in: "http://acme.com/products", wantBase: "http://acme.com", wantDomain: "acme.com"},
		{in: "  ", wantErr: true},
	}
	for _, tt := range tests {
		base, domain, err := normalizeWebsite(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.wantBase, base, tt.in)
		assert.Equal(t, tt.wantDomain, domain, tt.in)
	}
}

func TestExtractGenericEmails_DomainScoped(t *testing.T) {
	body := `Contact us at Info@Acme.com or sales@acme.com.
	Our partner: hello@other.com. Personal: jane.doe@acme.com.`

	got := extractGenericEmails(body, "acme.com")
	assert.ElementsMatch(t, []string{"info@acme.com", "sales@acme.com"}, got)
}

func TestExtractGenericEmails_WWWVariant(t *testing.T) {
	got := extractGenericEmails("write to info@www.acme.com", "acme.com")
	assert.Equal(t, []string{"info@www.acme.com"}, got)
}

func TestIsGenericLocal(t *testing.T) {
	assert.True(t, isGenericLocal("info"))
	assert.True(t, isGenericLocal("contatti"))
	assert.True(t, isGenericLocal("sales.emea"))
	assert.True(t, isGenericLocal("emea-sales"))
	assert.False(t, isGenericLocal("jane.doe"))
	assert.False(t, isGenericLocal("information")) // no separator, not exact
}

func TestFinder_ProbesHomepageAndContactPages(t *testing.T) {
	var hits atomic.Int32
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		paths = append(paths, r.URL.Path)
		w.Write([]byte("<html>no emails here</html>"))
	}))
	defer srv.Close()

	f := NewFinder(2 * time.Second)
	emails, err := f.FindGenericEmails(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, emails)

	// Homepage plus the first three contact paths.
	assert.Equal(t, int32(1+maxContactPages), hits.Load())
	assert.Contains(t, paths, "/")
	assert.Contains(t, paths, "/contact")
	assert.NotContains(t, paths, "/contact-us")
}

func TestFinder_SurvivesFailingPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFinder(2 * time.Second)
	emails, err := f.FindGenericEmails(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestFinder_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<a href=\"mailto:info@acme.com\">info@acme.com</a>"))
	}))
	defer srv.Close()

	f := NewFinder(2 * time.Second)
	f.retry = resilience.Policy{Attempts: 2, BaseDelay: time.Millisecond}

	body, err := f.fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, body, "info@acme.com")
	assert.Equal(t, int32(2), hits.Load())
}

func TestFinder_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFinder(time.Second)
	_, err := f.FindGenericEmails(ctx, "https://acme.com")
	assert.Error(t, err)
}
