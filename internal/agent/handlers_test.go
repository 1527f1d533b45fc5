package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-agent/internal/cost"
	"github.com/sells-group/outreach-agent/internal/model"
	"github.com/sells-group/outreach-agent/internal/session"
	"github.com/sells-group/outreach-agent/internal/store"
	"github.com/sells-group/outreach-agent/pkg/apollo"
)

// fakeApollo returns scripted search results.
type fakeApollo struct {
	orgs      []apollo.Organization
	orgTotal  int
	people    []apollo.Person
	total     int
	searchErr error
}

func (f *fakeApollo) SearchOrganizations(ctx context.Context, req apollo.OrganizationSearchRequest) (*apollo.OrganizationSearchResponse, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &apollo.OrganizationSearchResponse{
		Organizations: f.orgs,
		Pagination:    apollo.Pagination{TotalEntries: f.orgTotal},
	}, nil
}

func (f *fakeApollo) SearchPeople(ctx context.Context, req apollo.PeopleSearchRequest) (*apollo.PeopleSearchResponse, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &apollo.PeopleSearchResponse{
		People:     f.people,
		Pagination: apollo.Pagination{TotalEntries: f.total},
	}, nil
}

func (f *fakeApollo) BulkEnrichOrganizations(ctx context.Context, domains []string) ([]apollo.Organization, error) {
	return nil, nil
}

func (f *fakeApollo) Health(ctx context.Context) error { return nil }

// fakeEnricher records calls and returns one completed outcome per ID.
type fakeEnricher struct {
	gotIDs   []int64
	gotForce bool
	emails   []string
}

func (f *fakeEnricher) EnrichCompanies(ctx context.Context, ids []int64, force bool) ([]model.EnrichmentOutcome, error) {
	f.gotIDs = ids
	f.gotForce = force
	outcomes := make([]model.EnrichmentOutcome, len(ids))
	for i, id := range ids {
		outcomes[i] = model.EnrichmentOutcome{
			CompanyID: id, CompanyName: "Co", Status: model.OutcomeCompleted, Emails: f.emails,
		}
	}
	return outcomes, nil
}

type handlersFixture struct {
	handlers *Handlers
	sessions *session.Manager
	store    store.Store
	apollo   *fakeApollo
	enricher *fakeEnricher
	sess     *model.Session
}

func newHandlersFixture(t *testing.T) *handlersFixture {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	calc := cost.NewCalculator(cost.DefaultRates())
	sessions := session.NewManager(st, calc, 20)
	ap := &fakeApollo{}
	en := &fakeEnricher{emails: []string{"info@co.example"}}

	sess, err := sessions.Create(context.Background(), "", "acme")
	require.NoError(t, err)

	return &handlersFixture{
		handlers: NewHandlers(sessions, st, ap, en, calc),
		sessions: sessions,
		store:    st,
		apollo:   ap,
		enricher: en,
		sess:     sess,
	}
}

func TestHandlers_UpdateDraftThenSaveProfile(t *testing.T) {
	f := newHandlersFixture(t)
	ctx := context.Background()

	out, err := f.handlers.Execute(ctx, f.sess, UpdateDraftCommand{
		Fields: map[string]any{"industry": "HVAC", "geography": "Texas"},
	})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "industry")

	out, err = f.handlers.Execute(ctx, f.sess, SaveProfileCommand{Name: "Texas HVAC"})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "Texas HVAC")

	got, err := f.sessions.Get(ctx, f.sess.UUID)
	require.NoError(t, err)
	assert.Empty(t, got.ProfileDraft)
	require.NotNil(t, got.ProfileID)
}

func TestHandlers_SaveProfile_RequiresName(t *testing.T) {
	f := newHandlersFixture(t)
	_, err := f.handlers.Execute(context.Background(), f.sess, SaveProfileCommand{})
	assert.Error(t, err)
}

func TestHandlers_SearchCompanies(t *testing.T) {
	f := newHandlersFixture(t)
	ctx := context.Background()

	f.apollo.orgs = []apollo.Organization{
		{ID: "o1", Name: "Acme", WebsiteURL: "https://acme.com", PrimaryDomain: "acme.com"},
		{ID: "o2", Name: "Globex", WebsiteURL: "https://globex.com"},
	}
	f.apollo.orgTotal = 120

	out, err := f.handlers.Execute(ctx, f.sess, SearchCommand{
		SearchType: "companies", Locations: []string{"Texas"}, EmployeeRanges: []string{"11-50"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), out.Credits)
	assert.Contains(t, out.Content, "Found 120 companies")
	assert.Contains(t, out.Content, "enrich_companies")
	assert.NotNil(t, out.Data)

	// Companies persisted as pending, attributed to Apollo.
	sum, ok := f.sess.LastSearch()
	require.True(t, ok)
	assert.Equal(t, 120, sum.Count)
	require.Len(t, sum.CompanyIDs, 2)

	companies, err := f.store.GetCompaniesByIDs(ctx, sum.CompanyIDs)
	require.NoError(t, err)
	require.Len(t, companies, 2)
	assert.Equal(t, model.EnrichmentPending, companies[0].EnrichmentStatus)
	assert.Equal(t, model.SourceApollo, companies[0].EnrichmentSource)
}

func TestHandlers_SearchPeople(t *testing.T) {
	f := newHandlersFixture(t)

	f.apollo.people = []apollo.Person{{Name: "Dana Reyes", Title: "Owner"}}
	f.apollo.total = 9

	out, err := f.handlers.Execute(context.Background(), f.sess, SearchCommand{
		SearchType: "people", Seniorities: []string{"owner"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Credits)
	assert.Contains(t, out.Content, "Dana Reyes")

	sum, ok := f.sess.LastSearch()
	require.True(t, ok)
	assert.Equal(t, "people", sum.Type)
	assert.Empty(t, sum.CompanyIDs)
}

func TestHandlers_Search_CreditsExhaustedSignalsFallback(t *testing.T) {
	f := newHandlersFixture(t)
	f.apollo.searchErr = apollo.ErrCreditsExhausted
	ctx := context.Background()

	for _, searchType := range []string{"companies", "people"} {
		out, err := f.handlers.Execute(ctx, f.sess, SearchCommand{SearchType: searchType})
		require.NoError(t, err)

		assert.Contains(t, out.Content, "credits are exhausted")
		assert.Zero(t, out.Credits)
		data, ok := out.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, data["needs_fallback"])
		assert.Equal(t, "apollo_credits_exhausted", data["reason"])
	}
}

func TestHandlers_EnrichAll_UsesLastSearch(t *testing.T) {
	f := newHandlersFixture(t)
	ctx := context.Background()

	f.sess.SetLastSearch(model.SearchSummary{Type: "companies", CompanyIDs: []int64{4, 7}})
	require.NoError(t, f.sessions.MergeMetadata(ctx, f.sess, f.sess.Metadata))

	out, err := f.handlers.Execute(ctx, f.sess, EnrichCommand{All: true, Force: true})
	require.NoError(t, err)

	assert.Equal(t, []int64{4, 7}, f.enricher.gotIDs)
	assert.True(t, f.enricher.gotForce)
	assert.Contains(t, out.Content, "2 completed")

	sum, ok := f.sess.LastEnrichment()
	require.True(t, ok)
	assert.Equal(t, 2, sum.Completed)
	assert.Equal(t, 2, sum.EmailsFound)
}

func TestHandlers_EnrichAll_NoPriorSearch(t *testing.T) {
	f := newHandlersFixture(t)
	_, err := f.handlers.Execute(context.Background(), f.sess, EnrichCommand{All: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no previous company search")
}

func TestHandlers_VerifyEmails(t *testing.T) {
	f := newHandlersFixture(t)

	out, err := f.handlers.Execute(context.Background(), f.sess, VerifyEmailsCommand{
		Emails: []string{"Info@Acme.com", "info@acme.com", "not-an-email", "a..b@acme.com"},
	})
	require.NoError(t, err)

	assert.Contains(t, out.Content, "Verified 3 unique addresses, 1 valid.")
	assert.Contains(t, out.Content, "- info@acme.com: valid")
	assert.Contains(t, out.Content, "- not-an-email: invalid")
}

func TestHandlers_SessionContext(t *testing.T) {
	f := newHandlersFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sessions.MergeProfileDraft(ctx, f.sess, map[string]any{"industry": "HVAC"}, nil))

	out, err := f.handlers.Execute(ctx, f.sess, SessionContextCommand{})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "industry: HVAC")
	assert.Contains(t, out.Content, "Usage:")
}
