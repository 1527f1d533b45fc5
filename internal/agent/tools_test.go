package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-agent/internal/model"
)

func TestParseToolCall_Search(t *testing.T) {
	cmd, err := parseToolCall(model.ToolCall{
		Name:  ToolSearchApollo,
		Input: []byte(`{"search_type":"companies","locations":["Texas"],"employee_ranges":["11-50"]}`),
	})
	require.NoError(t, err)

	search, ok := cmd.(SearchCommand)
	require.True(t, ok)
	assert.Equal(t, "companies", search.SearchType)
	assert.Equal(t, []string{"Texas"}, search.Locations)
}

func TestParseToolCall_SearchTypeValidated(t *testing.T) {
	_, err := parseToolCall(model.ToolCall{
		Name:  ToolSearchApollo,
		Input: []byte(`{"search_type":"everything"}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search_type")
}

func TestParseToolCall_EnrichIDList(t *testing.T) {
	cmd, err := parseToolCall(model.ToolCall{
		Name:  ToolEnrichCompanies,
		Input: []byte(`{"company_ids":[3,5,8],"force":true}`),
	})
	require.NoError(t, err)

	enrich, ok := cmd.(EnrichCommand)
	require.True(t, ok)
	assert.Equal(t, []int64{3, 5, 8}, enrich.CompanyIDs)
	assert.True(t, enrich.Force)
	assert.False(t, enrich.All)
}

func TestParseToolCall_EnrichAll(t *testing.T) {
	cmd, err := parseToolCall(model.ToolCall{
		Name:  ToolEnrichCompanies,
		Input: []byte(`{"company_ids":"all"}`),
	})
	require.NoError(t, err)

	enrich := cmd.(EnrichCommand)
	assert.True(t, enrich.All)
	assert.Empty(t, enrich.CompanyIDs)
}

func TestParseToolCall_EnrichBadString(t *testing.T) {
	_, err := parseToolCall(model.ToolCall{
		Name:  ToolEnrichCompanies,
		Input: []byte(`{"company_ids":"some"}`),
	})
	assert.Error(t, err)
}

func TestParseToolCall_EmptyInput(t *testing.T) {
	cmd, err := parseToolCall(model.ToolCall{Name: ToolGetSessionContext})
	require.NoError(t, err)
	_, ok := cmd.(SessionContextCommand)
	assert.True(t, ok)
}

func TestParseToolCall_UnknownTool(t *testing.T) {
	_, err := parseToolCall(model.ToolCall{Name: "launch_rockets", Input: []byte(`{}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestCatalog_CoversAllTools(t *testing.T) {
	names := map[string]bool{}
	for _, def := range Catalog() {
		names[def.Name] = true
	}
	for _, want := range []string{
		ToolSaveICP, ToolSearchApollo, ToolEnrichCompanies,
		ToolVerifyEmails, ToolGetSessionContext, ToolUpdateICPDraft,
	} {
		assert.True(t, names[want], want)
	}
}
