package apollo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatOrganizationResults(t *testing.T) {
	orgs := []Organization{
		{Name: "Acme Plumbing", Industry: "plumbing services", EstimatedNumEmployees: 40, City: "Austin", State: "Texas", WebsiteURL: "https://acme.com"},
		{Name: "Globex"},
	}
	got := FormatOrganizationResults(orgs, 120)

	assert.Contains(t, got, "Found 120 companies (showing 2):")
	assert.Contains(t, got, "1. Acme Plumbing | Plumbing Services | 40 employees | Austin, Texas | https://acme.com")
	assert.Contains(t, got, "2. Globex")
}

func TestFormatOrganizationResults_Empty(t *testing.T) {
	assert.Equal(t, "No companies matched the search.", FormatOrganizationResults(nil, 0))
}

func TestFormatPeopleResults(t *testing.T) {
	people := []Person{
		{FirstName: "Dana", LastName: "Reyes", Title: "head of sales", Email: "dana@acme.com",
			Organization: &Organization{Name: "Acme"}},
	}
	got := FormatPeopleResults(people, 1)

	assert.Contains(t, got, "Found 1 contacts (showing 1):")
	assert.Contains(t, got, "1. Dana Reyes | Head Of Sales | Acme | dana@acme.com")
}

func TestFormatPeopleResults_Empty(t *testing.T) {
	assert.Equal(t, "No contacts matched the search.", FormatPeopleResults(nil, 0))
}
