package apollo

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// FormatOrganizationResults renders organizations as a numbered list the
// model can relay to the user verbatim.
func FormatOrganizationResults(orgs []Organization, total int) string {
	if len(orgs) == 0 {
		return "No companies matched the search."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d companies (showing %d):\n", total, len(orgs))
	for i, org := range orgs {
		fmt.Fprintf(&b, "%d. %s", i+1, org.Name)
		if org.Industry != "" {
			fmt.Fprintf(&b, " | %s", titleCaser.String(org.Industry))
		}
		if org.EstimatedNumEmployees > 0 {
			fmt.Fprintf(&b, " | %d employees", org.EstimatedNumEmployees)
		}
		if loc := formatLocation(org.City, org.State, org.Country); loc != "" {
			fmt.Fprintf(&b, " | %s", loc)
		}
		if org.WebsiteURL != "" {
			fmt.Fprintf(&b, " | %s", org.WebsiteURL)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatPeopleResults renders contacts as a numbered list.
func FormatPeopleResults(people []Person, total int) string {
	if len(people) == 0 {
		return "No contacts matched the search."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d contacts (showing %d):\n", total, len(people))
	for i, p := range people {
		name := p.Name
		if name == "" {
			name = strings.TrimSpace(p.FirstName + " " + p.LastName)
		}
		fmt.Fprintf(&b, "%d. %s", i+1, name)
		if p.Title != "" {
			fmt.Fprintf(&b, " | %s", titleCaser.String(p.Title))
		}
		if p.Organization != nil && p.Organization.Name != "" {
			fmt.Fprintf(&b, " | %s", p.Organization.Name)
		}
		if p.Email != "" {
			fmt.Fprintf(&b, " | %s", p.Email)
		}
		if loc := formatLocation(p.City, p.State, p.Country); loc != "" {
			fmt.Fprintf(&b, " | %s", loc)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatLocation(city, state, country string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{city, state, country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
