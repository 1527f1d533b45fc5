package agent

import "github.com/sells-group/outreach-agent/internal/llm"

// Catalog returns the tool definitions offered to the model on every turn.
func Catalog() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        ToolSaveICP,
			Description: "Save the current ideal customer profile draft as a named targeting profile. Call this once the user confirms the criteria are right.",
			Properties: map[string]any{
				"name":          map[string]any{"type": "string", "description": "Short name for the profile"},
				"description":   map[string]any{"type": "string"},
				"industry":      map[string]any{"type": "string"},
				"company_size":  map[string]any{"type": "string", "description": "Employee range such as 11-50"},
				"job_titles":    map[string]any{"type": "string", "description": "Comma-separated buyer titles"},
				"geography":     map[string]any{"type": "string"},
				"revenue_range": map[string]any{"type": "string"},
				"keywords":      map[string]any{"type": "string"},
			},
			Required: []string{"name"},
		},
		{
			Name:        ToolSearchApollo,
			Description: "Search Apollo.io for companies or people matching the targeting criteria. Each result consumes one Apollo credit.",
			Properties: map[string]any{
				"search_type": map[string]any{
					"type": "string",
					"enum": []string{"companies", "people"},
				},
				"locations": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
				"employee_ranges": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Ranges such as 11-50 or 201-500",
				},
				"industries": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
				"keywords": map[string]any{"type": "string"},
				"titles": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Job titles, people search only",
				},
				"seniorities": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Seniority levels such as owner, c_suite, vp",
				},
				"per_page": map[string]any{"type": "integer"},
			},
			Required: []string{"search_type"},
		},
		{
			Name:        ToolEnrichCompanies,
			Description: "Find generic contact emails (info@, sales@, ...) for companies by scraping their websites. Pass \"all\" to enrich every company from the last search.",
			Properties: map[string]any{
				"company_ids": map[string]any{
					"description": "Array of company IDs, or the string \"all\"",
				},
				"force": map[string]any{
					"type":        "boolean",
					"description": "Re-enrich even if enriched recently",
				},
			},
			Required: []string{"company_ids"},
		},
		{
			Name:        ToolVerifyEmails,
			Description: "Verify that email addresses are well-formed and deliverable-looking before outreach.",
			Properties: map[string]any{
				"emails": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			Required: []string{"emails"},
		},
		{
			Name:        ToolGetSessionContext,
			Description: "Get the session's accumulated state: profile draft, last search, last enrichment, and usage totals.",
			Properties:  map[string]any{},
		},
		{
			Name:        ToolUpdateICPDraft,
			Description: "Merge field updates into the session's ideal customer profile draft as the conversation refines it.",
			Properties: map[string]any{
				"fields": map[string]any{
					"type":        "object",
					"description": "Draft fields to set, e.g. industry, geography, company_size",
				},
			},
			Required: []string{"fields"},
		},
	}
}
