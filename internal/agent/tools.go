package agent

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-agent/internal/model"
)

// Tool names as exposed to the model.
const (
	ToolSaveICP           = "save_icp"
	ToolSearchApollo      = "search_apollo"
	ToolEnrichCompanies   = "enrich_companies"
	ToolVerifyEmails      = "verify_emails"
	ToolGetSessionContext = "get_session_context"
	ToolUpdateICPDraft    = "update_icp_draft"
)

// Command is the decoded, typed form of one tool invocation. Dispatch
// happens on the concrete variant, so a malformed or unknown tool call
// fails at parse time instead of inside a handler.
type Command interface {
	isCommand()
}

// SaveProfileCommand persists the session's targeting profile draft,
// optionally overriding fields inline.
type SaveProfileCommand struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Industry     string `json:"industry"`
	CompanySize  string `json:"company_size"`
	JobTitles    string `json:"job_titles"`
	Geography    string `json:"geography"`
	RevenueRange string `json:"revenue_range"`
	Keywords     string `json:"keywords"`
}

func (SaveProfileCommand) isCommand() {}

// SearchCommand runs a prospecting search for companies or people.
type SearchCommand struct {
	SearchType     string   `json:"search_type"`
	Locations      []string `json:"locations"`
	EmployeeRanges []string `json:"employee_ranges"`
	Industries     []string `json:"industries"`
	Keywords       string   `json:"keywords"`
	Titles         []string `json:"titles"`
	Seniorities    []string `json:"seniorities"`
	PerPage        int      `json:"per_page"`
}

func (SearchCommand) isCommand() {}

// EnrichCommand enriches companies with generic contact emails. CompanyIDs
// may be the literal string "all" on the wire, meaning every company from
// the session's last search.
type EnrichCommand struct {
	CompanyIDs []int64
	All        bool
	Force      bool
}

func (EnrichCommand) isCommand() {}

// UnmarshalJSON accepts both {"company_ids":[1,2]} and {"company_ids":"all"}.
func (c *EnrichCommand) UnmarshalJSON(data []byte) error {
	var raw struct {
		CompanyIDs json.RawMessage `json:"company_ids"`
		Force      bool            `json:"force"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Force = raw.Force

	if len(raw.CompanyIDs) == 0 {
		return nil
	}
	var all string
	if err := json.Unmarshal(raw.CompanyIDs, &all); err == nil {
		if all != "all" {
			return eris.Errorf("agent: company_ids string must be \"all\", got %q", all)
		}
		c.All = true
		return nil
	}
	if err := json.Unmarshal(raw.CompanyIDs, &c.CompanyIDs); err != nil {
		return eris.Wrap(err, "agent: company_ids")
	}
	return nil
}

// VerifyEmailsCommand verifies a list of email addresses.
type VerifyEmailsCommand struct {
	Emails []string `json:"emails"`
}

func (VerifyEmailsCommand) isCommand() {}

// SessionContextCommand asks for the session's accumulated state.
type SessionContextCommand struct{}

func (SessionContextCommand) isCommand() {}

// UpdateDraftCommand merges fields into the session's profile draft.
type UpdateDraftCommand struct {
	Fields map[string]any `json:"fields"`
}

func (UpdateDraftCommand) isCommand() {}

// parseToolCall decodes a raw tool call into its typed command.
func parseToolCall(tc model.ToolCall) (Command, error) {
	input := tc.Input
	if len(input) == 0 {
		input = []byte("{}")
	}

	switch tc.Name {
	case ToolSaveICP:
		var cmd SaveProfileCommand
		if err := json.Unmarshal(input, &cmd); err != nil {
			return nil, eris.Wrapf(err, "agent: parse %s", tc.Name)
		}
		return cmd, nil
	case ToolSearchApollo:
		var cmd SearchCommand
		if err := json.Unmarshal(input, &cmd); err != nil {
			return nil, eris.Wrapf(err, "agent: parse %s", tc.Name)
		}
		if cmd.SearchType != "companies" && cmd.SearchType != "people" {
			return nil, eris.Errorf("agent: search_type must be companies or people, got %q", cmd.SearchType)
		}
		return cmd, nil
	case ToolEnrichCompanies:
		var cmd EnrichCommand
		if err := json.Unmarshal(input, &cmd); err != nil {
			return nil, eris.Wrapf(err, "agent: parse %s", tc.Name)
		}
		return cmd, nil
	case ToolVerifyEmails:
		var cmd VerifyEmailsCommand
		if err := json.Unmarshal(input, &cmd); err != nil {
			return nil, eris.Wrapf(err, "agent: parse %s", tc.Name)
		}
		return cmd, nil
	case ToolGetSessionContext:
		return SessionContextCommand{}, nil
	case ToolUpdateICPDraft:
		var cmd UpdateDraftCommand
		if err := json.Unmarshal(input, &cmd); err != nil {
			return nil, eris.Wrapf(err, "agent: parse %s", tc.Name)
		}
		return cmd, nil
	default:
		return nil, eris.Errorf("agent: unknown tool %q", tc.Name)
	}
}
