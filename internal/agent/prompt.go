package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/outreach-agent/internal/model"
)

// SystemPrompt renders the per-turn system prompt. Session state is baked
// in so the model does not need a tool round-trip for things it already
// learned earlier in the conversation.
func SystemPrompt(sess *model.Session) string {
	var b strings.Builder

	b.WriteString(`You are an outreach research assistant for a B2B sales team. You help the user define an ideal customer profile (ICP), find matching companies and contacts through Apollo, enrich companies with generic contact emails, and verify addresses before outreach.

Guidelines:
- Build up the ICP draft incrementally with update_icp_draft as the user refines criteria; save it with save_icp only after the user confirms.
- Prefer searching with the fewest filters that still capture the user's intent. Tell the user how many credits a search consumed.
- After a company search, offer to enrich the results. Use company_ids "all" to enrich everything from the last search.
- Be concise. Summarize tool results instead of repeating them verbatim.`)

	if len(sess.ProfileDraft) > 0 {
		if draft, err := json.MarshalIndent(sess.ProfileDraft, "", "  "); err == nil {
			fmt.Fprintf(&b, "\n\nCurrent ICP draft:\n%s", draft)
		}
	}
	if sess.ProfileID != nil {
		fmt.Fprintf(&b, "\n\nSaved profile ID: %d", *sess.ProfileID)
	}

	if sum, ok := sess.LastSearch(); ok {
		fmt.Fprintf(&b, "\n\nLast search: %s, %d total matches, %d returned", sum.Type, sum.Count, sum.Returned)
		if len(sum.CompanyIDs) > 0 {
			fmt.Fprintf(&b, ", company IDs %s", joinIDs(sum.CompanyIDs))
		}
	}

	if sum, ok := sess.LastEnrichment(); ok {
		fmt.Fprintf(&b, "\n\nLast enrichment: %d companies, %d emails found, %d completed, %d failed, %d skipped",
			len(sum.CompanyIDs), sum.EmailsFound, sum.Completed, sum.Failed, sum.Skipped)
	}

	if sess.CostUSD > 0 || sess.ApolloCredits > 0 {
		fmt.Fprintf(&b, "\n\nSession usage so far: %d input tokens, %d output tokens, %d Apollo credits, $%.4f",
			sess.InputTokens, sess.OutputTokens, sess.ApolloCredits, sess.CostUSD)
	}

	return b.String()
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
