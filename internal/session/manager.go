package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-agent/internal/cost"
	"github.com/sells-group/outreach-agent/internal/model"
	"github.com/sells-group/outreach-agent/internal/store"
)

// Manager owns session lifecycle and the conversation context window. All
// usage counters flow through Append so they stay consistent with the
// message log.
type Manager struct {
	store       store.Store
	calc        *cost.Calculator
	maxMessages int
}

// NewManager creates a Manager. maxMessages is the threshold above which
// BuildContext compresses the window; values below 2 fall back to 20.
func NewManager(st store.Store, calc *cost.Calculator, maxMessages int) *Manager {
	if maxMessages < 2 {
		maxMessages = 20
	}
	return &Manager{store: st, calc: calc, maxMessages: maxMessages}
}

// Create starts a new active session.
func (m *Manager) Create(ctx context.Context, title, clientTag string) (*model.Session, error) {
	sess := &model.Session{Title: title, ClientTag: clientTag}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, eris.Wrap(err, "session: create")
	}
	zap.L().Info("session created",
		zap.String("uuid", sess.UUID),
		zap.String("client_tag", clientTag))
	return sess, nil
}

// Get loads a session with its full message history. Returns (nil, nil)
// when the UUID is unknown.
func (m *Manager) Get(ctx context.Context, uuid string) (*model.Session, error) {
	return m.store.GetSessionByUUID(ctx, uuid)
}

// GetOrCreate resolves uuid to an existing session or starts a fresh one
// when uuid is empty or unknown.
func (m *Manager) GetOrCreate(ctx context.Context, uuid, clientTag string) (*model.Session, error) {
	if uuid != "" {
		sess, err := m.Get(ctx, uuid)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			return sess, nil
		}
	}
	return m.Create(ctx, "", clientTag)
}

// AppendUsage captures the token usage of one model turn.
type AppendUsage struct {
	Model         string
	InputTokens   int64
	OutputTokens  int64
	ApolloCredits int64
	ExtraCostUSD  float64
}

// Append persists a message and rolls its usage into the session counters.
// The message's SessionID must be set.
func (m *Manager) Append(ctx context.Context, msg *model.Message, usage *AppendUsage) error {
	if msg.SessionID == 0 {
		return eris.New("session: append without session id")
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return eris.Wrap(err, "session: append message")
	}

	var in, out, credits int64
	var costUSD float64
	if usage != nil {
		in = usage.InputTokens
		out = usage.OutputTokens
		credits = usage.ApolloCredits
		costUSD = m.calc.Claude(usage.Model, in, out) + m.calc.ApolloCredits(credits) + usage.ExtraCostUSD
	}
	if err := m.store.AddSessionUsage(ctx, msg.SessionID, in, out, credits, costUSD); err != nil {
		return eris.Wrap(err, "session: add usage")
	}
	return nil
}

// BuildContext returns the messages to send to the model. Short
// conversations pass through untouched; long ones keep the first message,
// insert a synthetic summary placeholder, and keep the trailing
// maxMessages-1 so the model retains the opening intent without unbounded
// token growth.
func (m *Manager) BuildContext(msgs []model.Message) []model.Message {
	if len(msgs) <= m.maxMessages {
		return msgs
	}

	tailSize := m.maxMessages - 1
	first := msgs[0]
	tail := msgs[len(msgs)-tailSize:]
	omitted := len(msgs) - 1 - tailSize

	placeholder := model.Message{
		SessionID: first.SessionID,
		Role:      model.RoleUser,
		Content:   summaryPlaceholder(omitted, first.Content),
	}

	window := make([]model.Message, 0, 2+len(tail))
	window = append(window, first, placeholder)
	window = append(window, tail...)
	return window
}

// summaryPlaceholder stands in for the omitted middle of a long
// conversation. Real summarization would call the model; a labeled marker
// keeps the window well-formed without that cost.
func summaryPlaceholder(omitted int, opening string) string {
	topic := strings.TrimSpace(opening)
	if len(topic) > 80 {
		topic = topic[:80] + "..."
	}
	if topic == "" {
		return fmt.Sprintf("[Previous conversation: %d messages]", omitted)
	}
	return fmt.Sprintf("[Previous conversation: %d messages about %s]", omitted, topic)
}

// MergeMetadata shallow-merges updates into the session metadata bag and
// persists the result. Keys in updates win over existing keys.
func (m *Manager) MergeMetadata(ctx context.Context, sess *model.Session, updates map[string]any) error {
	if sess.Metadata == nil {
		sess.Metadata = map[string]any{}
	}
	for k, v := range updates {
		sess.Metadata[k] = v
	}
	return eris.Wrap(m.store.UpdateSessionMetadata(ctx, sess.ID, sess.Metadata), "session: merge metadata")
}

// MergeProfileDraft shallow-merges field updates into the session's
// targeting profile draft and persists it. profileID, when non-nil, links
// the draft to a saved profile.
func (m *Manager) MergeProfileDraft(ctx context.Context, sess *model.Session, updates map[string]any, profileID *int64) error {
	if sess.ProfileDraft == nil {
		sess.ProfileDraft = map[string]any{}
	}
	for k, v := range updates {
		sess.ProfileDraft[k] = v
	}
	if profileID != nil {
		sess.ProfileID = profileID
	}
	return eris.Wrap(m.store.UpdateSessionDraft(ctx, sess.ID, sess.ProfileDraft, profileID), "session: merge draft")
}

// ClearProfileDraft empties the draft after it is promoted to a saved
// profile, keeping the profile link.
func (m *Manager) ClearProfileDraft(ctx context.Context, sess *model.Session, profileID int64) error {
	sess.ProfileDraft = nil
	sess.ProfileID = &profileID
	return eris.Wrap(m.store.UpdateSessionDraft(ctx, sess.ID, nil, &profileID), "session: clear draft")
}

// List returns sessions matching the filter, most recently updated first.
func (m *Manager) List(ctx context.Context, filter store.SessionFilter) ([]model.Session, error) {
	return m.store.ListSessions(ctx, filter)
}

// Archive marks a session archived. Archived sessions refuse new messages
// at the API layer; the store keeps them readable.
func (m *Manager) Archive(ctx context.Context, id int64) error {
	return eris.Wrap(m.store.UpdateSessionStatus(ctx, id, model.SessionArchived), "session: archive")
}

// Summary aggregates counters and tool statistics for one session.
func (m *Manager) Summary(ctx context.Context, uuid string) (*model.SessionSummary, error) {
	sess, err := m.store.GetSessionByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	count, err := m.store.CountMessages(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	stats, err := m.store.ToolStats(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	return &model.SessionSummary{
		SessionID:     sess.ID,
		UUID:          sess.UUID,
		MessageCount:  count,
		ToolStats:     stats,
		InputTokens:   sess.InputTokens,
		OutputTokens:  sess.OutputTokens,
		ApolloCredits: sess.ApolloCredits,
		CostUSD:       sess.CostUSD,
		Status:        sess.Status,
		CreatedAt:     sess.CreatedAt,
		LastMessageAt: sess.LastMessageAt,
	}, nil
}
