package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-agent/internal/cost"
	"github.com/sells-group/outreach-agent/internal/model"
	"github.com/sells-group/outreach-agent/internal/store"
)

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	return NewManager(st, cost.NewCalculator(cost.DefaultRates()), 20), st
}

func TestManager_CreateAndGet(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "Roofing companies", "acme")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.UUID)

	got, err := m.Get(ctx, sess.UUID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Roofing companies", got.Title)

	missing, err := m.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestManager_GetOrCreate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	// Unknown UUID falls through to a fresh session.
	fresh, err := m.GetOrCreate(ctx, "does-not-exist", "acme")
	require.NoError(t, err)
	assert.NotEqual(t, "does-not-exist", fresh.UUID)

	same, err := m.GetOrCreate(ctx, fresh.UUID, "acme")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, same.ID)
}

func TestManager_Append_AccumulatesUsage(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "", "acme")
	require.NoError(t, err)

	msg := &model.Message{SessionID: sess.ID, Role: model.RoleUser, Content: "hello"}
	require.NoError(t, m.Append(ctx, msg, nil))

	reply := &model.Message{SessionID: sess.ID, Role: model.RoleAssistant, Content: "hi", InputTokens: 1_000_000, OutputTokens: 1_000_000}
	require.NoError(t, m.Append(ctx, reply, &AppendUsage{
		Model:        "claude-sonnet-4-5-20250929",
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
	}))

	got, err := m.Get(ctx, sess.UUID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), got.InputTokens)
	assert.Equal(t, int64(1_000_000), got.OutputTokens)
	// $3/MTok in + $15/MTok out.
	assert.InDelta(t, 18.0, got.CostUSD, 1e-9)
	assert.Len(t, got.Messages, 2)
}

func TestManager_Append_RequiresSessionID(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Append(context.Background(), &model.Message{Role: model.RoleUser}, nil)
	assert.Error(t, err)
}

func TestManager_BuildContext_ShortPassThrough(t *testing.T) {
	m, _ := newTestManager(t)

	msgs := makeMessages(20)
	got := m.BuildContext(msgs)
	assert.Equal(t, msgs, got)
}

func TestManager_BuildContext_CompressesLong(t *testing.T) {
	m, _ := newTestManager(t)

	msgs := makeMessages(50)
	got := m.BuildContext(msgs)

	// first + placeholder + trailing 19
	require.Len(t, got, 21)
	assert.Equal(t, msgs[0].Content, got[0].Content)
	assert.Contains(t, got[1].Content, "[Previous conversation: 30 messages")
	assert.Equal(t, msgs[31].Content, got[2].Content)
	assert.Equal(t, msgs[49].Content, got[20].Content)
}

func TestManager_BuildContext_ExactThreshold(t *testing.T) {
	m, _ := newTestManager(t)

	msgs := makeMessages(21)
	got := m.BuildContext(msgs)
	require.Len(t, got, 21)
	// One message was omitted from the middle.
	assert.Contains(t, got[1].Content, "1 messages")
}

func TestManager_BuildContext_SmallWindow(t *testing.T) {
	m := NewManager(nil, cost.NewCalculator(cost.DefaultRates()), 10)

	msgs := makeMessages(15)
	got := m.BuildContext(msgs)

	// first + placeholder + trailing 9
	require.Len(t, got, 11)
	assert.Contains(t, got[1].Content, "5 messages")
	assert.Equal(t, msgs[6].Content, got[2].Content)
	assert.Equal(t, msgs[14].Content, got[10].Content)
}

func TestManager_BuildContext_LargeWindow(t *testing.T) {
	m := NewManager(nil, cost.NewCalculator(cost.DefaultRates()), 30)

	msgs := makeMessages(40)
	got := m.BuildContext(msgs)

	// first + placeholder + trailing 29
	require.Len(t, got, 31)
	assert.Contains(t, got[1].Content, "10 messages")
	assert.Equal(t, msgs[11].Content, got[2].Content)
	assert.Equal(t, msgs[39].Content, got[30].Content)
}

func TestManager_ProfileDraftMergeAndClear(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "", "")
	require.NoError(t, err)

	require.NoError(t, m.MergeProfileDraft(ctx, sess, map[string]any{"industry": "HVAC"}, nil))
	require.NoError(t, m.MergeProfileDraft(ctx, sess, map[string]any{"geography": "Texas"}, nil))

	got, err := m.Get(ctx, sess.UUID)
	require.NoError(t, err)
	assert.Equal(t, "HVAC", got.ProfileDraft["industry"])
	assert.Equal(t, "Texas", got.ProfileDraft["geography"])

	require.NoError(t, m.ClearProfileDraft(ctx, sess, 42))
	got, err = m.Get(ctx, sess.UUID)
	require.NoError(t, err)
	assert.Empty(t, got.ProfileDraft)
	require.NotNil(t, got.ProfileID)
	assert.Equal(t, int64(42), *got.ProfileID)
}

func TestManager_MergeMetadata(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "", "")
	require.NoError(t, err)

	sess.SetLastSearch(model.SearchSummary{Type: "companies", Count: 120, Returned: 25, CompanyIDs: []int64{1, 2}})
	require.NoError(t, m.MergeMetadata(ctx, sess, sess.Metadata))

	got, err := m.Get(ctx, sess.UUID)
	require.NoError(t, err)
	sum, ok := got.LastSearch()
	require.True(t, ok)
	assert.Equal(t, "companies", sum.Type)
	assert.Equal(t, []int64{1, 2}, sum.CompanyIDs)
}

func TestManager_ArchiveAndSummary(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "", "acme")
	require.NoError(t, err)

	require.NoError(t, m.Append(ctx, &model.Message{SessionID: sess.ID, Role: model.RoleUser, Content: "hi"}, nil))
	require.NoError(t, st.InsertToolExecution(ctx, &model.ToolExecution{
		SessionID: sess.ID, ToolName: "search_apollo", ToolCallID: "tc_1", Status: model.ToolExecSuccess,
	}))
	require.NoError(t, m.Archive(ctx, sess.ID))

	sum, err := m.Summary(ctx, sess.UUID)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, 1, sum.MessageCount)
	assert.Equal(t, map[string]int{"search_apollo": 1}, sum.ToolStats)
	assert.Equal(t, model.SessionArchived, sum.Status)

	none, err := m.Summary(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func makeMessages(n int) []model.Message {
	msgs := make([]model.Message, n)
	for i := range msgs {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		msgs[i] = model.Message{SessionID: 1, Role: role, Content: fmt.Sprintf("message %d", i)}
	}
	return msgs
}
