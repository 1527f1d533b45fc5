package agent

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-agent/internal/cost"
	"github.com/sells-group/outreach-agent/internal/llm"
	"github.com/sells-group/outreach-agent/internal/model"
	"github.com/sells-group/outreach-agent/internal/session"
	"github.com/sells-group/outreach-agent/internal/store"
)

// fakeLLM replays a script of turn results and records requests.
type fakeLLM struct {
	script   []*llm.TurnResult
	requests []llm.StreamRequest
	err      error
}

func (f *fakeLLM) StreamMessage(ctx context.Context, req llm.StreamRequest, onDelta func(string)) (*llm.TurnResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.requests) - 1
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	res := f.script[idx]
	if onDelta != nil && res.Text != "" {
		onDelta(res.Text)
	}
	return res, nil
}

type orchestratorFixture struct {
	orch     *Orchestrator
	llm      *fakeLLM
	sessions *session.Manager
	store    store.Store
	sess     *model.Session
}

func newOrchestratorFixture(t *testing.T, client *fakeLLM) *orchestratorFixture {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	calc := cost.NewCalculator(cost.DefaultRates())
	sessions := session.NewManager(st, calc, 20)
	handlers := NewHandlers(sessions, st, &fakeApollo{}, &fakeEnricher{}, calc)

	sess, err := sessions.Create(context.Background(), "", "acme")
	require.NoError(t, err)

	orch := NewOrchestrator(client, sessions, handlers, st, calc, Config{
		Model: "claude-sonnet-4-5-20250929", MaxTokens: 1024, MaxIterations: 5,
	})
	return &orchestratorFixture{orch: orch, llm: client, sessions: sessions, store: st, sess: sess}
}

func drain(ch <-chan Event) []Event {
	var events []Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func TestOrchestrator_ProseOnlyTurn(t *testing.T) {
	client := &fakeLLM{script: []*llm.TurnResult{
		{Text: "Hello! What kind of companies are you targeting?",
			StopReason: "end_turn",
			Usage:      llm.TokenUsage{InputTokens: 100, OutputTokens: 20}},
	}}
	f := newOrchestratorFixture(t, client)

	events := drain(f.orch.Run(context.Background(), f.sess, "hi"))
	assert.Equal(t, []EventType{EventText, EventUsage, EventDone}, eventTypes(events))
	assert.Equal(t, f.sess.UUID, events[2].SessionUUID)

	got, err := f.sessions.Get(context.Background(), f.sess.UUID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, model.RoleUser, got.Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, int64(100), got.InputTokens)
}

func TestOrchestrator_ToolLoop(t *testing.T) {
	client := &fakeLLM{script: []*llm.TurnResult{
		{
			Text:       "Let me check the session state.",
			StopReason: "tool_use",
			ToolCalls:  []model.ToolCall{{ID: "tc_1", Name: ToolGetSessionContext, Input: []byte(`{}`)}},
			Usage:      llm.TokenUsage{InputTokens: 200, OutputTokens: 30},
		},
		{
			Text:       "You have no draft yet. Tell me about your ideal customer.",
			StopReason: "end_turn",
			Usage:      llm.TokenUsage{InputTokens: 250, OutputTokens: 25},
		},
	}}
	f := newOrchestratorFixture(t, client)
	ctx := context.Background()

	events := drain(f.orch.Run(ctx, f.sess, "where were we?"))
	assert.Equal(t, []EventType{
		EventText, EventToolStart, EventToolComplete,
		EventText, EventUsage, EventDone,
	}, eventTypes(events))
	assert.JSONEq(t, `{}`, string(events[1].Input))
	assert.NotEmpty(t, events[2].Summary)

	// Second model call must include the tool result turn.
	require.Len(t, client.requests, 2)
	turns := client.requests[1].Turns
	last := turns[len(turns)-1]
	assert.Equal(t, model.RoleToolResult, last.Role)
	require.Len(t, last.ToolResults, 1)
	assert.Equal(t, "tc_1", last.ToolResults[0].ToolUseID)

	// Audit record written synchronously.
	execs, err := f.store.ListToolExecutions(ctx, f.sess.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, ToolGetSessionContext, execs[0].ToolName)
	assert.Equal(t, model.ToolExecSuccess, execs[0].Status)
	require.NotNil(t, execs[0].MessageID)
}

func TestOrchestrator_ToolErrorContinues(t *testing.T) {
	client := &fakeLLM{script: []*llm.TurnResult{
		{
			StopReason: "tool_use",
			ToolCalls:  []model.ToolCall{{ID: "tc_1", Name: "bogus_tool", Input: []byte(`{}`)}},
		},
		{Text: "Sorry, let me try something else.", StopReason: "end_turn"},
	}}
	f := newOrchestratorFixture(t, client)
	ctx := context.Background()

	events := drain(f.orch.Run(ctx, f.sess, "do the thing"))
	types := eventTypes(events)
	assert.Contains(t, types, EventToolError)
	assert.Equal(t, EventDone, types[len(types)-1])

	// The model sees the failure as an error tool result.
	turns := client.requests[1].Turns
	last := turns[len(turns)-1]
	require.Len(t, last.ToolResults, 1)
	assert.True(t, last.ToolResults[0].IsError)
	assert.Contains(t, last.ToolResults[0].Content, "unknown tool")

	execs, err := f.store.ListToolExecutions(ctx, f.sess.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, model.ToolExecError, execs[0].Status)
}

func TestOrchestrator_SearchEmitsStructuredResults(t *testing.T) {
	client := &fakeLLM{script: []*llm.TurnResult{
		{
			StopReason: "tool_use",
			ToolCalls: []model.ToolCall{{
				ID: "tc_1", Name: ToolSearchApollo,
				Input: []byte(`{"search_type":"companies","locations":["Texas"]}`),
			}},
		},
		{Text: "Found them.", StopReason: "end_turn"},
	}}
	f := newOrchestratorFixture(t, client)

	events := drain(f.orch.Run(context.Background(), f.sess, "find HVAC companies in Texas"))
	assert.Contains(t, eventTypes(events), EventSearchResults)
}

func TestOrchestrator_IterationBudget(t *testing.T) {
	client := &fakeLLM{script: []*llm.TurnResult{
		{
			StopReason: "tool_use",
			ToolCalls:  []model.ToolCall{{ID: "tc_1", Name: ToolGetSessionContext, Input: []byte(`{}`)}},
		},
	}}
	f := newOrchestratorFixture(t, client)

	events := drain(f.orch.Run(context.Background(), f.sess, "loop forever"))
	types := eventTypes(events)

	assert.Len(t, client.requests, 5)
	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, EventUsage, types[len(types)-3])
	assert.Equal(t, EventError, types[len(types)-2])
	assert.Equal(t, EventDone, types[len(types)-1])
}

func TestOrchestrator_UsageAccumulatedAcrossIterations(t *testing.T) {
	client := &fakeLLM{script: []*llm.TurnResult{
		{
			StopReason: "tool_use",
			ToolCalls:  []model.ToolCall{{ID: "tc_1", Name: ToolGetSessionContext, Input: []byte(`{}`)}},
			Usage:      llm.TokenUsage{InputTokens: 100, OutputTokens: 10},
		},
		{
			Text:       "All caught up.",
			StopReason: "end_turn",
			Usage:      llm.TokenUsage{InputTokens: 200, OutputTokens: 20},
		},
	}}
	f := newOrchestratorFixture(t, client)

	events := drain(f.orch.Run(context.Background(), f.sess, "where were we?"))

	var usages []Event
	for _, e := range events {
		if e.Type == EventUsage {
			usages = append(usages, e)
		}
	}
	require.Len(t, usages, 1)
	assert.Equal(t, int64(300), usages[0].Usage.InputTokens)
	assert.Equal(t, int64(30), usages[0].Usage.OutputTokens)

	// Reported right before the stream closes.
	types := eventTypes(events)
	assert.Equal(t, EventUsage, types[len(types)-2])
	assert.Equal(t, EventDone, types[len(types)-1])
}

func TestOrchestrator_ModelErrorEndsStream(t *testing.T) {
	client := &fakeLLM{err: eris.New("api unavailable")}
	f := newOrchestratorFixture(t, client)

	events := drain(f.orch.Run(context.Background(), f.sess, "hello"))
	types := eventTypes(events)
	assert.Equal(t, []EventType{EventError, EventDone}, types)
	assert.Contains(t, events[0].Error, "api unavailable")
}

func TestOrchestrator_SystemPromptCarriesDraft(t *testing.T) {
	client := &fakeLLM{script: []*llm.TurnResult{
		{Text: "ok", StopReason: "end_turn"},
	}}
	f := newOrchestratorFixture(t, client)
	ctx := context.Background()

	require.NoError(t, f.sessions.MergeProfileDraft(ctx, f.sess, map[string]any{"industry": "HVAC"}, nil))
	drain(f.orch.Run(ctx, f.sess, "hi"))

	require.Len(t, client.requests, 1)
	assert.Contains(t, client.requests[0].System, "HVAC")
	assert.Len(t, client.requests[0].Tools, 6)
}
