package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-agent/internal/agent"
	"github.com/sells-group/outreach-agent/internal/cost"
	"github.com/sells-group/outreach-agent/internal/enrich"
	"github.com/sells-group/outreach-agent/internal/llm"
	"github.com/sells-group/outreach-agent/internal/model"
	"github.com/sells-group/outreach-agent/internal/session"
	"github.com/sells-group/outreach-agent/internal/store"
	"github.com/sells-group/outreach-agent/pkg/apollo"
	"github.com/sells-group/outreach-agent/pkg/instantly"
)

// scriptedLLM answers every turn with fixed prose.
type scriptedLLM struct {
	text string
}

func (s *scriptedLLM) StreamMessage(ctx context.Context, req llm.StreamRequest, onDelta func(string)) (*llm.TurnResult, error) {
	if onDelta != nil {
		onDelta(s.text)
	}
	return &llm.TurnResult{
		Text:       s.text,
		StopReason: "end_turn",
		Usage:      llm.TokenUsage{InputTokens: 50, OutputTokens: 10},
	}, nil
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	calc := cost.NewCalculator(cost.DefaultRates())
	sessions := session.NewManager(st, calc, 20)
	engine := enrich.NewEngine(st, enrich.NewFinder(0), enrich.Options{})
	apolloClient := apollo.NewClient("test")
	handlers := agent.NewHandlers(sessions, st, apolloClient, engine, calc)
	orch := agent.NewOrchestrator(&scriptedLLM{text: "Hello! Let's build your ICP."},
		sessions, handlers, st, calc,
		agent.Config{Model: "claude-sonnet-4-5-20250929", MaxTokens: 1024, MaxIterations: 5})

	return &env{
		store:     st,
		calc:      calc,
		sessions:  sessions,
		engine:    engine,
		orch:      orch,
		apollo:    apolloClient,
		instantly: instantly.NewClient("test"),
	}
}

func TestRouter_Health(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_CreateAndGetSession(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions",
		strings.NewReader(`{"title":"Q3 outreach","client_tag":"acme"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.UUID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.UUID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Q3 outreach", got.Title)
}

func TestRouter_GetSession_NotFound(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ListSessions_Filtered(t *testing.T) {
	e := newTestEnv(t)
	router := newRouter(e)
	ctx := context.Background()

	_, err := e.sessions.Create(ctx, "", "acme")
	require.NoError(t, err)
	_, err = e.sessions.Create(ctx, "", "globex")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions?client_tag=acme", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sessions []model.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "acme", resp.Sessions[0].ClientTag)
}

func TestRouter_ListSessions_Paginated(t *testing.T) {
	e := newTestEnv(t)
	router := newRouter(e)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.sessions.Create(ctx, "", "acme")
		require.NoError(t, err)
	}

	var resp struct {
		Sessions []model.Session `json:"sessions"`
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Sessions, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions?limit=10&offset=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Sessions, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions?offset=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Chat_StreamsSSE(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"hi","client_tag":"acme"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Session-UUID"))

	body := rec.Body.String()
	assert.Contains(t, body, `data: {"type":"text","content":`)
	assert.Contains(t, body, `"type":"usage"`)
	assert.Contains(t, body, `"type":"done"`)
}

func TestRouter_Chat_ResumesSession(t *testing.T) {
	e := newTestEnv(t)
	router := newRouter(e)
	ctx := context.Background()

	sess, err := e.sessions.Create(ctx, "", "acme")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"hi","session_uuid":"`+sess.UUID+`"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sess.UUID, rec.Header().Get("X-Session-UUID"))

	got, err := e.sessions.Get(ctx, sess.UUID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
}

func TestRouter_Chat_RequiresMessage(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Chat_ArchivedSessionRefused(t *testing.T) {
	e := newTestEnv(t)
	router := newRouter(e)
	ctx := context.Background()

	sess, err := e.sessions.Create(ctx, "", "acme")
	require.NoError(t, err)
	require.NoError(t, e.sessions.Archive(ctx, sess.ID))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"hi","session_uuid":"`+sess.UUID+`"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRouter_Stats(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats?hours=6", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats model.ActivityStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.ToolCalls)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats?hours=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ArchiveAndSummary(t *testing.T) {
	e := newTestEnv(t)
	router := newRouter(e)
	ctx := context.Background()

	sess, err := e.sessions.Create(ctx, "", "acme")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/"+sess.UUID+"/archive", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+sess.UUID+"/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var sum model.SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, model.SessionArchived, sum.Status)
}
