package agent

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-agent/internal/cost"
	"github.com/sells-group/outreach-agent/internal/llm"
	"github.com/sells-group/outreach-agent/internal/model"
	"github.com/sells-group/outreach-agent/internal/session"
	"github.com/sells-group/outreach-agent/internal/store"
)

// Config tunes the orchestration loop.
type Config struct {
	Model     string
	MaxTokens int64
	// MaxIterations bounds model turns per user message so a confused
	// model cannot loop on tools forever. Values below 1 mean 5.
	MaxIterations int
}

// Orchestrator runs the conversational tool loop: stream a model turn,
// execute any requested tools, feed results back, repeat until the model
// answers in prose or the iteration budget runs out.
type Orchestrator struct {
	llm      llm.Client
	sessions *session.Manager
	handlers *Handlers
	store    store.Store
	calc     *cost.Calculator
	cfg      Config
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(client llm.Client, sessions *session.Manager, handlers *Handlers, st store.Store, calc *cost.Calculator, cfg Config) *Orchestrator {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Orchestrator{
		llm:      client,
		sessions: sessions,
		handlers: handlers,
		store:    st,
		calc:     calc,
		cfg:      cfg,
	}
}

// Run processes one user message and returns the event stream for it. The
// channel is closed after EventDone; the caller must drain it even if the
// client disconnects, so in-flight tools finish and get logged.
func (o *Orchestrator) Run(ctx context.Context, sess *model.Session, userText string) <-chan Event {
	ch := make(chan Event, 16)
	go o.run(ctx, sess, userText, ch)
	return ch
}

func (o *Orchestrator) run(ctx context.Context, sess *model.Session, userText string, ch chan<- Event) {
	defer close(ch)

	emit := func(e Event) {
		select {
		case ch <- e:
		case <-ctx.Done():
		}
	}
	fail := func(err error) {
		zap.L().Error("agent: turn failed",
			zap.String("session", sess.UUID), zap.Error(err))
		emit(Event{Type: EventError, Error: err.Error()})
		emit(Event{Type: EventDone, SessionUUID: sess.UUID})
	}

	userMsg := &model.Message{SessionID: sess.ID, Role: model.RoleUser, Content: userText}
	if err := o.sessions.Append(ctx, userMsg, nil); err != nil {
		fail(err)
		return
	}
	sess.Messages = append(sess.Messages, *userMsg)

	// Usage accumulates across iterations and is reported once, right
	// before the stream terminates.
	var turnUsage UsageReport
	startCredits := sess.ApolloCredits
	startCost := sess.CostUSD
	emitUsage := func() {
		turnUsage.ApolloCredits = sess.ApolloCredits - startCredits
		turnUsage.CostUSD = sess.CostUSD - startCost
		turnUsage.TotalCostUSD = sess.CostUSD
		report := turnUsage
		emit(Event{Type: EventUsage, Usage: &report})
	}

	for iter := 0; iter < o.cfg.MaxIterations; iter++ {
		res, err := o.llm.StreamMessage(ctx, llm.StreamRequest{
			Model:     o.cfg.Model,
			MaxTokens: o.cfg.MaxTokens,
			System:    SystemPrompt(sess),
			Turns:     toTurns(o.sessions.BuildContext(sess.Messages)),
			Tools:     Catalog(),
		}, func(text string) {
			emit(Event{Type: EventText, Content: text})
		})
		if err != nil {
			fail(err)
			return
		}

		assistant := &model.Message{
			SessionID:    sess.ID,
			Role:         model.RoleAssistant,
			Content:      res.Text,
			ToolCalls:    res.ToolCalls,
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
		}
		if err := o.sessions.Append(ctx, assistant, &session.AppendUsage{
			Model:        o.cfg.Model,
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
		}); err != nil {
			fail(err)
			return
		}
		sess.Messages = append(sess.Messages, *assistant)

		sess.InputTokens += res.Usage.InputTokens
		sess.OutputTokens += res.Usage.OutputTokens
		sess.CostUSD += o.calc.Claude(o.cfg.Model, res.Usage.InputTokens, res.Usage.OutputTokens)
		turnUsage.InputTokens += res.Usage.InputTokens
		turnUsage.OutputTokens += res.Usage.OutputTokens

		if len(res.ToolCalls) == 0 {
			emitUsage()
			emit(Event{Type: EventDone, SessionUUID: sess.UUID})
			return
		}

		results := make([]model.ToolResult, 0, len(res.ToolCalls))
		for _, tc := range res.ToolCalls {
			results = append(results, o.runTool(ctx, sess, assistant.ID, tc, emit))
		}

		resultMsg := &model.Message{
			SessionID:   sess.ID,
			Role:        model.RoleToolResult,
			ToolResults: results,
		}
		if err := o.sessions.Append(ctx, resultMsg, nil); err != nil {
			fail(err)
			return
		}
		sess.Messages = append(sess.Messages, *resultMsg)
	}

	zap.L().Warn("agent: iteration budget exhausted",
		zap.String("session", sess.UUID), zap.Int("max_iterations", o.cfg.MaxIterations))
	emitUsage()
	emit(Event{Type: EventError, Error: "reached the tool iteration limit for this message"})
	emit(Event{Type: EventDone, SessionUUID: sess.UUID})
}

// runTool executes one tool call, logs its audit record synchronously, and
// returns the result block fed back to the model. Tool failures never abort
// the turn; the model sees the error text and reacts.
func (o *Orchestrator) runTool(ctx context.Context, sess *model.Session, messageID int64, tc model.ToolCall, emit func(Event)) model.ToolResult {
	emit(Event{Type: EventToolStart, Tool: tc.Name, ToolCallID: tc.ID, Input: tc.Input})
	start := time.Now()

	var outcome *ToolOutcome
	cmd, err := parseToolCall(tc)
	if err == nil {
		outcome, err = o.handlers.Execute(ctx, sess, cmd)
	}

	exec := &model.ToolExecution{
		SessionID:  sess.ID,
		MessageID:  &messageID,
		ToolName:   tc.Name,
		ToolCallID: tc.ID,
		Input:      tc.Input,
		DurationMS: time.Since(start).Milliseconds(),
	}

	if err != nil {
		exec.Status = model.ToolExecError
		exec.ErrorMessage = err.Error()
		o.logExecution(ctx, exec)

		emit(Event{Type: EventToolError, Tool: tc.Name, ToolCallID: tc.ID, Error: err.Error()})
		return model.ToolResult{
			ToolUseID: tc.ID,
			Content:   "Error: " + err.Error(),
			IsError:   true,
		}
	}

	exec.Status = model.ToolExecSuccess
	exec.CreditsConsumed = outcome.Credits
	exec.CostUSD = outcome.CostUSD
	if out, merr := json.Marshal(map[string]any{"content": outcome.Content, "data": outcome.Data}); merr == nil {
		exec.Output = out
	}
	o.logExecution(ctx, exec)

	if outcome.Credits > 0 {
		if uerr := o.store.AddSessionUsage(ctx, sess.ID, 0, 0, outcome.Credits, outcome.CostUSD); uerr != nil {
			zap.L().Warn("agent: record tool usage failed",
				zap.String("session", sess.UUID), zap.Error(uerr))
		}
		sess.ApolloCredits += outcome.Credits
		sess.CostUSD += outcome.CostUSD
	}

	emit(Event{Type: EventToolComplete, Tool: tc.Name, ToolCallID: tc.ID, Summary: outcome.Content})
	if outcome.Data != nil && tc.Name == ToolSearchApollo {
		emit(Event{Type: EventSearchResults, Tool: tc.Name, Data: outcome.Data})
	}

	return model.ToolResult{ToolUseID: tc.ID, Content: outcome.Content}
}

func (o *Orchestrator) logExecution(ctx context.Context, exec *model.ToolExecution) {
	if err := o.store.InsertToolExecution(ctx, exec); err != nil {
		zap.L().Warn("agent: tool execution log failed",
			zap.String("tool", exec.ToolName), zap.Error(err))
	}
}

// toTurns converts stored messages into model wire turns.
func toTurns(msgs []model.Message) []llm.Turn {
	turns := make([]llm.Turn, len(msgs))
	for i, m := range msgs {
		turns[i] = llm.Turn{
			Role:        m.Role,
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
		}
	}
	return turns
}
