package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-agent/internal/agent"
	"github.com/sells-group/outreach-agent/internal/cost"
	"github.com/sells-group/outreach-agent/internal/enrich"
	"github.com/sells-group/outreach-agent/internal/llm"
	"github.com/sells-group/outreach-agent/internal/session"
	"github.com/sells-group/outreach-agent/internal/store"
	"github.com/sells-group/outreach-agent/pkg/apollo"
	"github.com/sells-group/outreach-agent/pkg/instantly"
)

// env bundles the wired application services shared by the subcommands.
type env struct {
	store     store.Store
	calc      *cost.Calculator
	sessions  *session.Manager
	engine    *enrich.Engine
	orch      *agent.Orchestrator
	apollo    apollo.Client
	instantly instantly.Client
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	calc := cost.NewCalculator(cfg.Pricing)
	sessions := session.NewManager(st, calc, cfg.Chat.ContextMaxMessages)

	apolloClient := apollo.NewClient(cfg.Apollo.Key, apollo.WithBaseURL(cfg.Apollo.BaseURL))
	instantlyClient := instantly.NewClient(cfg.Instantly.Key, instantly.WithBaseURL(cfg.Instantly.BaseURL))

	finder := enrich.NewFinder(time.Duration(cfg.Enrich.FetchTimeoutSecs) * time.Second)
	engine := enrich.NewEngine(st, finder, enrich.Options{
		MaxConcurrent: cfg.Enrich.MaxConcurrent,
		Recency:       time.Duration(cfg.Enrich.RecencyDays) * 24 * time.Hour,
		Bulk:          apolloClient,
	})

	handlers := agent.NewHandlers(sessions, st, apolloClient, engine, calc)
	orch := agent.NewOrchestrator(llm.NewClient(cfg.Anthropic.Key), sessions, handlers, st, calc, agent.Config{
		Model:         cfg.Anthropic.Model,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		MaxIterations: cfg.Chat.MaxIterations,
	})

	return &env{
		store:     st,
		calc:      calc,
		sessions:  sessions,
		engine:    engine,
		orch:      orch,
		apollo:    apolloClient,
		instantly: instantlyClient,
	}, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (e *env) Close() {
	_ = e.store.Close()
}
