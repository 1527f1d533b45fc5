package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-agent/internal/model"
	"github.com/sells-group/outreach-agent/internal/monitoring"
	"github.com/sells-group/outreach-agent/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(e),
		}

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(e.store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := e.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", e.handleCreateSession)
		r.Get("/sessions", e.handleListSessions)
		r.Get("/sessions/{uuid}", e.handleGetSession)
		r.Post("/sessions/{uuid}/archive", e.handleArchiveSession)
		r.Get("/sessions/{uuid}/summary", e.handleSessionSummary)
		r.Get("/stats", e.handleStats)
		r.Post("/chat", e.handleChat)
	})

	return r
}

func (e *env) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string `json:"title"`
		ClientTag string `json:"client_tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := e.sessions.Create(r.Context(), req.Title, req.ClientTag)
	if err != nil {
		zap.L().Error("create session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create session failed")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (e *env) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter := store.SessionFilter{
		ClientTag: r.URL.Query().Get("client_tag"),
		Status:    model.SessionStatus(r.URL.Query().Get("status")),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	sessions, err := e.sessions.List(r.Context(), filter)
	if err != nil {
		zap.L().Error("list sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list sessions failed")
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (e *env) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := e.sessions.Get(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		zap.L().Error("get session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get session failed")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (e *env) handleArchiveSession(w http.ResponseWriter, r *http.Request) {
	sess, err := e.sessions.Get(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "archive failed")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := e.sessions.Archive(r.Context(), sess.ID); err != nil {
		zap.L().Error("archive session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "archive failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (e *env) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := e.sessions.Summary(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		zap.L().Error("session summary failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "summary failed")
		return
	}
	if sum == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (e *env) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid hours")
			return
		}
		hours = n
	}

	stats, err := monitoring.NewCollector(e.store).Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("collect stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "collect stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleChat streams one chat turn as server-sent events. The event stream
// is drained fully even if the client goes away, so in-flight tools finish
// and their audit records get written.
func (e *env) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionUUID string `json:"session_uuid"`
		ClientTag   string `json:"client_tag"`
		Message     string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, err := e.sessions.GetOrCreate(r.Context(), req.SessionUUID, req.ClientTag)
	if err != nil {
		zap.L().Error("resolve session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "resolve session failed")
		return
	}
	if sess.Status == model.SessionArchived {
		writeError(w, http.StatusConflict, "session is archived")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-UUID", sess.UUID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Detach the turn from the request context: a client disconnect must
	// not abort running tools mid-write.
	events := e.orch.Run(context.WithoutCancel(r.Context()), sess, req.Message)

	muted := false
	for ev := range events {
		if muted {
			continue
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			zap.L().Warn("marshal event failed", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			zap.L().Debug("client disconnected mid-stream",
				zap.String("session", sess.UUID))
			muted = true
			continue
		}
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
