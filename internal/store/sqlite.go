package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-agent/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and tests; production deployments use PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	session_uuid         TEXT NOT NULL UNIQUE,
	title                TEXT,
	client_tag           TEXT,
	status               TEXT NOT NULL DEFAULT 'active',
	icp_draft            TEXT,
	icp_id               INTEGER,
	metadata             TEXT NOT NULL DEFAULT '{}',
	total_input_tokens   INTEGER NOT NULL DEFAULT 0,
	total_output_tokens  INTEGER NOT NULL DEFAULT 0,
	total_apollo_credits INTEGER NOT NULL DEFAULT 0,
	total_cost_usd       REAL NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	last_message_at      DATETIME
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    INTEGER NOT NULL REFERENCES chat_sessions(id),
	role          TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	tool_calls    TEXT,
	tool_results  TEXT,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	metadata      TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tool_executions (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id        INTEGER NOT NULL REFERENCES chat_sessions(id),
	message_id        INTEGER REFERENCES chat_messages(id),
	tool_name         TEXT NOT NULL,
	tool_call_id      TEXT NOT NULL,
	tool_input        TEXT,
	tool_output       TEXT,
	status            TEXT NOT NULL,
	error_message     TEXT,
	execution_time_ms INTEGER NOT NULL DEFAULT 0,
	credits_consumed  INTEGER NOT NULL DEFAULT 0,
	cost_usd          REAL NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS companies (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL,
	website           TEXT,
	email             TEXT,
	email_domain      TEXT,
	generic_emails    TEXT,
	enrichment_status TEXT,
	enrichment_source TEXT,
	enrichment_date   DATETIME
);

CREATE TABLE IF NOT EXISTS icps (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	description   TEXT,
	industry      TEXT,
	company_size  TEXT,
	job_titles    TEXT,
	geography     TEXT,
	revenue_range TEXT,
	keywords      TEXT,
	status        TEXT NOT NULL DEFAULT 'draft',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS apollo_search_history (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id              INTEGER REFERENCES chat_sessions(id),
	search_type             TEXT NOT NULL,
	search_query            TEXT,
	filters_applied         TEXT,
	results_count           INTEGER NOT NULL DEFAULT 0,
	apollo_credits_consumed INTEGER NOT NULL DEFAULT 0,
	cost_total_usd          REAL NOT NULL DEFAULT 0,
	client_tag              TEXT,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_uuid ON chat_sessions(session_uuid);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_status ON chat_sessions(status);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_tool_executions_session ON tool_executions(session_id);
CREATE INDEX IF NOT EXISTS idx_search_history_session ON apollo_search_history(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	now := time.Now().UTC()
	if sess.UUID == "" {
		sess.UUID = uuid.New().String()
	}
	if sess.Status == "" {
		sess.Status = model.SessionActive
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]any{}
	}
	sess.CreatedAt = now
	sess.UpdatedAt = now

	metaJSON, err := json.Marshal(sess.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metadata")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (session_uuid, title, client_tag, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.UUID, nullable(sess.Title), nullable(sess.ClientTag), string(sess.Status), string(metaJSON), now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert session")
	}
	sess.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: session id")
}

func (s *SQLiteStore) GetSessionByUUID(ctx context.Context, sessUUID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE session_uuid = ?`, sessUUID)
	sess, err := scanSessionSQL(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get session by uuid")
	}

	msgs, err := s.ListMessages(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return sess, nil
}

func (s *SQLiteStore) GetSessionByID(ctx context.Context, id int64) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ?`, id)
	sess, err := scanSessionSQL(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get session by id")
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE 1=1`
	var args []any

	if filter.ClientTag != "" {
		query += ` AND client_tag = ?`
		args = append(args, filter.ClientTag)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSessionSQL(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, id int64, status model.SessionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session status %d", id)
	}
	return checkRowsAffected(res, "session", id)
}

func (s *SQLiteStore) UpdateSessionMetadata(ctx context.Context, id int64, metadata map[string]any) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metadata")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET metadata = ?, updated_at = ? WHERE id = ?`,
		string(metaJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session metadata %d", id)
	}
	return checkRowsAffected(res, "session", id)
}

func (s *SQLiteStore) UpdateSessionDraft(ctx context.Context, id int64, draft map[string]any, profileID *int64) error {
	var draftJSON any
	if draft != nil {
		b, err := json.Marshal(draft)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal draft")
		}
		draftJSON = string(b)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET icp_draft = ?, icp_id = COALESCE(?, icp_id), updated_at = ? WHERE id = ?`,
		draftJSON, profileID, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session draft %d", id)
	}
	return checkRowsAffected(res, "session", id)
}

func (s *SQLiteStore) AddSessionUsage(ctx context.Context, id int64, inputTokens, outputTokens, credits int64, costUSD float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions
		 SET total_input_tokens = total_input_tokens + ?,
		     total_output_tokens = total_output_tokens + ?,
		     total_apollo_credits = total_apollo_credits + ?,
		     total_cost_usd = total_cost_usd + ?,
		     last_message_at = ?, updated_at = ?
		 WHERE id = ?`,
		inputTokens, outputTokens, credits, costUSD, time.Now().UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: add session usage %d", id)
	}
	return checkRowsAffected(res, "session", id)
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, m *model.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	toolCallsJSON, err := marshalNullableText(m.ToolCalls)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tool calls")
	}
	toolResultsJSON, err := marshalNullableText(m.ToolResults)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tool results")
	}
	metaJSON, err := marshalNullableText(m.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal message metadata")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, role, content, tool_calls, tool_results, input_tokens, output_tokens, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SessionID, string(m.Role), m.Content, toolCallsJSON, toolResultsJSON,
		m.InputTokens, m.OutputTokens, metaJSON, m.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert message")
	}
	m.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: message id")
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID int64) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, tool_calls, tool_results, input_tokens, output_tokens, metadata, created_at
		 FROM chat_messages WHERE session_id = ? ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list messages")
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		var toolCallsJSON, toolResultsJSON, metaJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content,
			&toolCallsJSON, &toolResultsJSON, &m.InputTokens, &m.OutputTokens,
			&metaJSON, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan message")
		}
		m.Role = model.Role(role)
		if err := unmarshalNullableText(toolCallsJSON, &m.ToolCalls); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal tool calls")
		}
		if err := unmarshalNullableText(toolResultsJSON, &m.ToolResults); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal tool results")
		}
		if err := unmarshalNullableText(metaJSON, &m.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal message metadata")
		}
		msgs = append(msgs, m)
	}
	return msgs, eris.Wrap(rows.Err(), "sqlite: list messages iterate")
}

func (s *SQLiteStore) CountMessages(ctx context.Context, sessionID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE session_id = ?`, sessionID,
	).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count messages")
}

func (s *SQLiteStore) InsertToolExecution(ctx context.Context, e *model.ToolExecution) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_executions (session_id, message_id, tool_name, tool_call_id, tool_input, tool_output, status, error_message, execution_time_ms, credits_consumed, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.MessageID, e.ToolName, e.ToolCallID,
		rawText(e.Input), rawText(e.Output), string(e.Status), nullable(e.ErrorMessage),
		e.DurationMS, e.CreditsConsumed, e.CostUSD, e.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert tool execution")
	}
	e.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: tool execution id")
}

func (s *SQLiteStore) ListToolExecutions(ctx context.Context, sessionID int64) ([]model.ToolExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, message_id, tool_name, tool_call_id, tool_input, tool_output, status, error_message, execution_time_ms, credits_consumed, cost_usd, created_at
		 FROM tool_executions WHERE session_id = ? ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tool executions")
	}
	defer rows.Close()

	var execs []model.ToolExecution
	for rows.Next() {
		var e model.ToolExecution
		var status string
		var errMsg, input, output sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.MessageID, &e.ToolName, &e.ToolCallID,
			&input, &output, &status, &errMsg,
			&e.DurationMS, &e.CreditsConsumed, &e.CostUSD, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tool execution")
		}
		e.Status = model.ToolExecStatus(status)
		if input.Valid {
			e.Input = json.RawMessage(input.String)
		}
		if output.Valid {
			e.Output = json.RawMessage(output.String)
		}
		e.ErrorMessage = errMsg.String
		execs = append(execs, e)
	}
	return execs, eris.Wrap(rows.Err(), "sqlite: list tool executions iterate")
}

func (s *SQLiteStore) ToolStats(ctx context.Context, sessionID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool_name, COUNT(*) FROM tool_executions WHERE session_id = ? GROUP BY tool_name`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: tool stats")
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tool stats")
		}
		stats[name] = count
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: tool stats iterate")
}

func (s *SQLiteStore) CreateCompany(ctx context.Context, c *model.Company) error {
	emailsJSON, err := marshalNullableText(c.GenericEmails)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal generic emails")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (name, website, email, email_domain, generic_emails, enrichment_status, enrichment_source, enrichment_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, nullable(c.Website), nullable(c.Email), nullable(c.EmailDomain),
		emailsJSON, nullable(string(c.EnrichmentStatus)), nullable(c.EnrichmentSource), c.EnrichedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert company")
	}
	c.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: company id")
}

func (s *SQLiteStore) GetCompaniesByIDs(ctx context.Context, ids []int64) ([]model.Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, name, website, email, email_domain, generic_emails, enrichment_status, enrichment_source, enrichment_date
		 FROM companies WHERE id IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var c model.Company
		var website, email, emailDomain, status, source, emailsJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &website, &email, &emailDomain,
			&emailsJSON, &status, &source, &c.EnrichedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		c.Website = website.String
		c.Email = email.String
		c.EmailDomain = emailDomain.String
		c.EnrichmentStatus = model.EnrichmentStatus(status.String)
		c.EnrichmentSource = source.String
		if err := unmarshalNullableText(emailsJSON, &c.GenericEmails); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal generic emails")
		}
		companies = append(companies, c)
	}
	return companies, eris.Wrap(rows.Err(), "sqlite: get companies iterate")
}

func (s *SQLiteStore) UpdateCompanyEnrichment(ctx context.Context, c *model.Company) error {
	emailsJSON, err := marshalNullableText(c.GenericEmails)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal generic emails")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies
		 SET email = ?, email_domain = ?, generic_emails = ?,
		     enrichment_status = ?, enrichment_source = ?, enrichment_date = ?
		 WHERE id = ?`,
		nullable(c.Email), nullable(c.EmailDomain), emailsJSON,
		nullable(string(c.EnrichmentStatus)), nullable(c.EnrichmentSource), c.EnrichedAt, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company enrichment %d", c.ID)
	}
	return checkRowsAffected(res, "company", c.ID)
}

func (s *SQLiteStore) CreateProfile(ctx context.Context, p *model.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = "draft"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO icps (name, description, industry, company_size, job_titles, geography, revenue_range, keywords, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, nullable(p.Description), nullable(p.Industry), nullable(p.CompanySize),
		nullable(p.JobTitles), nullable(p.Geography), nullable(p.RevenueRange),
		nullable(p.Keywords), p.Status, p.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert profile")
	}
	p.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: profile id")
}

func (s *SQLiteStore) InsertSearchRecord(ctx context.Context, r *model.SearchRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO apollo_search_history (session_id, search_type, search_query, filters_applied, results_count, apollo_credits_consumed, cost_total_usd, client_tag, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.SearchType, nullable(r.Query), rawText(r.Filters),
		r.ResultsCount, r.CreditsConsumed, r.CostUSD, nullable(r.ClientTag), r.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert search record")
	}
	r.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: search record id")
}

func (s *SQLiteStore) ActivityStats(ctx context.Context, since time.Time) (*model.ActivityStats, error) {
	stats := &model.ActivityStats{Since: since, CollectedAt: time.Now().UTC()}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_input_tokens), 0), COALESCE(SUM(total_output_tokens), 0),
		        COALESCE(SUM(total_apollo_credits), 0), COALESCE(SUM(total_cost_usd), 0)
		 FROM chat_sessions WHERE updated_at >= ?`,
		since,
	).Scan(&stats.ActiveSessions, &stats.InputTokens, &stats.OutputTokens,
		&stats.ApolloCredits, &stats.CostUSD)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: session activity")
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0)
		 FROM tool_executions WHERE created_at >= ?`,
		since,
	).Scan(&stats.ToolCalls, &stats.ToolErrors)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: tool activity")
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN enrichment_status = 'completed' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN enrichment_status = 'failed' THEN 1 ELSE 0 END), 0)
		 FROM companies WHERE enrichment_date >= ?`,
		since,
	).Scan(&stats.EnrichAttempted, &stats.EnrichCompleted, &stats.EnrichFailed)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: enrichment activity")
	}

	return stats, nil
}

// helpers

// scannable covers both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanSessionSQL(row scannable) (*model.Session, error) {
	var sess model.Session
	var title, clientTag, draftJSON, metaJSON sql.NullString
	var status string

	err := row.Scan(&sess.ID, &sess.UUID, &title, &clientTag, &status,
		&draftJSON, &sess.ProfileID, &metaJSON,
		&sess.InputTokens, &sess.OutputTokens, &sess.ApolloCredits, &sess.CostUSD,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.LastMessageAt)
	if err != nil {
		return nil, err
	}

	sess.Title = title.String
	sess.ClientTag = clientTag.String
	sess.Status = model.SessionStatus(status)
	if err := unmarshalNullableText(draftJSON, &sess.ProfileDraft); err != nil {
		return nil, eris.Wrap(err, "unmarshal draft")
	}
	if err := unmarshalNullableText(metaJSON, &sess.Metadata); err != nil {
		return nil, eris.Wrap(err, "unmarshal metadata")
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]any{}
	}
	return &sess, nil
}

func checkRowsAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "rows affected for %s %d", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", kind, id)
	}
	return nil
}

func marshalNullableText(v any) (any, error) {
	if isEmpty(v) {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalNullableText(raw sql.NullString, dst any) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), dst)
}

func rawText(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
