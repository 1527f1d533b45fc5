package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-agent/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"insert_message": `INSERT INTO chat_messages (session_id, role, content, tool_calls, tool_results, input_tokens, output_tokens, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
	"list_messages": `SELECT id, session_id, role, content, tool_calls, tool_results, input_tokens, output_tokens, metadata, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY created_at, id`,
	"add_session_usage": `UPDATE chat_sessions
		SET total_input_tokens = total_input_tokens + $1,
		    total_output_tokens = total_output_tokens + $2,
		    total_apollo_credits = total_apollo_credits + $3,
		    total_cost_usd = total_cost_usd + $4,
		    last_message_at = $5, updated_at = $5
		WHERE id = $6`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id                   BIGSERIAL PRIMARY KEY,
	session_uuid         TEXT NOT NULL UNIQUE,
	title                TEXT,
	client_tag           TEXT,
	status               TEXT NOT NULL DEFAULT 'active',
	icp_draft            JSONB,
	icp_id               BIGINT,
	metadata             JSONB NOT NULL DEFAULT '{}',
	total_input_tokens   BIGINT NOT NULL DEFAULT 0,
	total_output_tokens  BIGINT NOT NULL DEFAULT 0,
	total_apollo_credits BIGINT NOT NULL DEFAULT 0,
	total_cost_usd       DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_message_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id            BIGSERIAL PRIMARY KEY,
	session_id    BIGINT NOT NULL REFERENCES chat_sessions(id),
	role          TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	tool_calls    JSONB,
	tool_results  JSONB,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	metadata      JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tool_executions (
	id                BIGSERIAL PRIMARY KEY,
	session_id        BIGINT NOT NULL REFERENCES chat_sessions(id),
	message_id        BIGINT REFERENCES chat_messages(id),
	tool_name         TEXT NOT NULL,
	tool_call_id      TEXT NOT NULL,
	tool_input        JSONB,
	tool_output       JSONB,
	status            TEXT NOT NULL,
	error_message     TEXT,
	execution_time_ms BIGINT NOT NULL DEFAULT 0,
	credits_consumed  BIGINT NOT NULL DEFAULT 0,
	cost_usd          DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS companies (
	id                BIGSERIAL PRIMARY KEY,
	name              TEXT NOT NULL,
	website           TEXT,
	email             TEXT,
	email_domain      TEXT,
	generic_emails    JSONB,
	enrichment_status TEXT,
	enrichment_source TEXT,
	enrichment_date   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS icps (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT,
	industry      TEXT,
	company_size  TEXT,
	job_titles    TEXT,
	geography     TEXT,
	revenue_range TEXT,
	keywords      TEXT,
	status        TEXT NOT NULL DEFAULT 'draft',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS apollo_search_history (
	id                      BIGSERIAL PRIMARY KEY,
	session_id              BIGINT REFERENCES chat_sessions(id),
	search_type             TEXT NOT NULL,
	search_query            TEXT,
	filters_applied         JSONB,
	results_count           INTEGER NOT NULL DEFAULT 0,
	apollo_credits_consumed BIGINT NOT NULL DEFAULT 0,
	cost_total_usd          DOUBLE PRECISION NOT NULL DEFAULT 0,
	client_tag              TEXT,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_uuid ON chat_sessions(session_uuid);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_status ON chat_sessions(status);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_tool_executions_session ON tool_executions(session_id);
CREATE INDEX IF NOT EXISTS idx_search_history_session ON apollo_search_history(session_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *model.Session) error {
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
		return eris.Wrap(err, "postgres: marshal metadata")
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO chat_sessions (session_uuid, title, client_tag, status, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		sess.UUID, nullable(sess.Title), nullable(sess.ClientTag), string(sess.Status), metaJSON, now, now,
	).Scan(&sess.ID)
	return eris.Wrap(err, "postgres: insert session")
}

const sessionColumns = `id, session_uuid, title, client_tag, status, icp_draft, icp_id, metadata,
	total_input_tokens, total_output_tokens, total_apollo_credits, total_cost_usd,
	created_at, updated_at, last_message_at`

func (s *PostgresStore) GetSessionByUUID(ctx context.Context, sessUUID string) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE session_uuid = $1`, sessUUID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get session by uuid")
	}

	msgs, err := s.ListMessages(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return sess, nil
}

func (s *PostgresStore) GetSessionByID(ctx context.Context, id int64) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get session by id")
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ClientTag != "" {
		query += fmt.Sprintf(` AND client_tag = $%d`, argIdx)
		args = append(args, filter.ClientTag)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) UpdateSessionStatus(ctx context.Context, id int64, status model.SessionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chat_sessions SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session status %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("session not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) UpdateSessionMetadata(ctx context.Context, id int64, metadata map[string]any) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metadata")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE chat_sessions SET metadata = $1, updated_at = $2 WHERE id = $3`,
		metaJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session metadata %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("session not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) UpdateSessionDraft(ctx context.Context, id int64, draft map[string]any, profileID *int64) error {
	var draftJSON []byte
	if draft != nil {
		var err error
		draftJSON, err = json.Marshal(draft)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal draft")
		}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE chat_sessions SET icp_draft = $1, icp_id = COALESCE($2, icp_id), updated_at = $3 WHERE id = $4`,
		draftJSON, profileID, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session draft %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("session not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) AddSessionUsage(ctx context.Context, id int64, inputTokens, outputTokens, credits int64, costUSD float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chat_sessions
		 SET total_input_tokens = total_input_tokens + $1,
		     total_output_tokens = total_output_tokens + $2,
		     total_apollo_credits = total_apollo_credits + $3,
		     total_cost_usd = total_cost_usd + $4,
		     last_message_at = $5, updated_at = $5
		 WHERE id = $6`,
		inputTokens, outputTokens, credits, costUSD, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: add session usage %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("session not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m *model.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	toolCallsJSON, err := marshalNullable(m.ToolCalls)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tool calls")
	}
	toolResultsJSON, err := marshalNullable(m.ToolResults)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tool results")
	}
	metaJSON, err := marshalNullable(m.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal message metadata")
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (session_id, role, content, tool_calls, tool_results, input_tokens, output_tokens, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		m.SessionID, string(m.Role), m.Content, toolCallsJSON, toolResultsJSON,
		m.InputTokens, m.OutputTokens, metaJSON, m.CreatedAt,
	).Scan(&m.ID)
	return eris.Wrap(err, "postgres: insert message")
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID int64) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, tool_calls, tool_results, input_tokens, output_tokens, metadata, created_at
		 FROM chat_messages WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list messages")
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		var toolCallsJSON, toolResultsJSON, metaJSON []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content,
			&toolCallsJSON, &toolResultsJSON, &m.InputTokens, &m.OutputTokens,
			&metaJSON, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan message")
		}
		m.Role = model.Role(role)
		if err := unmarshalNullable(toolCallsJSON, &m.ToolCalls); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal tool calls")
		}
		if err := unmarshalNullable(toolResultsJSON, &m.ToolResults); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal tool results")
		}
		if err := unmarshalNullable(metaJSON, &m.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal message metadata")
		}
		msgs = append(msgs, m)
	}
	return msgs, eris.Wrap(rows.Err(), "postgres: list messages iterate")
}

func (s *PostgresStore) CountMessages(ctx context.Context, sessionID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`, sessionID,
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: count messages")
}

func (s *PostgresStore) InsertToolExecution(ctx context.Context, e *model.ToolExecution) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tool_executions (session_id, message_id, tool_name, tool_call_id, tool_input, tool_output, status, error_message, execution_time_ms, credits_consumed, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		e.SessionID, e.MessageID, e.ToolName, e.ToolCallID,
		[]byte(e.Input), []byte(e.Output), string(e.Status), nullable(e.ErrorMessage),
		e.DurationMS, e.CreditsConsumed, e.CostUSD, e.CreatedAt,
	).Scan(&e.ID)
	return eris.Wrap(err, "postgres: insert tool execution")
}

func (s *PostgresStore) ListToolExecutions(ctx context.Context, sessionID int64) ([]model.ToolExecution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, message_id, tool_name, tool_call_id, tool_input, tool_output, status, error_message, execution_time_ms, credits_consumed, cost_usd, created_at
		 FROM tool_executions WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tool executions")
	}
	defer rows.Close()

	var execs []model.ToolExecution
	for rows.Next() {
		var e model.ToolExecution
		var status string
		var errMsg *string
		var input, output []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.MessageID, &e.ToolName, &e.ToolCallID,
			&input, &output, &status, &errMsg,
			&e.DurationMS, &e.CreditsConsumed, &e.CostUSD, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tool execution")
		}
		e.Status = model.ToolExecStatus(status)
		e.Input = input
		e.Output = output
		if errMsg != nil {
			e.ErrorMessage = *errMsg
		}
		execs = append(execs, e)
	}
	return execs, eris.Wrap(rows.Err(), "postgres: list tool executions iterate")
}

func (s *PostgresStore) ToolStats(ctx context.Context, sessionID int64) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tool_name, COUNT(*) FROM tool_executions WHERE session_id = $1 GROUP BY tool_name`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: tool stats")
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tool stats")
		}
		stats[name] = count
	}
	return stats, eris.Wrap(rows.Err(), "postgres: tool stats iterate")
}

func (s *PostgresStore) CreateCompany(ctx context.Context, c *model.Company) error {
	emailsJSON, err := marshalNullable(c.GenericEmails)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal generic emails")
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO companies (name, website, email, email_domain, generic_emails, enrichment_status, enrichment_source, enrichment_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		c.Name, nullable(c.Website), nullable(c.Email), nullable(c.EmailDomain),
		emailsJSON, nullable(string(c.EnrichmentStatus)), nullable(c.EnrichmentSource), c.EnrichedAt,
	).Scan(&c.ID)
	return eris.Wrap(err, "postgres: insert company")
}

func (s *PostgresStore) GetCompaniesByIDs(ctx context.Context, ids []int64) ([]model.Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, website, email, email_domain, generic_emails, enrichment_status, enrichment_source, enrichment_date
		 FROM companies WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var c model.Company
		var website, email, emailDomain, status, source *string
		var emailsJSON []byte
		if err := rows.Scan(&c.ID, &c.Name, &website, &email, &emailDomain,
			&emailsJSON, &status, &source, &c.EnrichedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		c.Website = deref(website)
		c.Email = deref(email)
		c.EmailDomain = deref(emailDomain)
		c.EnrichmentStatus = model.EnrichmentStatus(deref(status))
		c.EnrichmentSource = deref(source)
		if err := unmarshalNullable(emailsJSON, &c.GenericEmails); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal generic emails")
		}
		companies = append(companies, c)
	}
	return companies, eris.Wrap(rows.Err(), "postgres: get companies iterate")
}

func (s *PostgresStore) UpdateCompanyEnrichment(ctx context.Context, c *model.Company) error {
	emailsJSON, err := marshalNullable(c.GenericEmails)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal generic emails")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies
		 SET email = $1, email_domain = $2, generic_emails = $3,
		     enrichment_status = $4, enrichment_source = $5, enrichment_date = $6
		 WHERE id = $7`,
		nullable(c.Email), nullable(c.EmailDomain), emailsJSON,
		nullable(string(c.EnrichmentStatus)), nullable(c.EnrichmentSource), c.EnrichedAt, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company enrichment %d", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("company not found: %d", c.ID)
	}
	return nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p *model.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = "draft"
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO icps (name, description, industry, company_size, job_titles, geography, revenue_range, keywords, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		p.Name, nullable(p.Description), nullable(p.Industry), nullable(p.CompanySize),
		nullable(p.JobTitles), nullable(p.Geography), nullable(p.RevenueRange),
		nullable(p.Keywords), p.Status, p.CreatedAt,
	).Scan(&p.ID)
	return eris.Wrap(err, "postgres: insert profile")
}

func (s *PostgresStore) InsertSearchRecord(ctx context.Context, r *model.SearchRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO apollo_search_history (session_id, search_type, search_query, filters_applied, results_count, apollo_credits_consumed, cost_total_usd, client_tag, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		r.SessionID, r.SearchType, nullable(r.Query), []byte(r.Filters),
		r.ResultsCount, r.CreditsConsumed, r.CostUSD, nullable(r.ClientTag), r.CreatedAt,
	).Scan(&r.ID)
	return eris.Wrap(err, "postgres: insert search record")
}

func (s *PostgresStore) ActivityStats(ctx context.Context, since time.Time) (*model.ActivityStats, error) {
	stats := &model.ActivityStats{Since: since, CollectedAt: time.Now().UTC()}

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_input_tokens), 0), COALESCE(SUM(total_output_tokens), 0),
		        COALESCE(SUM(total_apollo_credits), 0), COALESCE(SUM(total_cost_usd), 0)
		 FROM chat_sessions WHERE updated_at >= $1`,
		since,
	).Scan(&stats.ActiveSessions, &stats.InputTokens, &stats.OutputTokens,
		&stats.ApolloCredits, &stats.CostUSD)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: session activity")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'error')
		 FROM tool_executions WHERE created_at >= $1`,
		since,
	).Scan(&stats.ToolCalls, &stats.ToolErrors)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: tool activity")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE enrichment_status = 'completed'),
		        COUNT(*) FILTER (WHERE enrichment_status = 'failed')
		 FROM companies WHERE enrichment_date >= $1`,
		since,
	).Scan(&stats.EnrichAttempted, &stats.EnrichCompleted, &stats.EnrichFailed)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enrichment activity")
	}

	return stats, nil
}

// helpers

func scanSession(row pgx.Row) (*model.Session, error) {
	var sess model.Session
	var title, clientTag *string
	var status string
	var draftJSON, metaJSON []byte

	err := row.Scan(&sess.ID, &sess.UUID, &title, &clientTag, &status,
		&draftJSON, &sess.ProfileID, &metaJSON,
		&sess.InputTokens, &sess.OutputTokens, &sess.ApolloCredits, &sess.CostUSD,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.LastMessageAt)
	if err != nil {
		return nil, err
	}

	sess.Title = deref(title)
	sess.ClientTag = deref(clientTag)
	sess.Status = model.SessionStatus(status)
	if err := unmarshalNullable(draftJSON, &sess.ProfileDraft); err != nil {
		return nil, eris.Wrap(err, "unmarshal draft")
	}
	if err := unmarshalNullable(metaJSON, &sess.Metadata); err != nil {
		return nil, eris.Wrap(err, "unmarshal metadata")
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]any{}
	}
	return &sess, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func marshalNullable(v any) ([]byte, error) {
	if isEmpty(v) {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []model.ToolCall:
		return len(t) == 0
	case []model.ToolResult:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
