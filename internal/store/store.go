package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sells-group/outreach-agent/internal/model"
)

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	ClientTag string              `json:"client_tag,omitempty"`
	Status    model.SessionStatus `json:"status,omitempty"`
	Limit     int                 `json:"limit,omitempty"`
	Offset    int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the conversational agent.
// Lookups by UUID return (nil, nil) when the row does not exist.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *model.Session) error
	GetSessionByUUID(ctx context.Context, uuid string) (*model.Session, error)
	GetSessionByID(ctx context.Context, id int64) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)
	UpdateSessionStatus(ctx context.Context, id int64, status model.SessionStatus) error
	UpdateSessionMetadata(ctx context.Context, id int64, metadata map[string]any) error
	UpdateSessionDraft(ctx context.Context, id int64, draft map[string]any, profileID *int64) error
	AddSessionUsage(ctx context.Context, id int64, inputTokens, outputTokens, credits int64, costUSD float64) error

	// Messages (immutable once written, ordered by creation time)
	AppendMessage(ctx context.Context, m *model.Message) error
	ListMessages(ctx context.Context, sessionID int64) ([]model.Message, error)
	CountMessages(ctx context.Context, sessionID int64) (int, error)

	// Tool execution audit log
	InsertToolExecution(ctx context.Context, e *model.ToolExecution) error
	ListToolExecutions(ctx context.Context, sessionID int64) ([]model.ToolExecution, error)
	ToolStats(ctx context.Context, sessionID int64) (map[string]int, error)

	// Companies (enrichment fields only; the CRUD layer owns the rest)
	CreateCompany(ctx context.Context, c *model.Company) error
	GetCompaniesByIDs(ctx context.Context, ids []int64) ([]model.Company, error)
	UpdateCompanyEnrichment(ctx context.Context, c *model.Company) error

	// Targeting profiles
	CreateProfile(ctx context.Context, p *model.Profile) error

	// Search audit
	InsertSearchRecord(ctx context.Context, r *model.SearchRecord) error

	// Monitoring
	ActivityStats(ctx context.Context, since time.Time) (*model.ActivityStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Pool abstracts the pgx pool surface used by PostgresStore so tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}
