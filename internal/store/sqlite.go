package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
	now   func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithRetryPolicy sets the retry policy for writes that hit SQLITE_BUSY.
func WithRetryPolicy(p shared.RetryPolicy) Option {
	return func(s *SQLiteStore) { s.retry = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; foreign keys for cascading deletes.
	dsn := "file:" + dbPath +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS agents (
		agent_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		prompt TEXT NOT NULL,
		voice_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL REFERENCES agents(agent_id) ON DELETE CASCADE,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_agent_updated ON sessions(agent_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		message_id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant')),
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at, message_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) write(ctx context.Context, op string, fn func() error) error {
	return shared.RetryOnConflict(ctx, s.retry, op, fn)
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n)
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

type scanner interface {
	Scan(dest ...any) error
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

// CreateAgent inserts a new agent.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	now := s.now()
	query := `INSERT INTO agents (name, prompt, voice_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

	var id int64
	err := s.write(ctx, "create agent", func() error {
		res, err := s.db.ExecContext(ctx, query,
			agent.Name, agent.Prompt, nullString(agent.VoiceID), now.UnixNano(), now.UnixNano())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	agent.ID = id
	agent.CreatedAt = fromNanos(now.UnixNano())
	agent.UpdatedAt = agent.CreatedAt
	return nil
}

const agentColumns = `agent_id, name, prompt, voice_id, created_at, updated_at`

func scanAgent(row scanner) (*domain.Agent, error) {
	var a domain.Agent
	var voiceID sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&a.ID, &a.Name, &a.Prompt, &voiceID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.VoiceID = voiceID.String
	a.CreatedAt = fromNanos(createdAt)
	a.UpdatedAt = fromNanos(updatedAt)
	return &a, nil
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, id int64) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE agent_id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}
	return a, nil
}

// ListAgents returns all agents ordered by creation time.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at, agent_id`)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer closeRows(rows, "agents")

	agents := []*domain.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// UpdateAgent writes the mutable agent fields.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *domain.Agent) error {
	now := s.now()
	query := `UPDATE agents SET name = ?, prompt = ?, voice_id = ?, updated_at = ? WHERE agent_id = ?`

	var rows int64
	err := s.write(ctx, "update agent", func() error {
		res, err := s.db.ExecContext(ctx, query,
			agent.Name, agent.Prompt, nullString(agent.VoiceID), now.UnixNano(), agent.ID)
		if err != nil {
			return err
		}
		rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update agent %d: not found", agent.ID)
	}
	agent.UpdatedAt = fromNanos(now.UnixNano())
	return nil
}

// DeleteAgent removes an agent; sessions and messages cascade.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, id int64) (bool, error) {
	return s.deleteByID(ctx, "delete agent", `DELETE FROM agents WHERE agent_id = ?`, id)
}

func (s *SQLiteStore) deleteByID(ctx context.Context, op, query string, id int64) (bool, error) {
	var rows int64
	err := s.write(ctx, op, func() error {
		res, err := s.db.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rows > 0, nil
}

// CreateSession inserts a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	now := s.now()
	query := `INSERT INTO sessions (agent_id, created_at, updated_at) VALUES (?, ?, ?)`

	var id int64
	err := s.write(ctx, "create session", func() error {
		res, err := s.db.ExecContext(ctx, query, session.AgentID, now.UnixNano(), now.UnixNano())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	session.ID = id
	session.CreatedAt = fromNanos(now.UnixNano())
	session.UpdatedAt = session.CreatedAt
	return nil
}

const sessionColumns = `session_id, agent_id, created_at, updated_at`

func scanSession(row scanner) (*domain.Session, error) {
	var sess domain.Session
	var createdAt, updatedAt int64
	if err := row.Scan(&sess.ID, &sess.AgentID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sess.CreatedAt = fromNanos(createdAt)
	sess.UpdatedAt = fromNanos(updatedAt)
	return &sess, nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

// ListSessions returns an agent's sessions, most recently active first.
func (s *SQLiteStore) ListSessions(ctx context.Context, agentID int64) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE agent_id = ? ORDER BY updated_at DESC, session_id DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer closeRows(rows, "sessions")

	sessions := []*domain.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSession persists the session's updated_at.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	query := `UPDATE sessions SET updated_at = MAX(updated_at, ?) WHERE session_id = ?`

	var rows int64
	err := s.write(ctx, "update session", func() error {
		res, err := s.db.ExecContext(ctx, query, session.UpdatedAt.UnixNano(), session.ID)
		if err != nil {
			return err
		}
		rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update session %d: not found", session.ID)
	}
	return nil
}

// DeleteSession removes a session; its messages cascade.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id int64) (bool, error) {
	return s.deleteByID(ctx, "delete session", `DELETE FROM sessions WHERE session_id = ?`, id)
}

// CreateMessage appends a message to a session.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("create message: invalid role %q", msg.Role)
	}

	now := s.now().UnixNano()
	query := `
		INSERT INTO messages (session_id, role, content, created_at)
		VALUES (?, ?, ?, MAX(?, COALESCE((SELECT MAX(created_at) + 1 FROM messages WHERE session_id = ?), 0)))
		RETURNING message_id, created_at`

	var id, createdAt int64
	err := s.write(ctx, "create message", func() error {
		return s.db.QueryRowContext(ctx, query,
			msg.SessionID, string(msg.Role), msg.Content, now, msg.SessionID,
		).Scan(&id, &createdAt)
	})
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	msg.ID = id
	msg.CreatedAt = fromNanos(createdAt)
	return nil
}

// ListMessages returns a session's messages in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID int64) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, session_id, role, content, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at, message_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(rows, "messages")

	msgs := []*domain.Message{}
	for rows.Next() {
		var m domain.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = domain.Role(role)
		m.CreatedAt = fromNanos(createdAt)
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}
