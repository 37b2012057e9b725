// Package postgres implements core.SessionStore and core.TaskStore on
// PostgreSQL using a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/logging"
)

//go:embed schema.sql
var schema string

// Options configures a Store.
type Options struct {
	// MaxConns overrides the pool size when > 0.
	MaxConns int32
	Logger   logging.Logger
}

// Store is a PostgreSQL backed session and task store.
type Store struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// New connects to dsn, verifies the connection and applies the schema.
func New(ctx context.Context, dsn string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping pool: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}

	opts.Logger.Debug("postgres.store.opened", "max_conns", cfg.MaxConns)

	return &Store{pool: pool, logger: opts.Logger}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// LoadMessages returns the checkpoint of sessionID; empty for unknown ids.
func (s *Store) LoadMessages(ctx context.Context, sessionID string) ([]core.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role, content, tool_call_id, tool_calls, is_error, timestamp
		 FROM chat_messages WHERE session_id = $1 ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load messages: %w", err)
	}
	defer rows.Close()

	msgs := []core.Message{}

	for rows.Next() {
		var (
			m         core.Message
			role      string
			toolCalls []byte
		)

		if err := rows.Scan(&role, &m.Content, &m.ToolCallID, &toolCalls, &m.IsError, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}

		m.Role = core.Role(role)
		m.Timestamp = m.Timestamp.UTC()

		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("postgres: decode tool calls: %w", err)
			}
		}

		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// SaveMessages replaces the checkpoint of sessionID in one transaction,
// creating the session if needed. Messages are written with COPY.
func (s *Store) SaveMessages(ctx context.Context, sessionID string, msgs []core.Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()

	if _, err := tx.Exec(ctx,
		`INSERT INTO chat_sessions (id, title, created_at, updated_at) VALUES ($1, $2, $3, $3)
		 ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at`,
		sessionID, core.DefaultSessionTitle, now); err != nil {
		return fmt.Errorf("postgres: upsert session: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("postgres: clear messages: %w", err)
	}

	rows := make([][]any, 0, len(msgs))

	for i, m := range msgs {
		var toolCalls any
		if len(m.ToolCalls) > 0 {
			b, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("postgres: encode tool calls: %w", err)
			}
			toolCalls = string(b)
		}

		rows = append(rows, []any{sessionID, int32(i), string(m.Role), m.Content, m.ToolCallID, toolCalls, m.IsError, m.Timestamp})
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"chat_messages"},
		[]string{"session_id", "seq", "role", "content", "tool_call_id", "tool_calls", "is_error", "timestamp"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("postgres: copy messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}

	return nil
}

// Create stores a new session. Creating an existing id returns the stored
// session unchanged.
func (s *Store) Create(ctx context.Context, id, title string) (*core.Session, error) {
	sess := core.NewSession(id, title)

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id, title, created_at, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		sess.ID, sess.Title, sess.CreatedAt, sess.UpdatedAt); err != nil {
		return nil, fmt.Errorf("postgres: create session: %w", err)
	}

	return s.Get(ctx, id)
}

// Get returns a session including its messages.
func (s *Store) Get(ctx context.Context, id string) (*core.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = $1`, id)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if sess.Messages, err = s.LoadMessages(ctx, id); err != nil {
		return nil, err
	}

	return sess, nil
}

// List returns all sessions without messages, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*core.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sessions: %w", err)
	}
	defer rows.Close()

	out := []*core.Session{}

	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}

	return out, rows.Err()
}

// Rename sets the title of a session.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chat_sessions SET title = $1, updated_at = $2 WHERE id = $3`, title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: rename session: %w", err)
	}

	return requireAffected(tag, core.ErrSessionNotFound)
}

// Delete removes a session; its messages go with it.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete session: %w", err)
	}

	return requireAffected(tag, core.ErrSessionNotFound)
}

// CreateTask stores t. A zero CreatedAt is set to now.
func (s *Store) CreateTask(ctx context.Context, t *core.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO agent_tasks (id, name, description, task, created_at, last_result) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Description, t.Task, t.CreatedAt, t.LastResult); err != nil {
		return fmt.Errorf("postgres: create task: %w", err)
	}

	return nil
}

// GetTask returns the task with id.
func (s *Store) GetTask(ctx context.Context, id string) (*core.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, description, task, created_at, last_result FROM agent_tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrTaskNotFound
	}

	return t, err
}

// ListTasks returns all tasks, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]*core.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, task, created_at, last_result FROM agent_tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tasks: %w", err)
	}
	defer rows.Close()

	out := []*core.Task{}

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	return out, rows.Err()
}

// UpdateTask replaces name, description and task text of an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *core.Task) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_tasks SET name = $1, description = $2, task = $3 WHERE id = $4`,
		t.Name, t.Description, t.Task, t.ID)
	if err != nil {
		return fmt.Errorf("postgres: update task: %w", err)
	}

	return requireAffected(tag, core.ErrTaskNotFound)
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agent_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete task: %w", err)
	}

	return requireAffected(tag, core.ErrTaskNotFound)
}

// SetTaskResult records the outcome of the latest run of a task.
func (s *Store) SetTaskResult(ctx context.Context, id, result string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE agent_tasks SET last_result = $1 WHERE id = $2`, result, id)
	if err != nil {
		return fmt.Errorf("postgres: set task result: %w", err)
	}

	return requireAffected(tag, core.ErrTaskNotFound)
}

func scanSession(row pgx.Row) (*core.Session, error) {
	var sess core.Session

	if err := row.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: scan session: %w", err)
	}

	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()

	return &sess, nil
}

func scanTask(row pgx.Row) (*core.Task, error) {
	var t core.Task

	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Task, &t.CreatedAt, &t.LastResult); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: scan task: %w", err)
	}

	t.CreatedAt = t.CreatedAt.UTC()

	return &t, nil
}

func requireAffected(tag pgconn.CommandTag, notFound error) error {
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
