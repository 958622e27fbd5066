package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
)

const (
	eventKindMessage   = "message"
	eventKindReference = "reference"
)

// SessionRepository persists conversation state as an append-only event log
// per session. Reference observations land in the same log so recency wins
// when the resolver scans the rendered context.
type SessionRepository struct {
	db              *sql.DB
	contextMessages int
}

func NewSessionRepository(db *sql.DB, contextMessages int) *SessionRepository {
	if contextMessages <= 0 {
		contextMessages = 20
	}
	return &SessionRepository{
		db:              db,
		contextMessages: contextMessages,
	}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SessionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	last_reference TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS session_events (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(session_id),
	kind TEXT NOT NULL,
	role TEXT,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id, id DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// GetSessionContext renders the most recent events of a session as plain
// text, oldest first, for reference resolution.
func (r *SessionRepository) GetSessionContext(ctx context.Context, sessionID string) (string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT kind, COALESCE(role, ''), content
FROM session_events
WHERE session_id = $1
ORDER BY id DESC
LIMIT $2
`, sessionID, r.contextMessages)
	if err != nil {
		return "", fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	type event struct {
		kind    string
		role    string
		content string
	}

	events := make([]event, 0, r.contextMessages)
	for rows.Next() {
		var ev event
		if err := rows.Scan(&ev.kind, &ev.role, &ev.content); err != nil {
			return "", fmt.Errorf("scan session event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate session events: %w", err)
	}
	if len(events) == 0 {
		return "", domain.WrapError(domain.ErrSessionNotFound, "get_session_context", fmt.Errorf("session %s has no events", sessionID))
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	var sb strings.Builder
	for _, ev := range events {
		switch ev.kind {
		case eventKindReference:
			sb.WriteString("referencia: ")
			sb.WriteString(ev.content)
		default:
			if ev.role != "" {
				sb.WriteString(ev.role)
				sb.WriteString(": ")
			}
			sb.WriteString(ev.content)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (r *SessionRepository) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	return r.appendEvent(ctx, sessionID, eventKindMessage, role, content, "")
}

func (r *SessionRepository) RecordReference(ctx context.Context, sessionID string, ref domain.CaseFileReference) error {
	return r.appendEvent(ctx, sessionID, eventKindReference, "", string(ref), string(ref))
}

func (r *SessionRepository) appendEvent(ctx context.Context, sessionID, kind, role, content, lastReference string) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions (session_id, last_reference, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (session_id) DO UPDATE
SET last_reference = COALESCE(NULLIF(EXCLUDED.last_reference, ''), sessions.last_reference),
    updated_at = EXCLUDED.updated_at
`, sessionID, nullableString(lastReference), now); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO session_events (session_id, kind, role, content, created_at)
VALUES ($1, $2, $3, $4, $5)
`, sessionID, kind, nullableString(role), content, now); err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
