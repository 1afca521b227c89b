package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SessionRepository stores client sessions as one row per session key.
type SessionRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewSessionRepository(db *sql.DB, ttl time.Duration) *SessionRepository {
	return &SessionRepository{db: db, ttl: ttl, now: time.Now}
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

	// Serialize bootstrap DDL across cli/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2025090101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS client_sessions (
	session_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, key)
);

CREATE INDEX IF NOT EXISTS idx_client_sessions_updated_at ON client_sessions(updated_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) Load(ctx context.Context, sessionID string) (map[string]string, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if r.ttl > 0 {
		rows, err = r.db.QueryContext(ctx, `
SELECT key, value
FROM client_sessions
WHERE session_id = $1 AND updated_at >= $2
`, sessionID, r.now().UTC().Add(-r.ttl))
	} else {
		rows, err = r.db.QueryContext(ctx, `
SELECT key, value
FROM client_sessions
WHERE session_id = $1
`, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return values, nil
}

// Apply writes one Apply call in a single transaction.
func (r *SessionRepository) Apply(ctx context.Context, sessionID string, set map[string]string, unset []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, key := range unset {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM client_sessions
WHERE session_id = $1 AND key = $2
`, sessionID, key); err != nil {
			return fmt.Errorf("delete session key %s: %w", key, err)
		}
	}

	now := r.now().UTC()
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO client_sessions (session_id, key, value, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id, key) DO UPDATE
SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`, sessionID, key, set[key], now); err != nil {
			return fmt.Errorf("upsert session key %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) Drop(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `
DELETE FROM client_sessions
WHERE session_id = $1
`, sessionID); err != nil {
		return fmt.Errorf("drop session: %w", err)
	}
	return nil
}
