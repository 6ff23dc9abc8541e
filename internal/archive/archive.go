// Package archive persists finished call transcripts to PostgreSQL.
//
// Redis keeps a session's turn history for 24 hours after close; the archive
// copies it into a durable call_turns table for analytics beyond that window.
// Archiving is best-effort: it runs from the session close path and a failure
// is logged, never surfaced to the caller.
//
// The archive is optional — it is only wired up when a DSN is configured.
package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aishwarymishra09/voice-chat-be/pkg/types"
)

const ddlCallTurns = `
CREATE TABLE IF NOT EXISTS call_turns (
    id            BIGSERIAL    PRIMARY KEY,
    session_id    TEXT         NOT NULL,
    close_reason  TEXT         NOT NULL DEFAULT '',
    role          TEXT         NOT NULL,
    text          TEXT         NOT NULL,
    confidence    REAL         NOT NULL DEFAULT 0,
    spoken_at     TIMESTAMPTZ  NOT NULL,
    archived_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_call_turns_session_id
    ON call_turns (session_id);

CREATE INDEX IF NOT EXISTS idx_call_turns_spoken_at
    ON call_turns (spoken_at);
`

// Archive writes call transcripts to PostgreSQL. All methods are safe for
// concurrent use.
type Archive struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn, verifies the connection, and ensures
// the call_turns table exists. The migration is idempotent and safe to run
// on every start.
func New(ctx context.Context, dsn string) (*Archive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlCallTurns); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Archive{pool: pool}, nil
}

// WriteSession bulk-inserts the turn records of one finished session.
// records may be in any order; spoken_at preserves the original timeline.
func (a *Archive) WriteSession(ctx context.Context, sessionID, closeReason string, records []types.TurnRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{sessionID, closeReason, rec.Role, rec.Text, rec.Confidence, rec.Timestamp})
	}

	_, err := a.pool.CopyFrom(ctx,
		pgx.Identifier{"call_turns"},
		[]string{"session_id", "close_reason", "role", "text", "confidence", "spoken_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("archive: copy turns: %w", err)
	}
	return nil
}

// Transcript returns the archived turns of one session, oldest first.
func (a *Archive) Transcript(ctx context.Context, sessionID string) ([]types.TurnRecord, error) {
	const q = `
		SELECT role, text, confidence, spoken_at
		FROM   call_turns
		WHERE  session_id = $1
		ORDER  BY spoken_at`

	rows, err := a.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive: query transcript: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.TurnRecord, error) {
		var rec types.TurnRecord
		err := row.Scan(&rec.Role, &rec.Text, &rec.Confidence, &rec.Timestamp)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan rows: %w", err)
	}
	if records == nil {
		records = []types.TurnRecord{}
	}
	return records, nil
}

// Pool exposes the underlying connection pool, for readiness checks.
func (a *Archive) Pool() *pgxpool.Pool {
	return a.pool
}

// Close releases the connection pool.
func (a *Archive) Close() {
	a.pool.Close()
}
