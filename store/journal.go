package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/pagetape/dbopen"
	"github.com/hazyhaar/pagetape/session"
)

// JournalSchema contains the DDL for the drain journal tables.
const JournalSchema = `
-- One row per in-flight recording session.
CREATE TABLE IF NOT EXISTS recordings (
    session_id TEXT PRIMARY KEY,
    source     TEXT NOT NULL,
    started_at TEXT NOT NULL
);

-- Drained events, in capture order. payload is one event as JSON.
CREATE TABLE IF NOT EXISTS events (
    session_id TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    payload    TEXT NOT NULL,
    PRIMARY KEY (session_id, seq),
    FOREIGN KEY (session_id) REFERENCES recordings(session_id) ON DELETE CASCADE
);
`

// Journal is the durable drain buffer. During a recording every drained
// event batch is appended here before anything else happens to it; after the
// recording persists successfully its journal rows are cleared. Rows that
// survive belong to sessions that terminated abruptly and can be recovered
// into a Recording missing at most one drain interval of events.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (or creates) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(JournalSchema))
	if err != nil {
		return nil, fmt.Errorf("store: open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// NewJournal wraps an already-open database, typically dbopen.OpenMemory in
// tests. The schema must have been applied.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Begin registers a session in the journal, discarding any stale rows left
// under the same id.
func (j *Journal) Begin(ctx context.Context, rec *session.Recording) error {
	err := dbopen.RunTx(ctx, j.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, rec.SessionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO recordings (session_id, source, started_at) VALUES (?, ?, ?)`,
			rec.SessionID, rec.Source, rec.StartedAt.UTC().Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return fmt.Errorf("store: journal begin %s: %w", rec.SessionID, err)
	}
	return nil
}

// Append stores one drained batch in capture order.
func (j *Journal) Append(ctx context.Context, sessionID string, events []session.Event) error {
	if len(events) == 0 {
		return nil
	}
	err := dbopen.RunTx(ctx, j.db, func(tx *sql.Tx) error {
		var next int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), -1) + 1 FROM events WHERE session_id = ?`, sessionID,
		).Scan(&next); err != nil {
			return err
		}
		for i, ev := range events {
			payload, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("marshal event: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO events (session_id, seq, payload) VALUES (?, ?, ?)`,
				sessionID, next+int64(i), string(payload)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: journal append %s: %w", sessionID, err)
	}
	return nil
}

// Sessions lists session ids with surviving journal rows, oldest first.
func (j *Journal) Sessions(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT session_id FROM recordings ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("store: journal sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: journal sessions: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Recover rebuilds a Recording from the journal rows of a session that never
// persisted. The duration is approximated by the last drained event's offset
// since the true save time was lost with the crash. Returns ErrNotFound for
// unknown sessions.
func (j *Journal) Recover(ctx context.Context, sessionID string) (*session.Recording, error) {
	var source, startedAt string
	err := j.db.QueryRowContext(ctx,
		`SELECT source, started_at FROM recordings WHERE session_id = ?`, sessionID,
	).Scan(&source, &startedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: journal session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: journal recover %s: %w", sessionID, err)
	}

	started, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("store: journal recover %s: bad started_at: %w", sessionID, err)
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: journal recover %s: %w", sessionID, err)
	}
	defer rows.Close()

	rec := &session.Recording{
		SessionID: sessionID,
		Source:    source,
		StartedAt: started,
	}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: journal recover %s: %w", sessionID, err)
		}
		var ev session.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("store: journal recover %s: decode event: %w", sessionID, err)
		}
		rec.Events = append(rec.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: journal recover %s: %w", sessionID, err)
	}

	if n := len(rec.Events); n > 0 {
		rec.Duration = rec.Events[n-1].Offset
	}
	return rec, nil
}

// Clear removes all journal rows for a session, marking it fully persisted.
func (j *Journal) Clear(ctx context.Context, sessionID string) error {
	err := dbopen.RunTx(ctx, j.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM recordings WHERE session_id = ?`, sessionID)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: journal clear %s: %w", sessionID, err)
	}
	return nil
}
