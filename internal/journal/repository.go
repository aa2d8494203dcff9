// Package journal stores every handled command and the ack sent for it in
// the command_journal table.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-starlink/internal/bridge"
)

var _ bridge.CommandJournal = (*SQLiteRepository)(nil)

// Entry is one journalled command.
type Entry struct {
	ID       string         `json:"id"`
	Received time.Time      `json:"received_at"`
	Field    string         `json:"field"`
	Target   string         `json:"target"`
	Payload  string         `json:"payload"`
	Outcome  bridge.Outcome `json:"outcome"`
	Detail   string         `json:"detail,omitempty"`
	Acked    time.Time      `json:"acked_at"`
}

// Default and maximum page sizes for Recent.
const (
	defaultRecent = 50
	maxRecent     = 500
)

// SQLiteRepository reads and writes the command journal.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts one entry for req and its ack.
func (r *SQLiteRepository) Record(ctx context.Context, req bridge.CommandRequest, ack bridge.AckResult) error {
	received := req.Received
	if received.IsZero() {
		received = time.Now()
	}
	acked := ack.Timestamp
	if acked.IsZero() {
		acked = received
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_journal (id, received_at, field, target, payload, outcome, detail, acked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"cmd-"+uuid.NewString(),
		received.UnixMilli(),
		req.Field,
		req.Target,
		req.Payload,
		string(ack.Outcome),
		ack.Detail,
		acked.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting command journal entry: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first. n <= 0 selects the
// default page size; n is capped at 500.
func (r *SQLiteRepository) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = defaultRecent
	}
	if n > maxRecent {
		n = maxRecent
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, received_at, field, target, payload, outcome, detail, acked_at
		 FROM command_journal
		 ORDER BY received_at DESC, rowid DESC
		 LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying command journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, n)
	for rows.Next() {
		var e Entry
		var received, acked int64
		var outcome string
		if err := rows.Scan(&e.ID, &received, &e.Field, &e.Target, &e.Payload, &outcome, &e.Detail, &acked); err != nil {
			return nil, fmt.Errorf("scanning command journal entry: %w", err)
		}
		e.Received = time.UnixMilli(received).UTC()
		e.Acked = time.UnixMilli(acked).UTC()
		e.Outcome = bridge.Outcome(outcome)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command journal: %w", err)
	}

	return entries, nil
}

// Prune deletes entries received before cutoff.
func (r *SQLiteRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM command_journal WHERE received_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning command journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning command journal: %w", err)
	}
	return n, nil
}
