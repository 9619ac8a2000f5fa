// Package ledger persists the set of task identities already notified.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"duewatch/internal/domain"
)

type Ledger struct {
	DB *sql.DB
}

// EnsureSchema creates the delivery table if absent. Idempotent.
func (l Ledger) EnsureSchema(ctx context.Context) error {
	_, err := l.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sent_notifications (
    task_id TEXT PRIMARY KEY,
    sent_at TEXT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// Seen reports whether a task has already been notified. A storage read
// failure reports sent=true with assumed=true: under uncertainty the task
// is treated as delivered so it can never be notified twice.
func (l Ledger) Seen(ctx context.Context, taskID string) (sent, assumed bool) {
	var one int
	err := l.DB.QueryRowContext(ctx, `SELECT 1 FROM sent_notifications WHERE task_id=?`, taskID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, false
	}
	if err != nil {
		return true, true
	}
	return true, false
}

// Record inserts a delivery record. The caller decides whether a write
// failure aborts anything; within a run it never does.
func (l Ledger) Record(ctx context.Context, taskID string, at time.Time) error {
	_, err := l.DB.ExecContext(ctx, `INSERT INTO sent_notifications(task_id,sent_at) VALUES (?,?)`,
		taskID, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record delivery %s: %w", taskID, err)
	}
	return nil
}

// Reset destroys and recreates the store. Only the orchestrator's daily
// boundary check calls this, never per-task logic.
func (l Ledger) Reset(ctx context.Context) error {
	if _, err := l.DB.ExecContext(ctx, `DROP TABLE IF EXISTS sent_notifications`); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	return l.EnsureSchema(ctx)
}

func (l Ledger) List(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := l.DB.QueryContext(ctx, `SELECT task_id,sent_at FROM sent_notifications ORDER BY sent_at DESC, task_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.TaskID, &e.SentAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (l Ledger) Count(ctx context.Context) (int, error) {
	var n int
	err := l.DB.QueryRowContext(ctx, `SELECT count(*) FROM sent_notifications`).Scan(&n)
	return n, err
}
