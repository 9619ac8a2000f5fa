package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"duewatch/internal/domain"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records one run or notification event. Best-effort callers may
// log and ignore the returned error.
func (w Writer) Append(ctx context.Context, evtType, runID, taskID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,run_id,task_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, runID, nullable(taskID), string(data))
	return err
}

// Latest returns the most recent events, newest first, optionally filtered
// by event type.
func (w Writer) Latest(ctx context.Context, n int, evtType string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,run_id,COALESCE(task_id,''),payload_json FROM events`
	var args []any
	if evtType != "" {
		query += ` WHERE type=?`
		args = append(args, evtType)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.RunID, &e.TaskID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
