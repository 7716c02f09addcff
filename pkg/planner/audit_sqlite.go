package planner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteAuditStore persists audit events in SQLite.
type SQLiteAuditStore struct {
	db *sql.DB
}

// OpenSQLiteAuditStore opens the database at dsn and prepares the schema.
func OpenSQLiteAuditStore(ctx context.Context, dsn string) (*SQLiteAuditStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteAuditStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteAuditStore creates a SQLite-backed audit store and ensures schema.
func NewSQLiteAuditStore(ctx context.Context, db *sql.DB) (*SQLiteAuditStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensurePlannerAuditSchema(ctx, db); err != nil {
		return nil, err
	}
	return &SQLiteAuditStore{db: db}, nil
}

// Close releases the underlying database.
func (s *SQLiteAuditStore) Close() error {
	return s.db.Close()
}

// Record stores a single audit event.
func (s *SQLiteAuditStore) Record(ctx context.Context, event AuditEvent) error {
	output, err := json.Marshal(event.Output)
	if err != nil {
		return err
	}
	var finished any
	if !event.FinishedAt.IsZero() {
		finished = event.FinishedAt.UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO planner_audit_events (
			plan_id, run_id, step_id, step_kind, tool, status, output_json, error_text, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.PlanID,
		event.RunID,
		event.StepID,
		event.StepKind,
		event.Tool,
		event.Status,
		string(output),
		event.Error,
		utc(event.StartedAt),
		finished,
	)
	return err
}

// List returns audit events matching the filter in insertion order.
func (s *SQLiteAuditStore) List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT plan_id, run_id, step_id, step_kind, tool, status, output_json, error_text, started_at, finished_at
		FROM planner_audit_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.PlanID != "" {
		addFilter("plan_id = ?", filter.PlanID)
	}
	if filter.RunID != "" {
		addFilter("run_id = ?", filter.RunID)
	}
	if filter.StepKind != "" {
		addFilter("step_kind = ?", filter.StepKind)
	}
	if filter.Status != "" {
		addFilter("status = ?", filter.Status)
	}
	query += where + " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var (
			event      AuditEvent
			runID      sql.NullString
			tool       sql.NullString
			outputJSON sql.NullString
			errText    sql.NullString
			started    sql.NullTime
			finished   sql.NullTime
		)
		if err := rows.Scan(
			&event.PlanID,
			&runID,
			&event.StepID,
			&event.StepKind,
			&tool,
			&event.Status,
			&outputJSON,
			&errText,
			&started,
			&finished,
		); err != nil {
			return nil, err
		}
		event.RunID = runID.String
		event.Tool = tool.String
		event.Error = errText.String
		if outputJSON.Valid && outputJSON.String != "" {
			var out any
			if json.Unmarshal([]byte(outputJSON.String), &out) == nil {
				event.Output = out
			}
		}
		if started.Valid {
			event.StartedAt = started.Time
		}
		if finished.Valid {
			event.FinishedAt = finished.Time
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func ensurePlannerAuditSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS planner_audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			plan_id TEXT NOT NULL,
			run_id TEXT,
			step_id INTEGER NOT NULL,
			step_kind TEXT NOT NULL,
			tool TEXT,
			status TEXT NOT NULL,
			output_json TEXT,
			error_text TEXT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_planner_audit_plan ON planner_audit_events(plan_id);
		CREATE INDEX IF NOT EXISTS idx_planner_audit_run ON planner_audit_events(run_id);
		CREATE INDEX IF NOT EXISTS idx_planner_audit_status ON planner_audit_events(status);
	`)
	return err
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
