package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/roborun/internal/history"
)

// Sink writes job history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS job_history(
		occurred_at TIMESTAMP NOT NULL,
		event TEXT NOT NULL,
		job_id TEXT NOT NULL,
		repository TEXT NOT NULL,
		status TEXT,
		trigger_role TEXT,
		exit_code INTEGER,
		duration_ms INTEGER,
		output_dir TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_history(occurred_at, event, job_id, repository, status, trigger_role, exit_code, duration_ms, output_dir)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), rec.JobID, rec.Repository,
		rec.Status, rec.TriggerRole, rec.ExitCode, rec.DurationMS, rec.OutputDir)
	return err
}

// Events returns recorded events for a job, oldest first. Used by tests
// and the status endpoint.
func (s *Sink) Events(ctx context.Context, jobID string) ([]history.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, event, job_id, repository, status, trigger_role, exit_code, duration_ms, output_dir
		FROM job_history WHERE job_id = ? ORDER BY occurred_at;`, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []history.Event
	for rows.Next() {
		var e history.Event
		var typ string
		if err := rows.Scan(&e.OccurredAt, &typ, &e.Record.JobID, &e.Record.Repository,
			&e.Record.Status, &e.Record.TriggerRole, &e.Record.ExitCode,
			&e.Record.DurationMS, &e.Record.OutputDir); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
