// Package history keeps a SQLite log of every run and each subject's
// outcome, so a regression can be traced back to the run that introduced it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/shotcheck/dbopen"
	"github.com/hazyhaar/shotcheck/idgen"
	"github.com/hazyhaar/shotcheck/report"
)

// Subject outcome statuses.
const (
	StatusNew  = "new"  // no baseline yet
	StatusPass = "pass" // compared, unchanged
	StatusFail = "fail" // compared, changed
	StatusSkip = "skip" // comparison not completed
)

// Run is one recorded invocation.
type Run struct {
	ID         string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
	Subjects   int
	Failed     int
	Skipped    int
	Passed     bool
}

// Entry is one subject outcome within a run.
type Entry struct {
	RunID         string
	Seq           int
	Subject       string
	Status        string
	ChangedPixels int
	TotalPixels   int
	DiffPath      string
	Error         string
}

// Store wraps the history database.
type Store struct {
	DB    *sql.DB
	newID idgen.Generator
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an already-opened database whose schema is applied.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, newID: idgen.Prefixed("run_", idgen.Default)}
}

// Close closes the database.
func (s *Store) Close() error { return s.DB.Close() }

// Record stores a finished run and returns its ID.
func (s *Store) Record(ctx context.Context, mode string, started, finished time.Time, rep *report.Report) (string, error) {
	id := s.newID()
	results := rep.Results()
	failed := rep.Failed()
	skipped := rep.Skipped()

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, mode, started_at, finished_at, subjects, failed, skipped, passed)
			VALUES (?,?,?,?,?,?,?,?)`,
			id, mode, started.UnixMilli(), finished.UnixMilli(),
			len(results)+len(skipped), len(failed), len(skipped), rep.Passed())
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, r := range results {
			status := StatusPass
			switch {
			case !r.HasBaseline:
				status = StatusNew
			case !r.Passed():
				status = StatusFail
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO subject_results (run_id, seq, subject, status, changed_pixels, total_pixels, diff_path)
				VALUES (?,?,?,?,?,?,?)`,
				id, r.Seq, r.Subject, status, r.ChangedPixels, r.TotalPixels, r.DiffPath); err != nil {
				return fmt.Errorf("insert result %s: %w", r.Subject, err)
			}
		}
		for _, sk := range skipped {
			msg := ""
			if sk.Err != nil {
				msg = sk.Err.Error()
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO subject_results (run_id, seq, subject, status, error)
				VALUES (?,?,?,?,?)`,
				id, sk.Seq, sk.Subject, StatusSkip, msg); err != nil {
				return fmt.Errorf("insert skip %s: %w", sk.Subject, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("history: record: %w", err)
	}
	return id, nil
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, mode, started_at, finished_at, subjects, failed, skipped, passed
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Mode, &started, &finished,
			&r.Subjects, &r.Failed, &r.Skipped, &r.Passed); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SubjectTrail returns a subject's outcomes across runs, newest first.
func (s *Store) SubjectTrail(ctx context.Context, subject string, limit int) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT sr.run_id, sr.seq, sr.subject, sr.status, sr.changed_pixels,
		       sr.total_pixels, sr.diff_path, sr.error
		FROM subject_results sr JOIN runs r ON r.id = sr.run_id
		WHERE sr.subject = ?
		ORDER BY r.started_at DESC, r.id DESC LIMIT ?`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("history: trail: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Subject, &e.Status,
			&e.ChangedPixels, &e.TotalPixels, &e.DiffPath, &e.Error); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
