// CLAUDE:SUMMARY SQLite schema for the run log: one row per run, one row per subject outcome.
package history

import "database/sql"

// Schema is the complete history schema.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    mode        TEXT NOT NULL,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    subjects    INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    skipped     INTEGER NOT NULL DEFAULT 0,
    passed      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS subject_results (
    run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq            INTEGER NOT NULL,
    subject        TEXT NOT NULL,
    status         TEXT NOT NULL,
    changed_pixels INTEGER NOT NULL DEFAULT 0,
    total_pixels   INTEGER NOT NULL DEFAULT 0,
    diff_path      TEXT NOT NULL DEFAULT '',
    error          TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, subject)
);
CREATE INDEX IF NOT EXISTS idx_subject_results_subject ON subject_results(subject, run_id DESC);
`

// ApplySchema creates the history tables if absent.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
