package serve

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/everydev1618/rigel"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Init creates the schema tables.
func (s *SQLiteStore) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id          TEXT PRIMARY KEY,
		problem         TEXT NOT NULL,
		status          TEXT NOT NULL,
		answer          TEXT NOT NULL DEFAULT '',
		source          TEXT NOT NULL DEFAULT '',
		runs            INTEGER NOT NULL DEFAULT 0,
		selected_index  INTEGER NOT NULL DEFAULT -1,
		justification   TEXT NOT NULL DEFAULT '',
		trivial         INTEGER NOT NULL DEFAULT 0,
		fallback        INTEGER NOT NULL DEFAULT 0,
		verdict_flag    TEXT NOT NULL DEFAULT '',
		verdict_answer  TEXT NOT NULL DEFAULT '',
		verdict_notes   TEXT NOT NULL DEFAULT '',
		error           TEXT NOT NULL DEFAULT '',
		started_at      DATETIME NOT NULL,
		duration_ns     INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS candidates (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id    TEXT NOT NULL REFERENCES runs(run_id),
		position  INTEGER NOT NULL,
		run       INTEGER NOT NULL,
		answer    TEXT NOT NULL,
		steps     TEXT NOT NULL DEFAULT '[]',
		raw       TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS diagnostics (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id    TEXT NOT NULL REFERENCES runs(run_id),
		stage     TEXT NOT NULL,
		run       INTEGER NOT NULL DEFAULT 0,
		kind      TEXT NOT NULL,
		message   TEXT NOT NULL,
		recovery  TEXT NOT NULL,
		at        DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_candidates_run ON candidates(run_id);
	CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordRun implements rigel.Recorder. Recording the same run twice
// replaces the earlier rows.
func (s *SQLiteStore) RecordRun(ctx context.Context, r *rigel.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"candidates", "diagnostics", "runs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", r.RunID); err != nil {
			return err
		}
	}

	selected, justification, trivial, fallback := -1, "", false, false
	if r.Selection != nil {
		selected = r.Selection.Index
		justification = r.Selection.Justification
		trivial = r.Selection.Trivial
		fallback = r.Selection.Fallback
	}
	var flag, replacement, notes string
	if r.Verdict != nil {
		flag = string(r.Verdict.Flag)
		replacement = r.Verdict.Replacement
		notes = r.Verdict.Notes
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs
		 (run_id, problem, status, answer, source, runs, selected_index, justification, trivial, fallback,
		  verdict_flag, verdict_answer, verdict_notes, error, started_at, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Problem, string(r.Status), r.Answer, string(r.Source), r.Runs,
		selected, justification, trivial, fallback,
		flag, replacement, notes, r.Error, r.StartedAt.UTC(), int64(r.Duration),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, c := range r.Candidates {
		steps, _ := json.Marshal(c.Steps)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO candidates (run_id, position, run, answer, steps, raw) VALUES (?, ?, ?, ?, ?, ?)`,
			r.RunID, i, c.Run, c.Answer, string(steps), c.Raw,
		); err != nil {
			return fmt.Errorf("insert candidate: %w", err)
		}
	}

	for _, d := range r.Diagnostics {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO diagnostics (run_id, stage, run, kind, message, recovery, at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, string(d.Stage), d.Run, d.Kind, d.Message, string(d.Recovery), d.At.UTC(),
		); err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	return tx.Commit()
}

// ListRuns returns recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.run_id, r.problem, r.status, r.answer, r.source, r.runs, r.started_at, r.duration_ns,
		        (SELECT COUNT(*) FROM candidates c WHERE c.run_id = r.run_id),
		        (SELECT COUNT(*) FROM diagnostics d WHERE d.run_id = r.run_id)
		 FROM runs r ORDER BY r.started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var sum RunSummary
		var status, source string
		var durationNS int64
		if err := rows.Scan(&sum.RunID, &sum.Problem, &status, &sum.Answer, &source, &sum.Runs,
			&sum.StartedAt, &durationNS, &sum.Candidates, &sum.Diagnostics); err != nil {
			return nil, err
		}
		sum.Status = rigel.RunStatus(status)
		sum.Source = rigel.AnswerSource(source)
		sum.Duration = time.Duration(durationNS)
		runs = append(runs, sum)
	}
	return runs, rows.Err()
}

// GetRun rebuilds a persisted result.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*rigel.Result, error) {
	r := &rigel.Result{RunID: runID}
	var status, source, justification, flag, replacement, notes string
	var selected int
	var trivial, fallback bool
	var durationNS int64

	err := s.db.QueryRowContext(ctx,
		`SELECT problem, status, answer, source, runs, selected_index, justification, trivial, fallback,
		        verdict_flag, verdict_answer, verdict_notes, error, started_at, duration_ns
		 FROM runs WHERE run_id = ?`, runID,
	).Scan(&r.Problem, &status, &r.Answer, &source, &r.Runs, &selected, &justification, &trivial, &fallback,
		&flag, &replacement, &notes, &r.Error, &r.StartedAt, &durationNS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = rigel.RunStatus(status)
	r.Source = rigel.AnswerSource(source)
	r.Duration = time.Duration(durationNS)

	if r.Candidates, err = s.candidates(ctx, runID); err != nil {
		return nil, err
	}
	if r.Diagnostics, err = s.diagnostics(ctx, runID); err != nil {
		return nil, err
	}

	if selected >= 0 && selected < len(r.Candidates) {
		r.Selection = &rigel.Selection{
			Candidate:     r.Candidates[selected],
			Index:         selected,
			Justification: justification,
			Trivial:       trivial,
			Fallback:      fallback,
		}
	}
	if flag != "" {
		r.Verdict = &rigel.Verdict{
			Flag:        rigel.VerdictFlag(flag),
			Replacement: replacement,
			Notes:       notes,
		}
	}

	return r, nil
}

func (s *SQLiteStore) candidates(ctx context.Context, runID string) ([]*rigel.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run, answer, steps, raw FROM candidates WHERE run_id = ? ORDER BY position ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*rigel.Candidate
	for rows.Next() {
		c := &rigel.Candidate{}
		var steps string
		if err := rows.Scan(&c.Run, &c.Answer, &steps, &c.Raw); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(steps), &c.Steps)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) diagnostics(ctx context.Context, runID string) ([]rigel.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, run, kind, message, recovery, at FROM diagnostics WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rigel.Diagnostic
	for rows.Next() {
		var d rigel.Diagnostic
		var stage, recovery string
		if err := rows.Scan(&stage, &d.Run, &d.Kind, &d.Message, &recovery, &d.At); err != nil {
			return nil, err
		}
		d.Stage = rigel.Stage(stage)
		d.Recovery = rigel.Recovery(recovery)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats returns run counts by status.
func (s *SQLiteStore) Stats(ctx context.Context) (RunStats, error) {
	var st RunStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		 FROM runs`, string(rigel.RunSolved), string(rigel.RunFailed),
	).Scan(&st.Total, &st.Solved, &st.Failed)
	return st, err
}
