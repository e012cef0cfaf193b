package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout has fixed-width fractions so stored timestamps compare
// correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is a [Store] backed by a SQLite file. Patterns live in their
// own table so that they can be summed with GROUP BY.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create %q: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			learner_id TEXT NOT NULL,
			text TEXT NOT NULL,
			method TEXT NOT NULL,
			accuracy REAL NOT NULL,
			score_pte REAL NOT NULL,
			band INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attempt_patterns (
			attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
			pattern TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (attempt_id, pattern)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_learner ON attempts(learner_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("history: migrate: %w", err)
		}
	}
	return nil
}

// Save implements [Store].
func (s *SQLiteStore) Save(ctx context.Context, a Attempt) (err error) {
	if err := validate(a); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM attempt_patterns WHERE attempt_id = ?`, a.ID); err != nil {
		return fmt.Errorf("history: save %q: %w", a.ID, err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO attempts (id, learner_id, text, method, accuracy, score_pte, band, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.LearnerID, a.Text, a.Method, a.Accuracy, a.ScorePTE, a.Band,
		a.CreatedAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("history: save %q: %w", a.ID, err)
	}
	for p, c := range a.Patterns {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO attempt_patterns (attempt_id, pattern, count) VALUES (?, ?, ?)`,
			a.ID, p, c,
		); err != nil {
			return fmt.Errorf("history: save pattern %q: %w", p, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *SQLiteStore) Recent(ctx context.Context, learnerID string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, learner_id, text, method, accuracy, score_pte, band, created_at
		 FROM attempts WHERE learner_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		learnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent %q: %w", learnerID, err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a       Attempt
			created string
		)
		if err := rows.Scan(&a.ID, &a.LearnerID, &a.Text, &a.Method, &a.Accuracy, &a.ScorePTE, &a.Band, &created); err != nil {
			return nil, fmt.Errorf("history: scan attempt: %w", err)
		}
		if a.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("history: parse created_at of %q: %w", a.ID, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent %q: %w", learnerID, err)
	}
	rows.Close()

	for i := range out {
		if out[i].Patterns, err = s.patternsOf(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) patternsOf(ctx context.Context, id string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pattern, count FROM attempt_patterns WHERE attempt_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("history: patterns of %q: %w", id, err)
	}
	defer rows.Close()
	var m map[string]int
	for rows.Next() {
		var (
			p string
			c int
		)
		if err := rows.Scan(&p, &c); err != nil {
			return nil, fmt.Errorf("history: scan pattern: %w", err)
		}
		if m == nil {
			m = make(map[string]int)
		}
		m[p] = c
	}
	return m, rows.Err()
}

// Patterns implements [Store].
func (s *SQLiteStore) Patterns(ctx context.Context, learnerID string, since time.Time) ([]PatternCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.pattern, SUM(p.count)
		 FROM attempt_patterns p JOIN attempts a ON a.id = p.attempt_id
		 WHERE a.learner_id = ? AND a.created_at >= ?
		 GROUP BY p.pattern`,
		learnerID, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("history: patterns %q: %w", learnerID, err)
	}
	defer rows.Close()

	var out []PatternCount
	for rows.Next() {
		var pc PatternCount
		if err := rows.Scan(&pc.Pattern, &pc.Count); err != nil {
			return nil, fmt.Errorf("history: scan pattern: %w", err)
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: patterns %q: %w", learnerID, err)
	}
	sortPatterns(out)
	return out, nil
}
