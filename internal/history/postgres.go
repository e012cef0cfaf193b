package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema is the DDL for the attempts table. Execute it via
// [PostgresStore.Migrate] or apply it during deployment.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS assessment_attempts (
    id          TEXT PRIMARY KEY,
    learner_id  TEXT NOT NULL,
    text        TEXT NOT NULL DEFAULT '',
    method      TEXT NOT NULL DEFAULT 'none',
    accuracy    DOUBLE PRECISION NOT NULL DEFAULT 0,
    score_pte   DOUBLE PRECISION NOT NULL DEFAULT 0,
    band        INTEGER NOT NULL DEFAULT 0,
    patterns    JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_assessment_attempts_learner
    ON assessment_attempts(learner_id, created_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Patterns are stored as
// JSONB and summed in the database.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db. Call [PostgresStore.Migrate]
// before the first query.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects a pool to dsn, pings it and migrates the schema. The
// returned close function releases the pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("history: ping: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Migrate executes [PostgresSchema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Save implements [Store].
func (s *PostgresStore) Save(ctx context.Context, a Attempt) error {
	if err := validate(a); err != nil {
		return err
	}
	patterns, err := json.Marshal(emptyPatterns(a.Patterns))
	if err != nil {
		return fmt.Errorf("history: marshal patterns: %w", err)
	}

	const query = `
		INSERT INTO assessment_attempts (
			id, learner_id, text, method, accuracy, score_pte, band, patterns, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			learner_id = EXCLUDED.learner_id, text = EXCLUDED.text,
			method = EXCLUDED.method, accuracy = EXCLUDED.accuracy,
			score_pte = EXCLUDED.score_pte, band = EXCLUDED.band,
			patterns = EXCLUDED.patterns, created_at = EXCLUDED.created_at`

	if _, err := s.db.Exec(ctx, query,
		a.ID, a.LearnerID, a.Text, a.Method, a.Accuracy, a.ScorePTE, a.Band, patterns, a.CreatedAt,
	); err != nil {
		return fmt.Errorf("history: save %q: %w", a.ID, err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, learnerID string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, learner_id, text, method, accuracy, score_pte, band, patterns, created_at
		FROM assessment_attempts
		WHERE learner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, learnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent %q: %w", learnerID, err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a        Attempt
			patterns []byte
		)
		if err := rows.Scan(
			&a.ID, &a.LearnerID, &a.Text, &a.Method, &a.Accuracy, &a.ScorePTE, &a.Band, &patterns, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("history: scan attempt: %w", err)
		}
		if err := unmarshalPatterns(patterns, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent %q: %w", learnerID, err)
	}
	return out, nil
}

// Patterns implements [Store].
func (s *PostgresStore) Patterns(ctx context.Context, learnerID string, since time.Time) ([]PatternCount, error) {
	const query = `
		SELECT p.key, SUM(p.value::int)::bigint
		FROM assessment_attempts a, jsonb_each_text(a.patterns) AS p
		WHERE a.learner_id = $1 AND a.created_at >= $2
		GROUP BY p.key
		ORDER BY 2 DESC, 1`

	rows, err := s.db.Query(ctx, query, learnerID, since)
	if err != nil {
		return nil, fmt.Errorf("history: patterns %q: %w", learnerID, err)
	}
	defer rows.Close()

	var out []PatternCount
	for rows.Next() {
		var (
			pc PatternCount
			n  int64
		)
		if err := rows.Scan(&pc.Pattern, &n); err != nil {
			return nil, fmt.Errorf("history: scan pattern: %w", err)
		}
		pc.Count = int(n)
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: patterns %q: %w", learnerID, err)
	}
	return out, nil
}

func emptyPatterns(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func unmarshalPatterns(data []byte, a *Attempt) error {
	if len(data) == 0 {
		return nil
	}
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("history: unmarshal patterns of %q: %w", a.ID, err)
	}
	if len(m) > 0 {
		a.Patterns = m
	}
	return nil
}
