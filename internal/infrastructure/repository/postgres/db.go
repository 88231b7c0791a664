package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS lessons_learned (
	id BIGSERIAL PRIMARY KEY,
	commodity TEXT NOT NULL DEFAULT '',
	error_location TEXT NOT NULL DEFAULT '',
	problem_description TEXT NOT NULL,
	missed_detection TEXT NOT NULL DEFAULT '',
	provided_solution TEXT NOT NULL DEFAULT '',
	department TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL DEFAULT 'medium',
	reporter_name TEXT NOT NULL DEFAULT '',
	part_number TEXT,
	supplier TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lessons_learned_created_at ON lessons_learned(created_at DESC);

CREATE TABLE IF NOT EXISTS solution_searches (
	id TEXT PRIMARY KEY,
	problem_description TEXT NOT NULL,
	department TEXT NOT NULL,
	severity TEXT NOT NULL,
	reporter_name TEXT NOT NULL,
	request JSONB NOT NULL,
	status TEXT NOT NULL,
	search_results JSONB NOT NULL DEFAULT '{}'::jsonb,
	source_errors JSONB NOT NULL DEFAULT '{}'::jsonb,
	summary TEXT,
	confidence_score DOUBLE PRECISION,
	progress JSONB NOT NULL DEFAULT '{}'::jsonb,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_solution_searches_created_at ON solution_searches(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_solution_searches_status ON solution_searches(status);

CREATE TABLE IF NOT EXISTS solution_search_cache (
	id BIGSERIAL PRIMARY KEY,
	search_id TEXT NOT NULL REFERENCES solution_searches(id) ON DELETE CASCADE,
	source TEXT NOT NULL,
	search_query TEXT NOT NULL,
	results JSONB NOT NULL,
	result_count INTEGER NOT NULL,
	relevance_score DOUBLE PRECISION NOT NULL,
	duration_ms BIGINT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_solution_search_cache_search_id ON solution_search_cache(search_id);

CREATE TABLE IF NOT EXISTS saved_solutions (
	id TEXT PRIMARY KEY,
	search_id TEXT NOT NULL REFERENCES solution_searches(id) ON DELETE CASCADE,
	result_id TEXT NOT NULL,
	source TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	solution TEXT,
	url TEXT,
	relevance_score DOUBLE PRECISION NOT NULL,
	user_notes TEXT,
	is_helpful TEXT,
	saved_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saved_solutions_saved_at ON saved_solutions(saved_at DESC);

CREATE TABLE IF NOT EXISTS knowledge_documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	entry_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_documents_status ON knowledge_documents(status);
`

// EnsureSchema creates every table the service uses.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
