package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id                TEXT PRIMARY KEY,
	status            TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at        TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ,
	original_filename TEXT NOT NULL,
	upload_path       TEXT NOT NULL,
	file_size_bytes   BIGINT NOT NULL,
	file_hash         TEXT NOT NULL DEFAULT '',
	export_path       TEXT NOT NULL DEFAULT '',
	export_size_bytes BIGINT NOT NULL DEFAULT 0,
	error_message     TEXT NOT NULL DEFAULT '',
	retry_count       INT NOT NULL DEFAULT 0,
	user_ip           TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks (created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_file_hash ON tasks (file_hash);

CREATE TABLE IF NOT EXISTS cleanup_log (
	id          BIGSERIAL PRIMARY KEY,
	cleaned_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	task_id     TEXT NOT NULL,
	upload_path TEXT NOT NULL DEFAULT '',
	export_path TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL
);
`

// InitSchema creates the tables and indexes if they are not present yet.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}
