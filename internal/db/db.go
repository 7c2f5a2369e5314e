package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// RunMigrations creates the ledger tables if they do not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_sessions (
			session_id TEXT PRIMARY KEY,
			version BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS ledger_members (
			session_id TEXT NOT NULL REFERENCES ledger_sessions(session_id) ON DELETE CASCADE,
			position INT NOT NULL,
			name TEXT NOT NULL,
			balance_cents BIGINT NOT NULL,
			payment_address TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (session_id, name)
		);
		CREATE TABLE IF NOT EXISTS ledger_external_ids (
			session_id TEXT NOT NULL REFERENCES ledger_sessions(session_id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			external_id TEXT NOT NULL,
			PRIMARY KEY (session_id, name)
		);
		CREATE TABLE IF NOT EXISTS ledger_expenses (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES ledger_sessions(session_id) ON DELETE CASCADE,
			seq INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			description TEXT NOT NULL,
			amount_cents BIGINT NOT NULL,
			payer TEXT NOT NULL,
			beneficiaries TEXT[] NOT NULL,
			share_cents BIGINT NOT NULL,
			UNIQUE (session_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_expenses_session ON ledger_expenses(session_id, seq);
	`)
	return err
}
