package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/susu3304/warikanbot/internal/ledger"

	_ "modernc.org/sqlite"
)

var _ ledger.Store = (*Store)(nil)

// Store keeps ledger snapshots in a local SQLite file.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func (s *Store) Save(ctx context.Context, snap ledger.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_sessions (session_id, version, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at
		 WHERE ledger_sessions.version < excluded.version`,
		snap.SessionID, snap.Version, formatTime(snap.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.DebugContext(ctx, "stale snapshot skipped", "session_id", snap.SessionID, "version", snap.Version)
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_members WHERE session_id = ?`, snap.SessionID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	for pos, m := range snap.Members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_members (session_id, position, name, balance_cents, payment_address) VALUES (?, ?, ?, ?, ?)`,
			snap.SessionID, pos, m.Name, int64(m.Balance), m.PaymentAddress); err != nil {
			return fmt.Errorf("insert member %s: %w", m.Name, err)
		}
	}

	for name, id := range snap.ExternalIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_external_ids (session_id, name, external_id) VALUES (?, ?, ?)
			 ON CONFLICT (session_id, name) DO UPDATE SET external_id = excluded.external_id`,
			snap.SessionID, name, id); err != nil {
			return fmt.Errorf("upsert external id: %w", err)
		}
	}

	for _, e := range snap.Expenses {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_expenses (id, session_id, seq, created_at, description, amount_cents, payer, share_cents)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
			e.ID, snap.SessionID, e.Seq, formatTime(e.CreatedAt), e.Description, int64(e.Amount), e.Payer, int64(e.Share))
		if err != nil {
			return fmt.Errorf("insert expense %s: %w", e.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		for pos, name := range e.Beneficiaries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO ledger_expense_beneficiaries (expense_id, position, name) VALUES (?, ?, ?)`,
				e.ID, pos, name); err != nil {
				return fmt.Errorf("insert beneficiary: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.DebugContext(ctx, "session saved to SQLite", "session_id", snap.SessionID, "version", snap.Version)
	return nil
}

func (s *Store) LoadAll(ctx context.Context) ([]ledger.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, version, updated_at FROM ledger_sessions ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	var order []string
	byID := make(map[string]*ledger.Snapshot)
	for rows.Next() {
		snap := &ledger.Snapshot{ExternalIDs: make(map[string]string)}
		var updated string
		if err := rows.Scan(&snap.SessionID, &snap.Version, &updated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if snap.UpdatedAt, err = parseTime(updated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		order = append(order, snap.SessionID)
		byID[snap.SessionID] = snap
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadMembers(ctx, byID); err != nil {
		return nil, err
	}
	if err := s.loadExternalIDs(ctx, byID); err != nil {
		return nil, err
	}
	if err := s.loadExpenses(ctx, byID); err != nil {
		return nil, err
	}

	out := make([]ledger.Snapshot, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (s *Store) loadMembers(ctx context.Context, byID map[string]*ledger.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, name, balance_cents, payment_address FROM ledger_members ORDER BY session_id, position`)
	if err != nil {
		return fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sid string
		var m ledger.Member
		var balance int64
		if err := rows.Scan(&sid, &m.Name, &balance, &m.PaymentAddress); err != nil {
			return fmt.Errorf("scan member: %w", err)
		}
		m.Balance = ledger.Amount(balance)
		if snap, ok := byID[sid]; ok {
			snap.Members = append(snap.Members, m)
		}
	}
	return rows.Err()
}

func (s *Store) loadExternalIDs(ctx context.Context, byID map[string]*ledger.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, name, external_id FROM ledger_external_ids`)
	if err != nil {
		return fmt.Errorf("query external ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sid, name, id string
		if err := rows.Scan(&sid, &name, &id); err != nil {
			return fmt.Errorf("scan external id: %w", err)
		}
		if snap, ok := byID[sid]; ok {
			snap.ExternalIDs[name] = id
		}
	}
	return rows.Err()
}

func (s *Store) loadExpenses(ctx context.Context, byID map[string]*ledger.Snapshot) error {
	beneficiaries, err := s.loadBeneficiaries(ctx)
	if err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, id, seq, created_at, description, amount_cents, payer, share_cents
		 FROM ledger_expenses ORDER BY session_id, seq`)
	if err != nil {
		return fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sid, created  string
			e             ledger.Expense
			amount, share int64
		)
		if err := rows.Scan(&sid, &e.ID, &e.Seq, &created, &e.Description, &amount, &e.Payer, &share); err != nil {
			return fmt.Errorf("scan expense: %w", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return fmt.Errorf("parse created_at: %w", err)
		}
		e.Amount = ledger.Amount(amount)
		e.Share = ledger.Amount(share)
		e.Beneficiaries = beneficiaries[e.ID]
		if snap, ok := byID[sid]; ok {
			snap.Expenses = append(snap.Expenses, e)
		}
	}
	return rows.Err()
}

func (s *Store) loadBeneficiaries(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT expense_id, name FROM ledger_expense_beneficiaries ORDER BY expense_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query beneficiaries: %w", err)
	}
	defer rows.Close()
	out := make(map[string][]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan beneficiary: %w", err)
		}
		out[id] = append(out[id], name)
	}
	return out, rows.Err()
}
