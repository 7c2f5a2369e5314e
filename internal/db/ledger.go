package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/susu3304/warikanbot/internal/ledger"
)

var _ ledger.Store = (*DB)(nil)

// Save writes snap in one transaction. A snapshot whose version is not newer than
// the stored one is ignored, so concurrent saves of the same session cannot roll
// the row back.
func (db *DB) Save(ctx context.Context, snap ledger.Snapshot) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`INSERT INTO ledger_sessions (session_id, version, updated_at)
         VALUES ($1, $2, $3)
         ON CONFLICT (session_id) DO UPDATE
         SET version = EXCLUDED.version, updated_at = EXCLUDED.updated_at
         WHERE ledger_sessions.version < EXCLUDED.version`,
		snap.SessionID, snap.Version, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		slog.DebugContext(ctx, "stale snapshot skipped", "session_id", snap.SessionID, "version", snap.Version)
		return nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM ledger_members WHERE session_id = $1`, snap.SessionID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	for pos, m := range snap.Members {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_members (session_id, position, name, balance_cents, payment_address)
             VALUES ($1, $2, $3, $4, $5)`,
			snap.SessionID, pos, m.Name, int64(m.Balance), m.PaymentAddress,
		); err != nil {
			return fmt.Errorf("insert member %s: %w", m.Name, err)
		}
	}

	for name, id := range snap.ExternalIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_external_ids (session_id, name, external_id)
             VALUES ($1, $2, $3)
             ON CONFLICT (session_id, name) DO UPDATE SET external_id = EXCLUDED.external_id`,
			snap.SessionID, name, id,
		); err != nil {
			return fmt.Errorf("upsert external id: %w", err)
		}
	}

	// History is append-only; rows already stored are left untouched.
	for _, e := range snap.Expenses {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_expenses (id, session_id, seq, created_at, description, amount_cents, payer, beneficiaries, share_cents)
             VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
             ON CONFLICT (id) DO NOTHING`,
			e.ID, snap.SessionID, e.Seq, e.CreatedAt, e.Description, int64(e.Amount), e.Payer, e.Beneficiaries, int64(e.Share),
		); err != nil {
			return fmt.Errorf("insert expense %s: %w", e.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// LoadAll reads every stored session.
func (db *DB) LoadAll(ctx context.Context) ([]ledger.Snapshot, error) {
	rows, err := db.pool.Query(ctx, `SELECT session_id, version, updated_at FROM ledger_sessions ORDER BY session_id`)
	if err != nil {
		return nil, err
	}
	var snaps []*ledger.Snapshot
	byID := make(map[string]*ledger.Snapshot)
	for rows.Next() {
		s := &ledger.Snapshot{ExternalIDs: make(map[string]string)}
		var updated time.Time
		if err := rows.Scan(&s.SessionID, &s.Version, &updated); err != nil {
			rows.Close()
			return nil, err
		}
		s.UpdatedAt = updated
		snaps = append(snaps, s)
		byID[s.SessionID] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.loadMembers(ctx, byID); err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	if err := db.loadExternalIDs(ctx, byID); err != nil {
		return nil, fmt.Errorf("load external ids: %w", err)
	}
	if err := db.loadExpenses(ctx, byID); err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}

	out := make([]ledger.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, *s)
	}
	return out, nil
}

func (db *DB) loadMembers(ctx context.Context, byID map[string]*ledger.Snapshot) error {
	rows, err := db.pool.Query(ctx,
		`SELECT session_id, name, balance_cents, payment_address FROM ledger_members ORDER BY session_id, position`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var sid string
		var m ledger.Member
		var balance int64
		if err := rows.Scan(&sid, &m.Name, &balance, &m.PaymentAddress); err != nil {
			return err
		}
		m.Balance = ledger.Amount(balance)
		if s, ok := byID[sid]; ok {
			s.Members = append(s.Members, m)
		}
	}
	return rows.Err()
}

func (db *DB) loadExternalIDs(ctx context.Context, byID map[string]*ledger.Snapshot) error {
	rows, err := db.pool.Query(ctx, `SELECT session_id, name, external_id FROM ledger_external_ids`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var sid, name, id string
		if err := rows.Scan(&sid, &name, &id); err != nil {
			return err
		}
		if s, ok := byID[sid]; ok {
			s.ExternalIDs[name] = id
		}
	}
	return rows.Err()
}

func (db *DB) loadExpenses(ctx context.Context, byID map[string]*ledger.Snapshot) error {
	rows, err := db.pool.Query(ctx,
		`SELECT session_id, id, seq, created_at, description, amount_cents, payer, beneficiaries, share_cents
         FROM ledger_expenses ORDER BY session_id, seq`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sid           string
			e             ledger.Expense
			amount, share int64
		)
		if err := rows.Scan(&sid, &e.ID, &e.Seq, &e.CreatedAt, &e.Description, &amount, &e.Payer, &e.Beneficiaries, &share); err != nil {
			return err
		}
		e.Amount = ledger.Amount(amount)
		e.Share = ledger.Amount(share)
		if s, ok := byID[sid]; ok {
			s.Expenses = append(s.Expenses, e)
		}
	}
	return rows.Err()
}
