package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/susu3304/warikanbot/internal/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "warikan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSnapshot(version int64) ledger.Snapshot {
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	return ledger.Snapshot{
		SessionID: "chan-1",
		Version:   version,
		UpdatedAt: at,
		Members: []ledger.Member{
			{Name: "A", Balance: 6000, PaymentAddress: "a@upi"},
			{Name: "B", Balance: -3000},
			{Name: "C", Balance: -3000},
		},
		Expenses: []ledger.Expense{{
			ID:            "e1",
			Seq:           1,
			CreatedAt:     at,
			Description:   "dinner",
			Amount:        9000,
			Payer:         "A",
			Beneficiaries: []string{"A", "B", "C"},
			Share:         3000,
		}},
		ExternalIDs: map[string]string{"A": "100", "B": "200"},
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newTestStore(t)

	snap := sampleSnapshot(3)
	req.NoError(s.Save(ctx, snap))

	loaded, err := s.LoadAll(ctx)
	req.NoError(err)
	req.Len(loaded, 1)
	got := loaded[0]
	req.Equal(snap.SessionID, got.SessionID)
	req.Equal(snap.Version, got.Version)
	req.True(snap.UpdatedAt.Equal(got.UpdatedAt))
	req.Equal(snap.Members, got.Members)
	req.Equal(snap.ExternalIDs, got.ExternalIDs)
	req.Len(got.Expenses, 1)
	req.Equal(snap.Expenses[0].Beneficiaries, got.Expenses[0].Beneficiaries)
	req.Equal(snap.Expenses[0].Share, got.Expenses[0].Share)
	req.True(snap.Expenses[0].CreatedAt.Equal(got.Expenses[0].CreatedAt))
}

func TestStore_StaleVersionIgnored(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newTestStore(t)

	newer := sampleSnapshot(5)
	req.NoError(s.Save(ctx, newer))

	older := sampleSnapshot(4)
	older.Members = []ledger.Member{{Name: "X"}, {Name: "Y"}}
	req.NoError(s.Save(ctx, older))

	loaded, err := s.LoadAll(ctx)
	req.NoError(err)
	req.Len(loaded, 1)
	req.Equal(int64(5), loaded[0].Version)
	req.Equal(newer.Members, loaded[0].Members)
}

func TestStore_HistoryAppendOnly(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newTestStore(t)

	first := sampleSnapshot(1)
	req.NoError(s.Save(ctx, first))

	second := sampleSnapshot(2)
	second.Members = []ledger.Member{{Name: "B"}, {Name: "C"}}
	second.Expenses = append(second.Expenses, ledger.Expense{
		ID:            "e2",
		Seq:           2,
		CreatedAt:     first.UpdatedAt.Add(time.Hour),
		Description:   "taxi",
		Amount:        1000,
		Payer:         "B",
		Beneficiaries: []string{"C"},
		Share:         1000,
	})
	req.NoError(s.Save(ctx, second))

	loaded, err := s.LoadAll(ctx)
	req.NoError(err)
	req.Len(loaded[0].Expenses, 2)
	req.Equal("e1", loaded[0].Expenses[0].ID)
	req.Equal("e2", loaded[0].Expenses[1].ID)
	req.Equal([]string{"C"}, loaded[0].Expenses[1].Beneficiaries)
	req.Len(loaded[0].Members, 2)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "warikan.db")

	s, err := New(path)
	req.NoError(err)
	req.NoError(s.Save(ctx, sampleSnapshot(1)))
	req.NoError(s.Close())

	s, err = New(path)
	req.NoError(err)
	defer s.Close()
	loaded, err := s.LoadAll(ctx)
	req.NoError(err)
	req.Len(loaded, 1)
}
