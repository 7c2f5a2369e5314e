package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/susu3304/warikanbot/internal/config"
	"github.com/susu3304/warikanbot/internal/ledger"
)

func TestNewStore_Memory(t *testing.T) {
	f := NewFactory(nil)
	store, closer, err := f.NewStore(context.Background(), &config.Config{DataBackend: MemoryBackend})
	require.NoError(t, err)
	require.Nil(t, store)
	require.NoError(t, closer.Close())
}

func TestNewStore_SQLite(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := NewFactory(nil)
	cfg := &config.Config{
		DataBackend: SQLiteBackend,
		SQLitePath:  filepath.Join(t.TempDir(), "warikan.db"),
	}

	store, closer, err := f.NewStore(ctx, cfg)
	req.NoError(err)
	req.NotNil(store)
	defer closer.Close()

	svc := ledger.NewService(ledger.Options{Store: store})
	_, err = svc.RegisterMembers(ctx, "chan-1", []string{"A", "B"})
	req.NoError(err)

	snaps, err := store.LoadAll(ctx)
	req.NoError(err)
	req.Len(snaps, 1)
	req.Equal("chan-1", snaps[0].SessionID)
}

func TestNewStore_Unsupported(t *testing.T) {
	_, _, err := NewFactory(nil).NewStore(context.Background(), &config.Config{DataBackend: "redis"})
	require.Error(t, err)
}

func TestNewExporter_Disabled(t *testing.T) {
	exp, closer := NewFactory(nil).NewExporter(context.Background(), &config.Config{})
	require.Nil(t, exp)
	require.NoError(t, closer.Close())
}
