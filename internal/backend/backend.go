// Package backend turns configuration into concrete ledger adapters.
package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/susu3304/warikanbot/internal/amqp"
	"github.com/susu3304/warikanbot/internal/config"
	"github.com/susu3304/warikanbot/internal/db"
	"github.com/susu3304/warikanbot/internal/export/sheets"
	"github.com/susu3304/warikanbot/internal/ledger"
	"github.com/susu3304/warikanbot/internal/storage"
)

const (
	MemoryBackend   = "memory"
	PostgresBackend = "postgres"
	SQLiteBackend   = "sqlite"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Factory builds the store and exporter selected by configuration.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// NewStore returns a nil store for the memory backend. The closer is never nil.
func (f *Factory) NewStore(ctx context.Context, cfg *config.Config) (ledger.Store, io.Closer, error) {
	switch cfg.DataBackend {
	case "", MemoryBackend:
		f.logger.Info("Using in-memory ledger, nothing is persisted")
		return nil, nopCloser{}, nil
	case PostgresBackend:
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := database.RunMigrations(ctx); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		f.logger.Info("Initialized PostgreSQL backend")
		return database, database, nil
	case SQLiteBackend:
		store, err := storage.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLitePath)
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend type: %s", cfg.DataBackend)
	}
}

// NewExporter prefers the AMQP queue, then direct Sheets writes. Failing
// to reach either is logged and export is disabled; the ledger keeps working.
func (f *Factory) NewExporter(ctx context.Context, cfg *config.Config) (ledger.Exporter, io.Closer) {
	if cfg.QueueEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without export", "error", err)
			return nil, nopCloser{}
		}
		f.logger.Info("Initialized AMQP client",
			"exchange", cfg.AMQPExchange,
			"queue", cfg.AMQPQueue)
		return client, client
	}

	if cfg.SheetsEnabled() {
		client, err := f.NewSheets(ctx, cfg)
		if err != nil {
			f.logger.Warn("Failed to initialize Google Sheets client, continuing without export", "error", err)
			return nil, nopCloser{}
		}
		return client, nopCloser{}
	}

	return nil, nopCloser{}
}

func (f *Factory) NewSheets(ctx context.Context, cfg *config.Config) (*sheets.Client, error) {
	client, err := sheets.New(ctx, sheets.Credentials{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
	})
	if err != nil {
		return nil, err
	}
	f.logger.Info("Initialized Google Sheets client", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
