// Command warikan-export-worker drains the expense export queue into Google Sheets.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/susu3304/warikanbot/internal/amqp"
	"github.com/susu3304/warikanbot/internal/backend"
	"github.com/susu3304/warikanbot/internal/config"
	"github.com/susu3304/warikanbot/internal/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("export worker stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWorker()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat).With("component", logging.ComponentWorker)
	logger.Info("Starting export worker")

	if !cfg.QueueEnabled() || !cfg.SheetsEnabled() {
		return errors.New("export worker needs both AMQP_URL and GOOGLE_SPREADSHEET_ID")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sheetsClient, err := backend.NewFactory(logger).NewSheets(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	queue, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("failed to initialize AMQP client: %w", err)
	}
	defer queue.Close()

	err = queue.Consume(ctx, func(ctx context.Context, msg *amqp.ExpenseExportMessage) error {
		logger.Debug("Exporting expense", "session_id", msg.SessionID, "expense_id", msg.ExpenseID)
		return sheetsClient.Export(ctx, msg.SessionID, msg.Expense())
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Export worker stopped")
	return nil
}
