package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"github.com/susu3304/warikanbot/internal/api"
	"github.com/susu3304/warikanbot/internal/backend"
	"github.com/susu3304/warikanbot/internal/bot"
	"github.com/susu3304/warikanbot/internal/commands"
	"github.com/susu3304/warikanbot/internal/config"
	"github.com/susu3304/warikanbot/internal/ledger"
	"github.com/susu3304/warikanbot/internal/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("warikanbot stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat).With("component", logging.ComponentApp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage and export
	factory := backend.NewFactory(logger)
	store, storeCloser, err := factory.NewStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly(logger, "store", storeCloser)

	exporter, exportCloser := factory.NewExporter(ctx, cfg)
	defer closeQuietly(logger, "exporter", exportCloser)

	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}

	// Initialize ledger
	svc := ledger.NewService(ledger.Options{
		Store:             store,
		Exporter:          exporter,
		Notifier:          bot.NewNotifier(session),
		Logger:            slog.Default(),
		DraftTTL:          cfg.DraftTTL,
		DraftPolicy:       ledger.DraftPolicy(cfg.DraftConflict),
		ExportTimeout:     cfg.ExportTimeout,
		NotifyConcurrency: cfg.NotifyConcurrency,
	})
	defer svc.Close()

	restored, err := svc.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore sessions: %w", err)
	}
	logger.Info("Ledger ready", "backend", cfg.DataBackend, "sessions", restored)

	// Initialize Discord bot
	b := bot.New(session, svc, commands.Settings{
		Keyword:  cfg.ExpenseKeyword,
		Currency: cfg.Currency,
	}, cfg.ReminderInterval, slog.Default())
	if err := b.Start(); err != nil {
		return err
	}
	defer func() {
		if err := b.Stop(); err != nil {
			logger.Warn("Failed to close discord session", "error", err)
		}
	}()

	// Initialize API server
	server := api.New(cfg, svc, channelGuild(session))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	logger.Info("Bot is now running. Press CTRL-C to exit.")
	<-gctx.Done()
	logger.Info("Shutting down")

	return g.Wait()
}

// channelGuild resolves a session (channel) to its guild, preferring the gateway cache.
func channelGuild(session *discordgo.Session) api.ChannelGuild {
	return func(channelID string) (string, error) {
		if ch, err := session.State.Channel(channelID); err == nil {
			return ch.GuildID, nil
		}
		ch, err := session.Channel(channelID)
		if err != nil {
			return "", err
		}
		return ch.GuildID, nil
	}
}

func closeQuietly(logger *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn("Failed to close", "resource", name, "error", err)
	}
}
