package bot

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/warikanbot/internal/commands"
	"github.com/susu3304/warikanbot/internal/ledger"
	"github.com/susu3304/warikanbot/internal/logging"
)

type Bot struct {
	session  *discordgo.Session
	handler  *commands.Handler
	reminder *reminderWorker
	log      *slog.Logger
}

// NewSession creates the gateway session shared by the bot and the DM notifier.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	return session, nil
}

// New wires event handlers onto session. A zero reminderInterval disables reminders.
func New(session *discordgo.Session, svc *ledger.Service, settings commands.Settings, reminderInterval time.Duration, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", logging.ComponentBot)

	bot := &Bot{
		session: session,
		handler: commands.NewHandler(svc, settings, log),
		log:     log,
	}
	if reminderInterval > 0 {
		bot.reminder = newReminderWorker(session, svc, settings.Currency, reminderInterval, log)
	}

	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onMessageCreate)
	session.AddHandler(bot.onInteractionCreate)

	return bot
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.reminder.start()
	b.log.Info("Discord bot is running", "reminders", b.reminder != nil)
	return nil
}

func (b *Bot) Stop() error {
	b.reminder.stop()
	return b.session.Close()
}
