package bot

import (
	"context"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/warikanbot/internal/commands"
	"github.com/susu3304/warikanbot/internal/ledger"
)

const autoPostFooter = "\n\n※このメッセージは自動投稿です"

// reminderWorker periodically posts outstanding settlements to channels whose
// ledger changed since the last reminder.
type reminderWorker struct {
	svc      *ledger.Service
	session  reminderSession
	currency string
	log      *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	ticker   *time.Ticker
	interval time.Duration

	// session id -> ledger version at the last successful reminder
	reminded map[string]int64
}

// Minimal session interface for sending channel messages.
type reminderSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func newReminderWorker(session reminderSession, svc *ledger.Service, currency string, interval time.Duration, log *slog.Logger) *reminderWorker {
	return &reminderWorker{
		svc:      svc,
		session:  session,
		currency: currency,
		log:      log,
		stopChan: make(chan struct{}),
		interval: interval,
		reminded: make(map[string]int64),
	}
}

func (w *reminderWorker) start() {
	if w == nil {
		return
	}
	w.ticker = time.NewTicker(w.interval)
	go w.loop()
}

func (w *reminderWorker) stop() {
	if w == nil {
		return
	}
	w.stopOnce.Do(func() {
		close(w.stopChan)
		if w.ticker != nil {
			w.ticker.Stop()
		}
	})
}

func (w *reminderWorker) loop() {
	ctx := context.Background()
	for {
		select {
		case <-w.ticker.C:
			w.tick(ctx)
		case <-w.stopChan:
			return
		}
	}
}

// tick is only ever called from loop, so reminded needs no lock.
func (w *reminderWorker) tick(ctx context.Context) {
	for _, sessionID := range w.svc.SessionIDs() {
		version := w.svc.Version(sessionID)
		if last, ok := w.reminded[sessionID]; ok && last == version {
			continue
		}
		transfers := w.svc.Settlements(sessionID)
		if len(transfers) == 0 {
			w.reminded[sessionID] = version
			continue
		}

		msg := commands.FormatSummary(transfers, w.currency) + autoPostFooter
		if err := w.sendWithRetry(ctx, sessionID, msg); err != nil {
			// Not marked, so the next tick tries again.
			w.log.WarnContext(ctx, "reminder: failed to send message", "channel_id", sessionID, "error", err)
			continue
		}
		w.reminded[sessionID] = version
	}
}

func (w *reminderWorker) sendWithRetry(ctx context.Context, channelID, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, err := w.session.ChannelMessageSend(channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) {
			return err
		}
		time.Sleep(time.Duration(300+rand.Intn(500)) * time.Millisecond)
	}
	return lastErr
}

func isTemporaryOrTimeout(err error) bool {
	if err == nil {
		return false
	}
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout() || ne.Temporary()
	}
	return false
}
