package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/warikanbot/internal/ledger"
)

type dmSession interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ ledger.Notifier = (*Notifier)(nil)

// Notifier delivers ledger messages as Discord direct messages. The external
// id is the Discord user ID.
type Notifier struct {
	session dmSession
}

func NewNotifier(session dmSession) *Notifier {
	return &Notifier{session: session}
}

func (n *Notifier) Notify(ctx context.Context, userID, message string) error {
	ch, err := n.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open DM channel: %w", err)
	}
	if _, err := n.session.ChannelMessageSend(ch.ID, message, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send DM: %w", err)
	}
	return nil
}
