package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/warikanbot/internal/commands"
)

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	b.log.Info("Connected to Discord", "user", event.User.Username, "guilds", len(event.Guilds))

	// Register commands for all guilds
	for _, guild := range event.Guilds {
		if err := b.registerGuildCommands(guild.ID); err != nil {
			b.log.Error("Failed to register commands", "guild_id", guild.ID, "error", err)
		}
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	b.log.Info("Guild available, ensuring commands", "guild", event.Name, "guild_id", event.ID)
	if err := b.registerGuildCommands(event.ID); err != nil {
		b.log.Error("Failed to register commands", "guild_id", event.ID, "error", err)
	}
}

func (b *Bot) registerGuildCommands(guildID string) error {
	// Replaces whatever was registered before.
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, guildID, commands.GetCommands())
	if err != nil {
		return err
	}
	b.log.Debug("Registered application commands", "guild_id", guildID)
	return nil
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.GuildID == "" {
		return
	}
	b.handler.HandleMessage(context.Background(), s, m)
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if i.ApplicationCommandData().Name == commands.CommandName {
			b.handler.HandleCommand(ctx, s, i)
		}
	case discordgo.InteractionMessageComponent:
		b.handler.HandleComponent(ctx, s, i)
	}
}
