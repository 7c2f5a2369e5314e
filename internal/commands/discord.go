package commands

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// HandleCommand serves /warikan. The channel is the ledger session.
func (h *Handler) HandleCommand(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		respond(s, i, private("サブコマンドが指定されていません"))
		return
	}

	sub := data.Options[0]
	sessionID := i.ChannelID
	admin := isAdmin(i)
	user := interactionUser(i)

	var reply Reply
	switch sub.Name {
	case "members":
		reply = h.Members(ctx, sessionID, admin, stringOption(sub.Options, "names"))
	case "addmember":
		reply = h.AddMember(ctx, sessionID, admin, stringOption(sub.Options, "name"))
	case "upi":
		reply = h.SetUPI(ctx, sessionID, admin, stringOption(sub.Options, "name"), stringOption(sub.Options, "address"))
	case "expense":
		externalID := ""
		if user != nil {
			externalID = user.ID
		}
		reply = h.StartExpense(ctx, sessionID, DisplayName(user), externalID,
			stringOption(sub.Options, "amount"), stringOption(sub.Options, "description"))
	case "summary":
		reply = h.Summary(sessionID)
	case "me":
		name := stringOption(sub.Options, "name")
		if name == "" {
			name = DisplayName(user)
		}
		reply = h.Me(sessionID, name)
	case "history":
		reply = h.History(sessionID)
	case "notify":
		// DMs can take longer than the 3s interaction deadline.
		deferResponse(s, i)
		reply = h.Notify(ctx, sessionID)
		followup(s, i, reply)
		return
	case "menu":
		reply = h.Menu()
	case "help":
		reply = h.Help()
	default:
		reply = private("未知のサブコマンドです")
	}
	respond(s, i, reply)
}

// HandleComponent serves draft and menu buttons.
func (h *Handler) HandleComponent(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	reply := h.Component(ctx, i.ChannelID, data.CustomID, DisplayName(interactionUser(i)))
	respond(s, i, reply)
}

// HandleMessage starts a draft from "<keyword><amount> <description>".
func (h *Handler) HandleMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	amount, description, ok, err := ParseExpense(h.settings.Keyword, m.Content)
	if !ok {
		return
	}
	if err != nil {
		send(s, m.ChannelID, text("使い方: `"+h.settings.Keyword+"<金額> <内容>`"))
		return
	}
	reply := h.StartExpense(ctx, m.ChannelID, DisplayName(m.Author), m.Author.ID, amount, description)
	send(s, m.ChannelID, reply)
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, r Reply) {
	typ := discordgo.InteractionResponseChannelMessageWithSource
	if r.Update && !r.Ephemeral {
		typ = discordgo.InteractionResponseUpdateMessage
	}
	data := &discordgo.InteractionResponseData{
		Content:    r.Content,
		Components: r.Components,
	}
	if r.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{Type: typ, Data: data}); err != nil {
		slog.Error("Failed to respond to interaction", "error", err, "channel_id", i.ChannelID)
	}
}

func deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		slog.Error("Failed to defer interaction", "error", err, "channel_id", i.ChannelID)
	}
}

func followup(s *discordgo.Session, i *discordgo.InteractionCreate, r Reply) {
	content := r.Content
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		slog.Error("Failed to edit interaction response", "error", err, "channel_id", i.ChannelID)
	}
}

func send(s *discordgo.Session, channelID string, r Reply) {
	if _, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    r.Content,
		Components: r.Components,
	}); err != nil {
		slog.Error("Failed to send message", "error", err, "channel_id", channelID)
	}
}
