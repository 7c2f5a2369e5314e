package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"

	"github.com/susu3304/warikanbot/internal/ledger"
	"github.com/susu3304/warikanbot/internal/logging"
)

const historyLimit = 15

type Settings struct {
	Keyword  string
	Currency string
}

// Reply is what a handler wants shown. Update edits the message that carried
// the pressed button instead of posting a new one.
type Reply struct {
	Content    string
	Components []discordgo.MessageComponent
	Ephemeral  bool
	Update     bool
}

// Handler translates chat actions into ledger operations. Its methods take
// plain values so they can be exercised without a gateway connection.
type Handler struct {
	svc      *ledger.Service
	settings Settings
	log      *slog.Logger
}

func NewHandler(svc *ledger.Service, settings Settings, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, settings: settings, log: log.With("component", logging.ComponentBot)}
}

func text(content string) Reply { return Reply{Content: content} }

func private(content string) Reply { return Reply{Content: content, Ephemeral: true} }

const adminOnly = "このコマンドは管理者のみ使用できます。"

// Members shows the roster when namesText is empty and replaces it otherwise.
func (h *Handler) Members(ctx context.Context, sessionID string, admin bool, namesText string) Reply {
	if strings.TrimSpace(namesText) == "" {
		return h.RosterView(sessionID)
	}
	if !admin {
		return private(adminOnly)
	}
	roster, err := h.svc.RegisterMembers(ctx, sessionID, ParseNames(namesText))
	if err != nil {
		return private(err.Error())
	}
	return text(fmt.Sprintf("✅ メンバーを登録しました (%d名):\n%s", len(roster), strings.Join(roster, "\n")))
}

func (h *Handler) AddMember(ctx context.Context, sessionID string, admin bool, name string) Reply {
	if !admin {
		return private(adminOnly)
	}
	if err := h.svc.AddMember(ctx, sessionID, name); err != nil {
		return private(err.Error())
	}
	return text(fmt.Sprintf("✅ %s をメンバーに追加しました", strings.TrimSpace(name)))
}

func (h *Handler) SetUPI(ctx context.Context, sessionID string, admin bool, member, address string) Reply {
	if !admin {
		return private(adminOnly)
	}
	if err := h.svc.SetPaymentAddress(ctx, sessionID, member, address); err != nil {
		return private(err.Error())
	}
	return text(fmt.Sprintf("🔗 %s の UPI ID を `%s` に設定しました", member, strings.TrimSpace(address)))
}

func (h *Handler) Summary(sessionID string) Reply {
	transfers := h.svc.Settlements(sessionID)
	return Reply{
		Content:    FormatSummary(transfers, h.settings.Currency),
		Components: PayButtons(transfers, h.svc.PaymentAddresses(sessionID), h.settings.Currency),
	}
}

func (h *Handler) Me(sessionID, name string) Reply {
	return private(FormatPersonal(h.svc.PersonalSummary(sessionID, name), h.settings.Currency))
}

func (h *Handler) History(sessionID string) Reply {
	return text(FormatHistory(h.svc.History(sessionID), h.settings.Currency, historyLimit))
}

func (h *Handler) RosterView(sessionID string) Reply {
	return text(FormatMembers(h.svc.Members(sessionID), h.settings.Currency))
}

func (h *Handler) Notify(ctx context.Context, sessionID string) Reply {
	report, err := h.svc.NotifyDebtors(ctx, sessionID, func(debtor string, owed []ledger.Transfer) string {
		return NotifyMessage(debtor, owed, h.settings.Currency)
	})
	if err != nil {
		h.log.ErrorContext(ctx, "notify failed", "session_id", sessionID, "error", err)
		return private("通知に失敗しました。")
	}
	if len(report.Transfers) == 0 {
		return text("🎉 全員精算済みです")
	}
	msg := fmt.Sprintf("📩 %d 人に通知しました", report.Sent)
	if report.Failed > 0 {
		msg += fmt.Sprintf("\n送信失敗: %d 人", report.Failed)
	}
	if report.Skipped > 0 {
		msg += fmt.Sprintf("\nDiscord アカウント不明: %d 人 (一度 `%s` で支出を記録すると通知できます)", report.Skipped, h.settings.Keyword)
	}
	return text(msg)
}

func (h *Handler) Help() Reply {
	return private(HelpText(h.settings.Keyword))
}

func (h *Handler) Menu() Reply {
	return Reply{Content: "🧮 **割り勘メニュー**", Components: MenuComponents()}
}

// StartExpense begins a draft paid by author. The author's Discord ID is
// remembered first so later notifications can reach them.
func (h *Handler) StartExpense(ctx context.Context, sessionID, author, externalID, amount, description string) Reply {
	isMember := lo.ContainsBy(h.svc.Members(sessionID), func(m ledger.Member) bool { return m.Name == author })
	if externalID != "" && isMember {
		h.svc.RecordExternalID(ctx, sessionID, author, externalID)
	}
	view, replaced, err := h.svc.BeginDraft(ctx, sessionID, author, amount, description)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownMember) {
			return private(fmt.Sprintf("%s はメンバーではありません。", author))
		}
		return private(err.Error())
	}
	return Reply{
		Content:    DraftMessage(view, h.settings.Currency, replaced),
		Components: DraftComponents(view),
	}
}

func (h *Handler) Pick(ctx context.Context, sessionID, member string) Reply {
	view, err := h.svc.ToggleBeneficiary(ctx, sessionID, member)
	if err != nil {
		return private(err.Error())
	}
	return Reply{
		Content:    DraftMessage(view, h.settings.Currency, false),
		Components: DraftComponents(view),
		Update:     true,
	}
}

func (h *Handler) Done(ctx context.Context, sessionID string) Reply {
	e, err := h.svc.Commit(ctx, sessionID)
	if err != nil {
		return private(err.Error())
	}
	return Reply{
		Content: fmt.Sprintf("🧾 支出を記録しました\n支払者: %s\n金額: %s\n対象: %s (1人 %s)",
			e.Payer, money(e.Amount, h.settings.Currency), strings.Join(e.Beneficiaries, ", "), money(e.Share, h.settings.Currency)),
		Components: []discordgo.MessageComponent{},
		Update:     true,
	}
}

func (h *Handler) Cancel(ctx context.Context, sessionID string) Reply {
	if err := h.svc.CancelDraft(ctx, sessionID); err != nil {
		return private(err.Error())
	}
	return Reply{Content: "🚫 支出の入力をキャンセルしました", Components: []discordgo.MessageComponent{}, Update: true}
}

// Component dispatches a button press by custom ID.
func (h *Handler) Component(ctx context.Context, sessionID, customID, userName string) Reply {
	switch {
	case strings.HasPrefix(customID, PickPrefix):
		return h.Pick(ctx, sessionID, strings.TrimPrefix(customID, PickPrefix))
	case customID == DoneID:
		return h.Done(ctx, sessionID)
	case customID == CancelID:
		return h.Cancel(ctx, sessionID)
	case strings.HasPrefix(customID, MenuPrefix):
		switch strings.TrimPrefix(customID, MenuPrefix) {
		case "summary":
			return h.Summary(sessionID)
		case "me":
			return h.Me(sessionID, userName)
		case "history":
			return h.History(sessionID)
		case "help":
			return h.Help()
		}
	}
	return private("不明な操作です。")
}
