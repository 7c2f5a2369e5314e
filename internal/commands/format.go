package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/susu3304/warikanbot/internal/ledger"
)

// Discord allows five buttons per row and five rows per message.
const (
	buttonsPerRow = 5
	maxRows       = 5
)

func money(a ledger.Amount, currency string) string {
	return fmt.Sprintf("%s %s", a.String(), currency)
}

// UPILink builds a payment intent for the creditor's address.
func UPILink(address, creditor string, amount ledger.Amount, currency string) string {
	return fmt.Sprintf("upi://pay?pa=%s&pn=%s&am=%s&cu=%s",
		url.QueryEscape(address),
		url.QueryEscape(creditor),
		amount.String(),
		currency)
}

func FormatSummary(transfers []ledger.Transfer, currency string) string {
	var b strings.Builder
	b.WriteString("💰 **精算サマリー**\n")
	if len(transfers) == 0 {
		b.WriteString("全員精算済みです 🎉")
		return b.String()
	}
	for _, t := range transfers {
		fmt.Fprintf(&b, "・%s ➜ %s: %s\n", t.From, t.To, money(t.Amount, currency))
	}
	return strings.TrimRight(b.String(), "\n")
}

// PayButtons returns link buttons for every transfer whose creditor has a
// payment address.
func PayButtons(transfers []ledger.Transfer, addresses map[string]string, currency string) []discordgo.MessageComponent {
	var buttons []discordgo.MessageComponent
	for _, t := range transfers {
		addr, ok := addresses[t.To]
		if !ok || addr == "" {
			continue
		}
		buttons = append(buttons, discordgo.Button{
			Label: fmt.Sprintf("%s → %s %s", t.From, t.To, money(t.Amount, currency)),
			Style: discordgo.LinkButton,
			URL:   UPILink(addr, t.To, t.Amount, currency),
		})
	}
	return buttonRows(buttons, maxRows)
}

func buttonRows(buttons []discordgo.MessageComponent, rows int) []discordgo.MessageComponent {
	var out []discordgo.MessageComponent
	for _, chunk := range lo.Chunk(buttons, buttonsPerRow) {
		if len(out) == rows {
			break
		}
		out = append(out, discordgo.ActionsRow{Components: chunk})
	}
	return out
}

func codeBlock(render func(t *tablewriter.Table)) string {
	var b strings.Builder
	b.WriteString("```\n")
	table := tablewriter.NewWriter(&b)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	render(table)
	table.Render()
	b.WriteString("```")
	return b.String()
}

func FormatMembers(members []ledger.Member, currency string) string {
	if len(members) == 0 {
		return "メンバーが登録されていません。`/warikan members` で登録してください。"
	}
	return fmt.Sprintf("👥 **メンバー (%d名)**\n", len(members)) + codeBlock(func(t *tablewriter.Table) {
		t.SetHeader([]string{"名前", "残高", "UPI"})
		for _, m := range members {
			t.Append([]string{m.Name, money(m.Balance, currency), m.PaymentAddress})
		}
	})
}

// FormatHistory shows the most recent limit expenses, oldest first.
func FormatHistory(expenses []ledger.Expense, currency string, limit int) string {
	if len(expenses) == 0 {
		return "まだ支出は記録されていません。"
	}
	shown := expenses
	if limit > 0 && len(shown) > limit {
		shown = shown[len(shown)-limit:]
	}
	header := fmt.Sprintf("🧾 **支出履歴** (%d件中 %d件)\n", len(expenses), len(shown))
	return header + codeBlock(func(t *tablewriter.Table) {
		t.SetHeader([]string{"#", "日時", "内容", "金額", "支払者", "対象"})
		for _, e := range shown {
			t.Append([]string{
				fmt.Sprint(e.Seq),
				e.CreatedAt.Format("01/02 15:04"),
				e.Description,
				money(e.Amount, currency),
				e.Payer,
				strings.Join(e.Beneficiaries, ", "),
			})
		}
	})
}

func FormatPersonal(p ledger.Personal, currency string) string {
	var status string
	switch {
	case p.Net > 0:
		status = fmt.Sprintf("%s を**受け取る**予定です", money(p.Net, currency))
	case p.Net < 0:
		status = fmt.Sprintf("%s を**支払う**必要があります", money(p.Net.Abs(), currency))
	default:
		status = "精算済みです"
	}
	return fmt.Sprintf("📒 **個人サマリー: %s**\n・支払額: %s\n・負担額: %s\n・差引: %s",
		p.Name, money(p.Paid, currency), money(p.Share, currency), status)
}

// NotifyMessage is the DM sent to a debtor.
func NotifyMessage(debtor string, owed []ledger.Transfer, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s さん、未精算の支払いがあります。\n", debtor)
	for _, t := range owed {
		fmt.Fprintf(&b, "・%s さんへ %s\n", t.To, money(t.Amount, currency))
	}
	b.WriteString("早めの精算をお願いします。")
	return b.String()
}

func HelpText(keyword string) string {
	return "🆘 **ヘルプ**\n\n" +
		fmt.Sprintf("➤ `%s<金額> <内容>` 支出を記録\n", keyword) +
		"➤ `/warikan expense` 支出を記録 (スラッシュコマンド)\n" +
		"➤ `/warikan members A,B,C` メンバーを登録 (管理者)\n" +
		"➤ `/warikan addmember 名前` メンバーを追加 (管理者)\n" +
		"➤ `/warikan upi 名前 UPI_ID` UPI ID を設定 (管理者)\n" +
		"➤ `/warikan summary` 精算方法を表示\n" +
		"➤ `/warikan me` 自分の収支を表示\n" +
		"➤ `/warikan history` 支出履歴を表示\n" +
		"➤ `/warikan notify` 未精算のメンバーに DM を送信\n" +
		"➤ `/warikan menu` メニューを表示\n\n" +
		"💡 メンバー名は Discord のユーザー名と一致させてください。"
}

func DraftMessage(v ledger.DraftView, currency string, replaced bool) string {
	var b strings.Builder
	if replaced {
		b.WriteString("⚠️ 入力中だった支出を破棄しました。\n")
	}
	b.WriteString("💸 **新しい支出**\n")
	fmt.Fprintf(&b, "支払者: %s\n金額: %s\n", v.Payer, money(v.Amount, currency))
	if v.Description != "" {
		fmt.Fprintf(&b, "内容: %s\n", v.Description)
	}
	if len(v.Selected) > 0 {
		fmt.Fprintf(&b, "対象: %s\n", strings.Join(v.Selected, ", "))
	}
	b.WriteString("対象者を選んで「完了」を押してください。")
	return b.String()
}

// DraftComponents renders one toggle button per member plus Done and Cancel.
// Members beyond the fourth row cannot be picked from the keyboard.
func DraftComponents(v ledger.DraftView) []discordgo.MessageComponent {
	buttons := lo.Map(v.Members, func(m string, _ int) discordgo.MessageComponent {
		style := discordgo.SecondaryButton
		label := m
		if v.IsSelected(m) {
			style = discordgo.PrimaryButton
			label = m + " ✔️"
		}
		return discordgo.Button{Label: label, Style: style, CustomID: PickPrefix + m}
	})
	rows := buttonRows(buttons, maxRows-1)
	return append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: "✔️ 完了", Style: discordgo.SuccessButton, CustomID: DoneID},
		discordgo.Button{Label: "❌ キャンセル", Style: discordgo.DangerButton, CustomID: CancelID},
	}})
}

func MenuComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: "📊 精算", Style: discordgo.PrimaryButton, CustomID: MenuPrefix + "summary"},
		discordgo.Button{Label: "🧍 自分の収支", Style: discordgo.SecondaryButton, CustomID: MenuPrefix + "me"},
		discordgo.Button{Label: "🧾 履歴", Style: discordgo.SecondaryButton, CustomID: MenuPrefix + "history"},
		discordgo.Button{Label: "🆘 ヘルプ", Style: discordgo.SecondaryButton, CustomID: MenuPrefix + "help"},
	}}}
}
