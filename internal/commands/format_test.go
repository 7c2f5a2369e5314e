package commands

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/warikanbot/internal/ledger"
)

func TestParseExpense(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantAmount string
		wantDesc   string
		wantOK     bool
		wantErr    bool
	}{
		{"attached amount", "#r120 dinner", "120", "dinner", true, false},
		{"spaced amount", "#r 45.50 taxi to airport", "45.50", "taxi to airport", true, false},
		{"leading spaces", "   #r10 tea  ", "10", "tea", true, false},
		{"missing description", "#r120", "", "", true, true},
		{"only keyword", "#r", "", "", true, true},
		{"other message", "hello #r10 x", "", "", false, false},
		{"plain text", "dinner was great", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, desc, ok, err := ParseExpense("#r", tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantAmount, amount)
			assert.Equal(t, tt.wantDesc, desc)
		})
	}
}

func TestParseNames(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, ParseNames("A, B ,C"))
	assert.Equal(t, []string{"太郎", "花子"}, ParseNames("太郎、花子"))
	assert.Equal(t, []string{"A", "", "B"}, ParseNames("A,,B"))
}

func TestUPILink(t *testing.T) {
	got := UPILink("alice@upi", "Alice Smith", 12345, "INR")
	assert.Equal(t, "upi://pay?pa=alice%40upi&pn=Alice+Smith&am=123.45&cu=INR", got)
}

func TestFormatSummary(t *testing.T) {
	assert.Contains(t, FormatSummary(nil, "INR"), "全員精算済み")

	got := FormatSummary([]ledger.Transfer{
		{From: "B", To: "A", Amount: 3000},
		{From: "C", To: "A", Amount: 1550},
	}, "INR")
	assert.Contains(t, got, "B ➜ A: 30.00 INR")
	assert.Contains(t, got, "C ➜ A: 15.50 INR")
}

func TestPayButtons(t *testing.T) {
	transfers := []ledger.Transfer{
		{From: "B", To: "A", Amount: 3000},
		{From: "C", To: "D", Amount: 1000},
	}
	rows := PayButtons(transfers, map[string]string{"A": "a@upi"}, "INR")
	require.Len(t, rows, 1)
	row := rows[0].(discordgo.ActionsRow)
	require.Len(t, row.Components, 1)
	btn := row.Components[0].(discordgo.Button)
	assert.Equal(t, discordgo.LinkButton, btn.Style)
	assert.True(t, strings.HasPrefix(btn.URL, "upi://pay?pa=a%40upi&pn=A&am=30.00"))

	assert.Empty(t, PayButtons(transfers, nil, "INR"))
}

func TestDraftComponents(t *testing.T) {
	v := ledger.DraftView{
		Payer:    "A",
		Amount:   9000,
		Members:  []string{"A", "B", "C", "D", "E", "F"},
		Selected: []string{"B"},
	}
	rows := DraftComponents(v)
	require.Len(t, rows, 3)

	first := rows[0].(discordgo.ActionsRow)
	require.Len(t, first.Components, 5)
	b := first.Components[1].(discordgo.Button)
	assert.Equal(t, PickPrefix+"B", b.CustomID)
	assert.Equal(t, discordgo.PrimaryButton, b.Style)
	assert.Equal(t, discordgo.SecondaryButton, first.Components[0].(discordgo.Button).Style)

	last := rows[2].(discordgo.ActionsRow)
	assert.Equal(t, DoneID, last.Components[0].(discordgo.Button).CustomID)
	assert.Equal(t, CancelID, last.Components[1].(discordgo.Button).CustomID)
}

func TestDraftComponents_CapsMemberRows(t *testing.T) {
	members := make([]string, 30)
	for i := range members {
		members[i] = string(rune('a' + i%26)) + strings.Repeat("x", i/26)
	}
	rows := DraftComponents(ledger.DraftView{Members: members})
	assert.Len(t, rows, maxRows)
}

func TestFormatPersonal(t *testing.T) {
	got := FormatPersonal(ledger.Personal{Name: "B", Paid: 0, Share: 3000, Net: -3000}, "INR")
	assert.Contains(t, got, "B")
	assert.Contains(t, got, "30.00 INR を**支払う**")

	assert.Contains(t, FormatPersonal(ledger.Personal{Name: "A", Net: 6000}, "INR"), "受け取る")
	assert.Contains(t, FormatPersonal(ledger.Personal{Name: "C"}, "INR"), "精算済み")
}

func TestFormatHistory(t *testing.T) {
	assert.Contains(t, FormatHistory(nil, "INR", 10), "まだ支出")

	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	var expenses []ledger.Expense
	for i := 1; i <= 3; i++ {
		expenses = append(expenses, ledger.Expense{
			Seq: i, CreatedAt: at, Description: "item" + string(rune('0'+i)),
			Amount: 1000, Payer: "A", Beneficiaries: []string{"A", "B"}, Share: 500,
		})
	}
	got := FormatHistory(expenses, "INR", 2)
	assert.Contains(t, got, "3件中 2件")
	assert.NotContains(t, got, "item1")
	assert.Contains(t, got, "item3")
	assert.True(t, strings.HasPrefix(strings.SplitN(got, "\n", 2)[1], "```"))
}

func TestNotifyMessage(t *testing.T) {
	got := NotifyMessage("B", []ledger.Transfer{{From: "B", To: "A", Amount: 1000}}, "INR")
	assert.Contains(t, got, "B さん")
	assert.Contains(t, got, "A さんへ 10.00 INR")
}

func TestHelpText(t *testing.T) {
	got := HelpText("#r")
	assert.Contains(t, got, "`#r<金額> <内容>`")
	for _, sub := range []string{"members", "addmember", "upi", "summary", "me", "history", "notify"} {
		assert.Contains(t, got, "/warikan "+sub)
	}
}
