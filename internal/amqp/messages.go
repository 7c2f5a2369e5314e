package amqp

import (
	"encoding/json"
	"time"

	"github.com/susu3304/warikanbot/internal/ledger"
)

// ExpenseExportMessage carries a committed expense to the export worker.
// Amounts travel as integer cents.
type ExpenseExportMessage struct {
	SessionID     string    `json:"session_id"`
	ExpenseID     string    `json:"expense_id"`
	Seq           int       `json:"seq"`
	CreatedAt     time.Time `json:"created_at"`
	Description   string    `json:"description"`
	AmountCents   int64     `json:"amount_cents"`
	Payer         string    `json:"payer"`
	Beneficiaries []string  `json:"beneficiaries"`
	ShareCents    int64     `json:"share_cents"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewExpenseExportMessage(sessionID string, e ledger.Expense) *ExpenseExportMessage {
	return &ExpenseExportMessage{
		SessionID:     sessionID,
		ExpenseID:     e.ID,
		Seq:           e.Seq,
		CreatedAt:     e.CreatedAt,
		Description:   e.Description,
		AmountCents:   int64(e.Amount),
		Payer:         e.Payer,
		Beneficiaries: e.Beneficiaries,
		ShareCents:    int64(e.Share),
		Timestamp:     time.Now(),
	}
}

// Expense rebuilds the ledger record.
func (m *ExpenseExportMessage) Expense() ledger.Expense {
	return ledger.Expense{
		ID:            m.ExpenseID,
		Seq:           m.Seq,
		CreatedAt:     m.CreatedAt,
		Description:   m.Description,
		Amount:        ledger.Amount(m.AmountCents),
		Payer:         m.Payer,
		Beneficiaries: m.Beneficiaries,
		Share:         ledger.Amount(m.ShareCents),
	}
}

func (m *ExpenseExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseExportMessageFromJSON(data []byte) (*ExpenseExportMessage, error) {
	var msg ExpenseExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
