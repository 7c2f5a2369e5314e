package ledger

import "time"

// Expense is a committed entry in a session's history. It is never mutated after append.
type Expense struct {
	ID            string
	Seq           int
	CreatedAt     time.Time
	Description   string
	Amount        Amount
	Payer         string
	Beneficiaries []string
	Share         Amount
}

// Balance is one member's signed net position. Positive means the member is owed money.
type Balance struct {
	Member string
	Amount Amount
}

// Transfer instructs From to pay To.
type Transfer struct {
	From   string
	To     string
	Amount Amount
}

// Member is the read view of a roster entry.
type Member struct {
	Name           string
	Balance        Amount
	PaymentAddress string
}

// DraftView is a copy of the pending expense, safe to render outside the session lock.
type DraftView struct {
	Payer       string
	Amount      Amount
	Description string
	Selected    []string
	Members     []string
	ExpiresAt   time.Time
}

// IsSelected reports whether name is currently picked as a beneficiary.
func (d DraftView) IsSelected(name string) bool {
	for _, s := range d.Selected {
		if s == name {
			return true
		}
	}
	return false
}

// Personal summarizes one member's participation.
type Personal struct {
	Name  string
	Paid  Amount
	Share Amount
	Net   Amount
}

// NotifyReport is the outcome of NotifyDebtors.
type NotifyReport struct {
	Transfers []Transfer
	Sent      int
	Failed    int
	Skipped   int
}

// Snapshot is the durable form of a session. The pending draft is not included.
type Snapshot struct {
	SessionID   string
	Version     int64
	UpdatedAt   time.Time
	Members     []Member
	Expenses    []Expense
	ExternalIDs map[string]string
}

// Stats counts side-effect outcomes across all sessions.
type Stats struct {
	Exported      int64
	ExportFailed  int64
	Persisted     int64
	PersistFailed int64
}
