//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=../mocks/mock_ledger_ports.go -package=mocks
package ledger

import "context"

// Exporter receives every committed expense. Calls are fire-and-forget.
type Exporter interface {
	Export(ctx context.Context, sessionID string, e Expense) error
}

// Notifier delivers a direct message to an external user id.
type Notifier interface {
	Notify(ctx context.Context, externalID, message string) error
}

// Store persists session snapshots.
type Store interface {
	LoadAll(ctx context.Context) ([]Snapshot, error)
	// Save writes snap unless the stored version is already newer or equal.
	Save(ctx context.Context, snap Snapshot) error
}
