// Package store abstracts persistence of per-document transaction
// histories for the rebase server.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// DocumentInfo holds document history metadata.
type DocumentInfo struct {
	ID        string
	Length    int // number of committed transactions
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HistoryStore abstracts transaction-history persistence. Transactions are
// stored in their serialized wire form (raw operation lists); the rebase
// server owns the decoded in-memory histories.
// Implementations: MemoryStore, CachedStore, FirestoreStore.
type HistoryStore interface {
	Create(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*DocumentInfo, error)
	List(ctx context.Context) ([]DocumentInfo, error)
	// AppendTransactions appends serialized transactions, recording the new
	// history length.
	AppendTransactions(ctx context.Context, id string, txs []json.RawMessage, length int) error
	// GetTransactions returns serialized transactions from position from to
	// the tip.
	GetTransactions(ctx context.Context, id string, from int) ([]json.RawMessage, error)
	// Clear drops all documents. Test/demo reset hook only.
	Clear(ctx context.Context) error
}
