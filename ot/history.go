package ot

// History is the append-only sequence of committed transactions for one
// document, indexed from zero. It is not safe for concurrent use; the
// rebase server serializes access per document.
type History struct {
	transactions []*Transaction
}

// NewHistory creates an empty history.
func NewHistory(txs ...*Transaction) *History {
	return &History{transactions: txs}
}

// Len returns the current history length.
func (h *History) Len() int { return len(h.transactions) }

// Append adds transactions at the tip.
func (h *History) Append(txs ...*Transaction) {
	h.transactions = append(h.transactions, txs...)
}

// Since returns the change covering history from position start to the tip.
// The transactions are shared with the history.
func (h *History) Since(start int) *Change {
	if start < 0 {
		start = 0
	}
	if start > len(h.transactions) {
		start = len(h.transactions)
	}
	txs := make([]*Transaction, len(h.transactions)-start)
	copy(txs, h.transactions[start:])
	return &Change{Start: start, Transactions: txs}
}
