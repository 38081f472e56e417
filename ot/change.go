package ot

import (
	"encoding/json"
	"fmt"

	"github.com/okadri/richdoc/doc"
)

// Change is a transaction sequence anchored at a history position: "starting
// from history position Start, apply these transactions in order". Changes
// are how concurrent edits are reasoned about and reconciled.
type Change struct {
	Start        int
	Transactions []*Transaction
}

// NewChange creates a change anchored at start.
func NewChange(start int, txs ...*Transaction) *Change {
	return &Change{Start: start, Transactions: txs}
}

// Len returns the number of transactions in the change.
func (c *Change) Len() int { return len(c.Transactions) }

// End returns the history position just past the change.
func (c *Change) End() int { return c.Start + len(c.Transactions) }

// IsEmpty reports whether the change carries no transactions.
func (c *Change) IsEmpty() bool { return len(c.Transactions) == 0 }

// Clone returns a copy of the change. Transactions are shared; they are
// value objects once built.
func (c *Change) Clone() *Change {
	txs := make([]*Transaction, len(c.Transactions))
	copy(txs, c.Transactions)
	return &Change{Start: c.Start, Transactions: txs}
}

// Reversed returns the undo of the change: anchored just past this change,
// with each transaction reversed and the list order reversed.
func (c *Change) Reversed() *Change {
	txs := make([]*Transaction, len(c.Transactions))
	for i, t := range c.Transactions {
		txs[len(txs)-1-i] = t.Reversed()
	}
	return &Change{Start: c.End(), Transactions: txs}
}

// RebaseOnto rebases this change onto other, a parallel change branching
// from the same history position. The second return value is false when the
// rebase conflicts; a conflicting submission must be re-derived against
// current history and resubmitted.
//
// The algorithm is deliberately conservative: whenever both changes are
// non-empty the rebase conflicts. Only a change parallel to an empty one can
// be losslessly reordered, by re-anchoring it past the other's length. A
// fuller implementation would attempt a content-level merge instead.
func (c *Change) RebaseOnto(other *Change) (*Change, bool, error) {
	if c.Start != other.Start {
		return nil, false, fmt.Errorf(
			"rebase onto change anchored at %d, not %d: %w", other.Start, c.Start, ErrSequencing)
	}
	if !c.IsEmpty() && !other.IsEmpty() {
		return nil, false, nil
	}
	rebased := c.Clone()
	rebased.Start += other.Len()
	return rebased, true, nil
}

// RebaseBelow re-anchors this change to precede other, the symmetric
// operation to RebaseOnto with the same conservative conflict policy.
func (c *Change) RebaseBelow(other *Change) (*Change, bool, error) {
	if c.Start != other.End() {
		return nil, false, fmt.Errorf(
			"rebase below change ending at %d, not anchored there (start %d): %w",
			other.End(), c.Start, ErrSequencing)
	}
	if !c.IsEmpty() && !other.IsEmpty() {
		return nil, false, nil
	}
	rebased := c.Clone()
	rebased.Start -= other.Len()
	return rebased, true, nil
}

// Concat returns the concatenation of this change with other, which must be
// anchored exactly at this change's end.
func (c *Change) Concat(other *Change) (*Change, error) {
	if other.Start != c.End() {
		return nil, fmt.Errorf("concat change anchored at %d onto change ending at %d: %w",
			other.Start, c.End(), ErrSequencing)
	}
	txs := make([]*Transaction, 0, len(c.Transactions)+len(other.Transactions))
	txs = append(txs, c.Transactions...)
	txs = append(txs, other.Transactions...)
	return &Change{Start: c.Start, Transactions: txs}, nil
}

// Slice returns the sub-change [from, to) with its anchor adjusted.
func (c *Change) Slice(from, to int) *Change {
	if from < 0 {
		from = 0
	}
	if to > len(c.Transactions) {
		to = len(c.Transactions)
	}
	if from > to {
		from = to
	}
	txs := make([]*Transaction, to-from)
	copy(txs, c.Transactions[from:to])
	return &Change{Start: c.Start + from, Transactions: txs}
}

// ApplyTo commits the change's transactions to a document in order.
func (c *Change) ApplyTo(d *doc.Document) error {
	return ApplyAll(d, c.Transactions)
}

// AddToHistory appends the change's transactions to a history. The change
// must be anchored at the exact current tip.
func (c *Change) AddToHistory(h *History) error {
	if c.Start != h.Len() {
		return fmt.Errorf("change anchored at %d, history length %d: %w",
			c.Start, h.Len(), ErrSequencing)
	}
	h.Append(c.Transactions...)
	return nil
}

type wireChange struct {
	Start        int            `json:"start"`
	Transactions []*Transaction `json:"transactions"`
}

// MarshalJSON serializes the change as {start, transactions}.
func (c *Change) MarshalJSON() ([]byte, error) {
	txs := c.Transactions
	if txs == nil {
		txs = []*Transaction{}
	}
	return json.Marshal(wireChange{Start: c.Start, Transactions: txs})
}

// UnmarshalJSON reconstructs a change from its wire shape.
func (c *Change) UnmarshalJSON(data []byte) error {
	var w wireChange
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Change{Start: w.Start, Transactions: w.Transactions}
	if c.Transactions == nil {
		c.Transactions = []*Transaction{}
	}
	return nil
}

// Marshal serializes the change for the wire.
func (c *Change) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// NewChangeFromJSON parses a serialized change.
func NewChangeFromJSON(data []byte) (*Change, error) {
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode change: %w", err)
	}
	return &c, nil
}
