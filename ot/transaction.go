package ot

import (
	"encoding/json"
	"fmt"

	"github.com/okadri/richdoc/doc"
)

// Transaction is an ordered list of operations describing an edit from one
// linear document state to another. A well-formed transaction consumes
// exactly its base document length and produces its target length; the
// builders guarantee this by construction.
//
// Transactions are treated as immutable value objects once built. The
// squasher produces new transaction objects rather than mutating inputs.
type Transaction struct {
	Operations []Operation
	// Applied is set once the transaction has been committed to a document,
	// preventing double-apply.
	Applied bool
	// IsReversed marks transactions produced by Reversed.
	IsReversed bool
}

// NewTransaction creates a transaction from a ready-made operation list.
func NewTransaction(ops ...Operation) *Transaction {
	return &Transaction{Operations: ops}
}

// BaseLength returns the document length the transaction applies to.
func (t *Transaction) BaseLength() int {
	n := 0
	for _, op := range t.Operations {
		n += op.ConsumedLength()
	}
	return n
}

// TargetLength returns the document length after the transaction.
func (t *Transaction) TargetLength() int {
	n := 0
	for _, op := range t.Operations {
		n += op.ProducedLength()
	}
	return n
}

// IsNoOp reports whether the transaction changes nothing: no operations, or
// exactly one retain.
func (t *Transaction) IsNoOp() bool {
	if len(t.Operations) == 0 {
		return true
	}
	return len(t.Operations) == 1 && t.Operations[0].Type == OpRetain
}

// Reversed returns the inverse transaction: replace sides swap, attribute
// from/to swap, annotate set and clear swap, retains are self-inverse.
func (t *Transaction) Reversed() *Transaction {
	ops := make([]Operation, len(t.Operations))
	for i, op := range t.Operations {
		switch op.Type {
		case OpRetain:
			ops[i] = op
		case OpReplace:
			ops[i] = Replace(op.Insert, op.Remove)
		case OpAttribute:
			ops[i] = Attribute(op.Key, op.To, op.From)
		case OpAnnotate:
			method := MethodSet
			if op.Method == MethodSet {
				method = MethodClear
			}
			ops[i] = Annotate(method, op.Bias, op.Index)
		}
	}
	return &Transaction{Operations: ops, IsReversed: !t.IsReversed}
}

// Clone returns a copy sharing operation payload slices (operations are
// value objects).
func (t *Transaction) Clone() *Transaction {
	ops := make([]Operation, len(t.Operations))
	copy(ops, t.Operations)
	return &Transaction{Operations: ops, Applied: t.Applied, IsReversed: t.IsReversed}
}

// pushRetain appends a retain, merging with a trailing retain.
func (t *Transaction) pushRetain(length int) {
	if length <= 0 {
		return
	}
	if n := len(t.Operations); n > 0 && t.Operations[n-1].Type == OpRetain {
		t.Operations[n-1].Length += length
		return
	}
	t.Operations = append(t.Operations, Retain(length))
}

// pushReplace appends a replace, merging with a trailing replace.
func (t *Transaction) pushReplace(remove, insert []doc.Item) {
	if len(remove) == 0 && len(insert) == 0 {
		return
	}
	if n := len(t.Operations); n > 0 && t.Operations[n-1].Type == OpReplace {
		last := &t.Operations[n-1]
		last.Remove = append(doc.CopyItems(last.Remove), remove...)
		last.Insert = append(doc.CopyItems(last.Insert), insert...)
		return
	}
	t.Operations = append(t.Operations, Replace(remove, insert))
}

func (t *Transaction) pushAttribute(key string, from, to any) {
	t.Operations = append(t.Operations, Attribute(key, from, to))
}

func (t *Transaction) pushAnnotate(method Method, bias Bias, index doc.Hash) {
	t.Operations = append(t.Operations, Annotate(method, bias, index))
}

// TranslateOffset maps an offset in the transaction's base document to the
// corresponding offset in its target document.
//
// An offset that lands exactly on a pure insertion is ambiguous: with
// excludeInsertion it snaps to just before the inserted content, otherwise
// to just after it. Offsets inside a removed span snap to the end of the
// replacement content (its start when excludeInsertion is set).
func (t *Transaction) TranslateOffset(offset int, excludeInsertion bool) int {
	cursor := 0
	adjustment := 0
	for _, op := range t.Operations {
		switch op.Type {
		case OpRetain:
			if offset < cursor+op.Length {
				return offset + adjustment
			}
			cursor += op.Length
		case OpReplace:
			insertLength := len(op.Insert)
			removeLength := len(op.Remove)
			if offset == cursor && removeLength == 0 {
				if excludeInsertion {
					return offset + adjustment
				}
				return offset + adjustment + insertLength
			}
			if offset >= cursor && offset < cursor+removeLength {
				if excludeInsertion {
					return cursor + adjustment
				}
				return cursor + adjustment + insertLength
			}
			cursor += removeLength
			adjustment += insertLength - removeLength
		case OpAttribute, OpAnnotate:
			// Zero-length; no effect on offsets.
		}
	}
	return offset + adjustment
}

// TranslateRange maps both ends of a range through the transaction,
// preserving direction.
func (t *Transaction) TranslateRange(r doc.Range, excludeInsertion bool) doc.Range {
	return doc.NewRange(
		t.TranslateOffset(r.Start, excludeInsertion),
		t.TranslateOffset(r.End, excludeInsertion),
	)
}

// MarshalJSON serializes the transaction as its raw operation list.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	if t.Operations == nil {
		return json.Marshal([]Operation{})
	}
	return json.Marshal(t.Operations)
}

// UnmarshalJSON reconstructs a transaction from a raw operation list.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return err
	}
	*t = Transaction{Operations: ops}
	return nil
}

// NewTransactionFromJSON parses a serialized transaction.
func NewTransactionFromJSON(data []byte) (*Transaction, error) {
	var t Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &t, nil
}

// normalize merges adjacent retains and adjacent replaces and drops
// zero-length fragments, restoring the adjacency invariants after squashing.
func (t *Transaction) normalize() {
	var out []Operation
	for _, op := range t.Operations {
		switch op.Type {
		case OpRetain:
			if op.Length == 0 {
				continue
			}
			if n := len(out); n > 0 && out[n-1].Type == OpRetain {
				out[n-1].Length += op.Length
				continue
			}
		case OpReplace:
			if len(op.Remove) == 0 && len(op.Insert) == 0 {
				continue
			}
			if n := len(out); n > 0 && out[n-1].Type == OpReplace {
				out[n-1].Remove = append(doc.CopyItems(out[n-1].Remove), op.Remove...)
				out[n-1].Insert = append(doc.CopyItems(out[n-1].Insert), op.Insert...)
				continue
			}
		}
		out = append(out, op)
	}
	t.Operations = out
}
