package ot

import (
	"fmt"

	"github.com/okadri/richdoc/doc"
)

// annotateSpan tracks an open annotate span during application.
type annotateSpan struct {
	method Method
	index  doc.Hash
}

// Apply commits a transaction to a document. The transaction must consume
// exactly the document's length; replace removals are verified against the
// actual content before anything is mutated would be ideal, but mutation
// proceeds operation by operation; builders guarantee well-formedness, and a
// mismatch aborts with an error identifying the failing operation.
//
// Apply marks the transaction as applied; applying it a second time fails.
func Apply(d *doc.Document, t *Transaction) error {
	if t.Applied {
		return fmt.Errorf("transaction already committed")
	}
	if t.BaseLength() != d.Len() {
		return fmt.Errorf("transaction base length %d != document length %d",
			t.BaseLength(), d.Len())
	}

	cursor := 0
	var active []annotateSpan
	for i, op := range t.Operations {
		switch op.Type {
		case OpRetain:
			if len(active) > 0 {
				applyAnnotations(d, cursor, op.Length, active)
			}
			cursor += op.Length
		case OpReplace:
			actual := d.Data(doc.NewRange(cursor, cursor+len(op.Remove)))
			if !doc.ItemsEqual(actual, op.Remove) {
				return fmt.Errorf("operation %d: removal does not match document content at offset %d", i, cursor)
			}
			if _, err := d.Splice(cursor, len(op.Remove), op.Insert); err != nil {
				return fmt.Errorf("operation %d: %w", i, err)
			}
			cursor += len(op.Insert)
		case OpAttribute:
			if err := d.SetAttribute(cursor, op.Key, op.To); err != nil {
				return fmt.Errorf("operation %d: %w", i, err)
			}
		case OpAnnotate:
			if op.Bias == BiasStart {
				active = append(active, annotateSpan{method: op.Method, index: op.Index})
			} else {
				active = closeSpan(active, op)
			}
		default:
			return fmt.Errorf("operation %d type %q: %w", i, op.Type, ErrUnsupportedOperation)
		}
	}
	t.Applied = true
	return nil
}

func applyAnnotations(d *doc.Document, offset, length int, spans []annotateSpan) {
	for i := offset; i < offset+length; i++ {
		for _, span := range spans {
			if span.method == MethodSet {
				d.AddAnnotation(i, span.index)
			} else {
				d.RemoveAnnotation(i, span.index)
			}
		}
	}
}

func closeSpan(active []annotateSpan, op Operation) []annotateSpan {
	for i := len(active) - 1; i >= 0; i-- {
		if active[i].method == op.Method && active[i].index == op.Index {
			return append(active[:i], active[i+1:]...)
		}
	}
	return active
}

// ApplyAll commits a sequence of transactions in order, stopping at the
// first failure.
func ApplyAll(d *doc.Document, txs []*Transaction) error {
	for i, t := range txs {
		if err := Apply(d, t); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	return nil
}
