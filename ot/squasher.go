package ot

import (
	"fmt"

	"github.com/okadri/richdoc/doc"
)

// Squash merges consecutive transactions into one equivalent transaction.
// The input list must be non-empty; transactions are folded pairwise.
//
// Squashing is not naive concatenation:
//
//   - content inserted by an earlier transaction and annotated later has the
//     annotation baked directly into the inserted items;
//   - content inserted earlier and removed later cancels out entirely,
//     except where the removal crosses into content the earlier transaction
//     only retained: that content stays as an explicit remove, so the
//     squashed transaction applies to exactly the same starting documents as
//     the original sequence;
//   - attribute changes on elements a later transaction deletes are dropped;
//   - annotation spans left covering nothing are removed outright.
func Squash(txs []*Transaction) (*Transaction, error) {
	if len(txs) == 0 {
		return nil, fmt.Errorf("squash requires at least one transaction")
	}
	result := txs[0].Clone()
	result.Applied = false
	for i, next := range txs[1:] {
		squashed, err := squashPair(result, next)
		if err != nil {
			return nil, fmt.Errorf("squash transaction %d: %w", i+1, err)
		}
		result = squashed
	}
	return result, nil
}

// squashSpan is an annotate span of the follow-up transaction being
// distributed over the base. opened tracks whether a start marker has been
// emitted into the output yet; spans that never open over retained content
// produce no markers at all.
type squashSpan struct {
	method Method
	index  doc.Hash
	opened bool
}

// pairSquasher streams the follow-up transaction's operations through a
// cursor over the base transaction's operation list, building a fresh output
// list. The cursor (index, offset) addresses the base's post-transaction
// coordinate space: offset counts produced units (retain length or replace
// insert items) within the current operation.
type pairSquasher struct {
	in     []Operation
	index  int
	offset int
	// removeEmitted is the highest operation index whose replace removal has
	// been copied to the output. Each base removal is emitted exactly once,
	// on entry.
	removeEmitted int
	out           *Transaction
	active        []squashSpan
	// pendingAttrs are base attribute operations dropped because the element
	// they modified is being removed. The follow-up's remove payload reflects
	// the post-attribute state; these are un-applied so the squashed removal
	// matches the base document.
	pendingAttrs []Operation
}

func squashPair(a, b *Transaction) (*Transaction, error) {
	if a.TargetLength() != b.BaseLength() {
		return nil, fmt.Errorf("transactions do not compose: target length %d != base length %d",
			a.TargetLength(), b.BaseLength())
	}
	in := make([]Operation, len(a.Operations))
	copy(in, a.Operations)
	s := &pairSquasher{in: in, removeEmitted: -1, out: &Transaction{}}

	for i, op := range b.Operations {
		switch op.Type {
		case OpRetain:
			s.processRetain(op.Length)
		case OpReplace:
			s.processReplace(op.Remove, op.Insert)
		case OpAttribute:
			s.processAttribute(op)
		case OpAnnotate:
			s.processAnnotate(op)
		default:
			return nil, fmt.Errorf("operation %d type %q: %w", i, op.Type, ErrUnsupportedOperation)
		}
	}
	s.flushRemaining()
	s.out.normalize()
	s.out.Operations = dropEmptyAnnotationSpans(s.out.Operations)
	// Dropping markers can leave two retains adjacent; restore the
	// adjacency-merge invariant.
	s.out.normalize()
	return s.out, nil
}

// advance moves the cursor to the next operation with unconsumed produced
// content, discharging zero-length obligations on the way: base removals are
// emitted on entry, attribute operations pass through (or are dropped when
// the position they apply to is being removed), annotate markers pass
// through for the cleanup pass to vet. Returns nil when the base is
// exhausted.
func (s *pairSquasher) advance(removing bool) *Operation {
	for s.index < len(s.in) {
		op := &s.in[s.index]
		switch op.Type {
		case OpAttribute:
			if removing {
				s.pendingAttrs = append(s.pendingAttrs, *op)
			} else {
				s.emitAttribute(*op)
			}
			s.index++
		case OpAnnotate:
			s.out.Operations = append(s.out.Operations, *op)
			s.index++
		case OpRetain:
			if s.offset >= op.Length {
				s.index, s.offset = s.index+1, 0
				continue
			}
			return op
		case OpReplace:
			if s.removeEmitted < s.index {
				s.out.pushReplace(op.Remove, nil)
				s.removeEmitted = s.index
			}
			if s.offset >= len(op.Insert) {
				s.index, s.offset = s.index+1, 0
				continue
			}
			return op
		}
	}
	return nil
}

// processRetain carries n produced units of the base through unchanged,
// wrapping retained content in any open annotate spans and baking active
// annotations into base-inserted content.
func (s *pairSquasher) processRetain(n int) {
	for n > 0 {
		op := s.advance(false)
		if op == nil {
			return
		}
		switch op.Type {
		case OpRetain:
			take := min(n, op.Length-s.offset)
			s.openSpans()
			s.out.pushRetain(take)
			s.offset += take
			n -= take
		case OpReplace:
			take := min(n, len(op.Insert)-s.offset)
			items := doc.CopyItems(op.Insert[s.offset : s.offset+take])
			for i := range items {
				items[i] = s.bake(items[i])
			}
			s.out.pushReplace(nil, items)
			s.offset += take
			n -= take
		}
	}
}

// processReplace consumes the follow-up's removal from the base and splices
// its insertion in. Removal of base-inserted content cancels silently;
// removal of base-retained content becomes an explicit remove in the output.
func (s *pairSquasher) processReplace(bRemove, bInsert []doc.Item) {
	m := len(bRemove)
	pos := 0
	for m > 0 {
		op := s.advance(true)
		if op == nil {
			break
		}
		switch op.Type {
		case OpRetain:
			take := min(m, op.Length-s.offset)
			chunk := doc.CopyItems(bRemove[pos : pos+take])
			if len(s.pendingAttrs) > 0 {
				chunk[0] = unapplyAttrs(chunk[0], s.pendingAttrs)
				s.pendingAttrs = nil
			}
			s.out.pushReplace(chunk, nil)
			op.Length -= take
			m -= take
			pos += take
		case OpReplace:
			// The dropped attributes modified base-inserted content, which
			// cancels out entirely.
			s.pendingAttrs = nil
			take := min(m, len(op.Insert)-s.offset)
			trimmed := make([]doc.Item, 0, len(op.Insert)-take)
			trimmed = append(trimmed, op.Insert[:s.offset]...)
			trimmed = append(trimmed, op.Insert[s.offset+take:]...)
			op.Insert = trimmed
			m -= take
			pos += take
		}
	}
	if len(bInsert) > 0 {
		s.out.pushReplace(nil, doc.CopyItems(bInsert))
	}
}

// processAttribute either bakes the change into a base-inserted element or
// passes it through at the current retained position, composing with an
// earlier attribute operation on the same key.
func (s *pairSquasher) processAttribute(op Operation) {
	cur := s.advance(false)
	if cur != nil && cur.Type == OpReplace && s.offset < len(cur.Insert) {
		item := cur.Insert[s.offset]
		if item.Kind != doc.KindOpen {
			return
		}
		attrs := make(map[string]any, len(item.Attributes)+1)
		for k, v := range item.Attributes {
			attrs[k] = v
		}
		if op.To == nil {
			delete(attrs, op.Key)
		} else {
			attrs[op.Key] = op.To
		}
		if len(attrs) == 0 {
			attrs = nil
		}
		insert := doc.CopyItems(cur.Insert)
		insert[s.offset].Attributes = attrs
		cur.Insert = insert
		return
	}
	s.emitAttribute(op)
}

// emitAttribute appends an attribute operation to the output, composing
// with a trailing attribute operation on the same key at the same position.
// A composition whose from equals its to is dropped entirely.
func (s *pairSquasher) emitAttribute(op Operation) {
	ops := s.out.Operations
	for i := len(ops) - 1; i >= 0; i-- {
		prev := ops[i]
		if prev.Type != OpAttribute && prev.Type != OpAnnotate {
			break
		}
		if prev.Type == OpAttribute && prev.Key == op.Key {
			if valuesEqual(prev.From, op.To) {
				s.out.Operations = append(ops[:i], ops[i+1:]...)
			} else {
				ops[i] = Attribute(op.Key, prev.From, op.To)
			}
			return
		}
	}
	s.out.Operations = append(ops, op)
}

func (s *pairSquasher) processAnnotate(op Operation) {
	if op.Bias == BiasStart {
		s.active = append(s.active, squashSpan{method: op.Method, index: op.Index})
		return
	}
	for i := len(s.active) - 1; i >= 0; i-- {
		span := s.active[i]
		if span.method == op.Method && span.index == op.Index {
			if span.opened {
				s.out.pushAnnotate(op.Method, BiasStop, op.Index)
			}
			s.active = append(s.active[:i], s.active[i+1:]...)
			return
		}
	}
}

func (s *pairSquasher) openSpans() {
	for i := range s.active {
		if !s.active[i].opened {
			s.out.pushAnnotate(s.active[i].method, BiasStart, s.active[i].index)
			s.active[i].opened = true
		}
	}
}

// bake applies the active annotate spans directly to a base-inserted item.
func (s *pairSquasher) bake(it doc.Item) doc.Item {
	for _, span := range s.active {
		if span.method == MethodSet {
			it = it.WithAnnotation(span.index)
		} else {
			it = it.WithoutAnnotation(span.index)
		}
	}
	return it
}

// unapplyAttrs restores an element to its pre-attribute state by walking
// the dropped operations backwards, setting each key to its From value.
func unapplyAttrs(it doc.Item, dropped []Operation) doc.Item {
	if it.Kind != doc.KindOpen {
		return it
	}
	attrs := make(map[string]any, len(it.Attributes))
	for k, v := range it.Attributes {
		attrs[k] = v
	}
	for i := len(dropped) - 1; i >= 0; i-- {
		op := dropped[i]
		if op.From == nil {
			delete(attrs, op.Key)
		} else {
			attrs[op.Key] = op.From
		}
	}
	if len(attrs) == 0 {
		attrs = nil
	}
	it.Attributes = attrs
	return it
}

// flushRemaining discharges trailing zero-length base operations after the
// follow-up has consumed the whole produced length.
func (s *pairSquasher) flushRemaining() {
	s.advance(false)
}

// dropEmptyAnnotationSpans removes start/stop annotate pairs whose covered
// output produces nothing: degenerate zero-width spans left behind when a
// replacement swallowed the span's content.
func dropEmptyAnnotationSpans(ops []Operation) []Operation {
	type openMarker struct {
		pos      int
		produced int
	}
	drop := make(map[int]bool)
	var stack []openMarker
	produced := 0
	for i, op := range ops {
		switch op.Type {
		case OpAnnotate:
			if op.Bias == BiasStart {
				stack = append(stack, openMarker{pos: i, produced: produced})
				continue
			}
			for j := len(stack) - 1; j >= 0; j-- {
				start := ops[stack[j].pos]
				if start.Method == op.Method && start.Index == op.Index {
					if produced == stack[j].produced {
						drop[stack[j].pos] = true
						drop[i] = true
					}
					stack = append(stack[:j], stack[j+1:]...)
					break
				}
			}
		default:
			produced += op.ProducedLength()
		}
	}
	if len(drop) == 0 {
		return ops
	}
	out := make([]Operation, 0, len(ops)-len(drop))
	for i, op := range ops {
		if !drop[i] {
			out = append(out, op)
		}
	}
	return out
}
