package ot

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/okadri/richdoc/doc"
)

// NewFromInsertion creates a transaction inserting data at offset. The data
// is fixed up by the document's insertion contract so the tree stays
// well-formed (wrapping bare content in a paragraph, snapping structural
// data out of content branches).
func NewFromInsertion(d *doc.Document, offset int, data []doc.Item) *Transaction {
	fix := d.FixupInsertion(data, offset)
	t := &Transaction{}
	t.pushRetain(fix.Offset)
	t.pushReplace(fix.Remove, fix.Data)
	t.pushRetain(d.Len() - fix.Offset - len(fix.Remove))
	return t
}

// NewFromRemoval creates a transaction removing the given range.
//
// When the first and last covered nodes can be merged (same content branch
// type and depth), the union range is removed outright, which merges the two
// halves. Otherwise each fully covered deletable node is removed whole,
// partially covered nodes have the covered content stripped, and nodes
// flagged undeletable are bracketed with retains instead of being removed.
//
// The document is never left without content: stripping the entire body
// inserts an empty paragraph in its place.
func NewFromRemoval(d *doc.Document, r doc.Range) (*Transaction, error) {
	r = r.Normalized()
	t := &Transaction{}
	if r.IsCollapsed() {
		t.pushRetain(d.Len())
		return t, nil
	}
	sels := d.SelectNodes(r, doc.SelectCovered)
	if len(sels) == 0 {
		return nil, fmt.Errorf("removal over %v selects no nodes: %w", r, ErrInvalidRange)
	}

	var spans []doc.Range
	first, last := sels[0], sels[len(sels)-1]
	switch {
	case len(sels) == 1:
		if first.Covered() {
			if d.Types().IsDeletable(first.Node.Type) {
				spans = append(spans, first.Node.OuterRange())
			}
		} else {
			spans = append(spans, *first.Partial)
		}
	case !first.Covered() && !last.Covered() && canMergeAcross(first.Node, last.Node):
		// The halves merge; remove the union including intervening markers.
		spans = append(spans, doc.NewRange(first.Partial.From(), last.Partial.To()))
	default:
		for _, sel := range sels {
			if sel.Covered() {
				if d.Types().IsDeletable(sel.Node.Type) {
					spans = append(spans, sel.Node.OuterRange())
				}
				continue
			}
			spans = append(spans, *sel.Partial)
		}
	}
	spans = mergeSpans(spans)

	var replacement []doc.Item
	if removesWholeBody(d, spans) {
		replacement = []doc.Item{doc.NewOpen("paragraph", nil), doc.NewClose("paragraph")}
	}

	cursor := 0
	for i, span := range spans {
		t.pushRetain(span.From() - cursor)
		var insert []doc.Item
		if i == 0 {
			insert = replacement
		}
		t.pushReplace(d.Data(span), insert)
		cursor = span.To()
	}
	t.pushRetain(d.Len() - cursor)
	return t, nil
}

// canMergeAcross reports whether the content branches holding two partially
// selected nodes would merge cleanly if the content between them were
// removed.
func canMergeAcross(a, b *doc.Node) bool {
	ab, bb := contentBranchOf(a), contentBranchOf(b)
	return ab != nil && bb != nil && ab != bb && ab.CanBeMergedWith(bb)
}

func mergeSpans(spans []doc.Range) []doc.Range {
	if len(spans) < 2 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].From() < spans[j].From() })
	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.From() <= last.To() {
			if s.To() > last.To() {
				*last = doc.NewRange(last.From(), s.To())
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

func removesWholeBody(d *doc.Document, spans []doc.Range) bool {
	body := d.BodyRange()
	if body.Len() == 0 {
		return false
	}
	remaining := body.Len()
	for _, s := range spans {
		if inter, ok := s.Intersect(body); ok {
			remaining -= inter.Len()
		}
	}
	return remaining <= 0
}

// NewFromReplacement creates a transaction removing range r and inserting
// data at the resulting offset: the composition of a removal and an
// insertion, squashed into one transaction.
func NewFromReplacement(d *doc.Document, r doc.Range, data []doc.Item) (*Transaction, error) {
	removal, err := NewFromRemoval(d, r)
	if err != nil {
		return nil, err
	}
	intermediate := d.Clone()
	if err := Apply(intermediate, removal.Clone()); err != nil {
		return nil, fmt.Errorf("replacement removal: %w", err)
	}
	offset := removal.TranslateOffset(r.From(), true)
	insertion := NewFromInsertion(intermediate, offset, data)
	return Squash([]*Transaction{removal, insertion})
}

// NewFromAttributeChanges creates a transaction changing attributes on the
// element at offset. Keys whose new value equals the old one are skipped; a
// nil value unsets the key.
func NewFromAttributeChanges(d *doc.Document, offset int, attrs map[string]any) (*Transaction, error) {
	it, err := d.ItemAt(offset)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidOperand)
	}
	if it.Kind != doc.KindOpen {
		return nil, fmt.Errorf("no opening element at offset %d: %w", offset, ErrInvalidOperand)
	}
	t := &Transaction{}
	t.pushRetain(offset)
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		from, had := it.Attributes[k]
		to := attrs[k]
		if had && valuesEqual(from, to) {
			continue
		}
		if !had && to == nil {
			continue
		}
		var fromVal any
		if had {
			fromVal = from
		}
		t.pushAttribute(k, fromVal, to)
	}
	t.pushRetain(d.Len() - offset)
	return t, nil
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

// NewFromAnnotation creates a transaction setting or clearing an annotation
// over a range. Paired start/stop annotate markers cover exactly the maximal
// contiguous spans where the change has an effect: for set, content not
// already carrying a comparable annotation (in element types that accept
// it); for clear, content currently carrying one. Structural elements and
// the subtrees of ignore-children elements are never covered.
func NewFromAnnotation(d *doc.Document, r doc.Range, method Method, ann doc.Annotation) *Transaction {
	r = r.Normalized()
	hash := d.Store().Put(ann)
	t := &Transaction{}

	inSpan := false
	segStart := r.From()
	ignoreDepth := 0
	t.pushRetain(r.From())
	for i := r.From(); i < r.To() && i < d.Len(); i++ {
		it, _ := d.ItemAt(i)
		if it.IsStructural() && d.Types().IgnoresChildren(it.Type) {
			if it.Kind == doc.KindOpen {
				ignoreDepth++
			} else if ignoreDepth > 0 {
				ignoreDepth--
			}
		}
		annotatable := ignoreDepth == 0 && it.Kind == doc.KindChar &&
			annotationApplies(d, i, it, method, ann)
		if annotatable && !inSpan {
			t.pushRetain(i - segStart)
			t.pushAnnotate(method, BiasStart, hash)
			segStart = i
			inSpan = true
		} else if !annotatable && inSpan {
			t.pushRetain(i - segStart)
			t.pushAnnotate(method, BiasStop, hash)
			segStart = i
			inSpan = false
		}
	}
	end := min(r.To(), d.Len())
	t.pushRetain(end - segStart)
	if inSpan {
		t.pushAnnotate(method, BiasStop, hash)
	}
	t.pushRetain(d.Len() - end)
	return t
}

func annotationApplies(d *doc.Document, offset int, it doc.Item, method Method, ann doc.Annotation) bool {
	if branch := d.BranchNodeAt(offset); branch != nil {
		if !d.Types().CanTakeAnnotation(branch.Type, ann) {
			return false
		}
	}
	carries := false
	for _, h := range it.Annotations {
		if existing, ok := d.Store().Annotation(h); ok && existing.ComparableTo(ann) {
			carries = true
			break
		}
	}
	if method == MethodSet {
		return !carries
	}
	return carries
}

// NewFromContentBranchConversion creates a transaction converting every
// content branch touched by r to newType with the given attributes. Branches
// already of the target type get attribute changes only; branches identical
// to the target are skipped; no branch is converted twice.
func NewFromContentBranchConversion(d *doc.Document, r doc.Range, newType string, attrs map[string]any) (*Transaction, error) {
	sels := d.SelectNodes(r, doc.SelectLeaves)
	if len(sels) == 0 {
		return nil, fmt.Errorf("conversion over %v selects no nodes: %w", r, ErrInvalidRange)
	}
	seen := make(map[*doc.Node]bool)
	var branches []*doc.Node
	for _, sel := range sels {
		branch := contentBranchOf(sel.Node)
		if branch == nil || seen[branch] {
			continue
		}
		seen[branch] = true
		branches = append(branches, branch)
	}
	sort.Slice(branches, func(i, j int) bool {
		return branches[i].OuterRange().Start < branches[j].OuterRange().Start
	})

	t := &Transaction{}
	cursor := 0
	for _, branch := range branches {
		outer := branch.OuterRange()
		if branch.Type == newType {
			if attrsEqual(branch.Attributes, attrs) {
				continue
			}
			t.pushRetain(outer.Start - cursor)
			cursor = outer.Start
			keys := sortedKeys(attrs)
			for _, k := range keys {
				from, had := branch.Attributes[k]
				if had && valuesEqual(from, attrs[k]) {
					continue
				}
				var fromVal any
				if had {
					fromVal = from
				}
				t.pushAttribute(k, fromVal, attrs[k])
			}
			continue
		}
		oldOpen, _ := d.ItemAt(outer.Start)
		oldClose, _ := d.ItemAt(outer.End - 1)
		t.pushRetain(outer.Start - cursor)
		t.pushReplace([]doc.Item{oldOpen}, []doc.Item{doc.NewOpen(newType, attrs)})
		t.pushRetain(outer.Len() - 2)
		t.pushReplace([]doc.Item{oldClose}, []doc.Item{doc.NewClose(newType)})
		cursor = outer.End
	}
	t.pushRetain(d.Len() - cursor)
	return t, nil
}

func contentBranchOf(n *doc.Node) *doc.Node {
	for ; n != nil; n = n.Parent() {
		if n.CanContainContent() {
			return n
		}
	}
	return nil
}

func attrsEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewFromWrap creates a generalized structural rewrap of range r:
// unwrapOuter elements immediately surrounding the range are replaced by
// wrapOuter, and each top-level child in the range has its outermost
// unwrapEach layers replaced by wrapEach. Unwrap parameters are type-only
// expectations checked against the live document; attributes come from the
// document, not the caller. A type mismatch fails with ErrInvalidOperand.
func NewFromWrap(d *doc.Document, r doc.Range, unwrapOuter, wrapOuter, unwrapEach, wrapEach []doc.Item) (*Transaction, error) {
	r = r.Normalized()
	t := &Transaction{}
	t.pushRetain(r.From() - len(unwrapOuter))

	if len(unwrapOuter) > 0 || len(wrapOuter) > 0 {
		removeOpens, err := expectOpens(d, r.From()-len(unwrapOuter), unwrapOuter)
		if err != nil {
			return nil, err
		}
		t.pushReplace(removeOpens, opensOf(wrapOuter))
	}

	sels := d.SelectNodes(r, doc.SelectSiblings)
	if len(sels) == 0 && (len(unwrapEach) > 0 || len(wrapEach) > 0) {
		return nil, fmt.Errorf("wrap over %v selects no nodes: %w", r, ErrInvalidRange)
	}
	cursor := r.From()
	for _, sel := range sels {
		outer := sel.Node.OuterRange()
		t.pushRetain(outer.Start - cursor)
		if len(unwrapEach) > 0 || len(wrapEach) > 0 {
			removeOpens, err := expectOpens(d, outer.Start, unwrapEach)
			if err != nil {
				return nil, err
			}
			removeCloses, err := expectCloses(d, outer.End-len(unwrapEach), unwrapEach)
			if err != nil {
				return nil, err
			}
			t.pushReplace(removeOpens, opensOf(wrapEach))
			t.pushRetain(outer.Len() - 2*len(unwrapEach))
			t.pushReplace(removeCloses, closesOf(wrapEach))
		} else {
			t.pushRetain(outer.Len())
		}
		cursor = outer.End
	}
	t.pushRetain(r.To() - cursor)
	cursor = r.To()

	if len(unwrapOuter) > 0 || len(wrapOuter) > 0 {
		removeCloses, err := expectCloses(d, r.To(), unwrapOuter)
		if err != nil {
			return nil, err
		}
		t.pushReplace(removeCloses, closesOf(wrapOuter))
		cursor = r.To() + len(unwrapOuter)
	}
	t.pushRetain(d.Len() - cursor)
	return t, nil
}

// expectOpens verifies the opening elements at offset match the expected
// types in order, returning the live items (attributes included).
func expectOpens(d *doc.Document, offset int, expected []doc.Item) ([]doc.Item, error) {
	out := make([]doc.Item, 0, len(expected))
	for i, want := range expected {
		it, err := d.ItemAt(offset + i)
		if err != nil {
			return nil, fmt.Errorf("unwrap: %v: %w", err, ErrInvalidOperand)
		}
		if it.Kind != doc.KindOpen || it.Type != want.Type {
			return nil, fmt.Errorf("unwrap: structural mismatch at offset %d: expected <%s>: %w",
				offset+i, want.Type, ErrInvalidOperand)
		}
		out = append(out, it)
	}
	return out, nil
}

// expectCloses verifies the closing elements at offset match the expected
// element list (closing in reverse order of opening).
func expectCloses(d *doc.Document, offset int, expected []doc.Item) ([]doc.Item, error) {
	out := make([]doc.Item, 0, len(expected))
	for i := range expected {
		want := expected[len(expected)-1-i]
		it, err := d.ItemAt(offset + i)
		if err != nil {
			return nil, fmt.Errorf("unwrap: %v: %w", err, ErrInvalidOperand)
		}
		if it.Kind != doc.KindClose || it.Type != want.Type {
			return nil, fmt.Errorf("unwrap: structural mismatch at offset %d: expected </%s>: %w",
				offset+i, want.Type, ErrInvalidOperand)
		}
		out = append(out, it)
	}
	return out, nil
}

func opensOf(elements []doc.Item) []doc.Item {
	out := make([]doc.Item, 0, len(elements))
	for _, el := range elements {
		out = append(out, doc.NewOpen(el.Type, el.Attributes))
	}
	return out
}

func closesOf(elements []doc.Item) []doc.Item {
	out := make([]doc.Item, 0, len(elements))
	for i := len(elements) - 1; i >= 0; i-- {
		out = append(out, doc.NewClose(elements[i].Type))
	}
	return out
}

// NewFromDocumentInsertion creates a transaction inserting content from
// another document at offset. The documents' stores are merged, their
// internal lists are merged with index remapping so cross-references in the
// inserted content stay valid, and migrated internal items are spliced into
// the target's internal list region. r selects a sub-range of the other
// document; nil means its whole body.
func NewFromDocumentInsertion(d *doc.Document, offset int, other *doc.Document, r *doc.Range) *Transaction {
	var data []doc.Item
	if r != nil {
		data = other.Data(*r)
	} else {
		data = other.Data(other.BodyRange())
	}

	d.Store().Merge(other.Store())
	merge := d.InternalList().Merge(other.InternalList())
	data = doc.RemapListIndexes(data, merge.Mapping)
	newItems := doc.RemapListIndexes(merge.Data, merge.Mapping)

	fix := d.FixupInsertion(data, offset)
	listOuter, hasList := d.InternalList().OuterRange()
	t := &Transaction{}
	switch {
	case !hasList:
		t.pushRetain(fix.Offset)
		t.pushReplace(fix.Remove, fix.Data)
		t.pushRetain(d.Len() - fix.Offset - len(fix.Remove))
		if len(newItems) > 0 {
			list := make([]doc.Item, 0, len(newItems)+2)
			list = append(list, doc.NewOpen(doc.InternalListType, nil))
			list = append(list, newItems...)
			list = append(list, doc.NewClose(doc.InternalListType))
			t.pushReplace(nil, list)
		}
	case fix.Offset <= listOuter.Start:
		// Insertion point before the internal list region: content goes in
		// place, migrated items are appended just before the list close.
		afterContent := fix.Offset + len(fix.Remove)
		t.pushRetain(fix.Offset)
		t.pushReplace(fix.Remove, fix.Data)
		t.pushRetain(listOuter.End - 1 - afterContent)
		t.pushReplace(nil, newItems)
		t.pushRetain(d.Len() - (listOuter.End - 1))
	case fix.Offset >= listOuter.End:
		// Insertion point past the list: items merge first, then content.
		t.pushRetain(listOuter.End - 1)
		t.pushReplace(nil, newItems)
		t.pushRetain(fix.Offset - (listOuter.End - 1))
		t.pushReplace(fix.Remove, fix.Data)
		t.pushRetain(d.Len() - fix.Offset - len(fix.Remove))
	default:
		// Insertion point inside the list region: content and migrated
		// items splice in together.
		combined := append(doc.CopyItems(fix.Data), newItems...)
		t.pushRetain(fix.Offset)
		t.pushReplace(fix.Remove, combined)
		t.pushRetain(d.Len() - fix.Offset - len(fix.Remove))
	}
	return t
}
