package doc

import "fmt"

// SelectionMode controls how SelectNodes maps a range onto the tree.
type SelectionMode string

const (
	// SelectLeaves selects every leaf node overlapping the range.
	SelectLeaves SelectionMode = "leaves"
	// SelectCovered selects nodes wholly covered by the range, plus
	// partially covered leaves at the edges.
	SelectCovered SelectionMode = "covered"
	// SelectSiblings selects the children of the deepest node containing
	// the whole range.
	SelectSiblings SelectionMode = "siblings"
)

// Selection is one node picked out by SelectNodes. Partial is nil when the
// node is wholly covered; otherwise it is the covered slice of the node's
// inner range.
type Selection struct {
	Node    *Node
	Partial *Range
}

// Covered reports whether the whole node (markers included) is selected.
func (s Selection) Covered() bool { return s.Partial == nil }

// Fixup is the result of fixing up a candidate insertion so the document
// stays well-formed.
type Fixup struct {
	// Offset is the adjusted insertion offset.
	Offset int
	// Remove is existing data that must be removed at Offset.
	Remove []Item
	// Data is the actual data to insert, possibly rewrapped.
	Data []Item
	// InsertedDataOffset and InsertedDataLength locate the caller's
	// original data within Data.
	InsertedDataOffset int
	InsertedDataLength int
}

// Document is a concrete linear document: the flattened item sequence, the
// content-addressed store shared by its annotations, the node-type registry,
// and a lazily rebuilt tree view.
type Document struct {
	data  []Item
	store *Store
	types NodeTypes
	tree  *Node // nil until built; invalidated by mutation
}

// New creates a document over the given linear data. A nil types registry
// falls back to DefaultTypes.
func New(data []Item, types NodeTypes) *Document {
	if types == nil {
		types = DefaultTypes()
	}
	return &Document{data: data, store: NewStore(), types: types}
}

// Len returns the document's linear length.
func (d *Document) Len() int { return len(d.data) }

// ItemAt returns the item at offset.
func (d *Document) ItemAt(offset int) (Item, error) {
	if offset < 0 || offset >= len(d.data) {
		return Item{}, fmt.Errorf("offset %d outside document of length %d", offset, len(d.data))
	}
	return d.data[offset], nil
}

// Data returns a copy of the items covered by r, clamped to the document.
func (d *Document) Data(r Range) []Item {
	from, to := r.From(), r.To()
	if from < 0 {
		from = 0
	}
	if to > len(d.data) {
		to = len(d.data)
	}
	if from >= to {
		return nil
	}
	return CopyItems(d.data[from:to])
}

// FullData returns a copy of the whole linear data.
func (d *Document) FullData() []Item { return CopyItems(d.data) }

// Store returns the document's content-addressed store.
func (d *Document) Store() *Store { return d.store }

// Types returns the node-type capability registry.
func (d *Document) Types() NodeTypes { return d.types }

// InternalList returns the document's internal list view.
func (d *Document) InternalList() *InternalList { return &InternalList{doc: d} }

// Tree returns the root of the tree view, building it if needed.
func (d *Document) Tree() *Node {
	if d.tree == nil {
		d.tree = buildTree(d.data, d.types)
	}
	return d.tree
}

// BodyRange returns the document range excluding the internal list region.
func (d *Document) BodyRange() Range {
	if outer, ok := d.InternalList().OuterRange(); ok {
		return NewRange(0, outer.Start)
	}
	return NewRange(0, len(d.data))
}

// Clone returns an independent copy of the document. The store is copied;
// values inside it are shared.
func (d *Document) Clone() *Document {
	return &Document{data: CopyItems(d.data), store: d.store.Clone(), types: d.types}
}

// CloneFromRange returns a new document holding a copy of the items in r,
// sharing store contents.
func (d *Document) CloneFromRange(r Range) *Document {
	return &Document{data: d.Data(r), store: d.store.Clone(), types: d.types}
}

// SelectNodes maps a range onto tree nodes per the given mode. An empty
// result means the range corresponds to no valid selection.
func (d *Document) SelectNodes(r Range, mode SelectionMode) []Selection {
	r = r.Normalized()
	root := d.Tree()
	switch mode {
	case SelectLeaves:
		var out []Selection
		collectLeaves(root, r, &out)
		return out
	case SelectCovered:
		var out []Selection
		collectCovered(root, r, &out)
		return out
	case SelectSiblings:
		parent := deepestContainer(root, r)
		var out []Selection
		for _, child := range parent.Children() {
			if child.OuterRange().Overlaps(r) {
				out = append(out, Selection{Node: child})
			}
		}
		return out
	}
	return nil
}

func collectLeaves(n *Node, r Range, out *[]Selection) {
	for _, child := range n.Children() {
		co := child.OuterRange()
		if !co.Overlaps(r) {
			continue
		}
		if child.IsLeaf() {
			*out = append(*out, leafSelection(child, r))
			continue
		}
		collectLeaves(child, r, out)
	}
}

func collectCovered(n *Node, r Range, out *[]Selection) {
	for _, child := range n.Children() {
		co := child.OuterRange()
		if !co.Overlaps(r) {
			continue
		}
		if r.ContainsRange(co) {
			*out = append(*out, Selection{Node: child})
			continue
		}
		if child.IsLeaf() {
			sel := leafSelection(child, r)
			// A selection clipping only a marker strips nothing; skip it.
			if sel.Partial != nil && sel.Partial.IsCollapsed() {
				continue
			}
			*out = append(*out, sel)
			continue
		}
		collectCovered(child, r, out)
	}
}

func leafSelection(child *Node, r Range) Selection {
	co := child.OuterRange()
	if r.ContainsRange(co) {
		return Selection{Node: child}
	}
	inter, _ := child.Range().Intersect(r)
	return Selection{Node: child, Partial: &inter}
}

func deepestContainer(n *Node, r Range) *Node {
	for {
		descended := false
		for _, child := range n.Children() {
			if child.Range().ContainsRange(r) && !child.IsLeaf() {
				n = child
				descended = true
				break
			}
		}
		if !descended {
			return n
		}
	}
}

// BranchNodeAt returns the deepest content branch node whose inner range
// contains offset, or nil.
func (d *Document) BranchNodeAt(offset int) *Node {
	var found *Node
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, child := range n.Children() {
			if !child.Range().ContainsOffset(offset) && child.Range().To() != offset {
				continue
			}
			if child.CanContainContent() {
				found = child
			}
			walk(child)
		}
	}
	walk(d.Tree())
	return found
}

// FixupInsertion adjusts candidate data for insertion at offset so that the
// tree stays well-formed:
//
//   - bare content inserted outside any content branch is wrapped in a
//     paragraph;
//   - structural data inserted inside a content branch is deferred to just
//     after that branch's close marker.
//
// Remove is always empty in this implementation; the contract allows
// implementations to also request removals.
func (d *Document) FixupInsertion(data []Item, offset int) Fixup {
	if offset < 0 {
		offset = 0
	}
	if offset > len(d.data) {
		offset = len(d.data)
	}
	structural := false
	for _, it := range data {
		if it.IsStructural() {
			structural = true
			break
		}
	}
	branch := d.BranchNodeAt(offset)

	if !structural && branch == nil {
		// Bare characters at a structural position: wrap in a paragraph.
		wrapped := make([]Item, 0, len(data)+2)
		wrapped = append(wrapped, NewOpen("paragraph", nil))
		wrapped = append(wrapped, data...)
		wrapped = append(wrapped, NewClose("paragraph"))
		return Fixup{
			Offset:             offset,
			Data:               wrapped,
			InsertedDataOffset: 1,
			InsertedDataLength: len(data),
		}
	}
	if structural && branch != nil {
		// Structural data inside a content branch: snap past the branch.
		offset = branch.OuterRange().End
	}
	return Fixup{
		Offset:             offset,
		Data:               CopyItems(data),
		InsertedDataLength: len(data),
	}
}

// Splice replaces removeCount items at offset with insert, invalidating the
// tree view. It returns the removed items.
func (d *Document) Splice(offset, removeCount int, insert []Item) ([]Item, error) {
	if offset < 0 || removeCount < 0 || offset+removeCount > len(d.data) {
		return nil, fmt.Errorf("splice [%d, %d) outside document of length %d",
			offset, offset+removeCount, len(d.data))
	}
	removed := CopyItems(d.data[offset : offset+removeCount])
	next := make([]Item, 0, len(d.data)-removeCount+len(insert))
	next = append(next, d.data[:offset]...)
	next = append(next, insert...)
	next = append(next, d.data[offset+removeCount:]...)
	d.data = next
	d.tree = nil
	return removed, nil
}

// SetAttribute changes one attribute on the element at offset. A nil value
// unsets the key.
func (d *Document) SetAttribute(offset int, key string, value any) error {
	if offset < 0 || offset >= len(d.data) {
		return fmt.Errorf("offset %d outside document of length %d", offset, len(d.data))
	}
	it := d.data[offset]
	if it.Kind != KindOpen {
		return fmt.Errorf("no element at offset %d", offset)
	}
	attrs := make(map[string]any, len(it.Attributes)+1)
	for k, v := range it.Attributes {
		attrs[k] = v
	}
	if value == nil {
		delete(attrs, key)
	} else {
		attrs[key] = value
	}
	if len(attrs) == 0 {
		attrs = nil
	}
	d.data[offset].Attributes = attrs
	d.tree = nil
	return nil
}

// AddAnnotation adds an annotation reference to the character at offset.
// Structural items are left untouched.
func (d *Document) AddAnnotation(offset int, h Hash) {
	if offset < 0 || offset >= len(d.data) || d.data[offset].Kind != KindChar {
		return
	}
	d.data[offset] = d.data[offset].WithAnnotation(h)
}

// RemoveAnnotation removes an annotation reference from the character at
// offset.
func (d *Document) RemoveAnnotation(offset int, h Hash) {
	if offset < 0 || offset >= len(d.data) || d.data[offset].Kind != KindChar {
		return
	}
	d.data[offset] = d.data[offset].WithoutAnnotation(h)
}
