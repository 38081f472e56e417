package doc

// ListIndexAttribute is the element attribute holding a reference into the
// internal list. References are remapped when documents are merged.
const ListIndexAttribute = "listIndex"

// InternalListType is the element type of the internal list container.
const InternalListType = "internalList"

// InternalList is a view over the document's side-table of cross-referenced
// items (footnote bodies and the like): an internalList element at the end of
// the document whose children are the items, referenced by index from
// elsewhere via the listIndex attribute.
type InternalList struct {
	doc *Document
}

// Node returns the internal list node, or nil if the document has none.
func (l *InternalList) Node() *Node {
	for _, child := range l.doc.Tree().Children() {
		if child.Type == InternalListType {
			return child
		}
	}
	return nil
}

// OuterRange returns the range of the internal list including its markers.
// ok is false when the document has no internal list.
func (l *InternalList) OuterRange() (Range, bool) {
	n := l.Node()
	if n == nil {
		return Range{}, false
	}
	return n.OuterRange(), true
}

// ItemCount returns the number of internal items.
func (l *InternalList) ItemCount() int {
	n := l.Node()
	if n == nil {
		return 0
	}
	return len(n.Children())
}

// ItemData returns the linear data of item i, including its markers.
func (l *InternalList) ItemData(i int) []Item {
	n := l.Node()
	if n == nil || i < 0 || i >= len(n.Children()) {
		return nil
	}
	return l.doc.Data(n.Children()[i].OuterRange())
}

// ListMerge describes the outcome of merging another document's internal
// list into this one.
type ListMerge struct {
	// Mapping maps each of the other list's item indexes to its index in
	// the merged list.
	Mapping map[int]int
	// Data is the linear data of the items that must be appended to this
	// list to complete the merge (items the other list had and this one
	// did not).
	Data []Item
}

// Merge computes the merge of other into this list. Items whose linear data
// already exists here keep their existing index; new items are assigned
// indexes past the current end and their data is returned for insertion.
// The list itself is not mutated; the caller splices Data into the document
// through a transaction.
func (l *InternalList) Merge(other *InternalList) ListMerge {
	merge := ListMerge{Mapping: make(map[int]int)}
	count := l.ItemCount()
	appended := 0
	for i := 0; i < other.ItemCount(); i++ {
		data := other.ItemData(i)
		if idx, ok := l.findItem(data); ok {
			merge.Mapping[i] = idx
			continue
		}
		merge.Mapping[i] = count + appended
		merge.Data = append(merge.Data, data...)
		appended++
	}
	return merge
}

func (l *InternalList) findItem(data []Item) (int, bool) {
	for i := 0; i < l.ItemCount(); i++ {
		if ItemsEqual(l.ItemData(i), data) {
			return i, true
		}
	}
	return 0, false
}

// RemapListIndexes rewrites listIndex attributes in data according to
// mapping, leaving unmapped references untouched. Items are copied on write;
// the input slice is not mutated.
func RemapListIndexes(data []Item, mapping map[int]int) []Item {
	out := CopyItems(data)
	for i, it := range out {
		if it.Kind != KindOpen || it.Attributes == nil {
			continue
		}
		raw, ok := it.Attributes[ListIndexAttribute]
		if !ok {
			continue
		}
		var idx int
		switch v := raw.(type) {
		case int:
			idx = v
		case float64:
			idx = int(v)
		default:
			continue
		}
		mapped, ok := mapping[idx]
		if !ok || mapped == idx {
			continue
		}
		attrs := make(map[string]any, len(it.Attributes))
		for k, v := range it.Attributes {
			attrs[k] = v
		}
		attrs[ListIndexAttribute] = mapped
		out[i].Attributes = attrs
	}
	return out
}
