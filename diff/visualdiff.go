package diff

import (
	"time"

	"github.com/okadri/richdoc/doc"
)

// DefaultTimeout bounds the total wall-clock budget for tree-diff attempts.
const DefaultTimeout = time.Second

// DefaultThreshold is the minimum retained/changed ratio for a node pair to
// count as modified rather than unrelated.
const DefaultThreshold = 0.5

// Options tune a visual diff computation.
type Options struct {
	// Timeout is the wall-clock budget for the fuzzy pairing phase. Once it
	// passes, remaining pairs resolve to full remove+insert.
	Timeout time.Duration
	// Threshold is the minimum retained-to-changed ratio for a fuzzy
	// pairing to be accepted. A pair with retained == threshold*changed is
	// accepted: the boundary counts as similar enough.
	Threshold float64
	// Segmenter splits leaf text for the linear differ; nil means grapheme
	// clusters.
	Segmenter Segmenter
}

// Pair is a matched old/new top-level child. Diff is nil when the pair is
// identical and carries the edit script when it was fuzzy-matched.
type Pair struct {
	OldIndex int
	NewIndex int
	Diff     *TreeDiff
}

// InternalListDiff describes changes to the cross-referenced item
// side-table, computed by index membership rather than position.
type InternalListDiff struct {
	// Removed and Inserted are item indexes referenced only before or only
	// after.
	Removed  []int
	Inserted []int
	// Retained are indexes referenced on both sides with identical content.
	Retained []int
	// Changed maps indexes referenced on both sides to the diff of their
	// content.
	Changed map[int]*TreeDiff
}

// VisualDiff is the tree+text diff of two document snapshots. All fields
// are computed at construction; the inputs are treated as frozen.
type VisualDiff struct {
	Old *doc.Document
	New *doc.Document

	// Pairs are matched top-level children, identical or modified.
	Pairs []Pair
	// Removes and Inserts are unpaired top-level child indexes (old side
	// and new side respectively).
	Removes []int
	Inserts []int

	InternalList *InternalListDiff

	differ    *treeDiffer
	threshold float64
}

// New computes the visual diff of two documents. A nil options value uses
// the defaults.
func New(oldDoc, newDoc *doc.Document, opts *Options) *VisualDiff {
	timeout := DefaultTimeout
	threshold := DefaultThreshold
	var seg Segmenter
	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.Threshold > 0 {
			threshold = opts.Threshold
		}
		seg = opts.Segmenter
	}
	v := &VisualDiff{
		Old:       oldDoc,
		New:       newDoc,
		threshold: threshold,
		differ: &treeDiffer{
			old:       oldDoc,
			new:       newDoc,
			segmenter: seg,
			deadline:  time.Now().Add(timeout),
		},
	}
	v.compute()
	return v
}

func (v *VisualDiff) compute() {
	oldKids := bodyChildren(v.Old)
	newKids := bodyChildren(v.New)

	// Phase 1: exact pairing by normalized content. First match wins and is
	// removed from further consideration.
	newUsed := make([]bool, len(newKids))
	oldPaired := make([]bool, len(oldKids))
	newSigs := make([]string, len(newKids))
	for j, c := range newKids {
		newSigs[j] = v.differ.signature(v.New, c)
	}
	for i, c := range oldKids {
		sig := v.differ.signature(v.Old, c)
		for j := range newKids {
			if !newUsed[j] && newSigs[j] == sig {
				v.Pairs = append(v.Pairs, Pair{OldIndex: i, NewIndex: j})
				newUsed[j] = true
				oldPaired[i] = true
				break
			}
		}
	}

	// Phase 2: fuzzy pairing of the remainder via bounded tree diffs.
	for i := range oldKids {
		if oldPaired[i] {
			continue
		}
		for j := range newKids {
			if newUsed[j] {
				continue
			}
			td, ok := v.differ.diff(oldKids[i], newKids[j])
			if !ok {
				// Timed out: everything left resolves to remove+insert.
				continue
			}
			if !v.accept(td) {
				continue
			}
			v.Pairs = append(v.Pairs, Pair{OldIndex: i, NewIndex: j, Diff: td})
			newUsed[j] = true
			oldPaired[i] = true
			break
		}
	}

	for i := range oldKids {
		if !oldPaired[i] {
			v.Removes = append(v.Removes, i)
		}
	}
	for j := range newKids {
		if !newUsed[j] {
			v.Inserts = append(v.Inserts, j)
		}
	}

	v.InternalList = v.diffInternalLists()
}

// accept applies the similarity threshold: at least threshold*changed
// content must be retained, with the boundary counting as similar.
func (v *VisualDiff) accept(td *TreeDiff) bool {
	if td.Changed == 0 {
		return true
	}
	return float64(td.Retained) >= v.threshold*float64(td.Changed)
}

// diffInternalLists compares the side-tables by referenced index
// membership, recursing into item content for indexes referenced on both
// sides.
func (v *VisualDiff) diffInternalLists() *InternalListDiff {
	oldRefs := referencedIndexes(v.Old)
	newRefs := referencedIndexes(v.New)
	out := &InternalListDiff{Changed: make(map[int]*TreeDiff)}

	for idx := range oldRefs {
		if !newRefs[idx] {
			out.Removed = append(out.Removed, idx)
		}
	}
	for idx := range newRefs {
		if !oldRefs[idx] {
			out.Inserted = append(out.Inserted, idx)
		}
	}
	oldList := v.Old.InternalList()
	newList := v.New.InternalList()
	for idx := range oldRefs {
		if !newRefs[idx] {
			continue
		}
		oldItem, newItem := internalItemNode(oldList, idx), internalItemNode(newList, idx)
		if oldItem == nil || newItem == nil {
			continue
		}
		if v.differ.signature(v.Old, oldItem) == v.differ.signature(v.New, newItem) {
			out.Retained = append(out.Retained, idx)
			continue
		}
		if td, ok := v.differ.diff(oldItem, newItem); ok {
			out.Changed[idx] = td
		} else {
			out.Changed[idx] = &TreeDiff{
				Ops:     []TreeOp{{Kind: TreeReplace, OldNode: oldItem, NewNode: newItem}},
				Changed: oldItem.OuterRange().Len() + newItem.OuterRange().Len(),
			}
		}
	}
	return out
}

func internalItemNode(l *doc.InternalList, idx int) *doc.Node {
	n := l.Node()
	if n == nil || idx < 0 || idx >= len(n.Children()) {
		return nil
	}
	return n.Children()[idx]
}

// referencedIndexes collects the internal-list indexes referenced from the
// document body.
func referencedIndexes(d *doc.Document) map[int]bool {
	refs := make(map[int]bool)
	for _, it := range d.Data(d.BodyRange()) {
		if it.Kind != doc.KindOpen || it.Attributes == nil {
			continue
		}
		switch idx := it.Attributes[doc.ListIndexAttribute].(type) {
		case int:
			refs[idx] = true
		case float64:
			refs[int(idx)] = true
		}
	}
	return refs
}

// bodyChildren returns the top-level children of a document excluding the
// internal bookkeeping list.
func bodyChildren(d *doc.Document) []*doc.Node {
	var out []*doc.Node
	for _, c := range d.Tree().Children() {
		if c.Type == doc.InternalListType {
			continue
		}
		out = append(out, c)
	}
	return out
}
