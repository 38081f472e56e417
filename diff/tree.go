package diff

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/okadri/richdoc/doc"
)

// TreeOpKind tags one entry of a tree edit script.
type TreeOpKind string

const (
	// TreeInsert is a node present only in the new tree.
	TreeInsert TreeOpKind = "insert"
	// TreeRemove is a node present only in the old tree.
	TreeRemove TreeOpKind = "remove"
	// TreeReplace is a pair too different to relate (type change, or the
	// differ timed out): remove the old node, insert the new one.
	TreeReplace TreeOpKind = "replace"
	// TreeAttribute is a node whose attributes changed but whose type and
	// content did not warrant replacement.
	TreeAttribute TreeOpKind = "attribute"
	// TreeText is a pair of content branches of the same type whose text
	// differs; Linear carries the character-level diff.
	TreeText TreeOpKind = "text"
)

// TreeOp is one entry of a tree edit script. OldNode and NewNode are set
// when present on the respective side.
type TreeOp struct {
	Kind    TreeOpKind
	OldNode *doc.Node
	NewNode *doc.Node
	Linear  *LinearDiff
}

// TreeDiff is the tree edit script for one paired child, with the retained
// and changed content counts used by the similarity threshold.
type TreeDiff struct {
	Ops      []TreeOp
	Retained int
	Changed  int
}

// treeDiffer walks two subtrees computing a minimum edit script, bounded by
// a wall-clock deadline. Once the deadline passes every remaining pair is
// short-circuited to a full replacement rather than computed.
type treeDiffer struct {
	old, new  *doc.Document
	segmenter Segmenter
	deadline  time.Time
}

func (td *treeDiffer) expired() bool {
	return !td.deadline.IsZero() && time.Now().After(td.deadline)
}

// diff computes the edit script for a node pair. ok is false on timeout;
// the caller must then treat the pair as a full remove+insert, never as a
// partial diff.
func (td *treeDiffer) diff(oldN, newN *doc.Node) (*TreeDiff, bool) {
	out := &TreeDiff{}
	if !td.diffNodes(oldN, newN, out) {
		return nil, false
	}
	return out, true
}

func (td *treeDiffer) diffNodes(oldN, newN *doc.Node, out *TreeDiff) bool {
	if td.expired() {
		return false
	}
	if oldN.Type != newN.Type {
		td.replace(oldN, newN, out)
		return true
	}
	if !attrsEqual(oldN.Attributes, newN.Attributes) {
		out.Ops = append(out.Ops, TreeOp{Kind: TreeAttribute, OldNode: oldN, NewNode: newN})
	}
	if oldN.Type == doc.TextType {
		td.diffContent(oldN, newN, out)
		return true
	}
	if oldN.CanContainContent() && newN.CanContainContent() {
		td.diffContent(oldN, newN, out)
		return true
	}
	if oldN.CanContainContent() != newN.CanContainContent() {
		// One side holds content, the other cannot: full content swap.
		td.replace(oldN, newN, out)
		return true
	}
	return td.diffChildren(oldN, newN, out)
}

// diffContent runs the linear differ over a pair of content branches or
// bare text runs.
func (td *treeDiffer) diffContent(oldN, newN *doc.Node, out *TreeDiff) {
	// Text runs carry no open and close markers, so equal runs retain
	// nothing beyond their characters.
	markers := 2
	if oldN.Type == doc.TextType {
		markers = 0
	}
	oldText := textOf(td.old, oldN.Range())
	newText := textOf(td.new, newN.Range())
	if oldText == newText {
		out.Retained += len([]rune(oldText)) + markers
		return
	}
	ld := DiffStrings(oldText, newText, td.segmenter)
	out.Ops = append(out.Ops, TreeOp{Kind: TreeText, OldNode: oldN, NewNode: newN, Linear: ld})
	out.Retained += ld.Retained
	out.Changed += ld.Inserted + ld.Deleted
}

// diffChildren pairs the children of two structural nodes: identical
// children (by normalized signature) match via a longest-common-subsequence
// pass, the interleaved remainder is paired positionally and recursed into,
// and leftovers become pure inserts and removes.
func (td *treeDiffer) diffChildren(oldN, newN *doc.Node, out *TreeDiff) bool {
	oldKids, newKids := oldN.Children(), newN.Children()
	oldSigs := make([]string, len(oldKids))
	for i, c := range oldKids {
		oldSigs[i] = td.signature(td.old, c)
	}
	newSigs := make([]string, len(newKids))
	for i, c := range newKids {
		newSigs[i] = td.signature(td.new, c)
	}
	matchedOld, matchedNew := lcsPairs(oldSigs, newSigs)

	for i, c := range oldKids {
		if matchedOld[i] >= 0 {
			out.Retained += c.OuterRange().Len()
		}
	}

	// Pair the unmatched remainders positionally and recurse.
	var restOld, restNew []int
	for i := range oldKids {
		if matchedOld[i] < 0 {
			restOld = append(restOld, i)
		}
	}
	for j := range newKids {
		if matchedNew[j] < 0 {
			restNew = append(restNew, j)
		}
	}
	k := 0
	for ; k < len(restOld) && k < len(restNew); k++ {
		if !td.diffNodes(oldKids[restOld[k]], newKids[restNew[k]], out) {
			return false
		}
	}
	for _, i := range restOld[k:] {
		out.Ops = append(out.Ops, TreeOp{Kind: TreeRemove, OldNode: oldKids[i]})
		out.Changed += oldKids[i].OuterRange().Len()
	}
	for _, j := range restNew[k:] {
		out.Ops = append(out.Ops, TreeOp{Kind: TreeInsert, NewNode: newKids[j]})
		out.Changed += newKids[j].OuterRange().Len()
	}
	return true
}

func (td *treeDiffer) replace(oldN, newN *doc.Node, out *TreeDiff) {
	out.Ops = append(out.Ops, TreeOp{Kind: TreeReplace, OldNode: oldN, NewNode: newN})
	out.Changed += oldN.OuterRange().Len() + newN.OuterRange().Len()
}

// signature returns a normalized identity string for a subtree. Annotation
// references are content-addressed, so equal-by-value references already
// collapse across documents.
func (td *treeDiffer) signature(d *doc.Document, n *doc.Node) string {
	b, err := json.Marshal(d.Data(n.OuterRange()))
	if err != nil {
		return ""
	}
	return string(b)
}

// lcsPairs matches equal elements of two string slices in order, returning
// for each index the matched index on the other side, or -1.
func lcsPairs(xs, ys []string) (matchedX, matchedY []int) {
	n, m := len(xs), len(ys)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if xs[i] == ys[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else {
				dp[i][j] = max(dp[i+1][j], dp[i][j+1])
			}
		}
	}
	matchedX = make([]int, n)
	matchedY = make([]int, m)
	for i := range matchedX {
		matchedX[i] = -1
	}
	for j := range matchedY {
		matchedY[j] = -1
	}
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case xs[i] == ys[j]:
			matchedX[i] = j
			matchedY[j] = i
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return matchedX, matchedY
}

// textOf collects the character content in a range, skipping structural
// markers.
func textOf(d *doc.Document, r doc.Range) string {
	var runes []rune
	for _, it := range d.Data(r) {
		if it.Kind == doc.KindChar {
			runes = append(runes, it.Char)
		}
	}
	return string(runes)
}

func attrsEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
