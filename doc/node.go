package doc

// TextType is the synthetic node type of a run of character content. Text
// runs are leaves of the tree view; they have no explicit open/close markers.
const TextType = "text"

// Node is an element of the document's tree view over the linear data. Nodes
// are rebuilt whenever the underlying data changes; they must not be held
// across mutations.
type Node struct {
	Type       string
	Attributes map[string]any

	parent   *Node
	children []*Node
	outer    Range
	types    NodeTypes
	isText   bool
	isRoot   bool
}

// Parent returns the parent node, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's child nodes in document order.
func (n *Node) Children() []*Node { return n.children }

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// OuterRange returns the range covering the node including its open and
// close markers. For text runs the outer and inner ranges coincide.
func (n *Node) OuterRange() Range { return n.outer }

// Range returns the node's inner range: the span of its content, excluding
// markers.
func (n *Node) Range() Range {
	if n.isText || n.isRoot {
		return n.outer
	}
	return NewRange(n.outer.Start+1, n.outer.End-1)
}

// IsContent reports whether the node is a content unit (a text run or an
// inline content element).
func (n *Node) IsContent() bool {
	return n.isText || n.types.IsContent(n.Type)
}

// CanContainContent reports whether the node holds character content
// directly.
func (n *Node) CanContainContent() bool {
	if n.isText || n.isRoot {
		return false
	}
	return n.types.CanContainContent(n.Type)
}

// Depth returns the number of ancestors above the node.
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// CanBeMergedWith reports whether removing the content between this node and
// other would leave a well-formed merged node: same type, same depth, and
// both content branches.
func (n *Node) CanBeMergedWith(other *Node) bool {
	if n == other {
		return true
	}
	if n.Type != other.Type || n.Depth() != other.Depth() {
		return false
	}
	return n.CanContainContent() && other.CanContainContent()
}

// buildTree constructs the tree view of a linear data slice. Character runs
// become text leaves; unbalanced close markers terminate the walk early
// rather than panicking, leaving a truncated but usable tree.
func buildTree(data []Item, types NodeTypes) *Node {
	root := &Node{isRoot: true, outer: NewRange(0, len(data)), types: types}
	current := root
	runStart := -1

	flushRun := func(end int) {
		if runStart < 0 {
			return
		}
		current.children = append(current.children, &Node{
			Type:   TextType,
			parent: current,
			outer:  NewRange(runStart, end),
			types:  types,
			isText: true,
		})
		runStart = -1
	}

	for i, it := range data {
		switch it.Kind {
		case KindChar:
			if runStart < 0 {
				runStart = i
			}
		case KindOpen:
			flushRun(i)
			child := &Node{
				Type:       it.Type,
				Attributes: it.Attributes,
				parent:     current,
				outer:      NewRange(i, i), // end patched on close
				types:      types,
			}
			current.children = append(current.children, child)
			current = child
		case KindClose:
			flushRun(i)
			if current.isRoot {
				return root
			}
			current.outer.End = i + 1
			current = current.parent
		}
	}
	flushRun(len(data))
	return root
}
