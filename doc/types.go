package doc

// NodeTypes answers capability questions about element types. It is passed
// explicitly to the document and the transaction builders so tests can supply
// a minimal registry instead of mutating process-wide state.
type NodeTypes interface {
	// IsContent reports whether elements of this type are inline content
	// units (live inside a content branch, diffed as text-level content).
	IsContent(elemType string) bool
	// CanContainContent reports whether elements of this type hold character
	// content directly (paragraph-like content branches).
	CanContainContent(elemType string) bool
	// IgnoresChildren reports whether the element's subtree is opaque:
	// annotation and conversion walks skip over it entirely.
	IgnoresChildren(elemType string) bool
	// IsDeletable reports whether whole nodes of this type may be removed by
	// a removal transaction. Undeletable nodes are retained instead.
	IsDeletable(elemType string) bool
	// CanTakeAnnotation reports whether content inside elements of this type
	// accepts the given annotation.
	CanTakeAnnotation(elemType string, a Annotation) bool
}

// TypeSpec describes one element type for BasicTypes.
type TypeSpec struct {
	Content         bool
	ContainsContent bool
	IgnoreChildren  bool
	Undeletable     bool
	NoAnnotations   bool
}

// BasicTypes is a NodeTypes implementation backed by a static table. Unknown
// types default to deletable structural elements.
type BasicTypes struct {
	specs map[string]TypeSpec
}

// NewBasicTypes creates a registry from a spec table.
func NewBasicTypes(specs map[string]TypeSpec) *BasicTypes {
	return &BasicTypes{specs: specs}
}

// DefaultTypes returns a registry covering the built-in document schema used
// by the demo server and the tests.
func DefaultTypes() *BasicTypes {
	return NewBasicTypes(map[string]TypeSpec{
		"paragraph":    {ContainsContent: true},
		"heading":      {ContainsContent: true},
		"preformatted": {ContainsContent: true, NoAnnotations: true},
		"blockquote":   {},
		"list":         {},
		"listItem":     {},
		"table":        {},
		"tableRow":     {},
		"tableCell":    {},
		"alien":        {IgnoreChildren: true, Undeletable: true},
		"inlineImage":  {Content: true},
		"reference":    {Content: true, IgnoreChildren: true},
		"internalList": {IgnoreChildren: true, Undeletable: true},
		"internalItem": {},
	})
}

func (t *BasicTypes) spec(elemType string) TypeSpec { return t.specs[elemType] }

func (t *BasicTypes) IsContent(elemType string) bool { return t.spec(elemType).Content }

func (t *BasicTypes) CanContainContent(elemType string) bool {
	return t.spec(elemType).ContainsContent
}

func (t *BasicTypes) IgnoresChildren(elemType string) bool {
	return t.spec(elemType).IgnoreChildren
}

func (t *BasicTypes) IsDeletable(elemType string) bool { return !t.spec(elemType).Undeletable }

func (t *BasicTypes) CanTakeAnnotation(elemType string, _ Annotation) bool {
	return !t.spec(elemType).NoAnnotations
}
