package doc

import "reflect"

// Annotation is a piece of metadata (formatting, hyperlink, comment) attached
// to a run of content via a store-hash reference.
type Annotation struct {
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ComparableTo reports whether two annotations should be treated as the same
// for the purposes of set/clear span computation: same type and structurally
// equal attributes.
func (a Annotation) ComparableTo(b Annotation) bool {
	if a.Type != b.Type {
		return false
	}
	if len(a.Attributes) == 0 && len(b.Attributes) == 0 {
		return true
	}
	return reflect.DeepEqual(a.Attributes, b.Attributes)
}
