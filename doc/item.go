// Package doc implements the linear document model: a flattened sequence of
// structural markers and annotated characters, with a tree view built on top,
// a content-addressed store for shared immutable values, and an internal list
// for cross-referenced items such as footnotes.
package doc

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Kind identifies what a linear data item is.
type Kind uint8

const (
	// KindChar is a single character of content, possibly annotated.
	KindChar Kind = iota
	// KindOpen is the opening marker of a structural element.
	KindOpen
	// KindClose is the closing marker of a structural element.
	KindClose
)

// Item is one unit of linear document data. Exactly one of the three shapes
// applies: an element-open (Type + Attributes), an element-close (Type), or a
// character (Char + Annotations).
type Item struct {
	Kind        Kind
	Type        string
	Attributes  map[string]any
	Char        rune
	Annotations []Hash // ordered references into the document store
}

// NewOpen creates an element-open item.
func NewOpen(elemType string, attributes map[string]any) Item {
	return Item{Kind: KindOpen, Type: elemType, Attributes: attributes}
}

// NewClose creates an element-close item.
func NewClose(elemType string) Item {
	return Item{Kind: KindClose, Type: elemType}
}

// NewChar creates a character item carrying the given annotation references.
func NewChar(ch rune, annotations ...Hash) Item {
	return Item{Kind: KindChar, Char: ch, Annotations: annotations}
}

// CharItems converts a string into plain character items.
func CharItems(s string, annotations ...Hash) []Item {
	items := make([]Item, 0, len(s))
	for _, r := range s {
		items = append(items, NewChar(r, annotations...))
	}
	return items
}

// IsStructural reports whether the item is an open or close marker.
func (it Item) IsStructural() bool { return it.Kind != KindChar }

// HasAnnotation reports whether the item carries the given annotation reference.
func (it Item) HasAnnotation(h Hash) bool {
	for _, a := range it.Annotations {
		if a == h {
			return true
		}
	}
	return false
}

// WithAnnotation returns a copy of the item with h appended, or the item
// unchanged if it already carries h.
func (it Item) WithAnnotation(h Hash) Item {
	if it.HasAnnotation(h) {
		return it
	}
	anns := make([]Hash, len(it.Annotations), len(it.Annotations)+1)
	copy(anns, it.Annotations)
	it.Annotations = append(anns, h)
	return it
}

// WithoutAnnotation returns a copy of the item with h removed.
func (it Item) WithoutAnnotation(h Hash) Item {
	if !it.HasAnnotation(h) {
		return it
	}
	anns := make([]Hash, 0, len(it.Annotations)-1)
	for _, a := range it.Annotations {
		if a != h {
			anns = append(anns, a)
		}
	}
	it.Annotations = anns
	return it
}

// Equal reports deep equality of two items, including attributes and
// annotation order.
func (it Item) Equal(other Item) bool {
	if it.Kind != other.Kind || it.Type != other.Type || it.Char != other.Char {
		return false
	}
	if len(it.Annotations) != len(other.Annotations) {
		return false
	}
	for i, a := range it.Annotations {
		if a != other.Annotations[i] {
			return false
		}
	}
	if len(it.Attributes) == 0 && len(other.Attributes) == 0 {
		return true
	}
	return reflect.DeepEqual(it.Attributes, other.Attributes)
}

// ItemsEqual reports element-wise equality of two item slices.
func ItemsEqual(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// CopyItems returns a shallow copy of an item slice. Items are value objects;
// callers must not mutate shared attribute maps.
func CopyItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// Wire shapes: plain characters serialize as bare strings, annotated
// characters as [char, [hashes]], open elements as {"type": t, "attributes":
// ...} and close elements as {"type": "/t"}.

// MarshalJSON implements json.Marshaler.
func (it Item) MarshalJSON() ([]byte, error) {
	switch it.Kind {
	case KindChar:
		if len(it.Annotations) == 0 {
			return json.Marshal(string(it.Char))
		}
		return json.Marshal([]any{string(it.Char), it.Annotations})
	case KindOpen:
		if len(it.Attributes) == 0 {
			return json.Marshal(map[string]any{"type": it.Type})
		}
		return json.Marshal(map[string]any{"type": it.Type, "attributes": it.Attributes})
	case KindClose:
		return json.Marshal(map[string]any{"type": "/" + it.Type})
	}
	return nil, fmt.Errorf("unknown item kind %d", it.Kind)
}

// UnmarshalJSON implements json.Unmarshaler.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		r, err := singleRune(v)
		if err != nil {
			return err
		}
		*it = NewChar(r)
		return nil
	case []any:
		if len(v) != 2 {
			return fmt.Errorf("annotated character must be a [char, hashes] pair, got %d elements", len(v))
		}
		s, ok := v[0].(string)
		if !ok {
			return fmt.Errorf("annotated character: first element must be a string")
		}
		r, err := singleRune(s)
		if err != nil {
			return err
		}
		rawHashes, ok := v[1].([]any)
		if !ok {
			return fmt.Errorf("annotated character: second element must be a hash list")
		}
		anns := make([]Hash, len(rawHashes))
		for i, rh := range rawHashes {
			hs, ok := rh.(string)
			if !ok {
				return fmt.Errorf("annotated character: hash %d is not a string", i)
			}
			anns[i] = Hash(hs)
		}
		*it = NewChar(r, anns...)
		return nil
	case map[string]any:
		elemType, ok := v["type"].(string)
		if !ok || elemType == "" {
			return fmt.Errorf("element item missing type")
		}
		if elemType[0] == '/' {
			*it = NewClose(elemType[1:])
			return nil
		}
		attrs, _ := v["attributes"].(map[string]any)
		*it = NewOpen(elemType, attrs)
		return nil
	}
	return fmt.Errorf("cannot decode linear data item from %s", data)
}

func singleRune(s string) (rune, error) {
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, fmt.Errorf("character item must be a single rune, got %q", s)
	}
	return runes[0], nil
}
