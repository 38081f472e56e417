package ot

import (
	"errors"
	"testing"

	"github.com/okadri/richdoc/doc"
)

// textOf collects the character content of a document.
func textOf(d *doc.Document) string {
	var runes []rune
	for _, it := range d.FullData() {
		if !it.IsStructural() {
			runes = append(runes, it.Char)
		}
	}
	return string(runes)
}

func TestNewFromInsertion(t *testing.T) {
	t.Run("inside a paragraph", func(t *testing.T) {
		d := paraDoc("abc")
		tx := NewFromInsertion(d, 2, doc.CharItems("xy"))
		after := mustApply(t, d, tx)
		if got := textOf(after); got != "axybc" {
			t.Errorf("text = %q, want %q", got, "axybc")
		}
		if after.Len() != d.Len()+2 {
			t.Errorf("length = %d, want %d", after.Len(), d.Len()+2)
		}
	})

	t.Run("bare content between paragraphs is wrapped", func(t *testing.T) {
		d := paraDoc("a")
		tx := NewFromInsertion(d, 0, doc.CharItems("x"))
		after := mustApply(t, d, tx)
		kids := after.Tree().Children()
		if len(kids) != 2 {
			t.Fatalf("top-level children = %d, want 2", len(kids))
		}
		if kids[0].Type != "paragraph" {
			t.Errorf("inserted wrapper type = %q", kids[0].Type)
		}
		if got := textOf(after); got != "xa" {
			t.Errorf("text = %q, want %q", got, "xa")
		}
	})

	t.Run("structural data snaps out of the paragraph", func(t *testing.T) {
		d := paraDoc("ab")
		data := []doc.Item{doc.NewOpen("paragraph", nil), doc.NewClose("paragraph")}
		tx := NewFromInsertion(d, 2, data)
		after := mustApply(t, d, tx)
		kids := after.Tree().Children()
		if len(kids) != 2 {
			t.Fatalf("top-level children = %d, want 2", len(kids))
		}
		// The empty paragraph lands after the existing one, not inside it.
		if got := textOf(after); got != "ab" {
			t.Errorf("text = %q, want %q", got, "ab")
		}
	})
}

func TestNewFromRemoval(t *testing.T) {
	t.Run("collapsed range is a no-op", func(t *testing.T) {
		d := paraDoc("ab")
		tx, err := NewFromRemoval(d, doc.NewRange(2, 2))
		if err != nil {
			t.Fatal(err)
		}
		if !tx.IsNoOp() {
			t.Errorf("transaction = %+v, want no-op", tx.Operations)
		}
	})

	t.Run("within one paragraph", func(t *testing.T) {
		d := paraDoc("abcd")
		tx, err := NewFromRemoval(d, doc.NewRange(2, 4))
		if err != nil {
			t.Fatal(err)
		}
		after := mustApply(t, d, tx)
		if got := textOf(after); got != "ad" {
			t.Errorf("text = %q, want %q", got, "ad")
		}
	})

	t.Run("across two paragraphs merges them", func(t *testing.T) {
		d := paraDoc("ab", "cd") // p a b /p p c d /p
		tx, err := NewFromRemoval(d, doc.NewRange(2, 6))
		if err != nil {
			t.Fatal(err)
		}
		after := mustApply(t, d, tx)
		if got := textOf(after); got != "ad" {
			t.Errorf("text = %q, want %q", got, "ad")
		}
		if kids := after.Tree().Children(); len(kids) != 1 {
			t.Errorf("paragraphs = %d, want 1 (merged)", len(kids))
		}
	})

	t.Run("whole paragraph removed outright", func(t *testing.T) {
		d := paraDoc("ab", "cd")
		tx, err := NewFromRemoval(d, doc.NewRange(0, 4))
		if err != nil {
			t.Fatal(err)
		}
		after := mustApply(t, d, tx)
		if got := textOf(after); got != "cd" {
			t.Errorf("text = %q, want %q", got, "cd")
		}
		if kids := after.Tree().Children(); len(kids) != 1 {
			t.Errorf("paragraphs = %d, want 1", len(kids))
		}
	})

	t.Run("undeletable node survives", func(t *testing.T) {
		items := []doc.Item{doc.NewOpen("paragraph", nil)}
		items = append(items, doc.CharItems("a")...)
		items = append(items, doc.NewClose("paragraph"), doc.NewOpen("alien", nil))
		items = append(items, doc.CharItems("x")...)
		items = append(items, doc.NewClose("alien"))
		d := doc.New(items, nil)

		tx, err := NewFromRemoval(d, doc.NewRange(0, d.Len()))
		if err != nil {
			t.Fatal(err)
		}
		after := mustApply(t, d, tx)
		kids := after.Tree().Children()
		if len(kids) != 1 || kids[0].Type != "alien" {
			t.Fatalf("children = %+v, want the alien alone", kids)
		}
	})

	t.Run("removing the whole body leaves an empty paragraph", func(t *testing.T) {
		d := paraDoc("ab")
		tx, err := NewFromRemoval(d, doc.NewRange(0, d.Len()))
		if err != nil {
			t.Fatal(err)
		}
		after := mustApply(t, d, tx)
		kids := after.Tree().Children()
		if len(kids) != 1 || kids[0].Type != "paragraph" {
			t.Fatalf("children = %+v, want one empty paragraph", kids)
		}
		if after.Len() != 2 {
			t.Errorf("length = %d, want 2", after.Len())
		}
	})
}

func TestNewFromReplacement(t *testing.T) {
	d := paraDoc("abcd")
	tx, err := NewFromReplacement(d, doc.NewRange(2, 4), doc.CharItems("XY"))
	if err != nil {
		t.Fatal(err)
	}
	after := mustApply(t, d, tx)
	if got := textOf(after); got != "aXYd" {
		t.Errorf("text = %q, want %q", got, "aXYd")
	}
}

func TestNewFromAttributeChanges(t *testing.T) {
	t.Run("set, skip unchanged, unset", func(t *testing.T) {
		items := []doc.Item{doc.NewOpen("heading", map[string]any{"level": 1, "old": "v"})}
		items = append(items, doc.CharItems("a")...)
		items = append(items, doc.NewClose("heading"))
		d := doc.New(items, nil)

		tx, err := NewFromAttributeChanges(d, 0, map[string]any{
			"level": 2,   // changed
			"old":   nil, // cleared
		})
		if err != nil {
			t.Fatal(err)
		}
		after := mustApply(t, d, tx)
		it, _ := after.ItemAt(0)
		if it.Attributes["level"] != 2 {
			t.Errorf("level = %v, want 2", it.Attributes["level"])
		}
		if _, ok := it.Attributes["old"]; ok {
			t.Errorf("old not cleared: %v", it.Attributes)
		}

		same, err := NewFromAttributeChanges(d, 0, map[string]any{"level": 1})
		if err != nil {
			t.Fatal(err)
		}
		if !same.IsNoOp() {
			t.Errorf("unchanged value should produce a no-op, got %+v", same.Operations)
		}
	})

	t.Run("non-element target fails", func(t *testing.T) {
		d := paraDoc("a")
		if _, err := NewFromAttributeChanges(d, 1, map[string]any{"k": "v"}); !errors.Is(err, ErrInvalidOperand) {
			t.Errorf("error = %v, want ErrInvalidOperand", err)
		}
	})
}

func TestNewFromAnnotation(t *testing.T) {
	bold := doc.Annotation{Type: "bold"}

	t.Run("set over characters", func(t *testing.T) {
		d := paraDoc("abc")
		tx := NewFromAnnotation(d, doc.NewRange(1, 4), MethodSet, bold)
		after := mustApply(t, d, tx)
		h := doc.HashOf(bold)
		for i := 1; i <= 3; i++ {
			it, _ := after.ItemAt(i)
			if !it.HasAnnotation(h) {
				t.Errorf("item %d missing annotation", i)
			}
		}
	})

	t.Run("set then clear round-trips", func(t *testing.T) {
		d := paraDoc("abc")
		set := NewFromAnnotation(d, doc.NewRange(1, 4), MethodSet, bold)
		annotated := mustApply(t, d, set)
		clear := NewFromAnnotation(annotated, doc.NewRange(1, 4), MethodClear, bold)
		cleared := mustApply(t, annotated, clear)
		if !doc.ItemsEqual(cleared.FullData(), d.FullData()) {
			t.Errorf("cleared = %+v, want original", cleared.FullData())
		}
	})

	t.Run("already annotated content is skipped", func(t *testing.T) {
		d := paraDoc("ab")
		first := NewFromAnnotation(d, doc.NewRange(1, 3), MethodSet, bold)
		annotated := mustApply(t, d, first)
		again := NewFromAnnotation(annotated, doc.NewRange(1, 3), MethodSet, bold)
		if !again.IsNoOp() {
			t.Errorf("re-annotating should be a no-op, got %+v", again.Operations)
		}
	})

	t.Run("no-annotation branches are skipped", func(t *testing.T) {
		items := []doc.Item{doc.NewOpen("preformatted", nil)}
		items = append(items, doc.CharItems("ab")...)
		items = append(items, doc.NewClose("preformatted"))
		d := doc.New(items, nil)

		tx := NewFromAnnotation(d, doc.NewRange(0, d.Len()), MethodSet, bold)
		if !tx.IsNoOp() {
			t.Errorf("preformatted content must not be annotated, got %+v", tx.Operations)
		}
	})
}

func TestNewFromContentBranchConversion(t *testing.T) {
	t.Run("paragraph to heading", func(t *testing.T) {
		d := paraDoc("ab", "cd")
		tx, err := NewFromContentBranchConversion(d, doc.NewRange(1, 7), "heading", map[string]any{"level": 1})
		if err != nil {
			t.Fatal(err)
		}
		after := mustApply(t, d, tx)
		for i, kid := range after.Tree().Children() {
			if kid.Type != "heading" {
				t.Errorf("child %d type = %q, want heading", i, kid.Type)
			}
			if kid.Attributes["level"] != 1 {
				t.Errorf("child %d attributes = %v", i, kid.Attributes)
			}
		}
		if got := textOf(after); got != "abcd" {
			t.Errorf("text = %q, want %q", got, "abcd")
		}
	})

	t.Run("same type changes attributes only", func(t *testing.T) {
		d := paraDoc("ab")
		tx, err := NewFromContentBranchConversion(d, doc.NewRange(1, 3), "paragraph", map[string]any{"align": "center"})
		if err != nil {
			t.Fatal(err)
		}
		for _, op := range tx.Operations {
			if op.Type == OpReplace {
				t.Fatalf("same-type conversion should not replace markers: %+v", tx.Operations)
			}
		}
		after := mustApply(t, d, tx)
		it, _ := after.ItemAt(0)
		if it.Attributes["align"] != "center" {
			t.Errorf("attributes = %v", it.Attributes)
		}
	})
}

func TestNewFromWrap(t *testing.T) {
	t.Run("wrap in blockquote", func(t *testing.T) {
		d := paraDoc("ab")
		tx, err := NewFromWrap(d, doc.NewRange(0, 4),
			nil, []doc.Item{doc.NewOpen("blockquote", nil)}, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		after := mustApply(t, d, tx)
		kids := after.Tree().Children()
		if len(kids) != 1 || kids[0].Type != "blockquote" {
			t.Fatalf("top level = %+v, want one blockquote", kids)
		}
		inner := kids[0].Children()
		if len(inner) != 1 || inner[0].Type != "paragraph" {
			t.Fatalf("blockquote children = %+v, want the paragraph", inner)
		}
	})

	t.Run("unwrap blockquote", func(t *testing.T) {
		items := []doc.Item{doc.NewOpen("blockquote", nil), doc.NewOpen("paragraph", nil)}
		items = append(items, doc.CharItems("ab")...)
		items = append(items, doc.NewClose("paragraph"), doc.NewClose("blockquote"))
		d := doc.New(items, nil)

		tx, err := NewFromWrap(d, doc.NewRange(1, 5),
			[]doc.Item{doc.NewOpen("blockquote", nil)}, nil, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		after := mustApply(t, d, tx)
		kids := after.Tree().Children()
		if len(kids) != 1 || kids[0].Type != "paragraph" {
			t.Fatalf("top level = %+v, want the bare paragraph", kids)
		}
	})

	t.Run("structural mismatch fails", func(t *testing.T) {
		items := []doc.Item{doc.NewOpen("blockquote", nil), doc.NewOpen("paragraph", nil)}
		items = append(items, doc.CharItems("ab")...)
		items = append(items, doc.NewClose("paragraph"), doc.NewClose("blockquote"))
		d := doc.New(items, nil)

		_, err := NewFromWrap(d, doc.NewRange(1, 5),
			[]doc.Item{doc.NewOpen("list", nil)}, nil, nil, nil)
		if !errors.Is(err, ErrInvalidOperand) {
			t.Errorf("error = %v, want ErrInvalidOperand", err)
		}
	})

	t.Run("rewrap each sibling", func(t *testing.T) {
		items := []doc.Item{
			doc.NewOpen("list", nil),
			doc.NewOpen("listItem", nil), doc.NewOpen("paragraph", nil),
		}
		items = append(items, doc.CharItems("a")...)
		items = append(items, doc.NewClose("paragraph"), doc.NewClose("listItem"), doc.NewClose("list"))
		d := doc.New(items, nil)

		// Strip the listItem wrapper from each list child.
		tx, err := NewFromWrap(d, doc.NewRange(1, d.Len()-1),
			[]doc.Item{doc.NewOpen("list", nil)}, nil,
			[]doc.Item{doc.NewOpen("listItem", nil)}, nil)
		if err != nil {
			t.Fatal(err)
		}
		after := mustApply(t, d, tx)
		kids := after.Tree().Children()
		if len(kids) != 1 || kids[0].Type != "paragraph" {
			t.Fatalf("top level = %+v, want the bare paragraph", kids)
		}
	})
}

func TestNewFromDocumentInsertion(t *testing.T) {
	t.Run("plain content", func(t *testing.T) {
		target := paraDoc("ab")
		other := paraDoc("xy")
		r := doc.NewRange(1, 3) // just the characters
		tx := NewFromDocumentInsertion(target, 2, other, &r)
		after := mustApply(t, target, tx)
		if got := textOf(after); got != "axyb" {
			t.Errorf("text = %q, want %q", got, "axyb")
		}
	})

	t.Run("whole paragraph snaps past the target paragraph", func(t *testing.T) {
		target := paraDoc("ab")
		other := paraDoc("xy")
		tx := NewFromDocumentInsertion(target, 2, other, nil)
		after := mustApply(t, target, tx)
		if got := textOf(after); got != "abxy" {
			t.Errorf("text = %q, want %q", got, "abxy")
		}
		if kids := after.Tree().Children(); len(kids) != 2 {
			t.Errorf("paragraphs = %d, want 2", len(kids))
		}
	})

	t.Run("internal list items migrate with remapped references", func(t *testing.T) {
		// Target has one internal item "f"; other references its own item
		// "g" at index 0, which must land at index 1 after the merge.
		target := doc.New(listItems("ab", "f"), nil)
		other := doc.New(refItems("g"), nil)

		tx := NewFromDocumentInsertion(target, 2, other, nil)
		after := mustApply(t, target, tx)

		list := after.InternalList()
		if list.ItemCount() != 2 {
			t.Fatalf("internal items = %d, want 2", list.ItemCount())
		}
		if item := list.ItemData(1); len(item) == 0 || item[1].Char != 'g' {
			t.Errorf("migrated item = %+v, want the g item", item)
		}

		// The inserted reference must now point at index 1.
		var ref *doc.Item
		for _, it := range after.Data(after.BodyRange()) {
			if it.Kind == doc.KindOpen && it.Type == "reference" {
				ref = &it
				break
			}
		}
		if ref == nil {
			t.Fatal("inserted reference not found")
		}
		if got := ref.Attributes[doc.ListIndexAttribute]; got != 1 {
			t.Errorf("reference index = %v, want 1", got)
		}
	})
}

// listItems builds linear data: one paragraph of body text plus an internal
// list with one single-character item per string.
func listItems(body string, items ...string) []doc.Item {
	var data []doc.Item
	data = append(data, doc.NewOpen("paragraph", nil))
	data = append(data, doc.CharItems(body)...)
	data = append(data, doc.NewClose("paragraph"))
	data = append(data, doc.NewOpen(doc.InternalListType, nil))
	for _, s := range items {
		data = append(data, doc.NewOpen("internalItem", nil))
		data = append(data, doc.CharItems(s)...)
		data = append(data, doc.NewClose("internalItem"))
	}
	data = append(data, doc.NewClose(doc.InternalListType))
	return data
}

// refItems builds a document body with one paragraph containing a reference
// to internal item 0, plus an internal list holding that item.
func refItems(item string) []doc.Item {
	var data []doc.Item
	data = append(data, doc.NewOpen("paragraph", nil))
	data = append(data, doc.NewOpen("reference", map[string]any{doc.ListIndexAttribute: 0}))
	data = append(data, doc.NewClose("reference"))
	data = append(data, doc.NewClose("paragraph"))
	data = append(data, doc.NewOpen(doc.InternalListType, nil))
	data = append(data, doc.NewOpen("internalItem", nil))
	data = append(data, doc.CharItems(item)...)
	data = append(data, doc.NewClose("internalItem"))
	data = append(data, doc.NewClose(doc.InternalListType))
	return data
}
