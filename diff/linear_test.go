package diff

import (
	"reflect"
	"testing"
)

// reconstruct rebuilds one side of a diff: the old string from retains and
// deletes, the new string from retains and inserts.
func reconstruct(d *LinearDiff, keep SegmentOp) string {
	var out string
	for _, s := range d.Segments {
		if s.Op == SegRetain || s.Op == keep {
			out += s.Text
		}
	}
	return out
}

func TestDiffStrings(t *testing.T) {
	tests := []struct {
		name                        string
		a, b                        string
		retained, inserted, deleted int
	}{
		{"identical", "hello", "hello", 5, 0, 0},
		{"empty to text", "", "hi", 0, 2, 0},
		{"text to empty", "hi", "", 0, 0, 2},
		{"both empty", "", "", 0, 0, 0},
		{"classic", "kitten", "sitting", 4, 3, 2},
		{"disjoint", "abc", "xyz", 0, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DiffStrings(tt.a, tt.b, nil)
			if d.Retained != tt.retained || d.Inserted != tt.inserted || d.Deleted != tt.deleted {
				t.Errorf("counts = %d/%d/%d, want %d/%d/%d",
					d.Retained, d.Inserted, d.Deleted,
					tt.retained, tt.inserted, tt.deleted)
			}
			if got := reconstruct(d, SegDelete); got != tt.a {
				t.Errorf("old side = %q, want %q", got, tt.a)
			}
			if got := reconstruct(d, SegInsert); got != tt.b {
				t.Errorf("new side = %q, want %q", got, tt.b)
			}
		})
	}
}

func TestDiffStringsMergesRuns(t *testing.T) {
	d := DiffStrings("aaXXbb", "aaYYbb", nil)
	for i := 1; i < len(d.Segments); i++ {
		if d.Segments[i].Op == d.Segments[i-1].Op {
			t.Fatalf("adjacent segments share op %q: %+v", d.Segments[i].Op, d.Segments)
		}
	}
	if d.Retained != 4 || d.Inserted != 2 || d.Deleted != 2 {
		t.Errorf("counts = %d/%d/%d", d.Retained, d.Inserted, d.Deleted)
	}
}

func TestGraphemeSegmenter(t *testing.T) {
	// The family emoji is several code points joined by ZWJ but a single
	// grapheme cluster, as is an accented letter in decomposed form.
	got := GraphemeSegmenter("áb\U0001F468‍\U0001F469‍\U0001F467")
	want := []string{"á", "b", "\U0001F468‍\U0001F469‍\U0001F467"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("segments = %q, want %q", got, want)
	}
	if GraphemeSegmenter("") != nil {
		t.Error("empty string should produce no segments")
	}
}

func TestDiffStringsCustomSegmenter(t *testing.T) {
	words := func(s string) []string {
		var out []string
		start := 0
		for i, r := range s {
			if r == ' ' {
				out = append(out, s[start:i+1])
				start = i + 1
			}
		}
		if start < len(s) {
			out = append(out, s[start:])
		}
		return out
	}

	d := DiffStrings("foo bar baz", "foo car baz", words)
	if d.Retained != 2 || d.Inserted != 1 || d.Deleted != 1 {
		t.Fatalf("counts = %d/%d/%d, want 2/1/1", d.Retained, d.Inserted, d.Deleted)
	}
	var sawDelete, sawInsert bool
	for _, s := range d.Segments {
		switch {
		case s.Op == SegDelete && s.Text == "bar ":
			sawDelete = true
		case s.Op == SegInsert && s.Text == "car ":
			sawInsert = true
		}
	}
	if !sawDelete || !sawInsert {
		t.Errorf("expected whole-word edit, got %+v", d.Segments)
	}
}
