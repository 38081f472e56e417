// Package diff implements the visual diff engine: tree-level diffing of two
// document snapshots combined with linear diffing of leaf text content,
// producing a human-reviewable change set. Diffing works on two independent
// snapshots; it does not require shared history.
package diff

import (
	"strings"

	"github.com/rivo/uniseg"
)

// SegmentOp tags one segment of a linear diff.
type SegmentOp string

const (
	SegRetain SegmentOp = "retain"
	SegInsert SegmentOp = "insert"
	SegDelete SegmentOp = "delete"
)

// Segment is a run of equal-fate content in a linear diff.
type Segment struct {
	Op   SegmentOp `json:"op"`
	Text string    `json:"text"`
}

// LinearDiff is a character-level (or token-level, depending on the
// segmenter) diff of two text strings.
type LinearDiff struct {
	Segments []Segment `json:"segments"`
	// Retained, Inserted and Deleted count diff units (segmenter tokens).
	Retained int `json:"retained"`
	Inserted int `json:"inserted"`
	Deleted  int `json:"deleted"`
}

// Segmenter splits text into the units the linear differ compares.
// Language-specific tokenization (word-break detection) is supplied by the
// caller; the default splits into grapheme clusters.
type Segmenter func(s string) []string

// GraphemeSegmenter splits text into Unicode grapheme clusters.
func GraphemeSegmenter(s string) []string {
	var out []string
	state := -1
	for len(s) > 0 {
		var cluster string
		cluster, s, _, state = uniseg.FirstGraphemeClusterInString(s, state)
		out = append(out, cluster)
	}
	return out
}

// DiffStrings computes a minimal edit script between two strings over the
// given segmenter's units. A nil segmenter uses GraphemeSegmenter.
func DiffStrings(a, b string, seg Segmenter) *LinearDiff {
	if seg == nil {
		seg = GraphemeSegmenter
	}
	return diffTokens(seg(a), seg(b))
}

// diffTokens runs an LCS dynamic program over the token slices and
// backtracks into retain/insert/delete segments.
func diffTokens(xs, ys []string) *LinearDiff {
	n, m := len(xs), len(ys)
	// dp[i][j] = edit distance between xs[:i] and ys[:j].
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
		dp[i][0] = i
	}
	for j := 0; j <= m; j++ {
		dp[0][j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			best := min(dp[i-1][j], dp[i][j-1]) + 1
			if xs[i-1] == ys[j-1] && dp[i-1][j-1] < best {
				best = dp[i-1][j-1]
			}
			dp[i][j] = best
		}
	}

	// Backtrack from the corner, collecting segments in reverse.
	type step struct {
		op    SegmentOp
		token string
	}
	var steps []step
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && xs[i-1] == ys[j-1] && dp[i][j] == dp[i-1][j-1]:
			steps = append(steps, step{SegRetain, xs[i-1]})
			i--
			j--
		case j > 0 && dp[i][j] == dp[i][j-1]+1:
			steps = append(steps, step{SegInsert, ys[j-1]})
			j--
		default:
			steps = append(steps, step{SegDelete, xs[i-1]})
			i--
		}
	}

	d := &LinearDiff{}
	var cur SegmentOp
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			d.Segments = append(d.Segments, Segment{Op: cur, Text: buf.String()})
			buf.Reset()
		}
	}
	for k := len(steps) - 1; k >= 0; k-- {
		st := steps[k]
		if st.op != cur {
			flush()
			cur = st.op
		}
		buf.WriteString(st.token)
		switch st.op {
		case SegRetain:
			d.Retained++
		case SegInsert:
			d.Inserted++
		case SegDelete:
			d.Deleted++
		}
	}
	flush()
	return d
}
