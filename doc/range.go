package doc

import "fmt"

// Range is a [start, end) pair of linear offsets. Start may be greater than
// End to represent a direction-sensitive (backwards) selection.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NewRange creates a range from start to end, preserving direction.
func NewRange(start, end int) Range {
	return Range{Start: start, End: end}
}

// From returns the lower bound of the range regardless of direction.
func (r Range) From() int {
	if r.Start > r.End {
		return r.End
	}
	return r.Start
}

// To returns the upper bound of the range regardless of direction.
func (r Range) To() int {
	if r.Start > r.End {
		return r.Start
	}
	return r.End
}

// Len returns the number of offsets covered by the range.
func (r Range) Len() int { return r.To() - r.From() }

// IsCollapsed reports whether the range covers nothing.
func (r Range) IsCollapsed() bool { return r.Start == r.End }

// IsBackwards reports whether the range points against document order.
func (r Range) IsBackwards() bool { return r.Start > r.End }

// ContainsOffset reports whether offset lies within [From, To).
func (r Range) ContainsOffset(offset int) bool {
	return offset >= r.From() && offset < r.To()
}

// ContainsRange reports whether other lies entirely within r.
func (r Range) ContainsRange(other Range) bool {
	return other.From() >= r.From() && other.To() <= r.To()
}

// Overlaps reports whether the two ranges share at least one offset.
func (r Range) Overlaps(other Range) bool {
	return r.From() < other.To() && other.From() < r.To()
}

// Intersect returns the overlap of two ranges and whether any exists. The
// result is always forwards.
func (r Range) Intersect(other Range) (Range, bool) {
	from := max(r.From(), other.From())
	to := min(r.To(), other.To())
	if from > to {
		return Range{}, false
	}
	return NewRange(from, to), true
}

// Normalized returns a forwards copy of the range.
func (r Range) Normalized() Range { return NewRange(r.From(), r.To()) }

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}
