package interval

import (
	"fmt"
	"time"
)

// Span is a half-open time interval [Start, End). The zero Span is
// unbounded on both sides.
type Span struct {
	Start time.Time
	End   time.Time
}

// After returns the span [from, from+d)
func After(from time.Time, d time.Duration) Span {
	return Span{Start: from, End: from.Add(d)}
}

// IsZero reports whether the span is unbounded on both sides
func (s Span) IsZero() bool {
	return s.Start.IsZero() && s.End.IsZero()
}

// Contains reports whether t falls within the span. An unset bound does
// not constrain.
func (s Span) Contains(t time.Time) bool {
	if !s.Start.IsZero() && t.Before(s.Start) {
		return false
	}
	if !s.End.IsZero() && !t.Before(s.End) {
		return false
	}
	return true
}

// Intersect returns the overlap of two spans. The result may be empty.
func (s Span) Intersect(other Span) Span {
	out := s
	if out.Start.IsZero() || (!other.Start.IsZero() && other.Start.After(out.Start)) {
		out.Start = other.Start
	}
	if out.End.IsZero() || (!other.End.IsZero() && other.End.Before(out.End)) {
		out.End = other.End
	}
	return out
}

// String returns a human-readable representation
func (s Span) String() string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format(time.RFC3339)
	}
	return fmt.Sprintf("[%s, %s)", format(s.Start), format(s.End))
}
