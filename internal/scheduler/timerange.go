package scheduler

import (
	"sort"
	"time"
)

// TimeRange is a half-open interval [Start, End). It is a pure value with no
// identity; Kind is an optional tag describing what the range represents.
type TimeRange struct {
	Start time.Time
	End   time.Time
	Kind  string
}

// IsValid reports whether the range has a positive extent.
func (r TimeRange) IsValid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && r.Start.Before(r.End)
}

// Duration returns the extent of the range.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Overlaps reports whether the two half-open intervals intersect.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Contains reports whether the instant lies inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// ContainsRange reports whether other lies entirely within the receiver.
func (r TimeRange) ContainsRange(other TimeRange) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Pad widens the range symmetrically by the given duration.
func (r TimeRange) Pad(d time.Duration) TimeRange {
	if d <= 0 {
		return r
	}
	return TimeRange{Start: r.Start.Add(-d), End: r.End.Add(d), Kind: r.Kind}
}

// SortRanges returns a copy ordered by start, then end.
func SortRanges(ranges []TimeRange) []TimeRange {
	out := make([]TimeRange, len(ranges))
	copy(out, ranges)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].End.Before(out[j].End)
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
