package availability

import (
	"sort"
	"time"

	"zarp/internal/domain/daterange"
	"zarp/internal/domain/shared/events"
)

// PropertyID identifies a listing in the marketplace backend.
type PropertyID string

// Snapshot is the authoritative set of reserved ranges for a property at
// load time, already normalized to inclusive intervals.
type Snapshot struct {
	PropertyID PropertyID
	Intervals  []daterange.Interval
	LoadedAt   time.Time
}

// IntervalSet is the canonical reserved-range state for one property.
// Its single invariant: the intervals are ascending by Start, pairwise
// disjoint and never adjacent. Every mutating method restores the
// invariant before returning. The set is not goroutine safe; the owning
// session serializes access.
type IntervalSet struct {
	PropertyID PropertyID
	intervals  []daterange.Interval
	version    int64
	events.EventRecorder
}

func NewIntervalSet(id PropertyID) *IntervalSet {
	return &IntervalSet{PropertyID: id}
}

// MergeAll normalizes an arbitrary list of intervals into the canonical
// sorted, merged form. Overlapping and exactly-adjacent intervals
// collapse into one; a single free day between two intervals keeps them
// apart. The sweep is idempotent and order-insensitive.
func MergeAll(list []daterange.Interval) []daterange.Interval {
	if len(list) == 0 {
		return nil
	}
	sorted := make([]daterange.Interval, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	result := make([]daterange.Interval, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if next.Start <= current.End+1 {
			if next.End > current.End {
				current.End = next.End
			}
			continue
		}
		result = append(result, current)
		current = next
	}
	return append(result, current)
}

// Replace installs a freshly loaded snapshot, discarding prior state.
func (s *IntervalSet) Replace(list []daterange.Interval, now time.Time) {
	s.intervals = MergeAll(list)
	s.version++
	s.Record(SnapshotAppliedEvent(s.PropertyID, len(s.intervals), now))
}

// Insert merges one confirmed reservation into the set. Inserting an
// interval the set already covers is a no-op, which is what makes
// duplicate and out-of-order live events harmless. Returns true when the
// set changed.
func (s *IntervalSet) Insert(iv daterange.Interval, now time.Time) bool {
	merged := MergeAll(append(s.Blocked(), iv))
	if equalIntervals(merged, s.intervals) {
		return false
	}
	s.intervals = merged
	s.version++
	s.Record(IntervalMergedEvent(s.PropertyID, iv, now))
	return true
}

// Blocked returns a copy of the reserved ranges for calendar rendering.
func (s *IntervalSet) Blocked() []daterange.Interval {
	out := make([]daterange.Interval, len(s.intervals))
	copy(out, s.intervals)
	return out
}

func (s *IntervalSet) Len() int {
	return len(s.intervals)
}

// Version increments on every effective mutation; state responses carry
// it so the UI can cheaply detect staleness.
func (s *IntervalSet) Version() int64 {
	return s.version
}

// CoversDay reports whether d falls inside any reserved range.
func (s *IntervalSet) CoversDay(d daterange.Day) bool {
	_, ok := s.covering(d)
	return ok
}

// covering returns the interval containing d, if any. Binary search over
// the sorted set.
func (s *IntervalSet) covering(d daterange.Day) (daterange.Interval, bool) {
	idx := sort.Search(len(s.intervals), func(i int) bool {
		return s.intervals[i].End >= d
	})
	if idx < len(s.intervals) && s.intervals[idx].Contains(d) {
		return s.intervals[idx], true
	}
	return daterange.Interval{}, false
}

// IntersectsStay reports whether any reserved range occupies a night of
// the half-open stay [checkIn, checkOut).
func (s *IntervalSet) IntersectsStay(checkIn, checkOut daterange.Day) bool {
	for _, iv := range s.intervals {
		if iv.Start >= checkOut {
			break
		}
		if iv.IntersectsStay(checkIn, checkOut) {
			return true
		}
	}
	return false
}

func equalIntervals(a, b []daterange.Interval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
