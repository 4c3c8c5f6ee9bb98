package availability

import (
	"time"

	"zarp/internal/domain/daterange"
)

type SnapshotApplied struct {
	PropertyID PropertyID
	Ranges     int
	At         time.Time
}

func (e SnapshotApplied) EventName() string     { return "availability.snapshot_applied" }
func (e SnapshotApplied) AggregateID() string   { return string(e.PropertyID) }
func (e SnapshotApplied) OccurredAt() time.Time { return e.At }

type IntervalMerged struct {
	PropertyID PropertyID
	Interval   daterange.Interval
	At         time.Time
}

func (e IntervalMerged) EventName() string     { return "availability.interval_merged" }
func (e IntervalMerged) AggregateID() string   { return string(e.PropertyID) }
func (e IntervalMerged) OccurredAt() time.Time { return e.At }

type SelectionInvalidated struct {
	PropertyID PropertyID
	CheckIn    daterange.Day
	CheckOut   daterange.Day
	Reason     Reason
	At         time.Time
}

func (e SelectionInvalidated) EventName() string     { return "availability.selection_invalidated" }
func (e SelectionInvalidated) AggregateID() string   { return string(e.PropertyID) }
func (e SelectionInvalidated) OccurredAt() time.Time { return e.At }

func SnapshotAppliedEvent(id PropertyID, ranges int, at time.Time) SnapshotApplied {
	return SnapshotApplied{PropertyID: id, Ranges: ranges, At: at.UTC()}
}

func IntervalMergedEvent(id PropertyID, iv daterange.Interval, at time.Time) IntervalMerged {
	return IntervalMerged{PropertyID: id, Interval: iv, At: at.UTC()}
}

func SelectionInvalidatedEvent(id PropertyID, sel CandidateSelection, reason Reason, at time.Time) SelectionInvalidated {
	return SelectionInvalidated{PropertyID: id, CheckIn: sel.CheckIn, CheckOut: sel.CheckOut, Reason: reason, At: at.UTC()}
}
