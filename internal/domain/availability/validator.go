package availability

import (
	"time"

	"zarp/internal/domain/daterange"
)

// State of a guest's date selection.
type State string

const (
	StateEmpty         State = "EMPTY"
	StateCheckInSet    State = "CHECKIN_SET"
	StateRangeComplete State = "RANGE_COMPLETE"
	StateAccepted      State = "ACCEPTED"
)

// Reason is a categorical rejection cause; the UI layer localizes it.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonCheckInBlocked      Reason = "CHECKIN_BLOCKED"
	ReasonCheckOutBeforeIn    Reason = "CHECKOUT_BEFORE_CHECKIN"
	ReasonRangeCrossesBlocked Reason = "RANGE_CROSSES_BLOCKED"
	ReasonCheckOutBlocked     Reason = "CHECKOUT_BLOCKED"
	ReasonCheckInNotSet       Reason = "CHECKIN_NOT_SET"
)

// SelectionValidator drives the selection state machine against one
// IntervalSet. A rejected transition leaves the machine where it was and
// surfaces the reason; an accepted check-out completes the range and
// immediately promotes it, since completion triggers no further check.
// The validator must be re-run (Revalidate) whenever the set changes: a
// reservation confirmed elsewhere can retroactively invalidate an
// already-accepted selection.
type SelectionValidator struct {
	set    *IntervalSet
	state  State
	sel    CandidateSelection
	reason Reason
}

func NewSelectionValidator(set *IntervalSet) *SelectionValidator {
	return &SelectionValidator{set: set, state: StateEmpty}
}

// SelectCheckIn picks the arrival day. Picking while a range is already
// complete restarts the selection from the new day.
func (v *SelectionValidator) SelectCheckIn(d daterange.Day) Reason {
	if v.set.CoversDay(d) {
		v.reason = ReasonCheckInBlocked
		return v.reason
	}
	v.sel = CandidateSelection{CheckIn: d}
	v.state = StateCheckInSet
	v.reason = ReasonNone
	return ReasonNone
}

// SelectCheckOut picks the departure day and, when nothing blocks the
// stay, completes and accepts the selection.
func (v *SelectionValidator) SelectCheckOut(e daterange.Day) Reason {
	if v.state == StateEmpty {
		v.reason = ReasonCheckInNotSet
		return v.reason
	}
	if e <= v.sel.CheckIn {
		v.reason = ReasonCheckOutBeforeIn
		return v.reason
	}
	// A checkout day that coincides with another stay's check-in is fine;
	// landing strictly inside a reserved range is not.
	if iv, ok := v.set.covering(e); ok && iv.Start < e {
		v.reason = ReasonCheckOutBlocked
		return v.reason
	}
	if v.set.IntersectsStay(v.sel.CheckIn, e) {
		v.reason = ReasonRangeCrossesBlocked
		return v.reason
	}
	v.sel.CheckOut = e
	v.state = StateRangeComplete
	v.accept()
	return ReasonNone
}

func (v *SelectionValidator) accept() {
	if v.state == StateRangeComplete {
		v.state = StateAccepted
		v.reason = ReasonNone
	}
}

// Clear resets the machine to EMPTY on explicit user action.
func (v *SelectionValidator) Clear() {
	v.sel = CandidateSelection{}
	v.state = StateEmpty
	v.reason = ReasonNone
}

// Revalidate re-checks the current selection after the IntervalSet
// changed. An invalidated selection drops back to EMPTY with the
// triggering reason surfaced, and the invalidation is recorded as a
// domain event on the set. Returns true when the selection was lost.
func (v *SelectionValidator) Revalidate(now time.Time) bool {
	switch v.state {
	case StateCheckInSet:
		if v.set.CoversDay(v.sel.CheckIn) {
			v.invalidate(ReasonCheckInBlocked, now)
			return true
		}
	case StateRangeComplete, StateAccepted:
		if v.set.CoversDay(v.sel.CheckIn) {
			v.invalidate(ReasonCheckInBlocked, now)
			return true
		}
		if v.set.IntersectsStay(v.sel.CheckIn, v.sel.CheckOut) {
			v.invalidate(ReasonRangeCrossesBlocked, now)
			return true
		}
	}
	return false
}

func (v *SelectionValidator) invalidate(reason Reason, now time.Time) {
	v.set.Record(SelectionInvalidatedEvent(v.set.PropertyID, v.sel, reason, now))
	v.sel = CandidateSelection{}
	v.state = StateEmpty
	v.reason = reason
}

func (v *SelectionValidator) State() (State, Reason) {
	return v.state, v.reason
}

// Selection returns the accepted candidate, ready for submission.
func (v *SelectionValidator) Selection() (CandidateSelection, bool) {
	if v.state != StateAccepted {
		return CandidateSelection{}, false
	}
	return v.sel, true
}

// Current returns the in-progress selection regardless of state; the
// checkout day is zero until the range completes.
func (v *SelectionValidator) Current() CandidateSelection {
	return v.sel
}
