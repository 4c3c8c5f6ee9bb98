package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"zarp/internal/domain/availability"
	"zarp/internal/domain/daterange"
	"zarp/internal/domain/shared/money"
	"zarp/internal/infra/obs"
)

// Session owns the availability state for one property-viewing session:
// exactly one IntervalSet and its selection validator, guarded by one
// mutex. The live channel delivers events from its own consume loop, the
// HTTP layer calls in from request goroutines; every mutation funnels
// through the mutex so merges never interleave.
type Session struct {
	ID         string
	PropertyID availability.PropertyID

	mu            sync.Mutex
	set           *availability.IntervalSet
	validator     *availability.SelectionValidator
	pricePerNight money.Money
	snapshotReady bool
	buffered      []ReservationEvent
	liveConnected bool
	closed        bool
	channel       LiveChannel
	onChange      []func()

	loader    SnapshotLoader
	submitter Submitter
	inbox     Inbox
	logger    *slog.Logger
}

// State is a read-side view of the session, safe to marshal.
type State struct {
	PropertyID    availability.PropertyID
	Blocked       []daterange.Interval
	Selection     availability.CandidateSelection
	HasSelection  bool
	SelState      availability.State
	Reason        availability.Reason
	Nights        int
	TotalPrice    money.Money
	Version       int64
	LiveConnected bool
}

// start performs the initial snapshot load. The live channel is already
// open at this point; events that raced the load sit in the buffer and
// are drained in arrival order once the snapshot is applied, so a late
// snapshot can never silently shadow a newer event.
func (s *Session) start(ctx context.Context) error {
	snap, err := s.loader.Load(ctx, s.PropertyID)
	if err != nil {
		obs.IncSnapshotLoad("error")
		return err
	}
	obs.IncSnapshotLoad("ok")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.set.Replace(snap.Intervals, time.Now())
	s.snapshotReady = true
	s.drainBufferLocked()
	s.drainEventsLocked()
	return nil
}

// Deliver implements EventSink. Events for other properties and replays
// of already-seen reservations are dropped; everything else merges into
// the set and re-runs the validator.
func (s *Session) Deliver(ctx context.Context, ev ReservationEvent) {
	if ev.PropertyID != s.PropertyID {
		obs.IncLiveEventDropped("property_mismatch")
		return
	}
	if s.seen(ctx, ev) {
		obs.IncLiveEventDropped("duplicate")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.snapshotReady {
		s.buffered = append(s.buffered, ev)
		return
	}
	s.applyLocked(ev)
}

func (s *Session) seen(ctx context.Context, ev ReservationEvent) bool {
	if s.inbox == nil || ev.EventID == "" {
		return false
	}
	dup, err := s.inbox.Seen(ctx, ev.EventID)
	if err != nil {
		// Dedupe is an optimization; the merge itself is idempotent.
		s.logger.Warn("inbox lookup failed", "event_id", ev.EventID, "error", err)
		return false
	}
	return dup
}

func (s *Session) drainBufferLocked() {
	for _, ev := range s.buffered {
		s.applyLocked(ev)
	}
	s.buffered = nil
}

func (s *Session) applyLocked(ev ReservationEvent) {
	if !s.set.Insert(ev.Interval, time.Now()) {
		return
	}
	obs.IncLiveEventApplied()
	if s.validator.Revalidate(time.Now()) {
		_, reason := s.validator.State()
		s.logger.Info("selection invalidated by live update",
			"session_id", s.ID, "property_id", s.PropertyID, "reason", reason)
	}
	s.drainEventsLocked()
	s.notifyLocked()
}

// drainEventsLocked flushes recorded domain events to the log so the
// recorder does not grow for the life of the session.
func (s *Session) drainEventsLocked() {
	for _, ev := range s.set.PendingEvents() {
		s.logger.Debug("domain event",
			"session_id", s.ID, "event", ev.EventName(), "aggregate_id", ev.AggregateID())
	}
	s.set.ClearEvents()
}

// SetLiveConnected implements EventSink; transitions drive the staleness
// indicator surfaced in state responses.
func (s *Session) SetLiveConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.liveConnected == connected {
		return
	}
	s.liveConnected = connected
	obs.SetLiveConnected(connected)
	if !connected {
		s.logger.Warn("live updates unavailable", "session_id", s.ID, "property_id", s.PropertyID)
	}
	s.notifyLocked()
}

// OnChange registers a callback fired after every effective change to
// the set, the selection state, or the live status.
func (s *Session) OnChange(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *Session) notifyLocked() {
	for _, fn := range s.onChange {
		fn()
	}
}

// SelectCheckIn picks the arrival day.
func (s *Session) SelectCheckIn(d daterange.Day) availability.Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason := s.validator.SelectCheckIn(d)
	if reason != availability.ReasonNone {
		obs.IncSelectionRejected(string(reason))
	}
	s.notifyLocked()
	return reason
}

// SelectCheckOut picks the departure day.
func (s *Session) SelectCheckOut(d daterange.Day) availability.Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason := s.validator.SelectCheckOut(d)
	if reason != availability.ReasonNone {
		obs.IncSelectionRejected(string(reason))
	}
	s.notifyLocked()
	return reason
}

// Clear resets the selection.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validator.Clear()
	s.notifyLocked()
}

// State snapshots the session for the read side.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, reason := s.validator.State()
	sel, hasSel := s.validator.Selection()
	st := State{
		PropertyID:    s.PropertyID,
		Blocked:       s.set.Blocked(),
		Selection:     s.validator.Current(),
		HasSelection:  hasSel,
		SelState:      state,
		Reason:        reason,
		Version:       s.set.Version(),
		LiveConnected: s.liveConnected,
	}
	if hasSel {
		st.Nights = sel.Nights()
		st.TotalPrice = sel.TotalPrice(s.pricePerNight)
	}
	return st
}

// Refresh re-fetches the authoritative snapshot and replaces the set.
// Used after a submission conflict and exposed to the UI for manual
// staleness recovery; this is also the only way a cancelled reservation
// ever leaves the set, since cancellations are not pushed live.
func (s *Session) Refresh(ctx context.Context) error {
	snap, err := s.loader.Load(ctx, s.PropertyID)
	if err != nil {
		obs.IncSnapshotLoad("error")
		return err
	}
	obs.IncSnapshotLoad("ok")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.set.Replace(snap.Intervals, time.Now())
	s.validator.Revalidate(time.Now())
	s.drainEventsLocked()
	s.notifyLocked()
	return nil
}

// Submit hands the accepted selection to the reservation collaborator.
// The backend stays authoritative: on ErrDatesConflict the snapshot is
// re-fetched so the set reflects whatever beat us to the dates, and the
// conflict is returned for the UI to surface.
func (s *Session) Submit(ctx context.Context, clientID, paymentMethod string) (SubmitResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SubmitResult{}, ErrSessionClosed
	}
	sel, ok := s.validator.Selection()
	s.mu.Unlock()
	if !ok {
		return SubmitResult{}, ErrNoAcceptedSelection
	}

	res, err := s.submitter.Submit(ctx, SubmitRequest{
		PropertyID:    s.PropertyID,
		ClientID:      clientID,
		CheckIn:       sel.CheckIn,
		CheckOut:      sel.CheckOut,
		PaymentMethod: paymentMethod,
	})
	if err != nil {
		if errors.Is(err, ErrDatesConflict) {
			obs.IncSubmission("conflict")
			if refreshErr := s.Refresh(ctx); refreshErr != nil {
				s.logger.Error("snapshot refresh after conflict failed",
					"session_id", s.ID, "error", refreshErr)
			}
			return SubmitResult{}, err
		}
		obs.IncSubmission("error")
		return SubmitResult{}, err
	}
	obs.IncSubmission("ok")
	return res, nil
}

// Close tears the live subscription down before the set is discarded.
// Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasConnected := s.liveConnected
	s.liveConnected = false
	channel := s.channel
	s.mu.Unlock()

	if wasConnected {
		obs.SetLiveConnected(false)
	}
	obs.SessionClosed()
	if channel != nil {
		return channel.Close()
	}
	return nil
}
