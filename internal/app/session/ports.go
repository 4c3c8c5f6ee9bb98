package session

import (
	"context"
	"errors"

	"zarp/internal/domain/availability"
	"zarp/internal/domain/daterange"
)

var (
	// ErrSnapshotLoad marks a failed initial or refresh load. A session
	// must never fall back to an empty, falsely fully-available set.
	ErrSnapshotLoad = errors.New("session: snapshot load failed")

	// ErrDatesConflict is the backend's authoritative rejection of a
	// submission; it always wins over client-side state.
	ErrDatesConflict = errors.New("session: dates rejected by backend")

	ErrNoAcceptedSelection = errors.New("session: no accepted selection to submit")
	ErrSessionClosed       = errors.New("session: closed")
)

// SnapshotLoader fetches the authoritative reserved ranges for a property.
type SnapshotLoader interface {
	Load(ctx context.Context, propertyID availability.PropertyID) (availability.Snapshot, error)
}

// ReservationEvent is one newly confirmed reservation delivered by the
// live channel, already normalized to an inclusive interval.
type ReservationEvent struct {
	EventID    string
	PropertyID availability.PropertyID
	Interval   daterange.Interval
}

// EventSink receives live events and transport status changes. The
// channel may invoke it from its own consume goroutine; implementations
// serialize internally.
type EventSink interface {
	Deliver(ctx context.Context, ev ReservationEvent)
	SetLiveConnected(connected bool)
}

// LiveChannel is an open property-scoped subscription. Close releases
// the transport and must be called on every session exit path.
type LiveChannel interface {
	Close() error
}

// LiveChannelFactory opens one subscription per viewing session.
type LiveChannelFactory interface {
	Open(ctx context.Context, propertyID availability.PropertyID, sink EventSink) (LiveChannel, error)
}

// Inbox deduplicates reservation events across reconnect replays.
// Seen atomically records the id and reports whether it was already there.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

// SubmitRequest is handed to the reservation/payment collaborator.
type SubmitRequest struct {
	PropertyID    availability.PropertyID
	ClientID      string
	CheckIn       daterange.Day
	CheckOut      daterange.Day
	PaymentMethod string
}

// SubmitResult carries the payment-provider checkout redirect.
type SubmitResult struct {
	RedirectURL string
}

// Submitter posts an accepted selection. A conflict is reported as
// ErrDatesConflict (wrapped).
type Submitter interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
}
