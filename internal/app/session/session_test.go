package session_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zarp/internal/app/session"
	"zarp/internal/domain/availability"
	"zarp/internal/domain/daterange"
	"zarp/internal/domain/shared/money"
	"zarp/internal/infra/storage/memory"
)

const propID = availability.PropertyID("prop-1")

func day(t *testing.T, s string) daterange.Day {
	t.Helper()
	d, err := daterange.ParseDay(s)
	require.NoError(t, err)
	return d
}

func interval(t *testing.T, start, end string) daterange.Interval {
	t.Helper()
	iv, err := daterange.NewInterval(day(t, start), day(t, end))
	require.NoError(t, err)
	return iv
}

type fakeLoader struct {
	mu        sync.Mutex
	snapshots [][]daterange.Interval
	err       error
	calls     int
	onLoad    func()
}

func (l *fakeLoader) Load(ctx context.Context, id availability.PropertyID) (availability.Snapshot, error) {
	l.mu.Lock()
	l.calls++
	call := l.calls
	err := l.err
	var intervals []daterange.Interval
	if len(l.snapshots) > 0 {
		idx := call - 1
		if idx >= len(l.snapshots) {
			idx = len(l.snapshots) - 1
		}
		intervals = l.snapshots[idx]
	}
	hook := l.onLoad
	l.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return availability.Snapshot{}, fmt.Errorf("%w: %v", session.ErrSnapshotLoad, err)
	}
	return availability.Snapshot{PropertyID: id, Intervals: intervals, LoadedAt: time.Now()}, nil
}

type fakeChannel struct {
	closed atomic.Bool
}

func (c *fakeChannel) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	sink    session.EventSink
	channel *fakeChannel
	err     error
}

func (f *fakeFactory) Open(ctx context.Context, id availability.PropertyID, sink session.EventSink) (session.LiveChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sink = sink
	f.channel = &fakeChannel{}
	return f.channel, nil
}

func (f *fakeFactory) Sink() session.EventSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sink
}

type fakeSubmitter struct {
	mu  sync.Mutex
	res session.SubmitResult
	err error
	got []session.SubmitRequest
}

func (s *fakeSubmitter) Submit(ctx context.Context, req session.SubmitRequest) (session.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, req)
	return s.res, s.err
}

type harness struct {
	loader    *fakeLoader
	factory   *fakeFactory
	submitter *fakeSubmitter
	manager   *session.Manager
}

func newHarness(snapshots ...[]daterange.Interval) *harness {
	loader := &fakeLoader{snapshots: snapshots}
	factory := &fakeFactory{}
	submitter := &fakeSubmitter{res: session.SubmitResult{RedirectURL: "https://pay.example/checkout"}}
	return &harness{
		loader:    loader,
		factory:   factory,
		submitter: submitter,
		manager:   session.NewManager(loader, factory, submitter, memory.NewEventInbox(), nil),
	}
}

func TestOpenAppliesSnapshot(t *testing.T) {
	h := newHarness([]daterange.Interval{interval(t, "2024-07-01", "2024-07-05")})
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	st := s.State()
	assert.Equal(t, []daterange.Interval{interval(t, "2024-07-01", "2024-07-05")}, st.Blocked)
	assert.Equal(t, availability.StateEmpty, st.SelState)
}

func TestOpenEmptySnapshotIsValid(t *testing.T) {
	h := newHarness(nil)
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.State().Blocked)
}

func TestOpenFailsWhenSnapshotFails(t *testing.T) {
	h := newHarness()
	h.loader.err = errors.New("backend down")

	_, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.ErrorIs(t, err, session.ErrSnapshotLoad)
	// The already-open subscription is released on the failure path.
	assert.True(t, h.factory.channel.closed.Load())
}

func TestEventsBufferedUntilSnapshotApplied(t *testing.T) {
	h := newHarness([]daterange.Interval{interval(t, "2024-07-01", "2024-07-05")})
	// Race a live confirmation against the in-flight snapshot load.
	h.loader.onLoad = func() {
		h.factory.Sink().Deliver(context.Background(), session.ReservationEvent{
			EventID:    "ev-1",
			PropertyID: propID,
			Interval:   interval(t, "2024-07-20", "2024-07-22"),
		})
	}

	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	// The buffered event must be merged, not lost under the snapshot.
	assert.Equal(t, []daterange.Interval{
		interval(t, "2024-07-01", "2024-07-05"),
		interval(t, "2024-07-20", "2024-07-22"),
	}, s.State().Blocked)
}

func TestDeliverFiltersForeignProperties(t *testing.T) {
	h := newHarness(nil)
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	s.Deliver(context.Background(), session.ReservationEvent{
		EventID:    "ev-1",
		PropertyID: "other-prop",
		Interval:   interval(t, "2024-07-01", "2024-07-02"),
	})
	assert.Empty(t, s.State().Blocked)
}

func TestDeliverDeduplicatesByEventID(t *testing.T) {
	h := newHarness(nil)
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	ev := session.ReservationEvent{
		EventID:    "ev-1",
		PropertyID: propID,
		Interval:   interval(t, "2024-07-01", "2024-07-02"),
	}
	s.Deliver(context.Background(), ev)
	versionAfterFirst := s.State().Version
	s.Deliver(context.Background(), ev)
	assert.Equal(t, versionAfterFirst, s.State().Version)
	assert.Equal(t, []daterange.Interval{interval(t, "2024-07-01", "2024-07-02")}, s.State().Blocked)
}

func TestDuplicateIntervalWithoutEventIDIsHarmless(t *testing.T) {
	h := newHarness(nil)
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	ev := session.ReservationEvent{
		PropertyID: propID,
		Interval:   interval(t, "2024-07-01", "2024-07-02"),
	}
	s.Deliver(context.Background(), ev)
	s.Deliver(context.Background(), ev)
	// No inbox hit, but the merge itself is idempotent.
	assert.Equal(t, []daterange.Interval{interval(t, "2024-07-01", "2024-07-02")}, s.State().Blocked)
}

func TestConcurrentDeliveriesConverge(t *testing.T) {
	h := newHarness(nil)
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := daterange.Day(i * 3)
			s.Deliver(context.Background(), session.ReservationEvent{
				EventID:    fmt.Sprintf("ev-%d", i),
				PropertyID: propID,
				Interval:   daterange.Interval{Start: start, End: start + 1},
			})
		}(i)
	}
	wg.Wait()

	blocked := s.State().Blocked
	for i := 1; i < len(blocked); i++ {
		assert.Greater(t, blocked[i].Start, blocked[i-1].End+1, "set must stay merged and sorted")
	}
	total := 0
	for _, iv := range blocked {
		total += iv.Days()
	}
	assert.Equal(t, 80, total)
}

func TestOnChangeFires(t *testing.T) {
	h := newHarness(nil)
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	var calls atomic.Int32
	s.OnChange(func() { calls.Add(1) })

	s.Deliver(context.Background(), session.ReservationEvent{
		EventID:    "ev-1",
		PropertyID: propID,
		Interval:   interval(t, "2024-07-01", "2024-07-02"),
	})
	assert.Equal(t, int32(1), calls.Load())
}

func TestLiveConnectedSurfacedInState(t *testing.T) {
	h := newHarness(nil)
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.State().LiveConnected)
	s.SetLiveConnected(true)
	assert.True(t, s.State().LiveConnected)
	s.SetLiveConnected(false)
	assert.False(t, s.State().LiveConnected)
}

func TestSubmitHappyPath(t *testing.T) {
	h := newHarness(nil)
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, availability.ReasonNone, s.SelectCheckIn(day(t, "2024-07-10")))
	require.Equal(t, availability.ReasonNone, s.SelectCheckOut(day(t, "2024-07-12")))

	res, err := s.Submit(context.Background(), "client-1", "card")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/checkout", res.RedirectURL)

	require.Len(t, h.submitter.got, 1)
	req := h.submitter.got[0]
	assert.Equal(t, propID, req.PropertyID)
	assert.Equal(t, "client-1", req.ClientID)
	assert.Equal(t, day(t, "2024-07-10"), req.CheckIn)
	assert.Equal(t, day(t, "2024-07-12"), req.CheckOut)
	assert.Equal(t, "card", req.PaymentMethod)
}

func TestSubmitWithoutAcceptedSelection(t *testing.T) {
	h := newHarness(nil)
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Submit(context.Background(), "client-1", "card")
	assert.ErrorIs(t, err, session.ErrNoAcceptedSelection)
}

func TestSubmitConflictRefreshesSnapshot(t *testing.T) {
	// First load: empty. Second load (after the conflict): the dates are
	// taken, because another guest won them at the backend.
	h := newHarness(nil, []daterange.Interval{interval(t, "2024-07-10", "2024-07-11")})
	h.submitter.err = fmt.Errorf("%w: taken", session.ErrDatesConflict)

	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, availability.ReasonNone, s.SelectCheckIn(day(t, "2024-07-10")))
	require.Equal(t, availability.ReasonNone, s.SelectCheckOut(day(t, "2024-07-12")))

	_, err = s.Submit(context.Background(), "client-1", "card")
	require.ErrorIs(t, err, session.ErrDatesConflict)

	st := s.State()
	assert.Equal(t, []daterange.Interval{interval(t, "2024-07-10", "2024-07-11")}, st.Blocked)
	assert.Equal(t, availability.StateEmpty, st.SelState)
	assert.Equal(t, availability.ReasonCheckInBlocked, st.Reason)
}

func TestCloseReleasesChannelAndIgnoresLateEvents(t *testing.T) {
	h := newHarness(nil)
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)

	require.NoError(t, h.manager.Close(s.ID))
	assert.True(t, h.factory.channel.closed.Load())

	s.Deliver(context.Background(), session.ReservationEvent{
		EventID:    "late",
		PropertyID: propID,
		Interval:   interval(t, "2024-07-01", "2024-07-02"),
	})
	assert.Empty(t, s.State().Blocked)

	_, err = h.manager.Get(s.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

// Sessions are independent consumers: the same confirmation reaches
// every session watching the property, and each one must merge it.
func TestSameEventAppliesToEverySession(t *testing.T) {
	h := newHarness(nil)
	s1, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s1.Close()
	s2, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s2.Close()

	require.Equal(t, availability.ReasonNone, s2.SelectCheckIn(day(t, "2024-07-10")))
	require.Equal(t, availability.ReasonNone, s2.SelectCheckOut(day(t, "2024-07-12")))

	ev := session.ReservationEvent{
		EventID:    "ev-shared",
		PropertyID: propID,
		Interval:   interval(t, "2024-07-11", "2024-07-11"),
	}
	s1.Deliver(context.Background(), ev)
	s2.Deliver(context.Background(), ev)

	assert.Equal(t, []daterange.Interval{interval(t, "2024-07-11", "2024-07-11")}, s1.State().Blocked)
	assert.Equal(t, []daterange.Interval{interval(t, "2024-07-11", "2024-07-11")}, s2.State().Blocked)

	st := s2.State()
	assert.Equal(t, availability.StateEmpty, st.SelState)
	assert.Equal(t, availability.ReasonRangeCrossesBlocked, st.Reason)
}

type recordingHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler       { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler            { return h }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, r.Message)
	return nil
}

func (h *recordingHandler) count(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.messages {
		if m == msg {
			n++
		}
	}
	return n
}

// Recorded domain events are flushed to the log after every mutation;
// an event must never be logged twice from a stale recorder.
func TestDomainEventsDrainedAfterEveryMutation(t *testing.T) {
	handler := &recordingHandler{}
	loader := &fakeLoader{snapshots: [][]daterange.Interval{{interval(t, "2024-07-01", "2024-07-05")}}}
	manager := session.NewManager(loader, &fakeFactory{}, &fakeSubmitter{}, memory.NewEventInbox(), slog.New(handler))

	s, err := manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 1, handler.count("domain event"))

	s.Deliver(context.Background(), session.ReservationEvent{
		EventID:    "ev-1",
		PropertyID: propID,
		Interval:   interval(t, "2024-07-10", "2024-07-11"),
	})
	assert.Equal(t, 2, handler.count("domain event"))

	s.Deliver(context.Background(), session.ReservationEvent{
		EventID:    "ev-2",
		PropertyID: propID,
		Interval:   interval(t, "2024-07-20", "2024-07-21"),
	})
	assert.Equal(t, 3, handler.count("domain event"))
}

func TestStateCarriesTotalPrice(t *testing.T) {
	h := newHarness(nil)
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, availability.ReasonNone, s.SelectCheckIn(day(t, "2024-07-10")))
	require.Equal(t, availability.ReasonNone, s.SelectCheckOut(day(t, "2024-07-12")))

	st := s.State()
	assert.Equal(t, 2, st.Nights)
	assert.Equal(t, money.Must(19800, "EUR"), st.TotalPrice)
}

// Full scenario: snapshot, acceptance, then a live confirmation for one
// of the chosen nights arriving before submission.
func TestLiveEventInvalidatesAcceptedSelection(t *testing.T) {
	h := newHarness([]daterange.Interval{interval(t, "2024-07-01", "2024-07-05")})
	s, err := h.manager.Open(context.Background(), propID, money.Must(9900, "EUR"))
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, availability.ReasonNone, s.SelectCheckIn(day(t, "2024-07-10")))
	require.Equal(t, availability.ReasonNone, s.SelectCheckOut(day(t, "2024-07-12")))

	st := s.State()
	require.Equal(t, availability.StateAccepted, st.SelState)
	require.Equal(t, 2, st.Nights)

	s.Deliver(context.Background(), session.ReservationEvent{
		EventID:    "ev-1",
		PropertyID: propID,
		Interval:   interval(t, "2024-07-11", "2024-07-11"),
	})

	st = s.State()
	assert.Equal(t, availability.StateEmpty, st.SelState)
	assert.Equal(t, availability.ReasonRangeCrossesBlocked, st.Reason)
	assert.Equal(t, []daterange.Interval{
		interval(t, "2024-07-01", "2024-07-05"),
		interval(t, "2024-07-11", "2024-07-11"),
	}, st.Blocked)

	_, err = s.Submit(context.Background(), "client-1", "card")
	assert.ErrorIs(t, err, session.ErrNoAcceptedSelection)
}
