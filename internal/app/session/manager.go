package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"zarp/internal/domain/availability"
	"zarp/internal/domain/shared/money"
	"zarp/internal/infra/obs"
)

var ErrSessionNotFound = errors.New("session: not found")

// scopedInbox namespaces event ids by session. Every session owns its
// own IntervalSet and consumer group, so each one must apply every
// event; only replays within the same session are duplicates.
type scopedInbox struct {
	inner Inbox
	scope string
}

func (s scopedInbox) Seen(ctx context.Context, eventID string) (bool, error) {
	return s.inner.Seen(ctx, s.scope+":"+eventID)
}

// Manager opens and tracks viewing sessions. Each session gets its own
// IntervalSet and live subscription; nothing is shared across sessions
// except the outbound collaborators.
type Manager struct {
	loader    SnapshotLoader
	channels  LiveChannelFactory
	submitter Submitter
	inbox     Inbox
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(loader SnapshotLoader, channels LiveChannelFactory, submitter Submitter, inbox Inbox, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		loader:    loader,
		channels:  channels,
		submitter: submitter,
		inbox:     inbox,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// Open creates a session for one property: subscribe first, then load
// the snapshot, so no confirmation can slip between the two. A failed
// snapshot load is fatal to the session (booking stays disabled); the
// already-open subscription is released on that exit path.
func (m *Manager) Open(ctx context.Context, propertyID availability.PropertyID, pricePerNight money.Money) (*Session, error) {
	set := availability.NewIntervalSet(propertyID)
	s := &Session{
		ID:            uuid.NewString(),
		PropertyID:    propertyID,
		set:           set,
		validator:     availability.NewSelectionValidator(set),
		pricePerNight: pricePerNight,
		loader:        m.loader,
		submitter:     m.submitter,
		logger:        m.logger,
	}
	if m.inbox != nil {
		s.inbox = scopedInbox{inner: m.inbox, scope: s.ID}
	}

	channel, err := m.channels.Open(ctx, propertyID, s)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.channel = channel
	s.mu.Unlock()

	if err := s.start(ctx); err != nil {
		if closeErr := channel.Close(); closeErr != nil {
			m.logger.Warn("live channel close failed", "property_id", propertyID, "error", closeErr)
		}
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	obs.SessionOpened()
	m.logger.Info("session opened", "session_id", s.ID, "property_id", propertyID)
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close tears down one session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.logger.Info("session closed", "session_id", id, "property_id", s.PropertyID)
	return s.Close()
}

// CloseAll is called on shutdown; every subscription is released before
// the process exits.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			m.logger.Warn("session close failed", "session_id", s.ID, "error", err)
		}
	}
}
