package memory

import (
	"context"
	"sync"

	"zarp/internal/app/session"
)

// EventInbox keeps seen reservation event ids in memory. Used when no
// Mongo is configured and in tests; dedupe then only holds for the
// lifetime of the process.
type EventInbox struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewEventInbox() *EventInbox {
	return &EventInbox{seen: make(map[string]struct{})}
}

func (s *EventInbox) Seen(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[eventID]; ok {
		return true, nil
	}
	s.seen[eventID] = struct{}{}
	return false, nil
}

var _ session.Inbox = (*EventInbox)(nil)
