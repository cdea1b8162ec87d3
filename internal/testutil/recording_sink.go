package testutil

import (
	"context"
	"sync"

	"github.com/siteassist/billing-engine/internal/notification"
)

var _ notification.Sink = (*RecordingSink)(nil)

// RecordingSink captures emitted notifications for assertion.
type RecordingSink struct {
	mu   sync.Mutex
	sent []*notification.Notification
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Notify(ctx context.Context, n *notification.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.sent = append(s.sent, &cp)
}

// Sent returns all captured notifications in emission order.
func (s *RecordingSink) Sent() []*notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*notification.Notification, len(s.sent))
	copy(out, s.sent)
	return out
}

// SentOfKind filters captured notifications by kind.
func (s *RecordingSink) SentOfKind(kind notification.Kind) []*notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*notification.Notification
	for _, n := range s.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (s *RecordingSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}
