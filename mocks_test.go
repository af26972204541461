package identity_test

import (
	"context"
	"sync"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/mock"
)

// MockMailer is a testify mock for scripting delivery failures.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, kind identity.MailKind, recipient, rawToken string) error {
	args := m.Called(ctx, kind, recipient, rawToken)
	return args.Error(0)
}

// sentMail is one captured notification.
type sentMail struct {
	Kind      identity.MailKind
	Recipient string
	RawToken  string
}

// captureMailer records every notification so tests can pull raw secrets
// out of the flows the same way a recipient would.
type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *captureMailer) Send(_ context.Context, kind identity.MailKind, recipient, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Kind: kind, Recipient: recipient, RawToken: rawToken})
	return nil
}

func (m *captureMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// capturingSink records activity events in memory.
type capturingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (s *capturingSink) Record(_ context.Context, event identity.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *capturingSink) types() []identity.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]identity.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *capturingSink) first(eventType identity.ActivityEventType) (identity.ActivityEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.EventType == eventType {
			return e, true
		}
	}
	return identity.ActivityEvent{}, false
}

func (s *capturingSink) has(eventType identity.ActivityEventType) bool {
	for _, et := range s.types() {
		if et == eventType {
			return true
		}
	}
	return false
}
