package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistration       ActivityEventType = "account.registered"
	ActivityEventInviteCreated      ActivityEventType = "account.invite.created"
	ActivityEventEmailVerified      ActivityEventType = "account.email.verified"
	ActivityEventInviteActivated    ActivityEventType = "account.invite.activated"
	ActivityEventLoginSuccess       ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure       ActivityEventType = "auth.login.failure"
	ActivityEventSessionRefreshed   ActivityEventType = "auth.session.refreshed"
	ActivityEventSessionRevoked     ActivityEventType = "auth.session.revoked"
	ActivityEventPasswordResetStart ActivityEventType = "auth.password.reset.requested"
	ActivityEventPasswordReset      ActivityEventType = "auth.password.reset"
	ActivityEventPasswordChanged    ActivityEventType = "auth.password.changed"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action. Raw
// passwords and raw tokens never go in Metadata.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
