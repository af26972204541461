package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// MaxLoginAttempts is the maximum number of attempts a user gets in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// Authenticator verifies credentials and issues sessions. Login applies three
// gates in order: account exists, email verified, account active, and only
// then compares the password.
type Authenticator struct {
	repo     RepositoryManager
	sessions *SessionManager
	activity ActivitySink
	logger   Logger
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, sessions *SessionManager) *Authenticator {
	return &Authenticator{
		repo:     repo,
		sessions: sessions,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Authenticator) WithActivitySink(sink ActivitySink) *Authenticator {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithLogger overrides the authenticator logger.
func (s *Authenticator) WithLogger(logger Logger) *Authenticator {
	s.logger = normalizeLogger(logger)
	return s
}

// Login authenticates an email/password pair and issues a Session. Every
// attempt, pass or fail, lands in the activity sink with the email and the
// outcome; the password never does.
func (s *Authenticator) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)

	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.emitLoginFailure(ctx, email, "", ErrInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		return nil, WrapDatabase(err, "failed to retrieve user during login")
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	// too many attempts in the window, cool off
	if user.LoginAttempts > MaxLoginAttempts {
		s.emitLoginFailure(ctx, email, user.ID.String(), ErrTooManyLoginAttempts)
		return nil, ErrTooManyLoginAttempts
	}

	if !user.EmailVerified {
		s.emitLoginFailure(ctx, email, user.ID.String(), ErrAccountNotVerified)
		return nil, ErrAccountNotVerified
	}

	if !user.Active {
		s.emitLoginFailure(ctx, email, user.ID.String(), ErrAccountInactive)
		return nil, ErrAccountInactive
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if err2 := s.repo.Users().TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, WrapDatabase(err2, "failed to track login attempt")
		}

		s.emitLoginFailure(ctx, email, user.ID.String(), ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.Users().TrackSuccessfulLogin(ctx, user); err != nil {
		s.logger.Error("failed to track successful login", "error", err)
	}

	session, err := s.sessions.IssueSession(ctx, user)
	if err != nil {
		s.emitLoginFailure(ctx, email, user.ID.String(), err)
		return nil, err
	}

	s.emitEvent(ctx, ActivityEventLoginSuccess, actorFromUser(user), user.ID.String(), map[string]any{
		"email": email,
	})

	return session, nil
}

// ChangePassword is the authenticated credential update path: no token, the
// current password is the proof of possession.
func (s *Authenticator) ChangePassword(ctx context.Context, userID string, currentPassword, newPassword string) error {
	user, err := s.repo.Users().GetByID(ctx, userID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return goerrors.New("account not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{"user_id": userID})
		}
		return WrapDatabase(err, "failed to retrieve user for password change")
	}

	if err := ComparePasswordAndHash(currentPassword, user.PasswordHash); err != nil {
		return ErrIncorrectCurrentPassword
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	if err := s.repo.Users().SetPassword(ctx, user.ID, hash); err != nil {
		return WrapDatabase(err, "failed to update password")
	}

	s.emitEvent(ctx, ActivityEventPasswordChanged, actorFromUser(user), user.ID.String(), nil)

	return nil
}

func (s *Authenticator) emitLoginFailure(ctx context.Context, email, userID string, cause error) {
	actor := ActorRef{Type: "unknown"}
	if userID != "" {
		actor = ActorRef{ID: userID, Type: "user"}
	}

	s.emitEvent(ctx, ActivityEventLoginFailure, actor, userID, map[string]any{
		"email": email,
		"error": cause.Error(),
	})
}

func (s *Authenticator) emitEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeActivitySink(s.activity).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
