package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ActivationResponse is shared by both activation flows: the now-usable
// account and a freshly issued session for immediate login.
type ActivationResponse struct {
	User    *User
	Session *Session
	Success bool
}

// VerifyEmailMessage consumes an email-verification token for an individual
// registration.
type VerifyEmailMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *ActivationResponse)
}

func (e VerifyEmailMessage) Type() string { return "identity.verify_email" }

// VerifyEmailHandler flips a Pending individual account to Active when its
// verification token is consumed.
type VerifyEmailHandler struct {
	repo     RepositoryManager
	engine   *TokenEngine
	sessions *SessionManager
	activity ActivitySink
	logger   Logger
}

// NewVerifyEmailHandler creates a handler with sane defaults.
func NewVerifyEmailHandler(repo RepositoryManager, engine *TokenEngine, sessions *SessionManager) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		repo:     repo,
		engine:   engine,
		sessions: sessions,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit verification events.
func (h *VerifyEmailHandler) WithActivitySink(sink ActivitySink) *VerifyEmailHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error

		// consume and activate together: a failed activation restores the token
		if user, err = h.engine.ConsumeTx(ctx, tx, TokenKindEmailVerification, event.Token); err != nil {
			return err
		}

		if user, err = h.repo.Users().ActivateTx(ctx, tx, user.ID); err != nil {
			return WrapDatabase(err, "failed to activate account")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email verification transaction failed")
	}

	session, err := h.sessions.IssueSession(ctx, user)
	if err != nil {
		return err
	}

	h.recordActivity(ctx, ActivityEventEmailVerified, user)

	if event.OnResponse != nil {
		event.OnResponse(&ActivationResponse{
			User:    user,
			Session: session,
			Success: true,
		})
	}

	return nil
}

func (h *VerifyEmailHandler) recordActivity(ctx context.Context, eventType ActivityEventType, user *User) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actorFromUser(user),
		UserID:     user.ID.String(),
		Metadata:   map[string]any{"email": user.Email},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during verification: %v", err)
	}
}

// ActivateInviteMessage claims an organization invite: proves possession of
// the setup token and sets the first real password.
type ActivateInviteMessage struct {
	Token      string `json:"token"`
	Password   string `json:"password"`
	OnResponse func(resp *ActivationResponse)
}

func (e ActivateInviteMessage) Type() string { return "identity.activate_invite" }

// Validate checks the message shape before any storage work happens.
func (e ActivateInviteMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(
			&e.Token,
			validation.Required,
		),
		validation.Field(
			&e.Password,
			validation.Required,
			validation.Length(8, 128),
		),
	)
}

// ActivateInviteHandler claims a password-setup token: credential and both
// activation flags change in one statement, then the token is destroyed.
type ActivateInviteHandler struct {
	repo     RepositoryManager
	engine   *TokenEngine
	sessions *SessionManager
	activity ActivitySink
	logger   Logger
}

// NewActivateInviteHandler creates a handler with sane defaults.
func NewActivateInviteHandler(repo RepositoryManager, engine *TokenEngine, sessions *SessionManager) *ActivateInviteHandler {
	return &ActivateInviteHandler{
		repo:     repo,
		engine:   engine,
		sessions: sessions,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit activation events.
func (h *ActivateInviteHandler) WithActivitySink(sink ActivitySink) *ActivateInviteHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ActivateInviteHandler) WithLogger(logger Logger) *ActivateInviteHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *ActivateInviteHandler) Execute(ctx context.Context, event ActivateInviteMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invite activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateInviteHandler) execute(ctx context.Context, event ActivateInviteMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid invite activation payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error

		if user, err = h.engine.ResolveTx(ctx, tx, TokenKindPasswordSetup, event.Token); err != nil {
			return err
		}

		// a setup token must not be replayable after activation, even if it
		// has not expired yet; same generic failure as a fabricated token
		if user.EmailVerified || user.Active {
			return ErrInvalidToken
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}

		if user, err = h.repo.Users().ActivateAndSetPasswordTx(ctx, tx, user.ID, hash); err != nil {
			return WrapDatabase(err, "failed to activate invited account")
		}

		if _, _, err := h.engine.DeleteTx(ctx, tx, TokenKindPasswordSetup, event.Token); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invite activation transaction failed")
	}

	session, err := h.sessions.IssueSession(ctx, user)
	if err != nil {
		return err
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(&ActivationResponse{
			User:    user,
			Session: session,
			Success: true,
		})
	}

	return nil
}

func (h *ActivateInviteHandler) recordActivity(ctx context.Context, user *User) {
	event := ActivityEvent{
		EventType:  ActivityEventInviteActivated,
		Actor:      actorFromUser(user),
		UserID:     user.ID.String(),
		Metadata:   map[string]any{"email": user.Email},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during invite activation: %v", err)
	}
}
