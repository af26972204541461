package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// ForgotPasswordMessageText is the uniform answer to every forgot-password
// request. It never varies with account existence or state.
const ForgotPasswordMessageText = "If the email is registered, a password reset link has been sent"

// ForgotPasswordMessage starts the self-service recovery flow.
type ForgotPasswordMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *ForgotPasswordResponse)
}

func (e ForgotPasswordMessage) Type() string { return "identity.forgot_password" }

// Validate checks the message shape before any storage work happens.
func (e ForgotPasswordMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(
			&e.Email,
			validation.Required,
			is.Email,
		),
	)
}

// ForgotPasswordResponse always carries the same message; no signal
// distinguishes "sent" from "not sent".
type ForgotPasswordResponse struct {
	Message string
}

// ForgotPasswordHandler issues a reset token only for existing, active
// accounts, and answers identically either way.
type ForgotPasswordHandler struct {
	repo     RepositoryManager
	engine   *TokenEngine
	mailer   Mailer
	activity ActivitySink
	logger   Logger
}

// NewForgotPasswordHandler creates a handler with sane defaults.
func NewForgotPasswordHandler(repo RepositoryManager, engine *TokenEngine, mailer Mailer) *ForgotPasswordHandler {
	return &ForgotPasswordHandler{
		repo:     repo,
		engine:   engine,
		mailer:   mailer,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit recovery events.
func (h *ForgotPasswordHandler) WithActivitySink(sink ActivitySink) *ForgotPasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ForgotPasswordHandler) WithLogger(logger Logger) *ForgotPasswordHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *ForgotPasswordHandler) Execute(ctx context.Context, event ForgotPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password recovery",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ForgotPasswordHandler) execute(ctx context.Context, event ForgotPasswordMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid recovery payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	respond := func() {
		if event.OnResponse != nil {
			event.OnResponse(&ForgotPasswordResponse{
				Message: ForgotPasswordMessageText,
			})
		}
	}

	user, err := h.repo.Users().GetByEmail(ctx, NormalizeEmail(event.Email))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			respond()
			return nil
		}
		return WrapDatabase(err, "failed to retrieve user for password recovery")
	}

	if !user.Active {
		respond()
		return nil
	}

	rawToken, err := h.engine.Issue(ctx, TokenKindPasswordReset, user.ID)
	if err != nil {
		return err
	}

	// delivery failures stay internal: surfacing them would break the
	// uniform response
	if err := h.mailer.Send(ctx, MailKindPasswordReset, user.Email, rawToken); err != nil {
		h.logger.Error("failed to dispatch reset email: %v", err)
	}

	h.recordActivity(ctx, ActivityEventPasswordResetStart, user)

	respond()
	return nil
}

func (h *ForgotPasswordHandler) recordActivity(ctx context.Context, eventType ActivityEventType, user *User) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actorFromUser(user),
		UserID:     user.ID.String(),
		Metadata:   map[string]any{"email": user.Email},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during recovery: %v", err)
	}
}

// ResetPasswordMessage finalizes recovery with the mailed token.
type ResetPasswordMessage struct {
	Token      string `json:"token"`
	Password   string `json:"password"`
	OnResponse func(resp *ResetPasswordResponse)
}

func (e ResetPasswordMessage) Type() string { return "identity.reset_password" }

// Validate checks the message shape before any storage work happens.
func (e ResetPasswordMessage) Validate() error {
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

// ResetPasswordResponse is handed to OnResponse on success.
type ResetPasswordResponse struct {
	User    *User
	Success bool
}

// ResetPasswordHandler consumes a reset token and swaps the credential. Any
// sibling reset tokens the account still has are revoked in the same
// transaction.
type ResetPasswordHandler struct {
	repo     RepositoryManager
	engine   *TokenEngine
	activity ActivitySink
	logger   Logger
}

// NewResetPasswordHandler creates a handler with sane defaults.
func NewResetPasswordHandler(repo RepositoryManager, engine *TokenEngine) *ResetPasswordHandler {
	return &ResetPasswordHandler{
		repo:     repo,
		engine:   engine,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *ResetPasswordHandler) WithActivitySink(sink ActivitySink) *ResetPasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ResetPasswordHandler) WithLogger(logger Logger) *ResetPasswordHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *ResetPasswordHandler) Execute(ctx context.Context, event ResetPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResetPasswordHandler) execute(ctx context.Context, event ResetPasswordMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid reset payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error

		if user, err = h.engine.ConsumeTx(ctx, tx, TokenKindPasswordReset, event.Token); err != nil {
			return err
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := h.repo.Users().SetPasswordTx(ctx, tx, user.ID, hash); err != nil {
			return WrapDatabase(err, "failed to update user password")
		}

		// outstanding sibling reset tokens die with the one that was used
		if err := h.engine.RevokeAllForUserTx(ctx, tx, TokenKindPasswordReset, user.ID); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset transaction failed")
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(&ResetPasswordResponse{
			User:    user,
			Success: true,
		})
	}

	return nil
}

func (h *ResetPasswordHandler) recordActivity(ctx context.Context, user *User) {
	event := ActivityEvent{
		EventType:  ActivityEventPasswordReset,
		Actor:      actorFromUser(user),
		UserID:     user.ID.String(),
		Metadata:   map[string]any{"email": user.Email},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset: %v", err)
	}
}
