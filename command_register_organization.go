package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RegisterOrganizationMessage carries an admin-initiated organization invite.
// The account is created without a usable credential; the invitee sets one by
// claiming the setup token mailed to the contact address.
type RegisterOrganizationMessage struct {
	AdminID       uuid.UUID `json:"admin_id"`
	ContactEmail  string    `json:"contact_email"`
	OrgName       string    `json:"org_name"`
	OrgType       string    `json:"org_type"`
	OfficialEmail string    `json:"official_email"`
	OfficialPhone string    `json:"official_phone"`
	Affiliation   string    `json:"affiliation"`
	OnResponse    func(resp *RegisterOrganizationResponse)
}

func (e RegisterOrganizationMessage) Type() string { return "identity.register_organization" }

// Validate checks the message shape before any storage work happens.
func (e RegisterOrganizationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(
			&e.ContactEmail,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&e.OfficialEmail,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&e.OrgName,
			validation.Required,
		),
	)
}

// RegisterOrganizationResponse is handed to OnResponse on success.
type RegisterOrganizationResponse struct {
	User    *User
	Profile *OrganizationProfile
	Success bool
}

// RegisterOrganizationHandler creates a Pending organization account with a
// placeholder credential and mails a password-setup invite.
type RegisterOrganizationHandler struct {
	repo     RepositoryManager
	engine   *TokenEngine
	mailer   Mailer
	activity ActivitySink
	logger   Logger
}

// NewRegisterOrganizationHandler creates a handler with sane defaults.
func NewRegisterOrganizationHandler(repo RepositoryManager, engine *TokenEngine, mailer Mailer) *RegisterOrganizationHandler {
	return &RegisterOrganizationHandler{
		repo:     repo,
		engine:   engine,
		mailer:   mailer,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit invite events.
func (h *RegisterOrganizationHandler) WithActivitySink(sink ActivitySink) *RegisterOrganizationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterOrganizationHandler) WithLogger(logger Logger) *RegisterOrganizationHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *RegisterOrganizationHandler) Execute(ctx context.Context, event RegisterOrganizationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during organization invite",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterOrganizationHandler) execute(ctx context.Context, event RegisterOrganizationMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid organization invite payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.ContactEmail)
	officialEmail := NormalizeEmail(event.OfficialEmail)

	// advisory pre-checks; the unique constraints remain the authority
	if _, err := h.repo.Users().GetByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !repository.IsRecordNotFound(err) {
		return WrapDatabase(err, "failed to check email uniqueness")
	}

	if _, err := h.repo.OrganizationProfiles().GetByOfficialEmail(ctx, officialEmail); err == nil {
		return ErrOfficialEmailTaken
	} else if !repository.IsRecordNotFound(err) {
		return WrapDatabase(err, "failed to check official email uniqueness")
	}

	user := &User{}
	profile := &OrganizationProfile{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error

		// placeholder hash: nothing can authenticate until the invite is
		// claimed and a real password is set
		user.PasswordHash = RandomPasswordHash()
		user.Email = email
		user.AccountType = AccountTypeOrganization

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return TranslateUniqueViolation(err)
		}

		profile.UserID = user.ID
		profile.OrgName = event.OrgName
		profile.OrgType = event.OrgType
		profile.OfficialEmail = officialEmail
		profile.OfficialPhone = event.OfficialPhone
		profile.Affiliation = event.Affiliation
		profile.CreatedBy = event.AdminID

		if profile, err = h.repo.OrganizationProfiles().CreateTx(ctx, tx, profile); err != nil {
			return TranslateUniqueViolation(err)
		}

		rawToken, err := h.engine.IssueTx(ctx, tx, TokenKindPasswordSetup, user.ID)
		if err != nil {
			return err
		}

		if err := h.mailer.Send(ctx, MailKindOrganizationInvite, user.Email, rawToken); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to dispatch invite email")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "organization invite transaction failed")
	}

	h.recordActivity(ctx, event.AdminID, user)

	if event.OnResponse != nil {
		event.OnResponse(&RegisterOrganizationResponse{
			User:    user,
			Profile: profile,
			Success: true,
		})
	}

	return nil
}

func (h *RegisterOrganizationHandler) recordActivity(ctx context.Context, adminID uuid.UUID, user *User) {
	event := ActivityEvent{
		EventType: ActivityEventInviteCreated,
		Actor: ActorRef{
			ID:   adminID.String(),
			Type: "admin",
		},
		UserID:     user.ID.String(),
		Metadata:   map[string]any{"email": user.Email},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during organization invite: %v", err)
	}
}
