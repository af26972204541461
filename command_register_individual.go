package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// RegisterIndividualMessage carries a self-service registration request.
type RegisterIndividualMessage struct {
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	Phone       string     `json:"phone"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Gender      string     `json:"gender"`
	AddressLine string     `json:"address_line"`
	City        string     `json:"city"`
	Country     string     `json:"country"`
	UseHashid   bool
	OnResponse  func(resp *RegisterIndividualResponse)
}

func (e RegisterIndividualMessage) Type() string { return "identity.register_individual" }

// Validate checks the message shape before any storage work happens.
func (e RegisterIndividualMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(
			&e.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&e.Password,
			validation.Required,
			validation.Length(8, 128),
		),
		validation.Field(
			&e.FirstName,
			validation.Required,
		),
		validation.Field(
			&e.LastName,
			validation.Required,
		),
	)
}

// RegisterIndividualResponse is handed to OnResponse on success. The raw
// verification token is deliberately absent; it only travels via the mailer.
type RegisterIndividualResponse struct {
	User    *User
	Profile *IndividualProfile
	Success bool
}

// RegisterIndividualHandler creates a Pending individual account, its profile,
// and an email-verification token as one transactional outcome.
type RegisterIndividualHandler struct {
	repo     RepositoryManager
	engine   *TokenEngine
	mailer   Mailer
	activity ActivitySink
	logger   Logger
}

// NewRegisterIndividualHandler creates a handler with sane defaults.
func NewRegisterIndividualHandler(repo RepositoryManager, engine *TokenEngine, mailer Mailer) *RegisterIndividualHandler {
	return &RegisterIndividualHandler{
		repo:     repo,
		engine:   engine,
		mailer:   mailer,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterIndividualHandler) WithActivitySink(sink ActivitySink) *RegisterIndividualHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterIndividualHandler) WithLogger(logger Logger) *RegisterIndividualHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *RegisterIndividualHandler) Execute(ctx context.Context, event RegisterIndividualMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during individual registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterIndividualHandler) execute(ctx context.Context, event RegisterIndividualMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)

	phone, err := NormalizePhone(event.Phone)
	if err != nil {
		return err
	}

	// advisory pre-checks; the unique constraints below remain the authority
	if _, err := h.repo.Users().GetByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !repository.IsRecordNotFound(err) {
		return WrapDatabase(err, "failed to check email uniqueness")
	}

	if phone != "" {
		if _, err := h.repo.Users().GetByPhone(ctx, phone); err == nil {
			return ErrPhoneTaken
		} else if !repository.IsRecordNotFound(err) {
			return WrapDatabase(err, "failed to check phone uniqueness")
		}
	}

	user := &User{}
	profile := &IndividualProfile{}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}

		user.PasswordHash = hash
		user.Email = email
		user.Phone = phone
		user.AccountType = AccountTypeIndividual
		if event.UseHashid {
			if id, err := hashid.NewUUID(email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return TranslateUniqueViolation(err)
		}

		profile.UserID = user.ID
		profile.FirstName = event.FirstName
		profile.LastName = event.LastName
		profile.DateOfBirth = event.DateOfBirth
		profile.Gender = event.Gender
		profile.AddressLine = event.AddressLine
		profile.City = event.City
		profile.Country = event.Country

		if profile, err = h.repo.IndividualProfiles().CreateTx(ctx, tx, profile); err != nil {
			return WrapDatabase(TranslateUniqueViolation(err), "could not create individual profile")
		}

		rawToken, err := h.engine.IssueTx(ctx, tx, TokenKindEmailVerification, user.ID)
		if err != nil {
			return err
		}

		// a refused dispatch rolls the registration back; success means the
		// verification email was handed off, not necessarily delivered
		if err := h.mailer.Send(ctx, MailKindEmailVerification, user.Email, rawToken); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to dispatch verification email")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "individual registration transaction failed")
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(&RegisterIndividualResponse{
			User:    user,
			Profile: profile,
			Success: true,
		})
	}

	return nil
}

func (h *RegisterIndividualHandler) recordActivity(ctx context.Context, user *User) {
	event := ActivityEvent{
		EventType:  ActivityEventRegistration,
		Actor:      actorFromUser(user),
		UserID:     user.ID.String(),
		Metadata:   map[string]any{"email": user.Email},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during registration: %v", err)
	}
}

// NormalizePhone validates and formats a phone number to E.164. Empty input
// passes through: phone is optional on registration.
func NormalizePhone(phone string) (string, error) {
	if phone == "" {
		return "", nil
	}

	parsed, err := phonenumbers.Parse(phone, "US")
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithMetadata(map[string]any{"phone": phone})
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"phone": phone})
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
