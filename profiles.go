package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Profile is the account-type-discriminated view returned by GetProfile.
// Exactly one of the two branches is set.
type Profile struct {
	AccountType  AccountType          `json:"account_type"`
	User         *User                `json:"user"`
	Individual   *IndividualProfile   `json:"individual,omitempty"`
	Organization *OrganizationProfile `json:"organization,omitempty"`
}

// ProfileService resolves the polymorphic profile attached to an account.
type ProfileService struct {
	repo   RepositoryManager
	logger Logger
}

// NewProfileService creates a ProfileService.
func NewProfileService(repo RepositoryManager) *ProfileService {
	return &ProfileService{
		repo:   repo,
		logger: defLogger{},
	}
}

// WithLogger overrides the service logger.
func (s *ProfileService) WithLogger(logger Logger) *ProfileService {
	s.logger = normalizeLogger(logger)
	return s
}

// GetProfile fetches the account and its owned profile.
func (s *ProfileService) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	user, err := s.repo.Users().GetByID(ctx, userID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, goerrors.New("account not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{"user_id": userID.String()})
		}
		return nil, WrapDatabase(err, "failed to retrieve account")
	}

	out := &Profile{
		AccountType: user.AccountType,
		User:        user,
	}

	switch user.AccountType {
	case AccountTypeOrganization:
		profile, err := s.repo.OrganizationProfiles().GetByUserID(ctx, user.ID)
		if err != nil {
			return nil, WrapDatabase(err, "failed to retrieve organization profile")
		}
		out.Organization = profile
	default:
		profile, err := s.repo.IndividualProfiles().GetByUserID(ctx, user.ID)
		if err != nil {
			return nil, WrapDatabase(err, "failed to retrieve individual profile")
		}
		out.Individual = profile
	}

	return out, nil
}
