package identity

import (
	"context"
	"database/sql"
	"errors"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IndividualProfiles manages individual profile persistence.
type IndividualProfiles struct {
	db *bun.DB
}

// NewIndividualProfilesRepository creates a new repository.
func NewIndividualProfilesRepository(db *bun.DB) *IndividualProfiles {
	return &IndividualProfiles{db: db}
}

// CreateTx inserts a profile inside the caller's transaction. Profiles only
// ever come to life alongside their owning User.
func (r *IndividualProfiles) CreateTx(ctx context.Context, tx bun.IDB, record *IndividualProfile) (*IndividualProfile, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

// GetByUserID retrieves the profile owned by an account.
func (r *IndividualProfiles) GetByUserID(ctx context.Context, userID uuid.UUID) (*IndividualProfile, error) {
	record := &IndividualProfile{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"user_id": userID.String()})
		}
		return nil, err
	}

	return record, nil
}

// UpdateTx persists profile attribute changes.
func (r *IndividualProfiles) UpdateTx(ctx context.Context, tx bun.IDB, record *IndividualProfile) (*IndividualProfile, error) {
	if _, err := tx.NewUpdate().
		Model(record).
		OmitZero().
		WherePK().
		Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

// OrganizationProfiles manages organization profile persistence.
type OrganizationProfiles struct {
	db *bun.DB
}

// NewOrganizationProfilesRepository creates a new repository.
func NewOrganizationProfilesRepository(db *bun.DB) *OrganizationProfiles {
	return &OrganizationProfiles{db: db}
}

// CreateTx inserts a profile inside the caller's transaction.
func (r *OrganizationProfiles) CreateTx(ctx context.Context, tx bun.IDB, record *OrganizationProfile) (*OrganizationProfile, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.OfficialEmail = NormalizeEmail(record.OfficialEmail)

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

// GetByUserID retrieves the profile owned by an account.
func (r *OrganizationProfiles) GetByUserID(ctx context.Context, userID uuid.UUID) (*OrganizationProfile, error) {
	record := &OrganizationProfile{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"user_id": userID.String()})
		}
		return nil, err
	}

	return record, nil
}

// GetByOfficialEmail retrieves a profile by its unique official email. Used by
// the invite pre-check before the storage constraint has its say.
func (r *OrganizationProfiles) GetByOfficialEmail(ctx context.Context, email string) (*OrganizationProfile, error) {
	return r.GetByOfficialEmailTx(ctx, r.db, email)
}

// GetByOfficialEmailTx is GetByOfficialEmail inside an existing transaction.
func (r *OrganizationProfiles) GetByOfficialEmailTx(ctx context.Context, tx bun.IDB, email string) (*OrganizationProfile, error) {
	record := &OrganizationProfile{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.official_email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"official_email": email})
		}
		return nil, err
	}

	return record, nil
}
