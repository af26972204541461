package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	IndividualProfiles() *IndividualProfiles
	OrganizationProfiles() *OrganizationProfiles
}

type mngr struct {
	db            *bun.DB
	users         Users
	individuals   *IndividualProfiles
	organizations *OrganizationProfiles
}

// NewRepositoryManager wires the repositories around one database handle.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:            db,
		users:         NewUsersRepository(db),
		individuals:   NewIndividualProfilesRepository(db),
		organizations: NewOrganizationProfilesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.individuals == nil {
		return errors.New("repository individualProfiles should be initialized")
	}

	if m.organizations == nil {
		return errors.New("repository organizationProfiles should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) IndividualProfiles() *IndividualProfiles {
	return m.individuals
}

func (m mngr) OrganizationProfiles() *OrganizationProfiles {
	return m.organizations
}
