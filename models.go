package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountType discriminates the two account classes
type AccountType = string

const (
	// AccountTypeIndividual is a self-registered personal account
	AccountTypeIndividual AccountType = "individual"
	// AccountTypeOrganization is an admin-invited organization account
	AccountTypeOrganization AccountType = "organization"
)

// User is the login identity model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountType    AccountType    `bun:"account_type,notnull" json:"account_type,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string         `bun:"phone_number,nullzero,unique" json:"phone_number,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"-"`
	EmailVerified  bool           `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	Active         bool           `bun:"is_active" json:"is_active,omitempty"`
	LoginAttempts  int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time     `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// CanAuthenticate reports whether the account passed both activation gates.
// Pending accounts (fresh registrations and unclaimed invites) fail here.
func (u *User) CanAuthenticate() bool {
	return u.EmailVerified && u.Active
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// NormalizeEmail lowercases and trims an email identifier. Every lookup and
// every stored value goes through this so the unique index sees one casing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IndividualProfile holds the personal attributes attached to an individual
// account. Created in the same transaction as its owning User.
type IndividualProfile struct {
	bun.BaseModel `bun:"table:individual_profiles,alias:ipr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	FirstName     string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName      string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	DateOfBirth   *time.Time `bun:"date_of_birth,nullzero" json:"date_of_birth,omitempty"`
	Gender        string     `bun:"gender" json:"gender,omitempty"`
	AddressLine   string     `bun:"address_line" json:"address_line,omitempty"`
	City          string     `bun:"city" json:"city,omitempty"`
	Country       string     `bun:"country" json:"country,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// OrganizationProfile holds the organizational attributes attached to an
// organization account, including the admin that issued the invite.
type OrganizationProfile struct {
	bun.BaseModel `bun:"table:organization_profiles,alias:opr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	OrgName       string     `bun:"org_name,notnull" json:"org_name,omitempty"`
	OrgType       string     `bun:"org_type" json:"org_type,omitempty"`
	OfficialEmail string     `bun:"official_email,notnull,unique" json:"official_email,omitempty"`
	OfficialPhone string     `bun:"official_phone" json:"official_phone,omitempty"`
	Affiliation   string     `bun:"affiliation" json:"affiliation,omitempty"`
	CreatedBy     uuid.UUID  `bun:"created_by_admin_id,nullzero,type:uuid" json:"created_by_admin_id,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}
