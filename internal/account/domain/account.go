// Package domain contains the user account model and the provisioning
// contract driven by membership lifecycle events.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Account statuses.
const (
	StatusActive   = "ACTIVE"
	StatusDisabled = "DISABLED"
)

// UserAccount is a login credential for a member. Accounts are keyed by
// email and survive deactivation so their approval history stays
// attributable.
type UserAccount struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	PersonID     snowflake.ID `gorm:"not null;index" json:"person_id"`
	Email        string       `gorm:"type:text;not null;uniqueIndex:ux_user_accounts_email" json:"email"`
	DisplayName  string       `gorm:"type:text;not null" json:"display_name"`
	SystemRole   string       `gorm:"type:text;not null" json:"system_role"`
	Tier         int          `gorm:"not null" json:"tier"`
	PasswordHash string       `gorm:"type:text;not null" json:"-"`
	// MustChangeCredential stays set until the one-time credential issued
	// at provisioning is replaced.
	MustChangeCredential bool       `gorm:"not null;default:false" json:"must_change_credential"`
	Status               string     `gorm:"type:text;not null;default:ACTIVE" json:"status"`
	CreatedAt            time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DisabledAt           *time.Time `json:"disabled_at,omitempty"`
}

// TableName sets the database table name.
func (UserAccount) TableName() string { return "user_accounts" }

// Membership event kinds consumed by the provisioner.
const (
	EventMembershipCreated     = "MEMBERSHIP_CREATED"
	EventMembershipUpdated     = "MEMBERSHIP_UPDATED"
	EventMembershipDeactivated = "MEMBERSHIP_DEACTIVATED"
)

// MembershipEvent carries the membership facts the provisioner needs to
// reconcile an account. RoleName is the organization role title at the
// time of the event.
type MembershipEvent struct {
	Kind     string
	PersonID snowflake.ID
	Name     string
	Email    string
	Phone    string
	RoleName string
}

// ReconcileResult reports what the provisioner did for one event.
type ReconcileResult struct {
	Account *UserAccount
	Action  string
	// OneTimePassword is set only when a new credential was issued.
	OneTimePassword string
}

// Reconcile actions.
const (
	ActionNone        = "NONE"
	ActionProvisioned = "PROVISIONED"
	ActionUpdated     = "UPDATED"
	ActionDisabled    = "DISABLED"
	ActionReactivated = "REACTIVATED"
)

// Provisioner reconciles a member's account against a membership event.
// Implementations must be idempotent: replaying an event converges on
// the same end state.
type Provisioner interface {
	Reconcile(ctx context.Context, tx *gorm.DB, event MembershipEvent) (*ReconcileResult, error)
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Insert(ctx context.Context, account UserAccount) error
	GetByID(ctx context.Context, id snowflake.ID) (*UserAccount, error)
	GetByEmail(ctx context.Context, email string) (*UserAccount, error)
	GetByPersonID(ctx context.Context, personID snowflake.ID) (*UserAccount, error)
	Update(ctx context.Context, account UserAccount) error
	List(ctx context.Context) ([]UserAccount, error)
}

type Service interface {
	Provisioner

	Get(ctx context.Context, accountID string) (*UserAccount, error)
	List(ctx context.Context) ([]UserAccount, error)
	VerifyPassword(ctx context.Context, email, password string) (*UserAccount, error)
}

var (
	ErrAccountNotFound  = errors.New("account_not_found")
	ErrAccountDisabled  = errors.New("account_disabled")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidAccountID = errors.New("invalid_account_id")
	ErrBadCredentials   = errors.New("bad_credentials")
)
