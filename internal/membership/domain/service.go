package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stewardhq/steward/internal/account/domain"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreatePerson(ctx context.Context, person Person) error
	GetPerson(ctx context.Context, id snowflake.ID) (*Person, error)
	UpdatePerson(ctx context.Context, person Person) error

	InsertMembership(ctx context.Context, membership Membership) error
	GetMembership(ctx context.Context, id snowflake.ID) (*Membership, error)
	ListByPerson(ctx context.Context, personID snowflake.ID) ([]Membership, error)
	ListActiveByUnit(ctx context.Context, unitID snowflake.ID) ([]Membership, error)
	UpdateMembership(ctx context.Context, membership Membership) error

	InsertHistory(ctx context.Context, history MembershipHistory) error
	ListHistory(ctx context.Context, personID snowflake.ID) ([]MembershipHistory, error)
}

type Service interface {
	RegisterMember(ctx context.Context, req RegisterMemberRequest) (*MemberResponse, error)
	AddMembership(ctx context.Context, personID string, req AddMembershipRequest) (*MemberResponse, error)
	ChangeMembership(ctx context.Context, membershipID string, req ChangeMembershipRequest) (*MemberResponse, error)
	DeactivateMembership(ctx context.Context, membershipID, reason string) error

	GetPerson(ctx context.Context, personID string) (*Person, error)
	ListMemberships(ctx context.Context, personID string) ([]Membership, error)
	ListHistory(ctx context.Context, personID string) ([]MembershipHistory, error)

	// ActiveMembersOfUnit lists the active memberships of one unit with
	// the person and role denormalized, for approver resolution.
	ActiveMembersOfUnit(ctx context.Context, unitID snowflake.ID) ([]MemberView, error)
}

type RegisterMemberRequest struct {
	Name      string
	Email     string
	Phone     string
	UnitID    string
	RoleID    string
	IsPrimary bool
}

type AddMembershipRequest struct {
	UnitID    string
	RoleID    string
	IsPrimary bool
}

type ChangeMembershipRequest struct {
	UnitID    *string
	RoleID    *string
	IsPrimary *bool
	Reason    string
}

type MemberResponse struct {
	Person     Person                         `json:"person"`
	Membership Membership                     `json:"membership"`
	Account    *accountdomain.ReconcileResult `json:"account,omitempty"`
}

// MemberView is an active membership with the person and role resolved.
type MemberView struct {
	PersonID   snowflake.ID
	PersonName string
	Email      string
	RoleID     snowflake.ID
	RoleName   string
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidMembership    = errors.New("invalid_membership")
	ErrPersonNotFound       = errors.New("person_not_found")
	ErrMembershipNotFound   = errors.New("membership_not_found")
	ErrMembershipInactive   = errors.New("membership_inactive")
	ErrPrimaryAlreadyActive = errors.New("primary_membership_exists")
)
