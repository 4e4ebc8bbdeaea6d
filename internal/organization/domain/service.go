package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateUnit(ctx context.Context, req CreateUnitRequest) (*UnitResponse, error)
	MoveUnit(ctx context.Context, unitID string, newParentID string) error
	ListUnits(ctx context.Context) ([]UnitResponse, error)
	AncestorChain(ctx context.Context, unitID snowflake.ID) ([]OrganizationUnit, error)

	CreateRole(ctx context.Context, req CreateRoleRequest) (*OrganizationRole, error)
	UpdateRole(ctx context.Context, roleID string, req UpdateRoleRequest) (*OrganizationRole, error)
	ListRoles(ctx context.Context) ([]OrganizationRole, error)

	GetEffectiveRoles(ctx context.Context, unitID string) ([]EffectiveRole, error)
	AssignRoles(ctx context.Context, unitID string, roleIDs []string, opts AssignOptions) error
	UnassignRole(ctx context.Context, unitID string, roleID string) error
}

type CreateUnitRequest struct {
	Name     string
	ParentID string
	Tier     string
}

type CreateRoleRequest struct {
	Name         string
	Level        int
	IsLeadership bool
}

type UpdateRoleRequest struct {
	Level        *int
	IsLeadership *bool
	IsActive     *bool
}

// AssignOptions controls how AssignRoles applies the requested set.
type AssignOptions struct {
	// ReplaceExisting atomically replaces the unit's direct bindings with
	// the requested set. Callers must pass the complete desired set.
	ReplaceExisting bool
	// PropagateToDescendants materializes direct bindings at every
	// descendant unit.
	PropagateToDescendants bool
}

type UnitResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	ParentID string `json:"parent_id,omitempty"`
	Tier     string `json:"tier"`
	IsActive bool   `json:"is_active"`
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidUnit        = errors.New("invalid_unit")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrInvalidTier        = errors.New("invalid_tier")
	ErrUnitNotFound       = errors.New("unit_not_found")
	ErrRoleNotFound       = errors.New("role_not_found")
	ErrDuplicateRoleName  = errors.New("duplicate_role_name")
	ErrDuplicateUnitCode  = errors.New("duplicate_unit_code")
	ErrHierarchyCycle     = errors.New("hierarchy_cycle")
	ErrMaxDepthExceeded   = errors.New("max_depth_exceeded")
	ErrTierOrderViolation = errors.New("tier_order_violation")
	ErrBindingInherited   = errors.New("binding_inherited")
	ErrBindingNotFound    = errors.New("binding_not_found")
)
