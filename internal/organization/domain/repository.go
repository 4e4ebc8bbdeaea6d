package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateUnit(ctx context.Context, unit OrganizationUnit) error
	GetUnit(ctx context.Context, id snowflake.ID) (*OrganizationUnit, error)
	GetRootUnit(ctx context.Context) (*OrganizationUnit, error)
	ListUnits(ctx context.Context) ([]OrganizationUnit, error)
	ListChildren(ctx context.Context, parentID snowflake.ID) ([]OrganizationUnit, error)
	UpdateUnitParent(ctx context.Context, id snowflake.ID, parentID *snowflake.ID) error

	CreateRole(ctx context.Context, role OrganizationRole) error
	GetRole(ctx context.Context, id snowflake.ID) (*OrganizationRole, error)
	GetRoleByName(ctx context.Context, name string) (*OrganizationRole, error)
	ListRoles(ctx context.Context) ([]OrganizationRole, error)
	UpdateRole(ctx context.Context, role OrganizationRole) error

	ListBindings(ctx context.Context, unitID snowflake.ID) ([]RoleBinding, error)
	InsertBinding(ctx context.Context, binding RoleBinding) error
	DeleteBindings(ctx context.Context, unitID snowflake.ID) error
	DeleteBinding(ctx context.Context, unitID, roleID snowflake.ID) (bool, error)
}
