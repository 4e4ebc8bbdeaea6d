// Package domain contains persistence models for the organization hierarchy.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Unit tiers, ordered from the root down. A unit's tier rank must be
// greater than or equal to its parent's.
const (
	UnitTierChurch     = "CHURCH"
	UnitTierDistrict   = "DISTRICT"
	UnitTierDepartment = "DEPARTMENT"
	UnitTierTeam       = "TEAM"
)

// MaxDepth bounds every ancestor walk. Structural mutations that would
// exceed it are rejected, so a corrupted parent chain can never loop a
// reader forever.
const MaxDepth = 32

// TierRank returns the depth rank of a unit tier, or -1 for unknown tiers.
func TierRank(tier string) int {
	switch tier {
	case UnitTierChurch:
		return 0
	case UnitTierDistrict:
		return 1
	case UnitTierDepartment:
		return 2
	case UnitTierTeam:
		return 3
	default:
		return -1
	}
}

// OrganizationUnit is one node of the organization tree.
type OrganizationUnit struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name      string        `gorm:"type:text;not null" json:"name"`
	Code      string        `gorm:"type:text;not null;uniqueIndex:ux_organization_units_code" json:"code"`
	ParentID  *snowflake.ID `gorm:"index" json:"parent_id"`
	Tier      string        `gorm:"type:text;not null" json:"tier"`
	IsActive  bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (OrganizationUnit) TableName() string { return "organization_units" }

// OrganizationRole is a role title in the organization's catalog.
type OrganizationRole struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"type:text;not null;uniqueIndex:ux_organization_roles_name" json:"name"`
	Level        int          `gorm:"not null" json:"level"`
	IsLeadership bool         `gorm:"not null;default:false" json:"is_leadership"`
	IsActive     bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (OrganizationRole) TableName() string { return "organization_roles" }

// RoleBinding marks a role as directly usable at a unit. Descendant units
// see the role through the inheritance read path without their own row.
type RoleBinding struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UnitID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_role_bindings_unit_role,priority:1" json:"unit_id"`
	RoleID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_role_bindings_unit_role,priority:2" json:"role_id"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RoleBinding) TableName() string { return "role_bindings" }

// Binding sources reported by the effective-roles read path.
const (
	BindingSourceDirect    = "DIRECT"
	BindingSourceInherited = "INHERITED"
)

// EffectiveRole is a role usable at a unit, tagged with how it got there.
type EffectiveRole struct {
	Role         OrganizationRole `json:"role"`
	Source       string           `json:"source"`
	SourceUnitID snowflake.ID     `json:"source_unit_id"`
}
