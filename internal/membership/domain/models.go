// Package domain contains the member registry models. Membership rows
// bind a person to a unit under a role; every mutation appends a history
// record.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Person is a registered member.
type Person struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Email     string       `gorm:"type:text;index" json:"email,omitempty"`
	Phone     string       `gorm:"type:text" json:"phone,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Person) TableName() string { return "persons" }

// Membership statuses.
const (
	MembershipActive   = "ACTIVE"
	MembershipInactive = "INACTIVE"
)

// Membership binds a person to a unit under a role. A person holds at
// most one active primary membership; the primary one drives account
// provisioning.
type Membership struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	PersonID  snowflake.ID `gorm:"not null;index" json:"person_id"`
	UnitID    snowflake.ID `gorm:"not null;index" json:"unit_id"`
	RoleID    snowflake.ID `gorm:"not null;index" json:"role_id"`
	IsPrimary bool         `gorm:"not null;default:false" json:"is_primary"`
	Status    string       `gorm:"type:text;not null;default:ACTIVE" json:"status"`
	StartedAt time.Time    `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Membership) TableName() string { return "memberships" }

// History actions.
const (
	HistoryCreated     = "CREATED"
	HistoryUpdated     = "UPDATED"
	HistoryDeactivated = "DEACTIVATED"
)

// MembershipHistory is an append-only record of one membership mutation.
// Previous holds the field values before the change (absent on CREATED
// rows), Snapshot the values after. Rows are never updated or deleted.
type MembershipHistory struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	MembershipID snowflake.ID      `gorm:"not null;index" json:"membership_id"`
	PersonID     snowflake.ID      `gorm:"not null;index" json:"person_id"`
	Action       string            `gorm:"type:text;not null" json:"action"`
	Previous     datatypes.JSONMap `gorm:"type:jsonb" json:"previous,omitempty"`
	Snapshot     datatypes.JSONMap `gorm:"type:jsonb" json:"snapshot"`
	ActorType    string            `gorm:"type:text" json:"actor_type,omitempty"`
	ActorID      string            `gorm:"type:text" json:"actor_id,omitempty"`
	Reason       string            `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (MembershipHistory) TableName() string { return "membership_histories" }
