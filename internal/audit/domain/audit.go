// Package domain contains the append-only audit trail. Rows are inserted
// once and never updated or deleted.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stewardhq/steward/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actor types.
const (
	ActorAccount = "ACCOUNT"
	ActorSystem  = "SYSTEM"
)

// AuditLog records one audited action.
type AuditLog struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType     string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID       string            `gorm:"type:text;not null;index" json:"actor_id"`
	Action        string            `gorm:"type:text;not null;index" json:"action"`
	TargetType    string            `gorm:"type:text;not null" json:"target_type"`
	TargetID      string            `gorm:"type:text;not null;index" json:"target_id"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	IPAddress     string            `gorm:"type:text" json:"ip_address,omitempty"`
	UserAgent     string            `gorm:"type:text" json:"user_agent,omitempty"`
	CorrelationID string            `gorm:"type:text;index" json:"correlation_id,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// Entry is what callers record; request-scoped fields are filled in from
// the context by the service.
type Entry struct {
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

// Filter narrows List results.
type Filter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Insert(ctx context.Context, log AuditLog) error
	List(ctx context.Context, filter Filter, p pagination.Pagination) ([]AuditLog, *pagination.PageInfo, error)
}

type Service interface {
	// Record writes an audit row. When tx is non-nil the row joins the
	// caller's transaction, so the audit trail and the audited change
	// commit together.
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, filter Filter, p pagination.Pagination) ([]AuditLog, *pagination.PageInfo, error)
}
