// Package notification delivers operational email to members and records
// every delivery attempt.
package notification

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Message is one outbound notification.
type Message struct {
	To       string
	Subject  string
	Body     string
	Kind     string
	Metadata map[string]any
}

// Message kinds.
const (
	KindAccountProvisioned = "ACCOUNT_PROVISIONED"
	KindAccountDisabled    = "ACCOUNT_DISABLED"
	KindApprovalRequested  = "APPROVAL_REQUESTED"
	KindReportApproved     = "REPORT_APPROVED"
	KindReportRejected     = "REPORT_REJECTED"
)

// Provider sends a message through a concrete channel.
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// Delivery statuses recorded per attempt.
const (
	DeliverySent   = "SENT"
	DeliveryFailed = "FAILED"
)

// NotificationEvent is the persisted record of one delivery attempt.
type NotificationEvent struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Kind      string            `gorm:"type:text;not null;index" json:"kind"`
	Recipient string            `gorm:"type:text;not null" json:"recipient"`
	Subject   string            `gorm:"type:text;not null" json:"subject"`
	Status    string            `gorm:"type:text;not null" json:"status"`
	Error     string            `gorm:"type:text" json:"error,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (NotificationEvent) TableName() string { return "notification_events" }

// Dispatcher fans a message to the provider and records the outcome.
// Delivery is best effort: callers never fail their own transaction
// because an email bounced.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message)
}
