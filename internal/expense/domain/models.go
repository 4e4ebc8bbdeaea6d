// Package domain contains the expense report entity and its status model.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stewardhq/steward/internal/authority"
	"gorm.io/gorm"
)

// Workflow statuses. DRAFT is the only state a report can be submitted
// from; APPROVED, REJECTED and CANCELLED are terminal.
const (
	WorkflowDraft      = "DRAFT"
	WorkflowSubmitted  = "SUBMITTED"
	WorkflowInProgress = "IN_PROGRESS"
	WorkflowApproved   = "APPROVED"
	WorkflowRejected   = "REJECTED"
	WorkflowCancelled  = "CANCELLED"
)

// Business statuses, the coarser externally-facing projection.
const (
	BusinessPending            = "PENDING"
	BusinessDepartmentApproved = "DEPARTMENT_APPROVED"
	BusinessApproved           = "APPROVED"
	BusinessRejected           = "REJECTED"
	BusinessPaid               = "PAID"
)

// BusinessStatusFor projects the workflow status and the current step's
// required tier onto the business status. The two status fields are never
// mutated independently; every writer goes through this function.
func BusinessStatusFor(workflowStatus string, currentTier int) string {
	switch workflowStatus {
	case WorkflowApproved:
		return BusinessApproved
	case WorkflowRejected, WorkflowCancelled:
		return BusinessRejected
	case WorkflowInProgress:
		// Department-level review is done once the flow is waiting on
		// the final approver.
		if currentTier >= authority.TierFinalApprover {
			return BusinessDepartmentApproved
		}
		return BusinessPending
	default:
		return BusinessPending
	}
}

// ExpenseReport is a spending request raised by financial staff. Amounts
// are in KRW, which has no sub-unit.
type ExpenseReport struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	RequesterAccountID snowflake.ID `gorm:"not null;index" json:"requester_account_id"`
	UnitID             snowflake.ID `gorm:"not null;index" json:"unit_id"`
	Amount             int64        `gorm:"not null" json:"amount"`
	Category           string       `gorm:"type:text;not null" json:"category"`
	Title              string       `gorm:"type:text;not null" json:"title"`
	Description        string       `gorm:"type:text" json:"description,omitempty"`
	WorkflowStatus     string       `gorm:"type:text;not null;default:DRAFT" json:"workflow_status"`
	BusinessStatus     string       `gorm:"type:text;not null;default:PENDING" json:"business_status"`
	RejectionReason    string       `gorm:"type:text" json:"rejection_reason,omitempty"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ExpenseReport) TableName() string { return "expense_reports" }

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Insert(ctx context.Context, report ExpenseReport) error
	Get(ctx context.Context, id snowflake.ID) (*ExpenseReport, error)
	ListByRequester(ctx context.Context, accountID snowflake.ID) ([]ExpenseReport, error)
	// SetStatus rewrites both status fields and the rejection reason in
	// one statement.
	SetStatus(ctx context.Context, id snowflake.ID, workflowStatus, businessStatus, rejectionReason string) error
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*ExpenseReport, error)
	Get(ctx context.Context, reportID string) (*ExpenseReport, error)
	ListByRequester(ctx context.Context, accountID snowflake.ID) ([]ExpenseReport, error)
	Cancel(ctx context.Context, reportID string, actorAccountID snowflake.ID) (*ExpenseReport, error)
}

type CreateRequest struct {
	RequesterAccountID snowflake.ID
	UnitID             snowflake.ID
	Amount             int64
	Category           string
	Title              string
	Description        string
}

var (
	ErrInvalidReport     = errors.New("invalid_report")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrReportNotFound    = errors.New("report_not_found")
	ErrNotRequester      = errors.New("not_requester")
	ErrNotCancellable    = errors.New("not_cancellable")
	ErrOriginationDenied = errors.New("origination_denied")
)
