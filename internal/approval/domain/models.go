// Package domain contains the approval flow and step models.
//
// A flow is created once per expense report at submission and its step
// count never changes afterwards. Steps are strictly ordered; only the
// step at the flow's current index may leave PENDING.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Flow statuses. A flow starts IN_PROGRESS, since its first step is
// actionable the moment it is created; APPROVED and REJECTED are
// absorbing.
const (
	FlowInProgress = "IN_PROGRESS"
	FlowApproved   = "APPROVED"
	FlowRejected   = "REJECTED"
)

// Step statuses.
const (
	StepPending  = "PENDING"
	StepApproved = "APPROVED"
	StepRejected = "REJECTED"
)

// Step actions.
const (
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
)

// ApprovalFlow tracks the ordered approval of one expense report.
// Version guards every index transition: advancing compares-and-swaps on
// (current_step_index, version) so two concurrent decisions on the same
// step cannot both land.
type ApprovalFlow struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	ExpenseReportID  snowflake.ID `gorm:"not null;uniqueIndex:ux_approval_flows_report" json:"expense_report_id"`
	Amount           int64        `gorm:"not null" json:"amount"`
	TotalSteps       int          `gorm:"not null" json:"total_steps"`
	CurrentStepIndex int          `gorm:"not null" json:"current_step_index"`
	Status           string       `gorm:"type:text;not null" json:"status"`
	Version          int64        `gorm:"not null;default:1" json:"-"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ApprovalFlow) TableName() string { return "approval_flows" }

// ApprovalStep is one decision point in a flow. RequiredTier is a
// snapshot taken at flow construction; later role edits do not rewrite
// existing steps.
type ApprovalStep struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	FlowID            snowflake.ID `gorm:"not null;index;uniqueIndex:ux_approval_steps_flow_order,priority:1" json:"flow_id"`
	StepOrder         int          `gorm:"not null;uniqueIndex:ux_approval_steps_flow_order,priority:2" json:"step_order"`
	RequiredTier      int          `gorm:"not null" json:"required_tier"`
	ApproverAccountID snowflake.ID `gorm:"not null;index" json:"approver_account_id"`
	ApproverUnitID    snowflake.ID `gorm:"not null" json:"approver_unit_id"`
	Status            string       `gorm:"type:text;not null;default:PENDING" json:"status"`
	Comments          string       `gorm:"type:text" json:"comments,omitempty"`
	ProcessedAt       *time.Time   `json:"processed_at,omitempty"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ApprovalStep) TableName() string { return "approval_steps" }

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	InsertFlow(ctx context.Context, flow ApprovalFlow) error
	GetFlow(ctx context.Context, id snowflake.ID) (*ApprovalFlow, error)
	GetFlowByReport(ctx context.Context, reportID snowflake.ID) (*ApprovalFlow, error)
	// TransitionFlow moves the flow's cursor with a compare-and-swap on
	// (current_step_index, version). It reports false when another
	// transition won.
	TransitionFlow(ctx context.Context, flowID snowflake.ID, expectIndex int, expectVersion int64, newIndex int, newStatus string) (bool, error)

	InsertSteps(ctx context.Context, steps []ApprovalStep) error
	ListSteps(ctx context.Context, flowID snowflake.ID) ([]ApprovalStep, error)
	GetStep(ctx context.Context, flowID snowflake.ID, stepOrder int) (*ApprovalStep, error)
	UpdateStep(ctx context.Context, step ApprovalStep) error
}

type Service interface {
	// Submit builds the approval flow for a draft expense report. On
	// ErrUnresolvableApprover the report stays DRAFT.
	Submit(ctx context.Context, reportID string) (*FlowResponse, error)
	// ProcessStep applies one approver decision.
	ProcessStep(ctx context.Context, flowID string, stepOrder int, req ProcessRequest) (*ApprovalStep, error)
	GetFlow(ctx context.Context, flowID string) (*FlowResponse, error)
	GetFlowByReport(ctx context.Context, reportID string) (*FlowResponse, error)
}

type ProcessRequest struct {
	Action         string
	Comments       string
	ActorAccountID snowflake.ID
}

// StepView is a step with the approver's display name resolved.
type StepView struct {
	ApprovalStep
	ApproverName string `json:"approver_name"`
}

type FlowResponse struct {
	Flow  ApprovalFlow `json:"flow"`
	Steps []StepView   `json:"steps"`
}

var (
	ErrInvalidFlow            = errors.New("invalid_flow")
	ErrInvalidAction          = errors.New("invalid_action")
	ErrFlowNotFound           = errors.New("flow_not_found")
	ErrReportNotSubmittable   = errors.New("report_not_submittable")
	ErrAlreadySubmitted       = errors.New("already_submitted")
	ErrUnresolvableApprover   = errors.New("unresolvable_approver")
	ErrStaleStep              = errors.New("stale_step")
	ErrFlowTerminal           = errors.New("flow_already_terminal")
	ErrMissingRejectionReason = errors.New("missing_rejection_reason")
	ErrWrongApprover          = errors.New("wrong_approver")
)
