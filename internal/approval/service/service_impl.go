package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stewardhq/steward/internal/account/domain"
	"github.com/stewardhq/steward/internal/approval/domain"
	auditdomain "github.com/stewardhq/steward/internal/audit/domain"
	"github.com/stewardhq/steward/internal/authority"
	"github.com/stewardhq/steward/internal/clock"
	"github.com/stewardhq/steward/internal/config"
	expensedomain "github.com/stewardhq/steward/internal/expense/domain"
	membershipdomain "github.com/stewardhq/steward/internal/membership/domain"
	"github.com/stewardhq/steward/internal/notification"
	orgdomain "github.com/stewardhq/steward/internal/organization/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db          *gorm.DB
	repo        domain.Repository
	expenses    expensedomain.Repository
	accounts    accountdomain.Repository
	org         orgdomain.Service
	memberships membershipdomain.Service
	audit       auditdomain.Service
	policy      *config.ApprovalPolicyHolder
	dispatcher  notification.Dispatcher
	clock       clock.Clock
	genID       *snowflake.Node
	log         *zap.Logger
}

func NewService(
	db *gorm.DB,
	repo domain.Repository,
	expenses expensedomain.Repository,
	accounts accountdomain.Repository,
	org orgdomain.Service,
	memberships membershipdomain.Service,
	audit auditdomain.Service,
	policy *config.ApprovalPolicyHolder,
	dispatcher notification.Dispatcher,
	clk clock.Clock,
	genID *snowflake.Node,
	log *zap.Logger,
) domain.Service {
	return &service{
		db:          db,
		repo:        repo,
		expenses:    expenses,
		accounts:    accounts,
		org:         org,
		memberships: memberships,
		audit:       audit,
		policy:      policy,
		dispatcher:  dispatcher,
		clock:       clk,
		genID:       genID,
		log:         log.Named("approval.service"),
	}
}

// requiredTiers builds the ordered tier sequence for one request. The
// final-approver tier is always present; the lower tiers are gated by
// the policy's amount thresholds.
func requiredTiers(policy config.ApprovalPolicy, amount int64, category string) []int {
	var tiers []int
	if amount >= policy.FinancialReviewMinAmount {
		tiers = append(tiers, authority.TierFinancialStaff)
	}
	if amount >= policy.SeniorThresholdFor(category) {
		tiers = append(tiers, authority.TierSeniorApprover)
	}
	return append(tiers, authority.TierFinalApprover)
}

func (s *service) Submit(ctx context.Context, reportID string) (*domain.FlowResponse, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(reportID))
	if err != nil {
		return nil, domain.ErrInvalidFlow
	}

	report, err := s.expenses.Get(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, expensedomain.ErrReportNotFound
		}
		return nil, err
	}
	if report.WorkflowStatus != expensedomain.WorkflowDraft {
		return nil, domain.ErrReportNotSubmittable
	}
	if existing, err := s.repo.GetFlowByReport(ctx, report.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.ErrAlreadySubmitted
	}

	tiers := requiredTiers(s.policy.Current(), report.Amount, report.Category)

	// Resolve every approver before touching any row: an unresolvable
	// tier must leave the report in DRAFT.
	now := s.clock.Now()
	flow := domain.ApprovalFlow{
		ID:               s.genID.Generate(),
		ExpenseReportID:  report.ID,
		Amount:           report.Amount,
		TotalSteps:       len(tiers),
		CurrentStepIndex: 1,
		Status:           domain.FlowInProgress,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	steps := make([]domain.ApprovalStep, 0, len(tiers))
	for i, tier := range tiers {
		approver, unitID, err := s.resolveApprover(ctx, report.UnitID, tier)
		if err != nil {
			return nil, err
		}
		steps = append(steps, domain.ApprovalStep{
			ID:                s.genID.Generate(),
			FlowID:            flow.ID,
			StepOrder:         i + 1,
			RequiredTier:      tier,
			ApproverAccountID: approver.ID,
			ApproverUnitID:    unitID,
			Status:            domain.StepPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	business := expensedomain.BusinessStatusFor(expensedomain.WorkflowInProgress, steps[0].RequiredTier)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.InsertFlow(ctx, flow); err != nil {
			return err
		}
		if err := repo.InsertSteps(ctx, steps); err != nil {
			return err
		}
		if err := s.expenses.WithTx(tx).SetStatus(ctx, report.ID, expensedomain.WorkflowInProgress, business, ""); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     "approval_flow.submitted",
			TargetType: "approval_flow",
			TargetID:   flow.ID.String(),
			Metadata: map[string]any{
				"expense_report_id": report.ID.String(),
				"amount":            report.Amount,
				"total_steps":       flow.TotalSteps,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifyApprover(ctx, steps[0], report)
	s.log.Info("approval flow created",
		zap.String("flow_id", flow.ID.String()),
		zap.String("report_id", report.ID.String()),
		zap.Int("total_steps", flow.TotalSteps),
	)
	return s.flowResponse(ctx, flow)
}

// resolveApprover walks the unit's ancestor chain for the nearest active
// member whose role resolves to the required tier and who holds an
// active account.
func (s *service) resolveApprover(ctx context.Context, unitID snowflake.ID, tier int) (*accountdomain.UserAccount, snowflake.ID, error) {
	chain, err := s.org.AncestorChain(ctx, unitID)
	if err != nil {
		return nil, 0, err
	}

	for _, unit := range chain {
		members, err := s.memberships.ActiveMembersOfUnit(ctx, unit.ID)
		if err != nil {
			return nil, 0, err
		}
		for _, member := range members {
			if authority.Resolve(member.RoleName).Tier != tier {
				continue
			}
			if member.Email == "" {
				continue
			}
			account, err := s.accounts.GetByEmail(ctx, member.Email)
			if err != nil {
				return nil, 0, err
			}
			if account == nil || account.Status != accountdomain.StatusActive {
				continue
			}
			return account, unit.ID, nil
		}
	}
	return nil, 0, fmt.Errorf("no qualified approver found for tier %d (%s): %w",
		tier, authority.TierName(tier), domain.ErrUnresolvableApprover)
}

func (s *service) ProcessStep(ctx context.Context, flowID string, stepOrder int, req domain.ProcessRequest) (*domain.ApprovalStep, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(flowID))
	if err != nil {
		return nil, domain.ErrInvalidFlow
	}
	if req.Action != domain.ActionApprove && req.Action != domain.ActionReject {
		return nil, domain.ErrInvalidAction
	}
	comments := strings.TrimSpace(req.Comments)
	if req.Action == domain.ActionReject && comments == "" {
		return nil, domain.ErrMissingRejectionReason
	}

	flow, err := s.repo.GetFlow(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrFlowNotFound
		}
		return nil, err
	}
	if flow.Status == domain.FlowApproved || flow.Status == domain.FlowRejected {
		return nil, domain.ErrFlowTerminal
	}
	if stepOrder != flow.CurrentStepIndex {
		return nil, domain.ErrStaleStep
	}

	step, err := s.repo.GetStep(ctx, flow.ID, stepOrder)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrStaleStep
		}
		return nil, err
	}
	if step.Status != domain.StepPending {
		return nil, domain.ErrStaleStep
	}
	if req.ActorAccountID != 0 && req.ActorAccountID != step.ApproverAccountID {
		return nil, domain.ErrWrongApprover
	}

	report, err := s.expenses.Get(ctx, flow.ExpenseReportID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	step.Comments = comments
	step.ProcessedAt = &now
	step.UpdatedAt = now

	var nextStep *domain.ApprovalStep
	if req.Action == domain.ActionApprove {
		step.Status = domain.StepApproved
	} else {
		step.Status = domain.StepRejected
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.UpdateStep(ctx, *step); err != nil {
			return err
		}

		var (
			workflow string
			tier     int
			reason   string
		)
		switch {
		case req.Action == domain.ActionReject:
			workflow = expensedomain.WorkflowRejected
			reason = comments
			ok, err := repo.TransitionFlow(ctx, flow.ID, stepOrder, flow.Version, stepOrder, domain.FlowRejected)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrStaleStep
			}
		case stepOrder == flow.TotalSteps:
			workflow = expensedomain.WorkflowApproved
			tier = step.RequiredTier
			ok, err := repo.TransitionFlow(ctx, flow.ID, stepOrder, flow.Version, stepOrder, domain.FlowApproved)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrStaleStep
			}
		default:
			workflow = expensedomain.WorkflowInProgress
			ok, err := repo.TransitionFlow(ctx, flow.ID, stepOrder, flow.Version, stepOrder+1, domain.FlowInProgress)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrStaleStep
			}
			next, err := repo.GetStep(ctx, flow.ID, stepOrder+1)
			if err != nil {
				return err
			}
			nextStep = next
			tier = next.RequiredTier
		}

		business := expensedomain.BusinessStatusFor(workflow, tier)
		if err := s.expenses.WithTx(tx).SetStatus(ctx, flow.ExpenseReportID, workflow, business, reason); err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     "approval_step." + strings.ToLower(req.Action),
			TargetType: "approval_flow",
			TargetID:   flow.ID.String(),
			Metadata: map[string]any{
				"step_order":  stepOrder,
				"approver_id": step.ApproverAccountID.String(),
				"comments":    comments,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	switch {
	case req.Action == domain.ActionReject:
		s.notifyRequester(ctx, report, notification.KindReportRejected,
			"지출결의서가 반려되었습니다", fmt.Sprintf("반려 사유: %s", comments))
	case stepOrder == flow.TotalSteps:
		s.notifyRequester(ctx, report, notification.KindReportApproved,
			"지출결의서가 최종 승인되었습니다", "모든 결재 단계가 승인되었습니다.")
	default:
		if nextStep != nil {
			s.notifyApprover(ctx, *nextStep, report)
		}
	}

	s.log.Info("approval step processed",
		zap.String("flow_id", flow.ID.String()),
		zap.Int("step_order", stepOrder),
		zap.String("action", req.Action),
	)
	return step, nil
}

func (s *service) GetFlow(ctx context.Context, flowID string) (*domain.FlowResponse, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(flowID))
	if err != nil {
		return nil, domain.ErrInvalidFlow
	}
	flow, err := s.repo.GetFlow(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrFlowNotFound
		}
		return nil, err
	}
	return s.flowResponse(ctx, *flow)
}

func (s *service) GetFlowByReport(ctx context.Context, reportID string) (*domain.FlowResponse, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(reportID))
	if err != nil {
		return nil, domain.ErrInvalidFlow
	}
	flow, err := s.repo.GetFlowByReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, domain.ErrFlowNotFound
	}
	return s.flowResponse(ctx, *flow)
}

func (s *service) flowResponse(ctx context.Context, flow domain.ApprovalFlow) (*domain.FlowResponse, error) {
	steps, err := s.repo.ListSteps(ctx, flow.ID)
	if err != nil {
		return nil, err
	}

	// Re-read so the response reflects transitions made in this call.
	current, err := s.repo.GetFlow(ctx, flow.ID)
	if err != nil {
		return nil, err
	}

	views := make([]domain.StepView, 0, len(steps))
	names := map[snowflake.ID]string{}
	for _, step := range steps {
		name, ok := names[step.ApproverAccountID]
		if !ok {
			account, err := s.accounts.GetByID(ctx, step.ApproverAccountID)
			if err != nil {
				return nil, err
			}
			name = account.DisplayName
			names[step.ApproverAccountID] = name
		}
		views = append(views, domain.StepView{ApprovalStep: step, ApproverName: name})
	}
	return &domain.FlowResponse{Flow: *current, Steps: views}, nil
}

func (s *service) notifyApprover(ctx context.Context, step domain.ApprovalStep, report *expensedomain.ExpenseReport) {
	account, err := s.accounts.GetByID(ctx, step.ApproverAccountID)
	if err != nil {
		s.log.Warn("resolve approver for notification", zap.Error(err))
		return
	}
	s.dispatcher.Dispatch(ctx, notification.Message{
		To:      account.Email,
		Subject: "결재 요청이 도착했습니다",
		Body: fmt.Sprintf("%s님, 지출결의서 '%s' (₩%d)의 %d단계 결재가 요청되었습니다.",
			account.DisplayName, report.Title, report.Amount, step.StepOrder),
		Kind: notification.KindApprovalRequested,
		Metadata: map[string]any{
			"flow_id":    step.FlowID.String(),
			"step_order": step.StepOrder,
			"report_id":  report.ID.String(),
		},
	})
}

func (s *service) notifyRequester(ctx context.Context, report *expensedomain.ExpenseReport, kind, subject, body string) {
	account, err := s.accounts.GetByID(ctx, report.RequesterAccountID)
	if err != nil {
		s.log.Warn("resolve requester for notification", zap.Error(err))
		return
	}
	s.dispatcher.Dispatch(ctx, notification.Message{
		To:      account.Email,
		Subject: subject,
		Body:    fmt.Sprintf("%s님, 지출결의서 '%s' 처리 결과입니다. %s", account.DisplayName, report.Title, body),
		Kind:    kind,
		Metadata: map[string]any{
			"report_id": report.ID.String(),
		},
	})
}
