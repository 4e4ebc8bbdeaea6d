package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stewardhq/steward/internal/account/domain"
	"github.com/stewardhq/steward/internal/authority"
	"github.com/stewardhq/steward/internal/expense/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db       *gorm.DB
	repo     domain.Repository
	accounts accountdomain.Repository
	genID    *snowflake.Node
	log      *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, accounts accountdomain.Repository, genID *snowflake.Node, log *zap.Logger) domain.Service {
	return &service{
		db:       db,
		repo:     repo,
		accounts: accounts,
		genID:    genID,
		log:      log.Named("expense.service"),
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.ExpenseReport, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	title := strings.TrimSpace(req.Title)
	if title == "" || req.UnitID == 0 {
		return nil, domain.ErrInvalidReport
	}

	requester, err := s.accounts.GetByID(ctx, req.RequesterAccountID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, accountdomain.ErrAccountNotFound
		}
		return nil, err
	}
	if requester.Status != accountdomain.StatusActive {
		return nil, accountdomain.ErrAccountDisabled
	}
	// Only financial-staff tier and above may raise spending requests.
	if requester.Tier < authority.TierFinancialStaff {
		return nil, domain.ErrOriginationDenied
	}

	now := time.Now().UTC()
	report := domain.ExpenseReport{
		ID:                 s.genID.Generate(),
		RequesterAccountID: requester.ID,
		UnitID:             req.UnitID,
		Amount:             req.Amount,
		Category:           strings.TrimSpace(req.Category),
		Title:              title,
		Description:        strings.TrimSpace(req.Description),
		WorkflowStatus:     domain.WorkflowDraft,
		BusinessStatus:     domain.BusinessStatusFor(domain.WorkflowDraft, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, report); err != nil {
		return nil, err
	}

	s.log.Info("expense report created",
		zap.String("report_id", report.ID.String()),
		zap.Int64("amount", report.Amount),
		zap.String("category", report.Category),
	)
	return &report, nil
}

func (s *service) Get(ctx context.Context, reportID string) (*domain.ExpenseReport, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(reportID))
	if err != nil {
		return nil, domain.ErrInvalidReport
	}
	report, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrReportNotFound
		}
		return nil, err
	}
	return report, nil
}

func (s *service) ListByRequester(ctx context.Context, accountID snowflake.ID) ([]domain.ExpenseReport, error) {
	return s.repo.ListByRequester(ctx, accountID)
}

// Cancel withdraws a report before any approval decision lands. Only the
// requester may cancel, and only from DRAFT or SUBMITTED.
func (s *service) Cancel(ctx context.Context, reportID string, actorAccountID snowflake.ID) (*domain.ExpenseReport, error) {
	report, err := s.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.RequesterAccountID != actorAccountID {
		return nil, domain.ErrNotRequester
	}
	if report.WorkflowStatus != domain.WorkflowDraft && report.WorkflowStatus != domain.WorkflowSubmitted {
		return nil, domain.ErrNotCancellable
	}

	business := domain.BusinessStatusFor(domain.WorkflowCancelled, 0)
	if err := s.repo.SetStatus(ctx, report.ID, domain.WorkflowCancelled, business, ""); err != nil {
		return nil, err
	}
	report.WorkflowStatus = domain.WorkflowCancelled
	report.BusinessStatus = business
	report.UpdatedAt = time.Now().UTC()

	s.log.Info("expense report cancelled", zap.String("report_id", report.ID.String()))
	return report, nil
}
