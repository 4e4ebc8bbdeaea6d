package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stewardhq/steward/internal/account/domain"
	"github.com/stewardhq/steward/internal/authority"
	"github.com/stewardhq/steward/internal/credential"
	"github.com/stewardhq/steward/internal/notification"
	dbpkg "github.com/stewardhq/steward/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db         *gorm.DB
	repo       domain.Repository
	genID      *snowflake.Node
	dispatcher notification.Dispatcher
	log        *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, genID *snowflake.Node, dispatcher notification.Dispatcher, log *zap.Logger) domain.Service {
	return &service{
		db:         db,
		repo:       repo,
		genID:      genID,
		dispatcher: dispatcher,
		log:        log.Named("account.service"),
	}
}

// Reconcile converges the member's account on the state implied by the
// event. It runs inside the caller's transaction so the account change
// commits or rolls back with the membership change that caused it.
func (s *service) Reconcile(ctx context.Context, tx *gorm.DB, event domain.MembershipEvent) (*domain.ReconcileResult, error) {
	if event.PersonID == 0 {
		return nil, domain.ErrInvalidEvent
	}
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}

	email := strings.ToLower(strings.TrimSpace(event.Email))
	profile := authority.Resolve(event.RoleName)

	wantActive := profile.NeedsAccount && event.Kind != domain.EventMembershipDeactivated

	existing, err := repo.GetByPersonID(ctx, event.PersonID)
	if err != nil {
		return nil, err
	}

	if !wantActive {
		// No account needed. Disable an existing one rather than delete it
		// so past approval decisions stay attributable.
		if existing == nil || existing.Status == domain.StatusDisabled {
			return &domain.ReconcileResult{Account: existing, Action: domain.ActionNone}, nil
		}
		now := time.Now().UTC()
		existing.Status = domain.StatusDisabled
		existing.DisabledAt = &now
		existing.UpdatedAt = now
		if err := repo.Update(ctx, *existing); err != nil {
			return nil, err
		}
		s.dispatcher.Dispatch(ctx, notification.Message{
			To:      existing.Email,
			Subject: "계정이 비활성화되었습니다",
			Body:    fmt.Sprintf("%s님, 직분 변경에 따라 재정 시스템 계정이 비활성화되었습니다.", existing.DisplayName),
			Kind:    notification.KindAccountDisabled,
			Metadata: map[string]any{
				"account_id": existing.ID.String(),
				"person_id":  event.PersonID.String(),
			},
		})
		s.log.Info("account disabled",
			zap.String("account_id", existing.ID.String()),
			zap.String("person_id", event.PersonID.String()),
		)
		return &domain.ReconcileResult{Account: existing, Action: domain.ActionDisabled}, nil
	}

	// An account is required but cannot be keyed without an email.
	if email == "" {
		s.log.Warn("account required but member has no email",
			zap.String("person_id", event.PersonID.String()),
			zap.String("role", event.RoleName),
		)
		return &domain.ReconcileResult{Action: domain.ActionNone}, nil
	}

	if existing == nil {
		return s.provision(ctx, repo, event, email, profile)
	}

	// A grant never rewrites an active account; role upgrades and
	// downgrades arrive as change events.
	if event.Kind == domain.EventMembershipCreated && existing.Status == domain.StatusActive {
		return &domain.ReconcileResult{Account: existing, Action: domain.ActionNone}, nil
	}

	action := domain.ActionNone
	now := time.Now().UTC()
	if existing.Status == domain.StatusDisabled {
		existing.Status = domain.StatusActive
		existing.DisabledAt = nil
		action = domain.ActionReactivated
	}
	if existing.Tier != profile.Tier || existing.SystemRole != profile.SystemRole || existing.DisplayName != event.Name {
		existing.Tier = profile.Tier
		existing.SystemRole = profile.SystemRole
		if strings.TrimSpace(event.Name) != "" {
			existing.DisplayName = event.Name
		}
		if action == domain.ActionNone {
			action = domain.ActionUpdated
		}
	}
	if action == domain.ActionNone {
		return &domain.ReconcileResult{Account: existing, Action: domain.ActionNone}, nil
	}

	existing.UpdatedAt = now
	if err := repo.Update(ctx, *existing); err != nil {
		return nil, err
	}
	s.log.Info("account reconciled",
		zap.String("account_id", existing.ID.String()),
		zap.String("action", action),
		zap.Int("tier", existing.Tier),
	)
	return &domain.ReconcileResult{Account: existing, Action: action}, nil
}

func (s *service) provision(ctx context.Context, repo domain.Repository, event domain.MembershipEvent, email string, profile authority.Profile) (*domain.ReconcileResult, error) {
	oneTime, err := credential.GenerateOneTime()
	if err != nil {
		return nil, err
	}
	hash, err := credential.Hash(oneTime)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	account := domain.UserAccount{
		ID:           s.genID.Generate(),
		PersonID:     event.PersonID,
		Email:        email,
		DisplayName:  event.Name,
		SystemRole:   profile.SystemRole,
		Tier:         profile.Tier,
		PasswordHash: hash,
		// One-time credential; the member must replace it at first login.
		MustChangeCredential: true,
		Status:               domain.StatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := repo.Insert(ctx, account); err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			// A concurrent reconcile won the insert. Converge on its row.
			winner, getErr := repo.GetByEmail(ctx, email)
			if getErr != nil {
				return nil, getErr
			}
			if winner == nil {
				return nil, err
			}
			return &domain.ReconcileResult{Account: winner, Action: domain.ActionNone}, nil
		}
		return nil, err
	}

	s.dispatcher.Dispatch(ctx, notification.Message{
		To:      email,
		Subject: "재정 시스템 계정이 발급되었습니다",
		Body: fmt.Sprintf("%s님, 재정 시스템 계정이 발급되었습니다.\n임시 비밀번호: %s\n첫 로그인 시 비밀번호를 변경해 주세요.",
			event.Name, oneTime),
		Kind: notification.KindAccountProvisioned,
		// Delivery hint and granted authority travel with the event so the
		// notifier can pick a channel and name the role without a lookup.
		Metadata: map[string]any{
			"account_id":  account.ID.String(),
			"person_id":   event.PersonID.String(),
			"role":        event.RoleName,
			"system_role": profile.SystemRole,
			"has_phone":   strings.TrimSpace(event.Phone) != "",
		},
	})
	s.log.Info("account provisioned",
		zap.String("account_id", account.ID.String()),
		zap.String("system_role", account.SystemRole),
		zap.Int("tier", account.Tier),
	)

	return &domain.ReconcileResult{
		Account:         &account,
		Action:          domain.ActionProvisioned,
		OneTimePassword: oneTime,
	}, nil
}

func (s *service) Get(ctx context.Context, accountID string) (*domain.UserAccount, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(accountID))
	if err != nil {
		return nil, domain.ErrInvalidAccountID
	}
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (s *service) List(ctx context.Context) ([]domain.UserAccount, error) {
	return s.repo.List(ctx)
}

func (s *service) VerifyPassword(ctx context.Context, email, password string) (*domain.UserAccount, error) {
	account, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrBadCredentials
	}
	if account.Status != domain.StatusActive {
		return nil, domain.ErrAccountDisabled
	}
	if !credential.Verify(password, account.PasswordHash) {
		return nil, domain.ErrBadCredentials
	}
	return account, nil
}
