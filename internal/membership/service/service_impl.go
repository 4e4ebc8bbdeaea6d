package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stewardhq/steward/internal/account/domain"
	"github.com/stewardhq/steward/internal/auditcontext"
	"github.com/stewardhq/steward/internal/authority"
	"github.com/stewardhq/steward/internal/membership/domain"
	orgdomain "github.com/stewardhq/steward/internal/organization/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type service struct {
	db          *gorm.DB
	repo        domain.Repository
	orgRepo     orgdomain.Repository
	provisioner accountdomain.Provisioner
	genID       *snowflake.Node
	log         *zap.Logger
}

func NewService(
	db *gorm.DB,
	repo domain.Repository,
	orgRepo orgdomain.Repository,
	provisioner accountdomain.Provisioner,
	genID *snowflake.Node,
	log *zap.Logger,
) domain.Service {
	return &service{
		db:          db,
		repo:        repo,
		orgRepo:     orgRepo,
		provisioner: provisioner,
		genID:       genID,
		log:         log.Named("membership.service"),
	}
}

func (s *service) RegisterMember(ctx context.Context, req domain.RegisterMemberRequest) (*domain.MemberResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	unitID, err := snowflake.ParseString(strings.TrimSpace(req.UnitID))
	if err != nil {
		return nil, domain.ErrInvalidMembership
	}
	roleID, err := snowflake.ParseString(strings.TrimSpace(req.RoleID))
	if err != nil {
		return nil, domain.ErrInvalidMembership
	}

	if _, err := s.orgRepo.GetUnit(ctx, unitID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, orgdomain.ErrUnitNotFound
		}
		return nil, err
	}
	role, err := s.orgRepo.GetRole(ctx, roleID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, orgdomain.ErrRoleNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	person := domain.Person{
		ID:        s.genID.Generate(),
		Name:      name,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	membership := domain.Membership{
		ID:        s.genID.Generate(),
		PersonID:  person.ID,
		UnitID:    unitID,
		RoleID:    roleID,
		IsPrimary: req.IsPrimary,
		Status:    domain.MembershipActive,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	resp := &domain.MemberResponse{Person: person, Membership: membership}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.CreatePerson(ctx, person); err != nil {
			return err
		}
		if err := repo.InsertMembership(ctx, membership); err != nil {
			return err
		}
		if err := repo.InsertHistory(ctx, s.historyOf(ctx, membership, domain.HistoryCreated, nil, "")); err != nil {
			return err
		}

		result, err := s.reconcileAccount(ctx, tx, repo, &person, accountdomain.EventMembershipCreated)
		if err != nil {
			return err
		}
		resp.Account = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("member registered",
		zap.String("person_id", person.ID.String()),
		zap.String("role", role.Name),
		zap.Bool("is_primary", membership.IsPrimary),
	)
	return resp, nil
}

func (s *service) AddMembership(ctx context.Context, personID string, req domain.AddMembershipRequest) (*domain.MemberResponse, error) {
	pid, err := snowflake.ParseString(strings.TrimSpace(personID))
	if err != nil {
		return nil, domain.ErrInvalidMembership
	}
	person, err := s.repo.GetPerson(ctx, pid)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrPersonNotFound
		}
		return nil, err
	}

	unitID, err := snowflake.ParseString(strings.TrimSpace(req.UnitID))
	if err != nil {
		return nil, domain.ErrInvalidMembership
	}
	roleID, err := snowflake.ParseString(strings.TrimSpace(req.RoleID))
	if err != nil {
		return nil, domain.ErrInvalidMembership
	}
	if _, err := s.orgRepo.GetUnit(ctx, unitID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, orgdomain.ErrUnitNotFound
		}
		return nil, err
	}
	if _, err := s.orgRepo.GetRole(ctx, roleID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, orgdomain.ErrRoleNotFound
		}
		return nil, err
	}

	if req.IsPrimary {
		existing, err := s.repo.ListByPerson(ctx, pid)
		if err != nil {
			return nil, err
		}
		for _, other := range existing {
			if other.Status == domain.MembershipActive && other.IsPrimary {
				return nil, domain.ErrPrimaryAlreadyActive
			}
		}
	}

	now := time.Now().UTC()
	membership := domain.Membership{
		ID:        s.genID.Generate(),
		PersonID:  pid,
		UnitID:    unitID,
		RoleID:    roleID,
		IsPrimary: req.IsPrimary,
		Status:    domain.MembershipActive,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	resp := &domain.MemberResponse{Person: *person, Membership: membership}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.InsertMembership(ctx, membership); err != nil {
			return err
		}
		if err := repo.InsertHistory(ctx, s.historyOf(ctx, membership, domain.HistoryCreated, nil, "")); err != nil {
			return err
		}

		result, err := s.reconcileAccount(ctx, tx, repo, person, accountdomain.EventMembershipUpdated)
		if err != nil {
			return err
		}
		resp.Account = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *service) ChangeMembership(ctx context.Context, membershipID string, req domain.ChangeMembershipRequest) (*domain.MemberResponse, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(membershipID))
	if err != nil {
		return nil, domain.ErrInvalidMembership
	}

	membership, err := s.repo.GetMembership(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, err
	}
	if membership.Status != domain.MembershipActive {
		return nil, domain.ErrMembershipInactive
	}
	previous := *membership

	if req.UnitID != nil {
		unitID, err := snowflake.ParseString(strings.TrimSpace(*req.UnitID))
		if err != nil {
			return nil, domain.ErrInvalidMembership
		}
		if _, err := s.orgRepo.GetUnit(ctx, unitID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, orgdomain.ErrUnitNotFound
			}
			return nil, err
		}
		membership.UnitID = unitID
	}
	if req.RoleID != nil {
		roleID, err := snowflake.ParseString(strings.TrimSpace(*req.RoleID))
		if err != nil {
			return nil, domain.ErrInvalidMembership
		}
		if _, err := s.orgRepo.GetRole(ctx, roleID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, orgdomain.ErrRoleNotFound
			}
			return nil, err
		}
		membership.RoleID = roleID
	}
	if req.IsPrimary != nil && *req.IsPrimary && !membership.IsPrimary {
		others, err := s.repo.ListByPerson(ctx, membership.PersonID)
		if err != nil {
			return nil, err
		}
		for _, other := range others {
			if other.ID != membership.ID && other.Status == domain.MembershipActive && other.IsPrimary {
				return nil, domain.ErrPrimaryAlreadyActive
			}
		}
		membership.IsPrimary = true
	}
	if req.IsPrimary != nil && !*req.IsPrimary {
		membership.IsPrimary = false
	}
	membership.UpdatedAt = time.Now().UTC()

	person, err := s.repo.GetPerson(ctx, membership.PersonID)
	if err != nil {
		return nil, err
	}

	resp := &domain.MemberResponse{Person: *person, Membership: *membership}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.UpdateMembership(ctx, *membership); err != nil {
			return err
		}
		if err := repo.InsertHistory(ctx, s.historyOf(ctx, *membership, domain.HistoryUpdated, &previous, req.Reason)); err != nil {
			return err
		}

		result, err := s.reconcileAccount(ctx, tx, repo, person, accountdomain.EventMembershipUpdated)
		if err != nil {
			return err
		}
		resp.Account = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *service) DeactivateMembership(ctx context.Context, membershipID, reason string) error {
	id, err := snowflake.ParseString(strings.TrimSpace(membershipID))
	if err != nil {
		return domain.ErrInvalidMembership
	}

	membership, err := s.repo.GetMembership(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ErrMembershipNotFound
		}
		return err
	}
	if membership.Status != domain.MembershipActive {
		return domain.ErrMembershipInactive
	}

	person, err := s.repo.GetPerson(ctx, membership.PersonID)
	if err != nil {
		return err
	}

	previous := *membership
	now := time.Now().UTC()
	membership.Status = domain.MembershipInactive
	membership.EndedAt = &now
	membership.UpdatedAt = now

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.UpdateMembership(ctx, *membership); err != nil {
			return err
		}
		if err := repo.InsertHistory(ctx, s.historyOf(ctx, *membership, domain.HistoryDeactivated, &previous, reason)); err != nil {
			return err
		}

		if _, err := s.reconcileAccount(ctx, tx, repo, person, accountdomain.EventMembershipDeactivated); err != nil {
			return err
		}
		return nil
	})
}

func (s *service) GetPerson(ctx context.Context, personID string) (*domain.Person, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(personID))
	if err != nil {
		return nil, domain.ErrInvalidMembership
	}
	person, err := s.repo.GetPerson(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrPersonNotFound
		}
		return nil, err
	}
	return person, nil
}

func (s *service) ListMemberships(ctx context.Context, personID string) ([]domain.Membership, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(personID))
	if err != nil {
		return nil, domain.ErrInvalidMembership
	}
	return s.repo.ListByPerson(ctx, id)
}

func (s *service) ListHistory(ctx context.Context, personID string) ([]domain.MembershipHistory, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(personID))
	if err != nil {
		return nil, domain.ErrInvalidMembership
	}
	return s.repo.ListHistory(ctx, id)
}

func (s *service) ActiveMembersOfUnit(ctx context.Context, unitID snowflake.ID) ([]domain.MemberView, error) {
	memberships, err := s.repo.ListActiveByUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	roles := map[snowflake.ID]*orgdomain.OrganizationRole{}
	views := make([]domain.MemberView, 0, len(memberships))
	for _, membership := range memberships {
		person, err := s.repo.GetPerson(ctx, membership.PersonID)
		if err != nil {
			return nil, err
		}
		role, ok := roles[membership.RoleID]
		if !ok {
			role, err = s.orgRepo.GetRole(ctx, membership.RoleID)
			if err != nil {
				return nil, err
			}
			roles[membership.RoleID] = role
		}
		views = append(views, domain.MemberView{
			PersonID:   person.ID,
			PersonName: person.Name,
			Email:      person.Email,
			RoleID:     role.ID,
			RoleName:   role.Name,
		})
	}
	return views, nil
}

// reconcileAccount drives the account provisioner from the person's current
// membership state inside the mutation transaction. The person's account
// follows the highest-authority role among their active memberships, so
// ending one membership keeps the account alive while another still
// warrants it.
func (s *service) reconcileAccount(ctx context.Context, tx *gorm.DB, repo domain.Repository, person *domain.Person, kind string) (*accountdomain.ReconcileResult, error) {
	best, found, err := s.bestAccountRole(ctx, repo, person.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		kind = accountdomain.EventMembershipDeactivated
	} else if kind == accountdomain.EventMembershipDeactivated {
		// Another active membership still needs the account.
		kind = accountdomain.EventMembershipUpdated
	}

	return s.provisioner.Reconcile(ctx, tx, accountdomain.MembershipEvent{
		Kind:     kind,
		PersonID: person.ID,
		Name:     person.Name,
		Email:    person.Email,
		Phone:    person.Phone,
		RoleName: best,
	})
}

func (s *service) bestAccountRole(ctx context.Context, repo domain.Repository, personID snowflake.ID) (string, bool, error) {
	memberships, err := repo.ListByPerson(ctx, personID)
	if err != nil {
		return "", false, err
	}

	best := ""
	bestTier := -1
	for _, membership := range memberships {
		if membership.Status != domain.MembershipActive {
			continue
		}
		role, err := s.orgRepo.GetRole(ctx, membership.RoleID)
		if err != nil {
			return "", false, err
		}
		profile := authority.Resolve(role.Name)
		if !profile.NeedsAccount {
			continue
		}
		if profile.Tier > bestTier {
			bestTier = profile.Tier
			best = role.Name
		}
	}
	return best, bestTier >= 0, nil
}

// historyOf builds the append-only record of one mutation: the state
// after the change, the state before it (nil on creation), the acting
// account from the request context, and the caller-supplied reason.
func (s *service) historyOf(ctx context.Context, membership domain.Membership, action string, previous *domain.Membership, reason string) domain.MembershipHistory {
	history := domain.MembershipHistory{
		ID:           s.genID.Generate(),
		MembershipID: membership.ID,
		PersonID:     membership.PersonID,
		Action:       action,
		Snapshot:     membershipFields(membership),
		Reason:       strings.TrimSpace(reason),
		CreatedAt:    time.Now().UTC(),
	}
	if previous != nil {
		history.Previous = membershipFields(*previous)
	}
	if actor, ok := auditcontext.ActorFromContext(ctx); ok {
		history.ActorType = actor.Type
		history.ActorID = actor.ID
	}
	return history
}

func membershipFields(membership domain.Membership) datatypes.JSONMap {
	fields := datatypes.JSONMap{
		"unit_id":    membership.UnitID.String(),
		"role_id":    membership.RoleID.String(),
		"is_primary": membership.IsPrimary,
		"status":     membership.Status,
	}
	if membership.EndedAt != nil {
		fields["ended_at"] = membership.EndedAt.UTC().Format(time.RFC3339)
	}
	return fields
}
