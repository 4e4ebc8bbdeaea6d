package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/stewardhq/steward/internal/organization/domain"
	dbpkg "github.com/stewardhq/steward/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db    *gorm.DB
	repo  domain.Repository
	genID *snowflake.Node
	log   *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, genID *snowflake.Node, log *zap.Logger) domain.Service {
	return &service{
		db:    db,
		repo:  repo,
		genID: genID,
		log:   log.Named("organization.service"),
	}
}

func (s *service) CreateUnit(ctx context.Context, req domain.CreateUnitRequest) (*domain.UnitResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	tier := strings.ToUpper(strings.TrimSpace(req.Tier))
	rank := domain.TierRank(tier)
	if rank < 0 {
		return nil, domain.ErrInvalidTier
	}

	var parent *domain.OrganizationUnit
	if strings.TrimSpace(req.ParentID) != "" {
		parentID, err := snowflake.ParseString(strings.TrimSpace(req.ParentID))
		if err != nil {
			return nil, domain.ErrInvalidUnit
		}
		parent, err = s.repo.GetUnit(ctx, parentID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, domain.ErrUnitNotFound
			}
			return nil, err
		}
		if rank < domain.TierRank(parent.Tier) {
			return nil, domain.ErrTierOrderViolation
		}
		if _, err := s.ancestorChainOf(ctx, parent); err != nil {
			return nil, err
		}
	} else {
		root, err := s.repo.GetRootUnit(ctx)
		if err != nil {
			return nil, err
		}
		if root != nil {
			// Exactly one root per tenant.
			return nil, domain.ErrInvalidUnit
		}
	}

	now := time.Now().UTC()
	unitID := s.genID.Generate()
	code := slug.Make(name)
	if code == "" {
		code = strings.ToLower(unitID.String())
	}

	unit := domain.OrganizationUnit{
		ID:        unitID,
		Name:      name,
		Code:      code,
		Tier:      tier,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parent != nil {
		parentID := parent.ID
		unit.ParentID = &parentID
	}

	if err := s.repo.CreateUnit(ctx, unit); err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateUnitCode
		}
		return nil, err
	}

	return unitResponse(unit), nil
}

func (s *service) MoveUnit(ctx context.Context, unitID string, newParentID string) error {
	id, err := snowflake.ParseString(strings.TrimSpace(unitID))
	if err != nil {
		return domain.ErrInvalidUnit
	}
	parentID, err := snowflake.ParseString(strings.TrimSpace(newParentID))
	if err != nil {
		return domain.ErrInvalidUnit
	}
	if id == parentID {
		return domain.ErrHierarchyCycle
	}

	unit, err := s.repo.GetUnit(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ErrUnitNotFound
		}
		return err
	}
	parent, err := s.repo.GetUnit(ctx, parentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ErrUnitNotFound
		}
		return err
	}

	if domain.TierRank(unit.Tier) < domain.TierRank(parent.Tier) {
		return domain.ErrTierOrderViolation
	}

	// The new parent chain must not contain the unit itself.
	chain, err := s.ancestorChainOf(ctx, parent)
	if err != nil {
		return err
	}
	for _, ancestor := range chain {
		if ancestor.ID == id {
			return domain.ErrHierarchyCycle
		}
	}

	return s.repo.UpdateUnitParent(ctx, id, &parentID)
}

func (s *service) ListUnits(ctx context.Context) ([]domain.UnitResponse, error) {
	units, err := s.repo.ListUnits(ctx)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.UnitResponse, 0, len(units))
	for _, unit := range units {
		resp = append(resp, *unitResponse(unit))
	}
	return resp, nil
}

// AncestorChain returns the unit itself first, then each ancestor up to the
// root. The walk is bounded by MaxDepth.
func (s *service) AncestorChain(ctx context.Context, unitID snowflake.ID) ([]domain.OrganizationUnit, error) {
	unit, err := s.repo.GetUnit(ctx, unitID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrUnitNotFound
		}
		return nil, err
	}
	return s.ancestorChainOf(ctx, unit)
}

func (s *service) ancestorChainOf(ctx context.Context, unit *domain.OrganizationUnit) ([]domain.OrganizationUnit, error) {
	chain := []domain.OrganizationUnit{*unit}
	current := unit
	for depth := 0; current.ParentID != nil; depth++ {
		if depth >= domain.MaxDepth {
			return nil, domain.ErrMaxDepthExceeded
		}
		parent, err := s.repo.GetUnit(ctx, *current.ParentID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, domain.ErrUnitNotFound
			}
			return nil, err
		}
		for _, seen := range chain {
			if seen.ID == parent.ID {
				return nil, domain.ErrHierarchyCycle
			}
		}
		chain = append(chain, *parent)
		current = parent
	}
	return chain, nil
}

func (s *service) CreateRole(ctx context.Context, req domain.CreateRoleRequest) (*domain.OrganizationRole, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	role := domain.OrganizationRole{
		ID:           s.genID.Generate(),
		Name:         name,
		Level:        req.Level,
		IsLeadership: req.IsLeadership,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateRole(ctx, role); err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateRoleName
		}
		return nil, err
	}
	return &role, nil
}

// UpdateRole edits the mutable fields of a role. Already-resolved approval
// steps keep the tier they snapshotted at creation time.
func (s *service) UpdateRole(ctx context.Context, roleID string, req domain.UpdateRoleRequest) (*domain.OrganizationRole, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(roleID))
	if err != nil {
		return nil, domain.ErrInvalidRole
	}

	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrRoleNotFound
		}
		return nil, err
	}

	if req.Level != nil {
		role.Level = *req.Level
	}
	if req.IsLeadership != nil {
		role.IsLeadership = *req.IsLeadership
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}
	role.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateRole(ctx, *role); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *service) ListRoles(ctx context.Context) ([]domain.OrganizationRole, error) {
	return s.repo.ListRoles(ctx)
}

// GetEffectiveRoles returns the union of roles bound at the unit and at each
// ancestor. The binding nearest to the unit decides the source tag; a role
// bound both directly and at an ancestor reports as direct.
func (s *service) GetEffectiveRoles(ctx context.Context, unitID string) ([]domain.EffectiveRole, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(unitID))
	if err != nil {
		return nil, domain.ErrInvalidUnit
	}

	chain, err := s.AncestorChain(ctx, id)
	if err != nil {
		return nil, err
	}

	seen := map[snowflake.ID]struct{}{}
	effective := make([]domain.EffectiveRole, 0)
	for _, unit := range chain {
		bindings, err := s.repo.ListBindings(ctx, unit.ID)
		if err != nil {
			return nil, err
		}
		for _, binding := range bindings {
			if _, ok := seen[binding.RoleID]; ok {
				continue
			}
			seen[binding.RoleID] = struct{}{}

			role, err := s.repo.GetRole(ctx, binding.RoleID)
			if err != nil {
				return nil, err
			}
			source := domain.BindingSourceInherited
			if unit.ID == id {
				source = domain.BindingSourceDirect
			}
			effective = append(effective, domain.EffectiveRole{
				Role:         *role,
				Source:       source,
				SourceUnitID: unit.ID,
			})
		}
	}
	return effective, nil
}

func (s *service) AssignRoles(ctx context.Context, unitID string, roleIDs []string, opts domain.AssignOptions) error {
	id, err := snowflake.ParseString(strings.TrimSpace(unitID))
	if err != nil {
		return domain.ErrInvalidUnit
	}
	if _, err := s.repo.GetUnit(ctx, id); err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ErrUnitNotFound
		}
		return err
	}

	desired := make([]snowflake.ID, 0, len(roleIDs))
	for _, raw := range roleIDs {
		roleID, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil {
			return domain.ErrInvalidRole
		}
		if _, err := s.repo.GetRole(ctx, roleID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrRoleNotFound
			}
			return err
		}
		desired = append(desired, roleID)
	}

	var targets []snowflake.ID
	if opts.PropagateToDescendants {
		targets, err = s.descendantIDs(ctx, id)
		if err != nil {
			return err
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if opts.ReplaceExisting {
			if err := repo.DeleteBindings(ctx, id); err != nil {
				return err
			}
		}
		if err := s.insertMissing(ctx, repo, id, desired, opts.ReplaceExisting); err != nil {
			return err
		}

		for _, target := range targets {
			if err := s.insertMissing(ctx, repo, target, desired, false); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) UnassignRole(ctx context.Context, unitID string, roleID string) error {
	uid, err := snowflake.ParseString(strings.TrimSpace(unitID))
	if err != nil {
		return domain.ErrInvalidUnit
	}
	rid, err := snowflake.ParseString(strings.TrimSpace(roleID))
	if err != nil {
		return domain.ErrInvalidRole
	}

	removed, err := s.repo.DeleteBinding(ctx, uid, rid)
	if err != nil {
		return err
	}
	if removed {
		return nil
	}

	// No direct binding. Tell the caller whether the role is inherited here
	// (removal must target the ancestor) or simply absent.
	effective, err := s.GetEffectiveRoles(ctx, uid.String())
	if err != nil {
		return err
	}
	for _, role := range effective {
		if role.Role.ID == rid && role.Source == domain.BindingSourceInherited {
			return domain.ErrBindingInherited
		}
	}
	return domain.ErrBindingNotFound
}

func (s *service) insertMissing(ctx context.Context, repo domain.Repository, unitID snowflake.ID, roleIDs []snowflake.ID, replaced bool) error {
	existing := map[snowflake.ID]struct{}{}
	if !replaced {
		bindings, err := repo.ListBindings(ctx, unitID)
		if err != nil {
			return err
		}
		for _, binding := range bindings {
			existing[binding.RoleID] = struct{}{}
		}
	}

	now := time.Now().UTC()
	for _, roleID := range roleIDs {
		if _, ok := existing[roleID]; ok {
			continue
		}
		binding := domain.RoleBinding{
			ID:        s.genID.Generate(),
			UnitID:    unitID,
			RoleID:    roleID,
			CreatedAt: now,
		}
		if err := repo.InsertBinding(ctx, binding); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) descendantIDs(ctx context.Context, unitID snowflake.ID) ([]snowflake.ID, error) {
	var out []snowflake.ID
	visited := map[snowflake.ID]struct{}{unitID: {}}
	frontier := []snowflake.ID{unitID}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= domain.MaxDepth {
			return nil, domain.ErrMaxDepthExceeded
		}
		var next []snowflake.ID
		for _, parent := range frontier {
			children, err := s.repo.ListChildren(ctx, parent)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				if _, ok := visited[child.ID]; ok {
					continue
				}
				visited[child.ID] = struct{}{}
				out = append(out, child.ID)
				next = append(next, child.ID)
			}
		}
		frontier = next
	}
	return out, nil
}

func unitResponse(unit domain.OrganizationUnit) *domain.UnitResponse {
	resp := &domain.UnitResponse{
		ID:       unit.ID.String(),
		Name:     unit.Name,
		Code:     unit.Code,
		Tier:     unit.Tier,
		IsActive: unit.IsActive,
	}
	if unit.ParentID != nil {
		resp.ParentID = unit.ParentID.String()
	}
	return resp
}
