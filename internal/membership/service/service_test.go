package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stewardhq/steward/internal/account/domain"
	accountrepo "github.com/stewardhq/steward/internal/account/repository"
	accountsvc "github.com/stewardhq/steward/internal/account/service"
	auditdomain "github.com/stewardhq/steward/internal/audit/domain"
	"github.com/stewardhq/steward/internal/auditcontext"
	"github.com/stewardhq/steward/internal/membership/domain"
	"github.com/stewardhq/steward/internal/membership/repository"
	"github.com/stewardhq/steward/internal/notification"
	orgdomain "github.com/stewardhq/steward/internal/organization/domain"
	orgrepo "github.com/stewardhq/steward/internal/organization/repository"
	orgsvc "github.com/stewardhq/steward/internal/organization/service"
	"github.com/stewardhq/steward/pkg/db"
	"go.uber.org/zap"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, notification.Message) {}

type fixture struct {
	svc      domain.Service
	accounts accountdomain.Service
	unitID   string
	roles    map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(
		&orgdomain.OrganizationUnit{},
		&orgdomain.OrganizationRole{},
		&orgdomain.RoleBinding{},
		&domain.Person{},
		&domain.Membership{},
		&domain.MembershipHistory{},
		&accountdomain.UserAccount{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	org := orgsvc.NewService(conn, orgrepo.NewRepository(conn), node, zap.NewNop())
	accounts := accountsvc.NewService(conn, accountrepo.NewRepository(conn), node, nopDispatcher{}, zap.NewNop())
	svc := NewService(conn, repository.NewRepository(conn), orgrepo.NewRepository(conn), accounts, node, zap.NewNop())

	ctx := context.Background()
	root, err := org.CreateUnit(ctx, orgdomain.CreateUnitRequest{Name: "Main Campus", Tier: orgdomain.UnitTierChurch})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}

	roles := map[string]string{}
	for name, level := range map[string]int{"회계": 40, "소프라노": 10, "위원장": 90} {
		role, err := org.CreateRole(ctx, orgdomain.CreateRoleRequest{Name: name, Level: level})
		if err != nil {
			t.Fatalf("create role %q: %v", name, err)
		}
		roles[name] = role.ID.String()
	}

	return &fixture{svc: svc, accounts: accounts, unitID: root.ID, roles: roles}
}

func TestRegisterMemberProvisionsAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.RegisterMember(ctx, domain.RegisterMemberRequest{
		Name:      "김회계",
		Email:     "kim@example.com",
		UnitID:    f.unitID,
		RoleID:    f.roles["회계"],
		IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.Account == nil || resp.Account.Action != accountdomain.ActionProvisioned {
		t.Fatalf("expected a provisioned account, got %+v", resp.Account)
	}

	history, err := f.svc.ListHistory(ctx, resp.Person.ID.String())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Action != domain.HistoryCreated {
		t.Fatalf("expected one CREATED history row, got %v", history)
	}
}

func TestRegisterMemberWithoutAuthorityGetsNoAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.RegisterMember(ctx, domain.RegisterMemberRequest{
		Name:      "이소프라노",
		Email:     "lee@example.com",
		UnitID:    f.unitID,
		RoleID:    f.roles["소프라노"],
		IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.Account == nil || resp.Account.Action != accountdomain.ActionNone {
		t.Fatalf("expected no provisioning for a choir member, got %+v", resp.Account)
	}
}

func TestChangeMembershipRoleReconcilesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.RegisterMember(ctx, domain.RegisterMemberRequest{
		Name:      "박회계",
		Email:     "park@example.com",
		UnitID:    f.unitID,
		RoleID:    f.roles["회계"],
		IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	chairRole := f.roles["위원장"]
	changed, err := f.svc.ChangeMembership(ctx, resp.Membership.ID.String(), domain.ChangeMembershipRequest{
		RoleID: &chairRole,
	})
	if err != nil {
		t.Fatalf("change: %v", err)
	}
	if changed.Account == nil || changed.Account.Account.Tier != 3 {
		t.Fatalf("expected tier 3 after promotion, got %+v", changed.Account)
	}

	history, err := f.svc.ListHistory(ctx, resp.Person.ID.String())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[1].Action != domain.HistoryUpdated {
		t.Fatalf("expected CREATED then UPDATED history, got %v", history)
	}
}

func TestChangeMembershipHistoryRecordsTransition(t *testing.T) {
	f := newFixture(t)
	ctx := auditcontext.WithActor(context.Background(), auditcontext.Actor{
		Type: auditdomain.ActorAccount,
		ID:   "9001",
	})

	resp, err := f.svc.RegisterMember(ctx, domain.RegisterMemberRequest{
		Name:      "한회계",
		Email:     "han@example.com",
		UnitID:    f.unitID,
		RoleID:    f.roles["회계"],
		IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	chairRole := f.roles["위원장"]
	if _, err := f.svc.ChangeMembership(ctx, resp.Membership.ID.String(), domain.ChangeMembershipRequest{
		RoleID: &chairRole,
		Reason: "부서 개편",
	}); err != nil {
		t.Fatalf("change: %v", err)
	}

	history, err := f.svc.ListHistory(ctx, resp.Person.ID.String())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected two history rows, got %d", len(history))
	}
	if len(history[0].Previous) != 0 {
		t.Fatalf("expected no previous values on the CREATED row, got %v", history[0].Previous)
	}

	row := history[1]
	if row.Previous["role_id"] != f.roles["회계"] {
		t.Fatalf("expected previous role %s, got %v", f.roles["회계"], row.Previous["role_id"])
	}
	if row.Snapshot["role_id"] != chairRole {
		t.Fatalf("expected new role %s, got %v", chairRole, row.Snapshot["role_id"])
	}
	if row.Reason != "부서 개편" {
		t.Fatalf("expected the change reason, got %q", row.Reason)
	}
	if row.ActorType != auditdomain.ActorAccount || row.ActorID != "9001" {
		t.Fatalf("expected the acting account on the row, got %s/%s", row.ActorType, row.ActorID)
	}
}

func TestDeactivateMembershipDisablesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.RegisterMember(ctx, domain.RegisterMemberRequest{
		Name:      "최회계",
		Email:     "choi@example.com",
		UnitID:    f.unitID,
		RoleID:    f.roles["회계"],
		IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := f.svc.DeactivateMembership(ctx, resp.Membership.ID.String(), "사역 종료"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	account, err := f.accounts.Get(ctx, resp.Account.Account.ID.String())
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Status != accountdomain.StatusDisabled {
		t.Fatalf("expected DISABLED account, got %s", account.Status)
	}

	err = f.svc.DeactivateMembership(ctx, resp.Membership.ID.String(), "")
	if !errors.Is(err, domain.ErrMembershipInactive) {
		t.Fatalf("expected ErrMembershipInactive on replay, got %v", err)
	}

	history, err := f.svc.ListHistory(ctx, resp.Person.ID.String())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[1].Action != domain.HistoryDeactivated {
		t.Fatalf("expected CREATED then DEACTIVATED history, got %v", history)
	}
	if history[1].Reason != "사역 종료" {
		t.Fatalf("expected the deactivation reason on the history row, got %q", history[1].Reason)
	}
	if history[1].Previous["status"] != domain.MembershipActive || history[1].Snapshot["status"] != domain.MembershipInactive {
		t.Fatalf("expected ACTIVE -> INACTIVE transition, got %v -> %v",
			history[1].Previous["status"], history[1].Snapshot["status"])
	}
}

func TestSingleActivePrimary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.RegisterMember(ctx, domain.RegisterMemberRequest{
		Name:      "정회계",
		Email:     "jung@example.com",
		UnitID:    f.unitID,
		RoleID:    f.roles["회계"],
		IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	personID := resp.Person.ID.String()

	// A second active membership cannot also be primary.
	_, err = f.svc.AddMembership(ctx, personID, domain.AddMembershipRequest{
		UnitID:    f.unitID,
		RoleID:    f.roles["소프라노"],
		IsPrimary: true,
	})
	if !errors.Is(err, domain.ErrPrimaryAlreadyActive) {
		t.Fatalf("expected ErrPrimaryAlreadyActive, got %v", err)
	}

	second, err := f.svc.AddMembership(ctx, personID, domain.AddMembershipRequest{
		UnitID: f.unitID,
		RoleID: f.roles["소프라노"],
	})
	if err != nil {
		t.Fatalf("add secondary membership: %v", err)
	}

	// Promoting the secondary while the primary is still active fails too.
	truth := true
	_, err = f.svc.ChangeMembership(ctx, second.Membership.ID.String(), domain.ChangeMembershipRequest{IsPrimary: &truth})
	if !errors.Is(err, domain.ErrPrimaryAlreadyActive) {
		t.Fatalf("expected ErrPrimaryAlreadyActive on promote, got %v", err)
	}

	// Once the primary ends, the secondary may take over.
	if err := f.svc.DeactivateMembership(ctx, resp.Membership.ID.String(), ""); err != nil {
		t.Fatalf("deactivate primary: %v", err)
	}
	if _, err := f.svc.ChangeMembership(ctx, second.Membership.ID.String(), domain.ChangeMembershipRequest{IsPrimary: &truth}); err != nil {
		t.Fatalf("promote after deactivation: %v", err)
	}
}

func TestDeactivationKeepsAccountUnderSurvivingAuthority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.RegisterMember(ctx, domain.RegisterMemberRequest{
		Name:      "서회계",
		Email:     "seo@example.com",
		UnitID:    f.unitID,
		RoleID:    f.roles["회계"],
		IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	second, err := f.svc.AddMembership(ctx, resp.Person.ID.String(), domain.AddMembershipRequest{
		UnitID: f.unitID,
		RoleID: f.roles["위원장"],
	})
	if err != nil {
		t.Fatalf("add membership: %v", err)
	}
	if second.Account == nil || second.Account.Account.Tier != 3 {
		t.Fatalf("expected tier 3 under the chair role, got %+v", second.Account)
	}

	// Ending the accountant membership leaves the chair membership, so
	// the account must stay active.
	if err := f.svc.DeactivateMembership(ctx, resp.Membership.ID.String(), ""); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	account, err := f.accounts.Get(ctx, resp.Account.Account.ID.String())
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Status != accountdomain.StatusActive {
		t.Fatalf("expected ACTIVE account, got %s", account.Status)
	}

	// Ending the chair membership removes the last authority.
	if err := f.svc.DeactivateMembership(ctx, second.Membership.ID.String(), ""); err != nil {
		t.Fatalf("deactivate chair: %v", err)
	}
	account, err = f.accounts.Get(ctx, resp.Account.Account.ID.String())
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Status != accountdomain.StatusDisabled {
		t.Fatalf("expected DISABLED account, got %s", account.Status)
	}
}

func TestActiveMembersOfUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.RegisterMember(ctx, domain.RegisterMemberRequest{
		Name:      "김위원장",
		Email:     "chair@example.com",
		UnitID:    f.unitID,
		RoleID:    f.roles["위원장"],
		IsPrimary: true,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	unitID, _ := snowflake.ParseString(f.unitID)
	views, err := f.svc.ActiveMembersOfUnit(ctx, unitID)
	if err != nil {
		t.Fatalf("active members: %v", err)
	}
	if len(views) != 1 || views[0].RoleName != "위원장" || views[0].Email != "chair@example.com" {
		t.Fatalf("unexpected views: %+v", views)
	}
}
