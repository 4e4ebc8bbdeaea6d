package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stewardhq/steward/internal/account/domain"
	accountrepo "github.com/stewardhq/steward/internal/account/repository"
	accountsvc "github.com/stewardhq/steward/internal/account/service"
	"github.com/stewardhq/steward/internal/approval/domain"
	"github.com/stewardhq/steward/internal/approval/repository"
	auditdomain "github.com/stewardhq/steward/internal/audit/domain"
	auditrepo "github.com/stewardhq/steward/internal/audit/repository"
	auditsvc "github.com/stewardhq/steward/internal/audit/service"
	"github.com/stewardhq/steward/internal/clock"
	"github.com/stewardhq/steward/internal/config"
	expensedomain "github.com/stewardhq/steward/internal/expense/domain"
	expenserepo "github.com/stewardhq/steward/internal/expense/repository"
	expensesvc "github.com/stewardhq/steward/internal/expense/service"
	membershipdomain "github.com/stewardhq/steward/internal/membership/domain"
	membershiprepo "github.com/stewardhq/steward/internal/membership/repository"
	membershipsvc "github.com/stewardhq/steward/internal/membership/service"
	"github.com/stewardhq/steward/internal/notification"
	orgdomain "github.com/stewardhq/steward/internal/organization/domain"
	orgrepo "github.com/stewardhq/steward/internal/organization/repository"
	orgsvc "github.com/stewardhq/steward/internal/organization/service"
	"github.com/stewardhq/steward/pkg/db"
	"github.com/stewardhq/steward/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, notification.Message) {}

type fixture struct {
	svc       domain.Service
	repo      domain.Repository
	expenses  expensedomain.Service
	audit     auditdomain.Service
	conn      *gorm.DB
	clock     *clock.FakeClock
	rootID    string
	deptID    string
	requester snowflake.ID
	senior    snowflake.ID
	chair     snowflake.ID
}

// newFixture builds a church with a finance department and three members:
// an accountant (회계) in the department, a department head (부장) in the
// department, and a committee chair (위원장) at the root.
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
		&membershipdomain.Person{},
		&membershipdomain.Membership{},
		&membershipdomain.MembershipHistory{},
		&accountdomain.UserAccount{},
		&expensedomain.ExpenseReport{},
		&domain.ApprovalFlow{},
		&domain.ApprovalStep{},
		&auditdomain.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	log := zap.NewNop()
	org := orgsvc.NewService(conn, orgrepo.NewRepository(conn), node, log)
	accounts := accountsvc.NewService(conn, accountrepo.NewRepository(conn), node, nopDispatcher{}, log)
	members := membershipsvc.NewService(conn, membershiprepo.NewRepository(conn), orgrepo.NewRepository(conn), accounts, node, log)
	expenses := expensesvc.NewService(conn, expenserepo.NewRepository(conn), accountrepo.NewRepository(conn), node, log)
	audit := auditsvc.NewService(auditrepo.NewRepository(conn), node, log)

	policy := config.NewStaticApprovalPolicyHolder(config.ApprovalPolicy{
		FinancialReviewMinAmount: 0,
		SeniorApprovalMinAmount:  500_000,
	})
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	repo := repository.NewRepository(conn)
	svc := NewService(conn, repo, expenserepo.NewRepository(conn), accountrepo.NewRepository(conn),
		org, members, audit, policy, nopDispatcher{}, fake, node, log)

	ctx := context.Background()
	root, err := org.CreateUnit(ctx, orgdomain.CreateUnitRequest{Name: "본교회", Tier: orgdomain.UnitTierChurch})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	dept, err := org.CreateUnit(ctx, orgdomain.CreateUnitRequest{Name: "재정부", ParentID: root.ID, Tier: orgdomain.UnitTierDepartment})
	if err != nil {
		t.Fatalf("create dept: %v", err)
	}

	roles := map[string]string{}
	for name, level := range map[string]int{"회계": 40, "부장": 70, "위원장": 90} {
		role, err := org.CreateRole(ctx, orgdomain.CreateRoleRequest{Name: name, Level: level, IsLeadership: level >= 70})
		if err != nil {
			t.Fatalf("create role %q: %v", name, err)
		}
		roles[name] = role.ID.String()
	}

	register := func(name, email, unitID, roleID string) snowflake.ID {
		resp, err := members.RegisterMember(ctx, membershipdomain.RegisterMemberRequest{
			Name:      name,
			Email:     email,
			UnitID:    unitID,
			RoleID:    roleID,
			IsPrimary: true,
		})
		if err != nil {
			t.Fatalf("register %q: %v", name, err)
		}
		if resp.Account == nil || resp.Account.Account == nil {
			t.Fatalf("expected an account for %q", name)
		}
		return resp.Account.Account.ID
	}

	f := &fixture{
		svc:      svc,
		repo:     repo,
		expenses: expenses,
		audit:    audit,
		conn:     conn,
		clock:    fake,
		rootID:   root.ID,
		deptID:   dept.ID,
	}
	f.requester = register("김회계", "kim@example.com", dept.ID, roles["회계"])
	f.senior = register("박부장", "park@example.com", dept.ID, roles["부장"])
	f.chair = register("최위원장", "choi@example.com", root.ID, roles["위원장"])
	return f
}

func (f *fixture) createReport(t *testing.T, amount int64) *expensedomain.ExpenseReport {
	t.Helper()
	deptID, _ := snowflake.ParseString(f.deptID)
	report, err := f.expenses.Create(context.Background(), expensedomain.CreateRequest{
		RequesterAccountID: f.requester,
		UnitID:             deptID,
		Amount:             amount,
		Category:           "행사비",
		Title:              "수련회 경비",
	})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	return report
}

func TestSubmitBuildsOrderedTierSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report := f.createReport(t, 5_000_000)
	resp, err := f.svc.Submit(ctx, report.ID.String())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if resp.Flow.TotalSteps != 3 || resp.Flow.CurrentStepIndex != 1 {
		t.Fatalf("expected 3-step flow at index 1, got %+v", resp.Flow)
	}
	wantTiers := []int{1, 2, 3}
	for i, step := range resp.Steps {
		if step.RequiredTier != wantTiers[i] {
			t.Fatalf("step %d: tier %d, want %d", i+1, step.RequiredTier, wantTiers[i])
		}
	}
	// The chair is resolved at the root unit through the ancestor walk.
	if resp.Steps[2].ApproverAccountID != f.chair {
		t.Fatal("expected the committee chair on the final step")
	}
	if resp.Steps[2].ApproverName != "최위원장" {
		t.Fatalf("expected approver name, got %q", resp.Steps[2].ApproverName)
	}

	got, err := f.expenses.Get(ctx, report.ID.String())
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if got.WorkflowStatus != expensedomain.WorkflowInProgress {
		t.Fatalf("expected IN_PROGRESS report, got %s", got.WorkflowStatus)
	}
}

func TestSubmitSmallAmountSkipsSeniorStep(t *testing.T) {
	f := newFixture(t)

	report := f.createReport(t, 100_000)
	resp, err := f.svc.Submit(context.Background(), report.ID.String())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Flow.TotalSteps != 2 {
		t.Fatalf("expected 2 steps under the senior threshold, got %d", resp.Flow.TotalSteps)
	}
	if resp.Steps[0].RequiredTier != 1 || resp.Steps[1].RequiredTier != 3 {
		t.Fatalf("unexpected tiers: %+v", resp.Steps)
	}
}

func TestFullApprovalSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report := f.createReport(t, 5_000_000)
	resp, err := f.svc.Submit(ctx, report.ID.String())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	flowID := resp.Flow.ID.String()

	if _, err := f.svc.ProcessStep(ctx, flowID, 1, domain.ProcessRequest{Action: domain.ActionApprove, ActorAccountID: f.requester}); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	mid, err := f.svc.GetFlow(ctx, flowID)
	if err != nil {
		t.Fatalf("get flow: %v", err)
	}
	if mid.Flow.CurrentStepIndex != 2 || mid.Flow.Status != domain.FlowInProgress {
		t.Fatalf("after step 1: %+v", mid.Flow)
	}

	if _, err := f.svc.ProcessStep(ctx, flowID, 2, domain.ProcessRequest{Action: domain.ActionApprove, ActorAccountID: f.senior}); err != nil {
		t.Fatalf("step 2: %v", err)
	}
	// With only the final approver left, the external projection reads
	// department-approved.
	got, err := f.expenses.Get(ctx, report.ID.String())
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if got.BusinessStatus != expensedomain.BusinessDepartmentApproved {
		t.Fatalf("expected DEPARTMENT_APPROVED, got %s", got.BusinessStatus)
	}

	if _, err := f.svc.ProcessStep(ctx, flowID, 3, domain.ProcessRequest{Action: domain.ActionApprove, ActorAccountID: f.chair}); err != nil {
		t.Fatalf("step 3: %v", err)
	}

	final, err := f.svc.GetFlow(ctx, flowID)
	if err != nil {
		t.Fatalf("get flow: %v", err)
	}
	if final.Flow.Status != domain.FlowApproved {
		t.Fatalf("expected APPROVED flow, got %s", final.Flow.Status)
	}
	got, _ = f.expenses.Get(ctx, report.ID.String())
	if got.WorkflowStatus != expensedomain.WorkflowApproved || got.BusinessStatus != expensedomain.BusinessApproved {
		t.Fatalf("expected APPROVED report, got %s/%s", got.WorkflowStatus, got.BusinessStatus)
	}

	// Terminal flows accept no further decisions.
	_, err = f.svc.ProcessStep(ctx, flowID, 3, domain.ProcessRequest{Action: domain.ActionApprove, ActorAccountID: f.chair})
	if !errors.Is(err, domain.ErrFlowTerminal) {
		t.Fatalf("expected ErrFlowTerminal, got %v", err)
	}
}

func TestRejectionShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report := f.createReport(t, 5_000_000)
	resp, err := f.svc.Submit(ctx, report.ID.String())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	flowID := resp.Flow.ID.String()

	if _, err := f.svc.ProcessStep(ctx, flowID, 1, domain.ProcessRequest{Action: domain.ActionApprove, ActorAccountID: f.requester}); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if _, err := f.svc.ProcessStep(ctx, flowID, 2, domain.ProcessRequest{Action: domain.ActionReject, Comments: "예산 초과", ActorAccountID: f.senior}); err != nil {
		t.Fatalf("step 2 reject: %v", err)
	}

	got, err := f.svc.GetFlow(ctx, flowID)
	if err != nil {
		t.Fatalf("get flow: %v", err)
	}
	if got.Flow.Status != domain.FlowRejected {
		t.Fatalf("expected REJECTED flow, got %s", got.Flow.Status)
	}
	// The untouched final step stays PENDING forever.
	if got.Steps[2].Status != domain.StepPending {
		t.Fatalf("expected step 3 PENDING, got %s", got.Steps[2].Status)
	}

	reportAfter, _ := f.expenses.Get(ctx, report.ID.String())
	if reportAfter.WorkflowStatus != expensedomain.WorkflowRejected {
		t.Fatalf("expected REJECTED report, got %s", reportAfter.WorkflowStatus)
	}
	if reportAfter.RejectionReason != "예산 초과" {
		t.Fatalf("expected rejection reason recorded, got %q", reportAfter.RejectionReason)
	}

	_, err = f.svc.ProcessStep(ctx, flowID, 3, domain.ProcessRequest{Action: domain.ActionApprove, ActorAccountID: f.chair})
	if !errors.Is(err, domain.ErrFlowTerminal) {
		t.Fatalf("expected ErrFlowTerminal, got %v", err)
	}
}

func TestOutOfOrderStepIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report := f.createReport(t, 5_000_000)
	resp, err := f.svc.Submit(ctx, report.ID.String())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = f.svc.ProcessStep(ctx, resp.Flow.ID.String(), 2, domain.ProcessRequest{Action: domain.ActionApprove, ActorAccountID: f.senior})
	if !errors.Is(err, domain.ErrStaleStep) {
		t.Fatalf("expected ErrStaleStep, got %v", err)
	}
}

func TestRejectRequiresComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report := f.createReport(t, 5_000_000)
	resp, err := f.svc.Submit(ctx, report.ID.String())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = f.svc.ProcessStep(ctx, resp.Flow.ID.String(), 1, domain.ProcessRequest{Action: domain.ActionReject, Comments: "  ", ActorAccountID: f.requester})
	if !errors.Is(err, domain.ErrMissingRejectionReason) {
		t.Fatalf("expected ErrMissingRejectionReason, got %v", err)
	}
}

func TestWrongApproverRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report := f.createReport(t, 5_000_000)
	resp, err := f.svc.Submit(ctx, report.ID.String())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = f.svc.ProcessStep(ctx, resp.Flow.ID.String(), 1, domain.ProcessRequest{Action: domain.ActionApprove, ActorAccountID: f.chair})
	if !errors.Is(err, domain.ErrWrongApprover) {
		t.Fatalf("expected ErrWrongApprover, got %v", err)
	}
}

func TestSubmitTwiceRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report := f.createReport(t, 5_000_000)
	if _, err := f.svc.Submit(ctx, report.ID.String()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err := f.svc.Submit(ctx, report.ID.String())
	if !errors.Is(err, domain.ErrReportNotSubmittable) {
		t.Fatalf("expected ErrReportNotSubmittable, got %v", err)
	}
}

func TestUnresolvableApproverLeavesDraft(t *testing.T) {
	// A fresh organization with only an accountant: no senior approver
	// or chair exists anywhere in the chain.
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(
		&orgdomain.OrganizationUnit{},
		&orgdomain.OrganizationRole{},
		&orgdomain.RoleBinding{},
		&membershipdomain.Person{},
		&membershipdomain.Membership{},
		&membershipdomain.MembershipHistory{},
		&accountdomain.UserAccount{},
		&expensedomain.ExpenseReport{},
		&domain.ApprovalFlow{},
		&domain.ApprovalStep{},
		&auditdomain.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, _ := snowflake.NewNode(2)
	log := zap.NewNop()
	org := orgsvc.NewService(conn, orgrepo.NewRepository(conn), node, log)
	accounts := accountsvc.NewService(conn, accountrepo.NewRepository(conn), node, nopDispatcher{}, log)
	members := membershipsvc.NewService(conn, membershiprepo.NewRepository(conn), orgrepo.NewRepository(conn), accounts, node, log)
	expenses := expensesvc.NewService(conn, expenserepo.NewRepository(conn), accountrepo.NewRepository(conn), node, log)
	audit := auditsvc.NewService(auditrepo.NewRepository(conn), node, log)
	policy := config.NewStaticApprovalPolicyHolder(config.DefaultApprovalPolicy())
	svc := NewService(conn, repository.NewRepository(conn), expenserepo.NewRepository(conn), accountrepo.NewRepository(conn),
		org, members, audit, policy, nopDispatcher{}, clock.NewSystem(), node, log)

	ctx := context.Background()
	root, err := org.CreateUnit(ctx, orgdomain.CreateUnitRequest{Name: "개척교회", Tier: orgdomain.UnitTierChurch})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	role, err := org.CreateRole(ctx, orgdomain.CreateRoleRequest{Name: "회계", Level: 40})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	member, err := members.RegisterMember(ctx, membershipdomain.RegisterMemberRequest{
		Name:      "홍회계",
		Email:     "hong@example.com",
		UnitID:    root.ID,
		RoleID:    role.ID.String(),
		IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	rootID, _ := snowflake.ParseString(root.ID)
	report, err := expenses.Create(ctx, expensedomain.CreateRequest{
		RequesterAccountID: member.Account.Account.ID,
		UnitID:             rootID,
		Amount:             2_000_000,
		Title:              "음향 장비",
	})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}

	_, err = svc.Submit(ctx, report.ID.String())
	if !errors.Is(err, domain.ErrUnresolvableApprover) {
		t.Fatalf("expected ErrUnresolvableApprover, got %v", err)
	}

	got, err := expenses.Get(ctx, report.ID.String())
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if got.WorkflowStatus != expensedomain.WorkflowDraft {
		t.Fatalf("report must stay DRAFT, got %s", got.WorkflowStatus)
	}
}

func TestTransitionFlowCompareAndSwap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report := f.createReport(t, 5_000_000)
	resp, err := f.svc.Submit(ctx, report.ID.String())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Two actors race on step 1: both read version 1; only one swap wins.
	ok, err := f.repo.TransitionFlow(ctx, resp.Flow.ID, 1, 1, 2, domain.FlowInProgress)
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	ok, err = f.repo.TransitionFlow(ctx, resp.Flow.ID, 1, 1, 2, domain.FlowInProgress)
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if ok {
		t.Fatal("expected the second compare-and-swap to lose")
	}
}

func TestEveryTransitionIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report := f.createReport(t, 5_000_000)
	resp, err := f.svc.Submit(ctx, report.ID.String())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	flowID := resp.Flow.ID.String()

	if _, err := f.svc.ProcessStep(ctx, flowID, 1, domain.ProcessRequest{Action: domain.ActionApprove, ActorAccountID: f.requester}); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if _, err := f.svc.ProcessStep(ctx, flowID, 2, domain.ProcessRequest{Action: domain.ActionReject, Comments: "증빙 누락", ActorAccountID: f.senior}); err != nil {
		t.Fatalf("step 2: %v", err)
	}

	logs, _, err := f.audit.List(ctx, auditdomain.Filter{TargetID: flowID}, pagination.Pagination{PageSize: 50})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 audit rows (submit, approve, reject), got %d", len(logs))
	}
}
