package service

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stewardhq/steward/internal/account/domain"
	"github.com/stewardhq/steward/internal/account/repository"
	"github.com/stewardhq/steward/internal/authority"
	"github.com/stewardhq/steward/internal/credential"
	"github.com/stewardhq/steward/internal/notification"
	"github.com/stewardhq/steward/pkg/db"
	"go.uber.org/zap"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg notification.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
}

func (d *recordingDispatcher) byKind(kind string) []notification.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []notification.Message
	for _, msg := range d.messages {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

func newTestService(t *testing.T) (domain.Service, *recordingDispatcher) {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&domain.UserAccount{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	dispatcher := &recordingDispatcher{}
	return NewService(conn, repository.NewRepository(conn), node, dispatcher, zap.NewNop()), dispatcher
}

func TestReconcileProvisionsFinancialStaff(t *testing.T) {
	svc, dispatcher := newTestService(t)
	ctx := context.Background()

	personID := snowflake.ID(1001)
	result, err := svc.Reconcile(ctx, nil, domain.MembershipEvent{
		Kind:     domain.EventMembershipCreated,
		PersonID: personID,
		Name:     "김회계",
		Email:    "Kim.Accountant@Example.com",
		Phone:    "010-1234-5678",
		RoleName: "회계",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Action != domain.ActionProvisioned {
		t.Fatalf("expected provisioned, got %s", result.Action)
	}
	if result.Account.Email != "kim.accountant@example.com" {
		t.Fatalf("expected lowercased email, got %q", result.Account.Email)
	}
	if result.OneTimePassword == "" {
		t.Fatal("expected a one-time password")
	}
	if !credential.Verify(result.OneTimePassword, result.Account.PasswordHash) {
		t.Fatal("stored hash does not match the issued one-time password")
	}
	got := dispatcher.byKind(notification.KindAccountProvisioned)
	if len(got) != 1 {
		t.Fatalf("expected one provisioning notification, got %d", len(got))
	}
	meta := got[0].Metadata
	if meta["account_id"] != result.Account.ID.String() {
		t.Fatalf("expected the account id in the event, got %v", meta["account_id"])
	}
	if meta["has_phone"] != true {
		t.Fatalf("expected has_phone delivery hint, got %v", meta["has_phone"])
	}
	if meta["role"] != "회계" || meta["system_role"] != authority.SystemRoleAccountant {
		t.Fatalf("expected the granted role in the event, got %v/%v", meta["role"], meta["system_role"])
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	svc, dispatcher := newTestService(t)
	ctx := context.Background()

	event := domain.MembershipEvent{
		Kind:     domain.EventMembershipCreated,
		PersonID: snowflake.ID(1002),
		Name:     "박부장",
		Email:    "park@example.com",
		RoleName: "부장",
	}

	first, err := svc.Reconcile(ctx, nil, event)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	second, err := svc.Reconcile(ctx, nil, event)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	if second.Action != domain.ActionNone {
		t.Fatalf("expected NONE on replay, got %s", second.Action)
	}
	if second.Account.ID != first.Account.ID {
		t.Fatal("replay produced a different account")
	}
	if got := dispatcher.byKind(notification.KindAccountProvisioned); len(got) != 1 {
		t.Fatalf("expected exactly one provisioning notification, got %d", len(got))
	}
}

func TestReconcileSkipsMembersWithoutAuthority(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Reconcile(ctx, nil, domain.MembershipEvent{
		Kind:     domain.EventMembershipCreated,
		PersonID: snowflake.ID(1003),
		Name:     "이소프라노",
		Email:    "lee@example.com",
		RoleName: "소프라노",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Action != domain.ActionNone || result.Account != nil {
		t.Fatalf("expected no account for a choir member, got %+v", result)
	}
}

func TestReconcileSkipsWhenEmailMissing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Reconcile(ctx, nil, domain.MembershipEvent{
		Kind:     domain.EventMembershipCreated,
		PersonID: snowflake.ID(1004),
		Name:     "최위원장",
		RoleName: "위원장",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Action != domain.ActionNone {
		t.Fatalf("expected NONE without an email, got %s", result.Action)
	}
}

func TestReconcileTierChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	personID := snowflake.ID(1005)
	first, err := svc.Reconcile(ctx, nil, domain.MembershipEvent{
		Kind:     domain.EventMembershipCreated,
		PersonID: personID,
		Name:     "정회계",
		Email:    "jung@example.com",
		RoleName: "회계",
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	promoted, err := svc.Reconcile(ctx, nil, domain.MembershipEvent{
		Kind:     domain.EventMembershipUpdated,
		PersonID: personID,
		Name:     "정회계",
		Email:    "jung@example.com",
		RoleName: "재정위원장",
	})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted.Action != domain.ActionUpdated {
		t.Fatalf("expected UPDATED, got %s", promoted.Action)
	}
	if promoted.Account.ID != first.Account.ID {
		t.Fatal("promotion created a new account")
	}
	if promoted.Account.Tier != 3 {
		t.Fatalf("expected tier 3, got %d", promoted.Account.Tier)
	}
}

func TestReconcileDisableAndReactivate(t *testing.T) {
	svc, dispatcher := newTestService(t)
	ctx := context.Background()

	personID := snowflake.ID(1006)
	event := domain.MembershipEvent{
		Kind:     domain.EventMembershipCreated,
		PersonID: personID,
		Name:     "강회계",
		Email:    "kang@example.com",
		RoleName: "회계",
	}
	provisioned, err := svc.Reconcile(ctx, nil, event)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	event.Kind = domain.EventMembershipDeactivated
	disabled, err := svc.Reconcile(ctx, nil, event)
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if disabled.Action != domain.ActionDisabled {
		t.Fatalf("expected DISABLED, got %s", disabled.Action)
	}
	if disabled.Account.DisabledAt == nil {
		t.Fatal("expected disabled_at to be set")
	}
	if got := dispatcher.byKind(notification.KindAccountDisabled); len(got) != 1 {
		t.Fatalf("expected one disable notification, got %d", len(got))
	}

	// Deactivation keeps the row so history stays attributable.
	kept, err := svc.Get(ctx, provisioned.Account.ID.String())
	if err != nil {
		t.Fatalf("get after disable: %v", err)
	}
	if kept.Status != domain.StatusDisabled {
		t.Fatalf("expected DISABLED status, got %s", kept.Status)
	}

	event.Kind = domain.EventMembershipUpdated
	reactivated, err := svc.Reconcile(ctx, nil, event)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if reactivated.Action != domain.ActionReactivated {
		t.Fatalf("expected REACTIVATED, got %s", reactivated.Action)
	}
	if reactivated.Account.ID != provisioned.Account.ID {
		t.Fatal("reactivation created a new account")
	}
}

func TestVerifyPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Reconcile(ctx, nil, domain.MembershipEvent{
		Kind:     domain.EventMembershipCreated,
		PersonID: snowflake.ID(1007),
		Name:     "한회계",
		Email:    "han@example.com",
		RoleName: "회계",
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	account, err := svc.VerifyPassword(ctx, "HAN@example.com", result.OneTimePassword)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if account.ID != result.Account.ID {
		t.Fatal("verified the wrong account")
	}

	if _, err := svc.VerifyPassword(ctx, "han@example.com", "wrong"); err != domain.ErrBadCredentials {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}
