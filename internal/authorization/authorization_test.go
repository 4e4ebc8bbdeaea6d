package authorization

import (
	"testing"

	"github.com/stewardhq/steward/internal/authority"
	"github.com/stewardhq/steward/pkg/db"
)

func TestRolePolicies(t *testing.T) {
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	enforcer, err := NewEnforcer(conn)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}

	cases := []struct {
		role string
		obj  string
		act  string
		want bool
	}{
		{authority.SystemRoleAccountant, ObjExpense, ActCreate, true},
		{authority.SystemRoleAccountant, ObjApproval, ActAct, true},
		{authority.SystemRoleAccountant, ObjOrganization, ActManage, false},
		{authority.SystemRoleChair, ObjOrganization, ActManage, true},
		{authority.SystemRoleChair, ObjAuditLog, ActView, true},
		{authority.SystemRoleMinister, ObjExpense, ActView, true},
		{authority.SystemRoleMinister, ObjExpense, ActCreate, false},
		{authority.SystemRoleGeneral, ObjExpense, ActCreate, false},
		{authority.SystemRoleGeneral, ObjExpense, ActView, false},
	}
	for _, tc := range cases {
		got, err := Allowed(enforcer, tc.role, tc.obj, tc.act)
		if err != nil {
			t.Fatalf("enforce %s %s.%s: %v", tc.role, tc.obj, tc.act, err)
		}
		if got != tc.want {
			t.Errorf("Allowed(%s, %s, %s) = %v, want %v", tc.role, tc.obj, tc.act, got, tc.want)
		}
	}
}

func TestSeedingIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	first, err := NewEnforcer(conn)
	if err != nil {
		t.Fatalf("first enforcer: %v", err)
	}
	firstPolicies, err := first.GetPolicy()
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	before := len(firstPolicies)

	second, err := NewEnforcer(conn)
	if err != nil {
		t.Fatalf("second enforcer: %v", err)
	}
	secondPolicies, err := second.GetPolicy()
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	if after := len(secondPolicies); after != before {
		t.Fatalf("policy count changed on reseed: %d -> %d", before, after)
	}
}
