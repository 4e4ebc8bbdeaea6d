package authority

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveFinalApprover(t *testing.T) {
	profile := Resolve("교구장")
	if profile.Tier != TierFinalApprover {
		t.Fatalf("expected tier %d, got %d", TierFinalApprover, profile.Tier)
	}
	if profile.SystemRole != SystemRoleChair {
		t.Fatalf("expected system role %s, got %s", SystemRoleChair, profile.SystemRole)
	}
	if !profile.NeedsAccount {
		t.Fatal("expected final approver to need an account")
	}
	if !profile.CanOriginateRequest {
		t.Fatal("expected final approver to originate requests")
	}
}

func TestResolveNoAuthority(t *testing.T) {
	profile := Resolve("소프라노")
	if profile.Tier != TierNone {
		t.Fatalf("expected tier %d, got %d", TierNone, profile.Tier)
	}
	if profile.SystemRole != SystemRoleGeneral {
		t.Fatalf("expected system role %s, got %s", SystemRoleGeneral, profile.SystemRole)
	}
	if profile.NeedsAccount {
		t.Fatal("expected no account requirement")
	}
	if profile.CanOriginateRequest {
		t.Fatal("expected no request origination")
	}
}

func TestResolveIsTotal(t *testing.T) {
	inputs := []string{"", "   ", "\t\n", "unknown role", "Деякий", "🎺", "  부장  "}
	for _, input := range inputs {
		profile := Resolve(input)
		if profile.SystemRole == "" {
			t.Fatalf("expected a defined system role for %q", input)
		}
	}
}

func TestResolveTrimsWhitespace(t *testing.T) {
	if got := Resolve("  회계 ").Tier; got != TierFinancialStaff {
		t.Fatalf("expected tier %d after trimming, got %d", TierFinancialStaff, got)
	}
}

func TestResolvePriorityOrder(t *testing.T) {
	cases := []struct {
		role string
		tier int
		sys  string
	}{
		{"위원장", TierFinalApprover, SystemRoleChair},
		{"재정위원장", TierFinalApprover, SystemRoleChair},
		{"당회장", TierFinalApprover, SystemRoleChair},
		{"부장", TierSeniorApprover, SystemRoleDepartmentHead},
		{"부서장", TierSeniorApprover, SystemRoleDepartmentHead},
		{"회계", TierFinancialStaff, SystemRoleAccountant},
		{"부서회계", TierFinancialStaff, SystemRoleAccountant},
		{"목사", TierNone, SystemRoleMinister},
		{"교육목사", TierNone, SystemRoleMinister},
		{"전도사", TierNone, SystemRoleMinister},
		{"장로", TierNone, SystemRoleElder},
		{"권사", TierNone, SystemRoleElder},
		{"성가대원", TierNone, SystemRoleGeneral},
	}
	for _, tc := range cases {
		profile := Resolve(tc.role)
		require.Equal(t, tc.tier, profile.Tier, tc.role)
		require.Equal(t, tc.sys, profile.SystemRole, tc.role)
	}
}

func TestAccountRequirementMatchesTier(t *testing.T) {
	for _, tc := range []struct {
		role  string
		needs bool
	}{
		{"교구장", true},
		{"부장", true},
		{"회계", true},
		{"목사", false},
		{"장로", false},
		{"소프라노", false},
	} {
		profile := Resolve(tc.role)
		require.Equal(t, tc.needs, profile.NeedsAccount, tc.role)
		require.Equal(t, tc.needs, profile.CanOriginateRequest, tc.role)
	}
}
