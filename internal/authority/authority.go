// Package authority maps organizational role titles to system authority.
//
// Resolve is a total function: every input, including unknown or empty
// titles, yields a defined profile. Classification runs through the tier
// tables in a fixed priority order so a title can match at most one tier.
package authority

import "strings"

// Tier ranks approval power. Higher tiers sit later in an approval flow.
const (
	TierNone           = 0
	TierFinancialStaff = 1
	TierSeniorApprover = 2
	TierFinalApprover  = 3
)

// System roles assigned to provisioned accounts.
const (
	SystemRoleChair          = "COMMITTEE_CHAIR"
	SystemRoleDepartmentHead = "DEPARTMENT_HEAD"
	SystemRoleAccountant     = "DEPARTMENT_ACCOUNTANT"
	SystemRoleMinister       = "MINISTER"
	SystemRoleElder          = "ELDER"
	SystemRoleGeneral        = "GENERAL_USER"
)

// Profile is the resolved authority of a role title.
type Profile struct {
	RoleName            string `json:"role_name"`
	SystemRole          string `json:"system_role"`
	Tier                int    `json:"tier"`
	NeedsAccount        bool   `json:"needs_account"`
	CanOriginateRequest bool   `json:"can_originate_request"`
}

var finalApproverTitles = map[string]struct{}{
	"위원장":   {},
	"재정위원장": {},
	"당회장":   {},
	"교구장":   {},
}

var seniorApproverTitles = map[string]struct{}{
	"부장":  {},
	"부서장": {},
	"국장":  {},
	"단장":  {},
	"회장":  {},
}

var financialStaffTitles = map[string]struct{}{
	"회계":   {},
	"부서회계": {},
	"재정간사": {},
}

// ministryTokens classify pastoral titles by substring, so compound titles
// such as "교육목사" still resolve.
var ministryTokens = []string{"목사", "전도사", "교역자", "강도사"}

var elderTitles = map[string]struct{}{
	"장로":   {},
	"권사":   {},
	"안수집사": {},
}

// Resolve classifies a role title into an authority profile. It never fails;
// unknown titles resolve to the general-user profile.
func Resolve(roleName string) Profile {
	name := Normalize(roleName)

	profile := Profile{RoleName: name}

	switch {
	case contains(finalApproverTitles, name):
		profile.SystemRole = SystemRoleChair
		profile.Tier = TierFinalApprover
	case contains(seniorApproverTitles, name):
		profile.SystemRole = SystemRoleDepartmentHead
		profile.Tier = TierSeniorApprover
	case contains(financialStaffTitles, name):
		profile.SystemRole = SystemRoleAccountant
		profile.Tier = TierFinancialStaff
	case matchesMinistryToken(name):
		profile.SystemRole = SystemRoleMinister
		profile.Tier = TierNone
	case contains(elderTitles, name):
		profile.SystemRole = SystemRoleElder
		profile.Tier = TierNone
	default:
		profile.SystemRole = SystemRoleGeneral
		profile.Tier = TierNone
	}

	profile.NeedsAccount = profile.Tier >= TierFinancialStaff
	profile.CanOriginateRequest = profile.Tier >= TierFinancialStaff

	return profile
}

// Normalize trims surrounding whitespace and lowers ASCII letters. Hangul
// titles pass through unchanged.
func Normalize(roleName string) string {
	return strings.ToLower(strings.TrimSpace(roleName))
}

// TierName returns a short description used in operator-facing messages.
func TierName(tier int) string {
	switch tier {
	case TierFinalApprover:
		return "final approver"
	case TierSeniorApprover:
		return "senior approver"
	case TierFinancialStaff:
		return "financial staff"
	default:
		return "none"
	}
}

func contains(set map[string]struct{}, name string) bool {
	_, ok := set[name]
	return ok
}

func matchesMinistryToken(name string) bool {
	for _, token := range ministryTokens {
		if strings.Contains(name, token) {
			return true
		}
	}
	return false
}
