// Package authorization enforces what each provisioned system role may
// do, backed by casbin with policies stored next to the domain data.
package authorization

import (
	_ "embed"
	"errors"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/stewardhq/steward/internal/authority"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelConf string

// Objects and actions.
const (
	ObjExpense      = "expense"
	ObjApproval     = "approval"
	ObjOrganization = "organization"
	ObjMembership   = "membership"
	ObjAuditLog     = "audit_log"

	ActCreate = "create"
	ActView   = "view"
	ActAct    = "act"
	ActManage = "manage"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// NewEnforcer builds the enforcer and seeds the role policies. Seeding is
// idempotent: AddPolicy is a no-op for rows that already exist.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", "casbin_rules")
	if err != nil {
		return nil, err
	}

	m, err := model.NewModelFromString(modelConf)
	if err != nil {
		return nil, err
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{authority.SystemRoleAccountant, ObjExpense, ActCreate},
		{authority.SystemRoleAccountant, ObjExpense, ActView},
		{authority.SystemRoleAccountant, ObjApproval, ActAct},
		{authority.SystemRoleAccountant, ObjApproval, ActView},

		{authority.SystemRoleDepartmentHead, ObjExpense, ActCreate},
		{authority.SystemRoleDepartmentHead, ObjExpense, ActView},
		{authority.SystemRoleDepartmentHead, ObjApproval, ActAct},
		{authority.SystemRoleDepartmentHead, ObjApproval, ActView},

		{authority.SystemRoleChair, ObjExpense, ActCreate},
		{authority.SystemRoleChair, ObjExpense, ActView},
		{authority.SystemRoleChair, ObjApproval, ActAct},
		{authority.SystemRoleChair, ObjApproval, ActView},
		{authority.SystemRoleChair, ObjOrganization, ActManage},
		{authority.SystemRoleChair, ObjMembership, ActManage},
		{authority.SystemRoleChair, ObjAuditLog, ActView},

		{authority.SystemRoleMinister, ObjExpense, ActView},
		{authority.SystemRoleMinister, ObjApproval, ActView},

		{authority.SystemRoleElder, ObjExpense, ActView},
	}
	for _, p := range policies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return err
		}
	}
	return nil
}

// Allowed reports whether the system role may perform act on obj.
func Allowed(enforcer *casbin.SyncedEnforcer, systemRole, obj, act string) (bool, error) {
	return enforcer.Enforce(systemRole, obj, act)
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
)
