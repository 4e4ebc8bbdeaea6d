// Package seed bootstraps a fresh installation: the root unit, the
// Korean role catalog, and one administrator account. Every step is
// idempotent, so running at each startup is safe.
package seed

import (
	"context"

	accountdomain "github.com/stewardhq/steward/internal/account/domain"
	"github.com/stewardhq/steward/internal/config"
	membershipdomain "github.com/stewardhq/steward/internal/membership/domain"
	orgdomain "github.com/stewardhq/steward/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type catalogRole struct {
	name         string
	level        int
	isLeadership bool
}

// The default role catalog. Titles drive authority resolution, so the
// catalog ships the common spellings used across departments.
var roleCatalog = []catalogRole{
	{"위원장", 90, true},
	{"재정위원장", 88, true},
	{"당회장", 95, true},
	{"교구장", 85, true},
	{"부장", 70, true},
	{"부서장", 68, true},
	{"국장", 66, true},
	{"단장", 64, true},
	{"회장", 62, true},
	{"목사", 55, false},
	{"전도사", 52, false},
	{"회계", 40, false},
	{"부서회계", 38, false},
	{"재정간사", 36, false},
	{"장로", 30, false},
	{"권사", 28, false},
	{"안수집사", 26, false},
	{"서기", 20, false},
	{"소프라노", 10, false},
}

func Run(
	cfg config.Config,
	org orgdomain.Service,
	orgRepo orgdomain.Repository,
	members membershipdomain.Service,
	accounts accountdomain.Repository,
	log *zap.Logger,
) error {
	if !cfg.BootstrapSeed {
		return nil
	}
	log = log.Named("seed")
	ctx := context.Background()

	root, err := orgRepo.GetRootUnit(ctx)
	if err != nil {
		return err
	}
	if root == nil {
		created, err := org.CreateUnit(ctx, orgdomain.CreateUnitRequest{
			Name: "본교회",
			Tier: orgdomain.UnitTierChurch,
		})
		if err != nil {
			return err
		}
		log.Info("root unit created", zap.String("unit_id", created.ID))
		root, err = orgRepo.GetRootUnit(ctx)
		if err != nil {
			return err
		}
	}

	var chairRole *orgdomain.OrganizationRole
	roleIDs := make([]string, 0, len(roleCatalog))
	for _, entry := range roleCatalog {
		existing, err := orgRepo.GetRoleByName(ctx, entry.name)
		if err != nil {
			return err
		}
		if existing == nil {
			existing, err = org.CreateRole(ctx, orgdomain.CreateRoleRequest{
				Name:         entry.name,
				Level:        entry.level,
				IsLeadership: entry.isLeadership,
			})
			if err != nil {
				return err
			}
		}
		roleIDs = append(roleIDs, existing.ID.String())
		if entry.name == "위원장" {
			chairRole = existing
		}
	}

	// Bind the catalog at the root so every unit inherits it. Missing
	// bindings are inserted, existing ones are left alone.
	if err := org.AssignRoles(ctx, root.ID.String(), roleIDs, orgdomain.AssignOptions{}); err != nil {
		return err
	}

	admin, err := accounts.GetByEmail(ctx, cfg.BootstrapAdminEmail)
	if err != nil {
		return err
	}
	if admin == nil && chairRole != nil {
		resp, err := members.RegisterMember(ctx, membershipdomain.RegisterMemberRequest{
			Name:      "시스템 관리자",
			Email:     cfg.BootstrapAdminEmail,
			UnitID:    root.ID.String(),
			RoleID:    chairRole.ID.String(),
			IsPrimary: true,
		})
		if err != nil {
			return err
		}
		if resp.Account != nil && resp.Account.OneTimePassword != "" {
			// Printed once; the credential must be replaced at first login.
			log.Info("bootstrap administrator provisioned",
				zap.String("email", cfg.BootstrapAdminEmail),
				zap.String("one_time_password", resp.Account.OneTimePassword),
			)
		}
	}

	return nil
}

var Module = fx.Module("seed",
	fx.Invoke(Run),
)
