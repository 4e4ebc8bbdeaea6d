// Package migration applies the embedded SQL schema. Non-postgres
// databases (the sqlite test setup in particular) fall back to gorm
// auto-migration.
package migration

import (
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accountdomain "github.com/stewardhq/steward/internal/account/domain"
	approvaldomain "github.com/stewardhq/steward/internal/approval/domain"
	auditdomain "github.com/stewardhq/steward/internal/audit/domain"
	"github.com/stewardhq/steward/internal/config"
	expensedomain "github.com/stewardhq/steward/internal/expense/domain"
	membershipdomain "github.com/stewardhq/steward/internal/membership/domain"
	"github.com/stewardhq/steward/internal/notification"
	orgdomain "github.com/stewardhq/steward/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

func Run(db *gorm.DB, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")

	if cfg.DBType != "postgres" {
		log.Info("non-postgres database, using auto-migration", zap.String("db_type", cfg.DBType))
		return autoMigrate(db)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return err
	}
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, cfg.DBName, driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	log.Info("schema up to date", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&orgdomain.OrganizationUnit{},
		&orgdomain.OrganizationRole{},
		&orgdomain.RoleBinding{},
		&membershipdomain.Person{},
		&membershipdomain.Membership{},
		&membershipdomain.MembershipHistory{},
		&accountdomain.UserAccount{},
		&expensedomain.ExpenseReport{},
		&approvaldomain.ApprovalFlow{},
		&approvaldomain.ApprovalStep{},
		&auditdomain.AuditLog{},
		&notification.NotificationEvent{},
	)
}

var Module = fx.Module("migration",
	fx.Invoke(Run),
)
