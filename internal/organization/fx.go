package organization

import (
	"github.com/stewardhq/steward/internal/organization/repository"
	"github.com/stewardhq/steward/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
