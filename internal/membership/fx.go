package membership

import (
	"github.com/stewardhq/steward/internal/membership/repository"
	"github.com/stewardhq/steward/internal/membership/service"
	"go.uber.org/fx"
)

var Module = fx.Module("membership.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
