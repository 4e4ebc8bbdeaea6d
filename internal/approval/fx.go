package approval

import (
	"github.com/stewardhq/steward/internal/approval/repository"
	"github.com/stewardhq/steward/internal/approval/service"
	"go.uber.org/fx"
)

var Module = fx.Module("approval.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
