package audit

import (
	"github.com/stewardhq/steward/internal/audit/repository"
	"github.com/stewardhq/steward/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
