package account

import (
	"github.com/stewardhq/steward/internal/account/domain"
	"github.com/stewardhq/steward/internal/account/repository"
	"github.com/stewardhq/steward/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(func(s domain.Service) domain.Provisioner { return s }),
)
