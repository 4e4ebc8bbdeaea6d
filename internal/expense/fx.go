package expense

import (
	"github.com/stewardhq/steward/internal/expense/repository"
	"github.com/stewardhq/steward/internal/expense/service"
	"go.uber.org/fx"
)

var Module = fx.Module("expense.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
