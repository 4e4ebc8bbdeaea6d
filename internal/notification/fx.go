package notification

import (
	"github.com/stewardhq/steward/internal/config"
	"go.uber.org/fx"
)

func newProvider(cfg config.Config) Provider {
	if cfg.Email.Enabled {
		return NewSMTPProvider(cfg.Email)
	}
	return NewNoopProvider()
}

var Module = fx.Module("notification",
	fx.Provide(newProvider),
	fx.Provide(NewDispatcher),
)
