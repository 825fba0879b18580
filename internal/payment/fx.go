package payment

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/payment/control"
	"github.com/smallbiznis/paycore/internal/payment/janitor"
	"github.com/smallbiznis/paycore/internal/payment/plugin"
	"github.com/smallbiznis/paycore/internal/payment/repository"
	paymentservice "github.com/smallbiznis/paycore/internal/payment/service"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *plugin.Registry {
		return plugin.NewRegistry(
			plugin.NewNoop(),
		)
	}),
	fx.Provide(func() *control.Registry {
		return control.NewRegistry()
	}),
	fx.Provide(func(registry *control.Registry, cfg config.Config, log *zap.Logger) *control.Runner {
		return control.NewRunner(registry, cfg.DefaultControlPlugins, log)
	}),
	fx.Provide(paymentservice.NewService),
	janitor.Module,
)
