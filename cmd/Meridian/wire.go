//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"Meridian/internal/biz"
	"Meridian/internal/conf"
	"Meridian/internal/data"
	"Meridian/internal/server"
	"Meridian/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Region, *conf.RateLimit, *conf.Breaker, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		StartTablePersistCron,
		newApp,
	))
}
