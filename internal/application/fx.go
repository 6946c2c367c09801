package application

import (
	"github.com/smallbiznis/medrate/internal/application/repository"
	"github.com/smallbiznis/medrate/internal/application/service"
	"go.uber.org/fx"
)

var Module = fx.Module("application.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
