package loading

import (
	"github.com/smallbiznis/medrate/internal/loading/repository"
	"github.com/smallbiznis/medrate/internal/loading/service"
	"go.uber.org/fx"
)

var Module = fx.Module("loading.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
