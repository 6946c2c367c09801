package versioning

import (
	"github.com/smallbiznis/medrate/internal/versioning/repository"
	"github.com/smallbiznis/medrate/internal/versioning/service"
	"go.uber.org/fx"
)

var Module = fx.Module("versioning.guard",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
