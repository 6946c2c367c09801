package premium

import (
	"github.com/smallbiznis/medrate/internal/premium/service"
	"go.uber.org/fx"
)

var Module = fx.Module("premium.service",
	fx.Provide(service.New),
)
