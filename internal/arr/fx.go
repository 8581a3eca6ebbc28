package arr

import (
	"github.com/smallbiznis/saasops/internal/arr/service"
	"go.uber.org/fx"
)

var Module = fx.Module("arr.service",
	fx.Provide(service.NewService),
)
