package ledger

import (
	"github.com/smallbiznis/saasops/internal/ledger/repository"
	"github.com/smallbiznis/saasops/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.loader",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewLoader),
)
