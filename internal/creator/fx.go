package creator

import (
	"github.com/smallbiznis/creatorpay/internal/creator/repository"
	"github.com/smallbiznis/creatorpay/internal/creator/service"
	"go.uber.org/fx"
)

var Module = fx.Module("creator.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
