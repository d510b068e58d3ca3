package paymentrequest

import (
	"github.com/smallbiznis/creatorpay/internal/paymentrequest/repository"
	"github.com/smallbiznis/creatorpay/internal/paymentrequest/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentrequest.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
