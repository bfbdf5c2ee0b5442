package cashregister

import (
	cashdomain "github.com/smallbiznis/salonbook/internal/cashregister/domain"
	"github.com/smallbiznis/salonbook/internal/cashregister/repository"
	"github.com/smallbiznis/salonbook/internal/cashregister/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cashregister.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(svc *service.Service) cashdomain.Service { return svc }),
	fx.Provide(service.NewBridge),
)
