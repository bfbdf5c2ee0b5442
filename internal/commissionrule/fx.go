package commissionrule

import (
	"github.com/smallbiznis/salonbook/internal/commissionrule/repository"
	"github.com/smallbiznis/salonbook/internal/commissionrule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commissionrule.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
