package audit

import (
	"github.com/smallbiznis/salonbook/internal/audit/repository"
	"github.com/smallbiznis/salonbook/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
