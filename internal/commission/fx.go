package commission

import (
	commissiondomain "github.com/smallbiznis/salonbook/internal/commission/domain"
	"github.com/smallbiznis/salonbook/internal/commission/repository"
	"github.com/smallbiznis/salonbook/internal/commission/service"
	"github.com/smallbiznis/salonbook/internal/events"
	"go.uber.org/fx"
)

var Module = fx.Module("commission.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(svc *service.Service) commissiondomain.Service { return svc }),
	fx.Provide(service.NewHandler),
	fx.Invoke(func(outbox *events.Outbox, handler *service.Handler) {
		outbox.Subscribe(events.TopicInvoicePaid, handler.HandleInvoicePaid)
	}),
)
