package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/salonbook/internal/events"
	"github.com/smallbiznis/salonbook/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// Handler reacts to invoice.paid events by calculating the staff commission.
type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, log: svc.log.Named("handler")}
}

// HandleInvoicePaid is safe to call repeatedly for the same event.
func (h *Handler) HandleInvoicePaid(ctx context.Context, evt events.DomainEvent) error {
	ctx = correlation.ContextFromPayload(ctx, evt.Payload)

	invoiceID, err := invoiceIDFromEvent(evt)
	if err != nil {
		return err
	}
	commission, err := h.svc.Calculate(ctx, invoiceID)
	if err != nil {
		h.log.Warn("commission calculation failed",
			zap.String("event_id", evt.ID.String()),
			zap.String("invoice_id", invoiceID.String()),
			zap.String("correlation_id", correlation.ExtractCorrelationID(ctx)),
			zap.Error(err),
		)
		return err
	}
	if commission == nil {
		h.log.Debug("no commission for paid invoice", zap.String("invoice_id", invoiceID.String()))
	}
	return nil
}

func invoiceIDFromEvent(evt events.DomainEvent) (snowflake.ID, error) {
	if raw, ok := evt.Payload["invoice_id"]; ok {
		value := strings.TrimSpace(fmt.Sprint(raw))
		id, err := snowflake.ParseString(value)
		if err != nil {
			return 0, fmt.Errorf("invoice.paid event %s: invalid invoice_id %q: %w", evt.ID, value, err)
		}
		return id, nil
	}
	if evt.AggregateID == 0 {
		return 0, fmt.Errorf("invoice.paid event %s has no invoice id", evt.ID)
	}
	return evt.AggregateID, nil
}
