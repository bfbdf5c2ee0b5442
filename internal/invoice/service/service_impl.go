package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/salonbook/internal/audit/domain"
	cashdomain "github.com/smallbiznis/salonbook/internal/cashregister/domain"
	"github.com/smallbiznis/salonbook/internal/clock"
	"github.com/smallbiznis/salonbook/internal/events"
	invoicedomain "github.com/smallbiznis/salonbook/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/salonbook/internal/observability/metrics"
	referencedomain "github.com/smallbiznis/salonbook/internal/reference/domain"
	"github.com/smallbiznis/salonbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       invoicedomain.Repository
	RefRepo    referencedomain.Repository
	CashBridge cashdomain.Bridge
	AuditSvc   auditdomain.Service `optional:"true"`
	Outbox     *events.Outbox      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       invoicedomain.Repository
	refRepo    referencedomain.Repository
	cashBridge cashdomain.Bridge
	auditSvc   auditdomain.Service
	outbox     *events.Outbox
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) invoicedomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      c,
		repo:       p.Repo,
		refRepo:    p.RefRepo,
		cashBridge: p.CashBridge,
		auditSvc:   p.AuditSvc,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	if req.TotalAmount.IsNegative() || req.AmountPaid.IsNegative() {
		return nil, invoicedomain.ErrInvalidAmount
	}
	if req.AmountPaid.GreaterThan(req.TotalAmount) {
		return nil, invoicedomain.ErrPaidExceedsTotal
	}
	source := req.Source
	if source == "" {
		source = invoicedomain.InvoiceSourceSale
		if req.AppointmentID != nil {
			source = invoicedomain.InvoiceSourceAppointment
		}
	}
	if !source.Valid() {
		return nil, invoicedomain.ErrInvalidSource
	}

	now := s.clock.Now()
	total := req.TotalAmount.Round(2)
	paid := req.AmountPaid.Round(2)
	invoice := &invoicedomain.Invoice{
		ID:            s.genID.Generate(),
		BranchID:      req.BranchID,
		CustomerID:    req.CustomerID,
		AppointmentID: req.AppointmentID,
		TotalAmount:   total,
		AmountPaid:    paid,
		Debt:          invoicedomain.Debt(total, paid),
		Status:        invoicedomain.DeriveStatus(total, paid),
		Source:        source,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if invoice.Status == invoicedomain.InvoiceStatusPaid {
		invoice.PaidAt = &now
	}

	var eventID snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkReferences(ctx, tx, req); err != nil {
			return err
		}
		if err := s.repo.InsertInvoice(ctx, tx, invoice); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return invoicedomain.ErrAppointmentInvoiced
			}
			return err
		}
		if invoice.Status == invoicedomain.InvoiceStatusPaid {
			var err error
			eventID, err = s.publishPaid(ctx, tx, invoice)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, eventID)
	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("branch_id", invoice.BranchID.String()),
		zap.String("total_amount", invoice.TotalAmount.StringFixed(2)),
		zap.String("status", string(invoice.Status)),
	)
	return invoice, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) ListPayments(ctx context.Context, invoiceID snowflake.ID) ([]invoicedomain.Payment, error) {
	if _, err := s.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, s.db, invoiceID)
}

func (s *Service) ApplyPayment(ctx context.Context, req invoicedomain.ApplyPaymentRequest) (*invoicedomain.PaymentResult, error) {
	if !req.Amount.IsPositive() {
		return nil, invoicedomain.ErrInvalidAmount
	}
	if !req.Method.Valid() {
		return nil, invoicedomain.ErrInvalidPaymentMethod
	}
	if req.UserID == 0 {
		return nil, invoicedomain.ErrInvalidUser
	}
	if req.CashRegisterLogID != nil && req.Method != invoicedomain.PaymentMethodCash {
		return nil, invoicedomain.ErrCashLogRequiresCash
	}
	amount := req.Amount.Round(2)

	var (
		result  *invoicedomain.PaymentResult
		eventID snowflake.ID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, payments, err := s.lockInvoice(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.Status.Terminal() {
			return invoicedomain.ErrInvoiceClosed
		}
		if amount.GreaterThan(invoicedomain.Remaining(*invoice, invoicedomain.CompletedSum(payments))) {
			return invoicedomain.ErrOverpayment
		}

		now := s.clock.Now()
		payment := &invoicedomain.Payment{
			ID:                s.genID.Generate(),
			InvoiceID:         invoice.ID,
			Amount:            amount,
			Method:            req.Method,
			Status:            invoicedomain.PaymentStatusCompleted,
			CashRegisterLogID: req.CashRegisterLogID,
			CreatedBy:         req.UserID,
			CreatedAt:         now,
		}

		switch {
		case req.CashRegisterLogID != nil:
			err := s.cashBridge.LinkCashIncomeToPayment(ctx, tx, cashdomain.CashLinkRequest{
				LogID:     *req.CashRegisterLogID,
				BranchID:  invoice.BranchID,
				Amount:    amount,
				PaymentID: payment.ID,
			})
			if err != nil {
				return err
			}
		case req.Method == invoicedomain.PaymentMethodCash:
			logID, err := s.cashBridge.RecordCashIncomeForPayment(ctx, tx, cashdomain.CashMovementRequest{
				BranchID:    invoice.BranchID,
				UserID:      req.UserID,
				Amount:      amount,
				Description: "Cash payment for invoice " + invoice.ID.String(),
				PaymentRef:  &payment.ID,
			})
			if err != nil {
				return err
			}
			payment.CashRegisterLogID = &logID
		}

		if err := s.repo.InsertPayment(ctx, tx, payment); err != nil {
			return err
		}

		previous := invoice.Status
		s.recompute(invoice, invoice.TotalAmount, invoice.AmountPaid.Add(amount), now)
		if err := s.repo.UpdateAmounts(ctx, tx, invoice); err != nil {
			return err
		}
		if previous != invoicedomain.InvoiceStatusPaid && invoice.Status == invoicedomain.InvoiceStatusPaid {
			eventID, err = s.publishPaid(ctx, tx, invoice)
			if err != nil {
				return err
			}
		}

		result = &invoicedomain.PaymentResult{Invoice: *invoice, Payment: *payment}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, eventID)
	s.obsMetrics.RecordPaymentApplied(ctx, string(req.Method))
	s.log.Info("payment applied",
		zap.String("invoice_id", result.Invoice.ID.String()),
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("method", string(req.Method)),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("status", string(result.Invoice.Status)),
	)
	return result, nil
}

func (s *Service) RefundPayment(ctx context.Context, req invoicedomain.RefundPaymentRequest) (*invoicedomain.PaymentResult, error) {
	if req.UserID == 0 {
		return nil, invoicedomain.ErrInvalidUser
	}
	reason := strings.TrimSpace(req.Reason)

	var result *invoicedomain.PaymentResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, _, err := s.lockInvoice(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		payment, err := s.repo.FindPayment(ctx, tx, invoice.ID, req.PaymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return invoicedomain.ErrPaymentNotFound
		}
		if payment.Status == invoicedomain.PaymentStatusRefunded {
			return invoicedomain.ErrPaymentAlreadyRefunded
		}

		now := s.clock.Now()
		if payment.Method == invoicedomain.PaymentMethodCash {
			logID, err := s.cashBridge.RecordCashOutcomeForRefund(ctx, tx, cashdomain.CashMovementRequest{
				BranchID:    invoice.BranchID,
				UserID:      req.UserID,
				Amount:      payment.Amount,
				Description: "Cash refund for invoice " + invoice.ID.String(),
				PaymentRef:  &payment.ID,
			})
			if err != nil {
				return err
			}
			payment.RefundCashRegisterLogID = &logID
		}

		payment.Status = invoicedomain.PaymentStatusRefunded
		payment.RefundedAt = &now
		payment.RefundedBy = &req.UserID
		if reason != "" {
			payment.RefundReason = &reason
		}
		if err := s.repo.MarkPaymentRefunded(ctx, tx, payment); err != nil {
			return err
		}

		paid := invoice.AmountPaid.Sub(payment.Amount)
		if paid.IsNegative() {
			paid = decimal.Zero
		}
		if invoice.Status.Terminal() {
			status := invoice.Status
			s.recompute(invoice, invoice.TotalAmount, paid, now)
			invoice.Status = status
		} else {
			s.recompute(invoice, invoice.TotalAmount, paid, now)
		}
		if err := s.repo.UpdateAmounts(ctx, tx, invoice); err != nil {
			return err
		}

		result = &invoicedomain.PaymentResult{Invoice: *invoice, Payment: *payment}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordPaymentRefunded(ctx, string(result.Payment.Method))
	s.audit(ctx, result.Invoice, req.UserID, auditdomain.ActionPaymentRefunded, map[string]any{
		"payment_id": result.Payment.ID.String(),
		"amount":     result.Payment.Amount.StringFixed(2),
		"method":     string(result.Payment.Method),
		"reason":     reason,
	})
	s.log.Info("payment refunded",
		zap.String("invoice_id", result.Invoice.ID.String()),
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("amount", result.Payment.Amount.StringFixed(2)),
	)
	return result, nil
}

func (s *Service) Update(ctx context.Context, req invoicedomain.UpdateInvoiceRequest) (*invoicedomain.Invoice, error) {
	if req.UserID == 0 {
		return nil, invoicedomain.ErrInvalidUser
	}
	if req.TotalAmount != nil && req.TotalAmount.IsNegative() {
		return nil, invoicedomain.ErrInvalidAmount
	}
	if req.AmountPaid != nil && req.AmountPaid.IsNegative() {
		return nil, invoicedomain.ErrInvalidAmount
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, invoicedomain.ErrInvalidStatus
	}

	var (
		updated *invoicedomain.Invoice
		changes map[string]any
		eventID snowflake.ID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, payments, err := s.lockInvoice(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}

		total := invoice.TotalAmount
		if req.TotalAmount != nil {
			total = req.TotalAmount.Round(2)
		}
		paid := invoice.AmountPaid
		if req.AmountPaid != nil {
			paid = req.AmountPaid.Round(2)
		}
		if paid.GreaterThan(total) {
			return invoicedomain.ErrPaidExceedsTotal
		}
		if total.LessThan(invoicedomain.CompletedSum(payments)) {
			return invoicedomain.ErrTotalBelowPayments
		}

		changes = map[string]any{}
		if !total.Equal(invoice.TotalAmount) {
			changes["total_amount"] = map[string]any{"from": invoice.TotalAmount.StringFixed(2), "to": total.StringFixed(2)}
		}
		if !paid.Equal(invoice.AmountPaid) {
			changes["amount_paid"] = map[string]any{"from": invoice.AmountPaid.StringFixed(2), "to": paid.StringFixed(2)}
		}
		if req.Notes != nil {
			invoice.Notes = strings.TrimSpace(*req.Notes)
			changes["notes"] = invoice.Notes
		}

		previous := invoice.Status
		s.recompute(invoice, total, paid, s.clock.Now())
		switch {
		case req.Status != nil && req.Status.Terminal():
			invoice.Status = *req.Status
		case req.Status == nil && previous.Terminal():
			invoice.Status = previous
		}
		if invoice.Status != previous {
			changes["status"] = map[string]any{"from": string(previous), "to": string(invoice.Status)}
		}

		if err := s.repo.UpdateAmounts(ctx, tx, invoice); err != nil {
			return err
		}
		if previous != invoicedomain.InvoiceStatusPaid && invoice.Status == invoicedomain.InvoiceStatusPaid {
			eventID, err = s.publishPaid(ctx, tx, invoice)
			if err != nil {
				return err
			}
		}
		updated = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, eventID)
	s.audit(ctx, *updated, req.UserID, auditdomain.ActionInvoiceUpdated, changes)
	return updated, nil
}

func (s *Service) checkReferences(ctx context.Context, tx *gorm.DB, req invoicedomain.CreateInvoiceRequest) error {
	branch, err := s.refRepo.GetBranch(ctx, tx, req.BranchID)
	if err != nil {
		return err
	}
	if branch == nil {
		return referencedomain.ErrBranchNotFound
	}
	customer, err := s.refRepo.GetCustomer(ctx, tx, req.CustomerID)
	if err != nil {
		return err
	}
	if customer == nil {
		return referencedomain.ErrCustomerNotFound
	}
	if req.AppointmentID == nil {
		return nil
	}

	appointment, err := s.refRepo.GetAppointment(ctx, tx, *req.AppointmentID)
	if err != nil {
		return err
	}
	if appointment == nil {
		return referencedomain.ErrAppointmentNotFound
	}
	if appointment.CustomerID != req.CustomerID {
		return invoicedomain.ErrAppointmentCustomerMatch
	}
	existing, err := s.repo.FindByAppointment(ctx, tx, *req.AppointmentID)
	if err != nil {
		return err
	}
	if existing != nil {
		return invoicedomain.ErrAppointmentInvoiced
	}
	return nil
}

// lockInvoice loads the invoice under a row lock along with its payments.
func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, []invoicedomain.Payment, error) {
	invoice, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	if invoice == nil {
		return nil, nil, invoicedomain.ErrInvoiceNotFound
	}
	payments, err := s.repo.ListPayments(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	return invoice, payments, nil
}

func (s *Service) recompute(invoice *invoicedomain.Invoice, total, paid decimal.Decimal, now time.Time) {
	invoice.TotalAmount = total.Round(2)
	invoice.AmountPaid = paid.Round(2)
	invoice.Debt = invoicedomain.Debt(invoice.TotalAmount, invoice.AmountPaid)
	invoice.Status = invoicedomain.DeriveStatus(invoice.TotalAmount, invoice.AmountPaid)
	invoice.UpdatedAt = now
	switch {
	case invoice.Status == invoicedomain.InvoiceStatusPaid && invoice.PaidAt == nil:
		invoice.PaidAt = &now
	case invoice.Status != invoicedomain.InvoiceStatusPaid:
		invoice.PaidAt = nil
	}
}

func (s *Service) publishPaid(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) (snowflake.ID, error) {
	if s.outbox == nil {
		return 0, nil
	}
	payload := map[string]any{
		"invoice_id":   invoice.ID.String(),
		"branch_id":    invoice.BranchID.String(),
		"customer_id":  invoice.CustomerID.String(),
		"total_amount": invoice.TotalAmount.StringFixed(2),
	}
	if invoice.AppointmentID != nil {
		payload["appointment_id"] = invoice.AppointmentID.String()
	}
	// A paid invoice that is edited back to unpaid and paid again emits once
	// per crossing, so the key carries the paid timestamp.
	key := "invoice.paid:" + invoice.ID.String()
	if invoice.PaidAt != nil {
		key += ":" + invoice.PaidAt.UTC().Format(time.RFC3339Nano)
	}
	return s.outbox.PublishTx(ctx, tx, events.Event{
		Topic:       events.TopicInvoicePaid,
		AggregateID: invoice.ID,
		BranchID:    invoice.BranchID,
		Payload:     payload,
		DedupeKey:   key,
	})
}

func (s *Service) flush(ctx context.Context, eventID snowflake.ID) {
	if s.outbox == nil || eventID == 0 {
		return
	}
	s.outbox.Flush(ctx, eventID)
}

func (s *Service) audit(ctx context.Context, invoice invoicedomain.Invoice, userID snowflake.ID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		BranchID:   invoice.BranchID,
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    userID,
		Action:     action,
		TargetType: auditdomain.TargetInvoice,
		TargetID:   invoice.ID,
		Metadata:   metadata,
	})
	if err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
	}
}
