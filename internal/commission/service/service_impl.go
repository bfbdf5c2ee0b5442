package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/smallbiznis/salonbook/internal/commission/domain"
	ruledomain "github.com/smallbiznis/salonbook/internal/commissionrule/domain"
	"github.com/smallbiznis/salonbook/internal/clock"
	"github.com/smallbiznis/salonbook/internal/events"
	invoicedomain "github.com/smallbiznis/salonbook/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/salonbook/internal/observability/metrics"
	referencedomain "github.com/smallbiznis/salonbook/internal/reference/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	noRuleRecheck     = time.Hour
	maxFailureBackoff = time.Hour
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        commissiondomain.Repository
	InvoiceRepo invoicedomain.Repository
	RefRepo     referencedomain.Repository
	RuleSvc     ruledomain.Service
	Outbox      *events.Outbox      `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        commissiondomain.Repository
	invoiceRepo invoicedomain.Repository
	refRepo     referencedomain.Repository
	ruleSvc     ruledomain.Service
	outbox      *events.Outbox
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("commission.service"),
		genID:       p.GenID,
		clock:       c,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		refRepo:     p.RefRepo,
		ruleSvc:     p.RuleSvc,
		outbox:      p.Outbox,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Calculate(ctx context.Context, invoiceID snowflake.ID) (*commissiondomain.StaffCommission, error) {
	log := s.log.With(zap.String("invoice_id", invoiceID.String()))

	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	if invoice.Status != invoicedomain.InvoiceStatusPaid {
		log.Debug("commission skipped, invoice not paid", zap.String("status", string(invoice.Status)))
		return nil, nil
	}
	if invoice.AppointmentID == nil {
		log.Debug("commission skipped, invoice has no appointment")
		return nil, nil
	}

	existing, err := s.repo.FindByInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	appointment, err := s.refRepo.GetAppointment(ctx, s.db, *invoice.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appointment == nil || appointment.StaffID == nil || appointment.ServiceID == nil {
		log.Info("commission skipped, appointment has no staff or service")
		return nil, nil
	}

	rule, err := s.ruleSvc.Resolve(ctx, ruledomain.ResolveRequest{
		StaffID:   *appointment.StaffID,
		ServiceID: *appointment.ServiceID,
		BranchID:  invoice.BranchID,
		At:        s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	if rule == nil {
		log.Info("no commission rule applies",
			zap.String("staff_id", appointment.StaffID.String()),
			zap.String("service_id", appointment.ServiceID.String()),
		)
		return nil, nil
	}

	amount, justification := commissiondomain.Compute(*rule, invoice.TotalAmount)
	now := s.clock.Now()
	commission := &commissiondomain.StaffCommission{
		ID:            s.genID.Generate(),
		InvoiceID:     invoice.ID,
		StaffID:       *appointment.StaffID,
		ServiceID:     *appointment.ServiceID,
		BranchID:      invoice.BranchID,
		AppliedRuleID: rule.ID,
		Amount:        amount,
		InvoiceAmount: invoice.TotalAmount,
		Status:        commissiondomain.StatusPending,
		Description:   justification,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var (
		created bool
		eventID snowflake.ID
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = s.repo.InsertIgnoreDuplicate(ctx, tx, commission)
		if err != nil {
			return err
		}
		if !created {
			stored, err := s.repo.FindByInvoice(ctx, tx, invoice.ID)
			if err != nil {
				return err
			}
			commission = stored
			return nil
		}
		if s.outbox == nil {
			return nil
		}
		eventID, err = s.outbox.PublishTx(ctx, tx, events.Event{
			Topic:       events.TopicCommissionCreated,
			AggregateID: commission.ID,
			BranchID:    commission.BranchID,
			Payload: map[string]any{
				"commission_id":   commission.ID.String(),
				"invoice_id":      commission.InvoiceID.String(),
				"staff_id":        commission.StaffID.String(),
				"amount":          commission.Amount.StringFixed(2),
				"applied_rule_id": commission.AppliedRuleID.String(),
			},
			DedupeKey: "commission.created:" + commission.InvoiceID.String(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if commission == nil {
		return nil, commissiondomain.ErrCommissionNotFound
	}

	if created {
		if s.outbox != nil && eventID != 0 {
			s.outbox.Flush(ctx, eventID)
		}
		s.obsMetrics.RecordCommissionCreated(ctx, string(rule.RuleType))
		log.Info("commission created",
			zap.String("commission_id", commission.ID.String()),
			zap.String("staff_id", commission.StaffID.String()),
			zap.String("amount", commission.Amount.StringFixed(2)),
			zap.String("rule_id", rule.ID.String()),
		)
	}
	return commission, nil
}

func (s *Service) GetByInvoice(ctx context.Context, invoiceID snowflake.ID) (*commissiondomain.StaffCommission, error) {
	commission, err := s.repo.FindByInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if commission == nil {
		return nil, commissiondomain.ErrCommissionNotFound
	}
	return commission, nil
}

func (s *Service) ListByStaff(ctx context.Context, req commissiondomain.ListByStaffRequest) ([]commissiondomain.StaffCommission, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, commissiondomain.ErrInvalidStatus
	}
	return s.repo.ListByStaff(ctx, s.db, req.StaffID, req.Status)
}

func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID) (*commissiondomain.StaffCommission, error) {
	return s.transition(ctx, id, commissiondomain.StatusPaid)
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (*commissiondomain.StaffCommission, error) {
	return s.transition(ctx, id, commissiondomain.StatusCancelled)
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, next commissiondomain.Status) (*commissiondomain.StaffCommission, error) {
	var commission *commissiondomain.StaffCommission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return commissiondomain.ErrCommissionNotFound
		}
		if !current.Status.CanTransition(next) {
			return commissiondomain.ErrInvalidTransition
		}
		now := s.clock.Now()
		ok, err := s.repo.UpdateStatus(ctx, tx, id, current.Status, next, now)
		if err != nil {
			return err
		}
		if !ok {
			return commissiondomain.ErrInvalidTransition
		}
		current.Status = next
		current.UpdatedAt = now
		commission = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("commission status changed",
		zap.String("commission_id", id.String()),
		zap.String("status", string(next)),
	)
	return commission, nil
}

func (s *Service) SweepMissing(ctx context.Context, limit int) (int, error) {
	ids, err := s.repo.ListInvoicesMissingCommission(ctx, s.db, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}

	created := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		commission, err := s.Calculate(ctx, id)
		switch {
		case err != nil:
			s.log.Warn("commission sweep failed for invoice", zap.String("invoice_id", id.String()), zap.Error(err))
			errs = append(errs, err)
			s.deferSweep(ctx, id, commissiondomain.SweepOutcomeFailed, err)
		case commission == nil:
			s.deferSweep(ctx, id, commissiondomain.SweepOutcomeNoRule, nil)
		default:
			created++
			if err := s.repo.DeleteSweepCheck(ctx, s.db, id); err != nil {
				s.log.Warn("failed to clear sweep check", zap.String("invoice_id", id.String()), zap.Error(err))
			}
		}
	}
	return created, errors.Join(errs...)
}

// deferSweep pushes the invoice's next sweep out. Invoices with no rule are
// looked at again after noRuleRecheck in case a rule is added with an
// earlier start date; failures back off by a minute per attempt.
func (s *Service) deferSweep(ctx context.Context, invoiceID snowflake.ID, outcome commissiondomain.SweepOutcome, cause error) {
	attempts := 1
	if prev, err := s.repo.FindSweepCheck(ctx, s.db, invoiceID); err == nil && prev != nil {
		attempts = prev.Attempts + 1
	}

	now := s.clock.Now().UTC()
	wait := noRuleRecheck
	var lastErr *string
	if outcome == commissiondomain.SweepOutcomeFailed {
		wait = min(time.Duration(attempts)*time.Minute, maxFailureBackoff)
		msg := cause.Error()
		lastErr = &msg
	}
	err := s.repo.SaveSweepCheck(ctx, s.db, &commissiondomain.SweepCheck{
		InvoiceID:   invoiceID,
		Outcome:     outcome,
		Attempts:    attempts,
		LastError:   lastErr,
		NextCheckAt: now.Add(wait),
		UpdatedAt:   now,
	})
	if err != nil {
		s.log.Warn("failed to record sweep check", zap.String("invoice_id", invoiceID.String()), zap.Error(err))
	}
}
