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
	"github.com/smallbiznis/salonbook/internal/config"
	"github.com/smallbiznis/salonbook/internal/events"
	obsmetrics "github.com/smallbiznis/salonbook/internal/observability/metrics"
	referencedomain "github.com/smallbiznis/salonbook/internal/reference/domain"
	"github.com/smallbiznis/salonbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Cfg           config.Config
	Repo          cashdomain.Repository
	RefRepo       referencedomain.Repository
	CashDayConfig *config.CashDayConfigHolder `optional:"true"`
	Outbox        *events.Outbox              `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics         `optional:"true"`
	AuditSvc      auditdomain.Service         `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	location      *time.Location
	repo          cashdomain.Repository
	refRepo       referencedomain.Repository
	cashDayConfig *config.CashDayConfigHolder
	outbox        *events.Outbox
	obsMetrics    *obsmetrics.Metrics
	auditSvc      auditdomain.Service
}

// NewService builds the cash day controller. It also serves as the
// invoice ledger's cash bridge.
func NewService(p Params) *Service {
	log := p.Log.Named("cashregister.service")

	location := time.UTC
	if tz := strings.TrimSpace(p.Cfg.BusinessTimezone); tz != "" {
		loaded, err := time.LoadLocation(tz)
		if err != nil {
			log.Warn("unknown business timezone, falling back to UTC", zap.String("timezone", tz), zap.Error(err))
		} else {
			location = loaded
		}
	}

	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}

	return &Service{
		db:            p.DB,
		log:           log,
		genID:         p.GenID,
		clock:         c,
		location:      location,
		repo:          p.Repo,
		refRepo:       p.RefRepo,
		cashDayConfig: p.CashDayConfig,
		outbox:        p.Outbox,
		obsMetrics:    p.ObsMetrics,
		auditSvc:      p.AuditSvc,
	}
}

func (s *Service) OpenDay(ctx context.Context, req cashdomain.OpenDayRequest) (*cashdomain.CashRegisterLog, error) {
	if req.UserID == 0 {
		return nil, cashdomain.ErrInvalidUser
	}
	if req.OpeningBalance.IsNegative() {
		return nil, cashdomain.ErrInvalidAmount
	}

	date := s.businessDate()
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Opening balance"
	}

	var opening *cashdomain.CashRegisterLog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockBranch(ctx, tx, req.BranchID); err != nil {
			return err
		}

		existing, err := s.repo.FindByType(ctx, tx, req.BranchID, date, cashdomain.LogTypeOpening)
		if err != nil {
			return err
		}
		if existing != nil {
			return cashdomain.ErrAlreadyOpened
		}

		opening = s.newLog(req.BranchID, req.UserID, cashdomain.LogTypeOpening, req.OpeningBalance, description, date)
		if err := s.repo.Insert(ctx, tx, opening); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return cashdomain.ErrAlreadyOpened
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("cash day opened",
		zap.String("branch_id", req.BranchID.String()),
		zap.String("business_date", date),
		zap.String("opening_balance", opening.Amount.StringFixed(2)),
	)
	return opening, nil
}

func (s *Service) RecordMovement(ctx context.Context, req cashdomain.RecordMovementRequest) (*cashdomain.CashRegisterLog, error) {
	if !req.Type.IsMovement() {
		return nil, cashdomain.ErrInvalidMovementType
	}
	if req.UserID == 0 {
		return nil, cashdomain.ErrInvalidUser
	}
	if !req.Amount.IsPositive() {
		return nil, cashdomain.ErrInvalidAmount
	}

	var movement *cashdomain.CashRegisterLog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockBranch(ctx, tx, req.BranchID); err != nil {
			return err
		}
		var err error
		movement, err = s.appendMovement(ctx, tx, req.BranchID, req.UserID, req.Type, req.Amount, req.Description, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

func (s *Service) CloseDay(ctx context.Context, req cashdomain.CloseDayRequest) (*cashdomain.CloseDayResult, error) {
	if req.UserID == 0 {
		return nil, cashdomain.ErrInvalidUser
	}
	if req.ActualBalance.IsNegative() {
		return nil, cashdomain.ErrInvalidAmount
	}

	date := s.businessDate()
	thresholds := s.cashDayConfig.Get()
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Closing balance"
	}

	var (
		result  *cashdomain.CloseDayResult
		eventID snowflake.ID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockBranch(ctx, tx, req.BranchID); err != nil {
			return err
		}

		logs, err := s.repo.ListByDay(ctx, tx, req.BranchID, date)
		if err != nil {
			return err
		}
		opening, closing, movements := splitLogs(logs)
		if opening == nil {
			return cashdomain.ErrNotOpened
		}
		if closing != nil {
			return cashdomain.ErrAlreadyClosed
		}

		summary := cashdomain.Summarize(opening.Amount, movements).
			Reconcile(req.ActualBalance, thresholds.WarningThreshold, thresholds.CriticalThreshold)

		closingLog := s.newLog(req.BranchID, req.UserID, cashdomain.LogTypeClosing, req.ActualBalance, description, date)
		closingLog.Metadata = datatypes.JSONMap(summary.Metadata())
		if err := s.repo.Insert(ctx, tx, closingLog); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return cashdomain.ErrAlreadyClosed
			}
			return err
		}

		if s.outbox != nil {
			payload := summary.Metadata()
			payload["branch_id"] = req.BranchID.String()
			payload["business_date"] = date
			payload["closing_log_id"] = closingLog.ID.String()
			eventID, err = s.outbox.PublishTx(ctx, tx, events.Event{
				Topic:       events.TopicCashDayClosed,
				AggregateID: closingLog.ID,
				BranchID:    req.BranchID,
				Payload:     payload,
				DedupeKey:   "cashday.closed:" + req.BranchID.String() + ":" + date,
			})
			if err != nil {
				return err
			}
		}

		result = &cashdomain.CloseDayResult{
			OpeningLog: *opening,
			ClosingLog: *closingLog,
			Summary:    summary,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.outbox != nil {
		s.outbox.Flush(ctx, eventID)
	}
	s.obsMetrics.RecordCashDayClosed(ctx, string(result.Summary.Classification))
	s.auditClose(ctx, req, date, result)

	fields := []zap.Field{
		zap.String("branch_id", req.BranchID.String()),
		zap.String("business_date", date),
		zap.String("expected_balance", result.Summary.ExpectedBalance.StringFixed(2)),
		zap.String("difference", result.Summary.Difference.StringFixed(2)),
		zap.String("classification", string(result.Summary.Classification)),
	}
	if result.Summary.Classification == cashdomain.ClassificationBalanced {
		s.log.Info("cash day closed", fields...)
	} else {
		s.log.Warn("cash day closed with difference", fields...)
	}
	return result, nil
}

// auditClose records who locked the day and what the drawer held. A failed
// write is logged; the close itself already committed.
func (s *Service) auditClose(ctx context.Context, req cashdomain.CloseDayRequest, date string, result *cashdomain.CloseDayResult) {
	if s.auditSvc == nil {
		return
	}
	metadata := result.Summary.Metadata()
	metadata["business_date"] = date
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		BranchID:   req.BranchID,
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    req.UserID,
		Action:     auditdomain.ActionCashDayClosed,
		TargetType: auditdomain.TargetCashDay,
		TargetID:   result.ClosingLog.ID,
		Metadata:   metadata,
	})
	if err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", auditdomain.ActionCashDayClosed),
			zap.String("branch_id", req.BranchID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) GetDayDetails(ctx context.Context, branchID snowflake.ID, date string) (*cashdomain.CashDay, error) {
	date = strings.TrimSpace(date)
	if _, err := time.Parse(cashdomain.DateLayout, date); err != nil {
		return nil, cashdomain.ErrInvalidDate
	}

	logs, err := s.repo.ListByDay(ctx, s.db, branchID, date)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, cashdomain.ErrDayNotFound
	}

	opening, closing, movements := splitLogs(logs)
	openingBalance := decimal.Zero
	if opening != nil {
		openingBalance = opening.Amount
	}

	day := &cashdomain.CashDay{
		BranchID:   branchID,
		Date:       date,
		Status:     cashdomain.DayStatusOpen,
		OpeningLog: opening,
		ClosingLog: closing,
		Movements:  movements,
		Summary:    cashdomain.Summarize(openingBalance, movements),
	}
	if closing != nil {
		thresholds := s.cashDayConfig.Get()
		day.Status = cashdomain.DayStatusClosed
		day.Summary = day.Summary.Reconcile(closing.Amount, thresholds.WarningThreshold, thresholds.CriticalThreshold)
	}
	return day, nil
}

func (s *Service) CountOpenDays(ctx context.Context) (int64, error) {
	return s.repo.CountOpenDays(ctx, s.db, s.businessDate())
}

// appendMovement requires an opened and not yet closed day. The caller holds
// the branch lock.
func (s *Service) appendMovement(
	ctx context.Context,
	tx *gorm.DB,
	branchID snowflake.ID,
	userID snowflake.ID,
	logType cashdomain.LogType,
	amount decimal.Decimal,
	description string,
	paymentRef *snowflake.ID,
) (*cashdomain.CashRegisterLog, error) {
	date := s.businessDate()

	opening, err := s.repo.FindByType(ctx, tx, branchID, date, cashdomain.LogTypeOpening)
	if err != nil {
		return nil, err
	}
	if opening == nil {
		return nil, cashdomain.ErrNotOpened
	}
	closing, err := s.repo.FindByType(ctx, tx, branchID, date, cashdomain.LogTypeClosing)
	if err != nil {
		return nil, err
	}
	if closing != nil {
		return nil, cashdomain.ErrDayClosed
	}

	movement := s.newLog(branchID, userID, logType, amount, strings.TrimSpace(description), date)
	movement.PaymentID = paymentRef
	if err := s.repo.Insert(ctx, tx, movement); err != nil {
		return nil, err
	}
	return movement, nil
}

func (s *Service) lockBranch(ctx context.Context, tx *gorm.DB, branchID snowflake.ID) error {
	if branchID == 0 {
		return referencedomain.ErrBranchNotFound
	}
	branch, err := s.refRepo.LockBranch(ctx, tx, branchID)
	if err != nil {
		return err
	}
	if branch == nil {
		return referencedomain.ErrBranchNotFound
	}
	return nil
}

func (s *Service) newLog(branchID, userID snowflake.ID, logType cashdomain.LogType, amount decimal.Decimal, description, date string) *cashdomain.CashRegisterLog {
	return &cashdomain.CashRegisterLog{
		ID:           s.genID.Generate(),
		BranchID:     branchID,
		UserID:       userID,
		Type:         logType,
		Amount:       amount.Round(2),
		Description:  description,
		BusinessDate: date,
		CreatedAt:    s.clock.Now(),
	}
}

func (s *Service) businessDate() string {
	return s.clock.Now().In(s.location).Format(cashdomain.DateLayout)
}

func splitLogs(logs []*cashdomain.CashRegisterLog) (opening, closing *cashdomain.CashRegisterLog, movements []cashdomain.CashRegisterLog) {
	movements = []cashdomain.CashRegisterLog{}
	for _, entry := range logs {
		if entry == nil {
			continue
		}
		switch entry.Type {
		case cashdomain.LogTypeOpening:
			if opening == nil {
				opening = entry
			}
		case cashdomain.LogTypeClosing:
			if closing == nil {
				closing = entry
			}
		default:
			movements = append(movements, *entry)
		}
	}
	return opening, closing, movements
}
