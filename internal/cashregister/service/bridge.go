package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	cashdomain "github.com/smallbiznis/salonbook/internal/cashregister/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type bridge struct {
	svc *Service
}

// NewBridge exposes the controller's movement path to the invoice ledger.
func NewBridge(svc *Service) cashdomain.Bridge {
	return &bridge{svc: svc}
}

func (b *bridge) RecordCashIncomeForPayment(ctx context.Context, tx *gorm.DB, req cashdomain.CashMovementRequest) (snowflake.ID, error) {
	return b.record(ctx, tx, cashdomain.LogTypeIncome, req)
}

func (b *bridge) RecordCashOutcomeForRefund(ctx context.Context, tx *gorm.DB, req cashdomain.CashMovementRequest) (snowflake.ID, error) {
	return b.record(ctx, tx, cashdomain.LogTypeOutcome, req)
}

func (b *bridge) record(ctx context.Context, tx *gorm.DB, logType cashdomain.LogType, req cashdomain.CashMovementRequest) (snowflake.ID, error) {
	if req.UserID == 0 {
		return 0, cashdomain.ErrInvalidUser
	}
	if !req.Amount.IsPositive() {
		return 0, cashdomain.ErrInvalidAmount
	}
	if tx == nil {
		tx = b.svc.db
	}

	if err := b.svc.lockBranch(ctx, tx, req.BranchID); err != nil {
		return 0, err
	}

	movement, err := b.svc.appendMovement(ctx, tx, req.BranchID, req.UserID, logType, req.Amount, req.Description, req.PaymentRef)
	if err != nil {
		if errors.Is(err, cashdomain.ErrNotOpened) || errors.Is(err, cashdomain.ErrDayClosed) {
			b.svc.log.Info("cash movement rejected, register not open",
				zap.String("branch_id", req.BranchID.String()),
				zap.String("type", string(logType)),
			)
			return 0, cashdomain.ErrRegisterNotOpen
		}
		return 0, err
	}
	return movement.ID, nil
}

func (b *bridge) LinkCashIncomeToPayment(ctx context.Context, tx *gorm.DB, req cashdomain.CashLinkRequest) error {
	if tx == nil {
		tx = b.svc.db
	}
	if err := b.svc.lockBranch(ctx, tx, req.BranchID); err != nil {
		return err
	}

	entry, err := b.svc.repo.FindByID(ctx, tx, req.LogID)
	if err != nil {
		return err
	}
	if entry == nil {
		return cashdomain.ErrCashLogNotFound
	}
	if entry.BranchID != req.BranchID || !entry.Type.IsInflow() || !entry.Amount.Equal(req.Amount) {
		b.svc.log.Info("cash log rejected for payment",
			zap.String("cash_register_log_id", entry.ID.String()),
			zap.String("branch_id", req.BranchID.String()),
			zap.String("type", string(entry.Type)),
		)
		return cashdomain.ErrCashLogMismatch
	}
	if entry.PaymentID != nil {
		return cashdomain.ErrCashLogLinked
	}

	linked, err := b.svc.repo.LinkPayment(ctx, tx, entry.ID, req.PaymentID)
	if err != nil {
		return err
	}
	if !linked {
		return cashdomain.ErrCashLogLinked
	}
	return nil
}
