package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DateLayout = "2006-01-02"

type OpenDayRequest struct {
	BranchID       snowflake.ID    `json:"branch_id"`
	UserID         snowflake.ID    `json:"user_id"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Description    string          `json:"description"`
}

type RecordMovementRequest struct {
	BranchID    snowflake.ID    `json:"branch_id"`
	UserID      snowflake.ID    `json:"user_id"`
	Type        LogType         `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type CloseDayRequest struct {
	BranchID      snowflake.ID    `json:"branch_id"`
	UserID        snowflake.ID    `json:"user_id"`
	ActualBalance decimal.Decimal `json:"actual_balance"`
	Description   string          `json:"description"`
}

type Service interface {
	OpenDay(ctx context.Context, req OpenDayRequest) (*CashRegisterLog, error)
	RecordMovement(ctx context.Context, req RecordMovementRequest) (*CashRegisterLog, error)
	CloseDay(ctx context.Context, req CloseDayRequest) (*CloseDayResult, error)
	GetDayDetails(ctx context.Context, branchID snowflake.ID, date string) (*CashDay, error)
	// CountOpenDays counts branches with an opened but not closed register today.
	CountOpenDays(ctx context.Context) (int64, error)
}

// CashMovementRequest is a movement created on behalf of a payment or refund.
type CashMovementRequest struct {
	BranchID    snowflake.ID
	UserID      snowflake.ID
	Amount      decimal.Decimal
	Description string
	PaymentRef  *snowflake.ID
}

// CashLinkRequest attaches an inflow already in the register to a payment.
type CashLinkRequest struct {
	LogID     snowflake.ID
	BranchID  snowflake.ID
	Amount    decimal.Decimal
	PaymentID snowflake.ID
}

// Bridge records cash movements for the invoice ledger. All calls run in
// the caller's transaction so the movement commits with the payment.
type Bridge interface {
	RecordCashIncomeForPayment(ctx context.Context, tx *gorm.DB, req CashMovementRequest) (snowflake.ID, error)
	RecordCashOutcomeForRefund(ctx context.Context, tx *gorm.DB, req CashMovementRequest) (snowflake.ID, error)
	// LinkCashIncomeToPayment claims an existing inflow log of the same
	// branch and amount. A log backs at most one payment.
	LinkCashIncomeToPayment(ctx context.Context, tx *gorm.DB, req CashLinkRequest) error
}

var (
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidMovementType = errors.New("invalid_movement_type")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidDate         = errors.New("invalid_date")
	ErrAlreadyOpened       = errors.New("cash_day_already_opened")
	ErrAlreadyClosed       = errors.New("cash_day_already_closed")
	ErrNotOpened           = errors.New("cash_day_not_opened")
	ErrDayClosed           = errors.New("cash_day_closed")
	ErrDayNotFound         = errors.New("cash_day_not_found")
	ErrRegisterNotOpen     = errors.New("cash_register_not_open")
	ErrCashLogNotFound     = errors.New("cash_register_log_not_found")
	ErrCashLogMismatch     = errors.New("cash_register_log_mismatch")
	ErrCashLogLinked       = errors.New("cash_register_log_already_linked")
)
