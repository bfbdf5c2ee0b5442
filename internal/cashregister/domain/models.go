package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type LogType string

const (
	LogTypeOpening   LogType = "OPENING"
	LogTypeClosing   LogType = "CLOSING"
	LogTypeIncome    LogType = "INCOME"
	LogTypeOutcome   LogType = "OUTCOME"
	LogTypeManualIn  LogType = "MANUAL_IN"
	LogTypeManualOut LogType = "MANUAL_OUT"
)

// IsMovement reports whether t is a movement rather than an opening or closing entry.
func (t LogType) IsMovement() bool {
	switch t {
	case LogTypeIncome, LogTypeOutcome, LogTypeManualIn, LogTypeManualOut:
		return true
	default:
		return false
	}
}

// IsInflow reports whether a movement of type t adds cash to the drawer.
func (t LogType) IsInflow() bool {
	return t == LogTypeIncome || t == LogTypeManualIn
}

// CashRegisterLog is one entry in a branch's register for a business date.
// At most one OPENING and one CLOSING exist per (branch, business date),
// enforced by a partial unique index created in migrations.
type CashRegisterLog struct {
	ID           snowflake.ID      `json:"id" gorm:"primaryKey"`
	BranchID     snowflake.ID      `json:"branch_id" gorm:"not null;index:idx_cash_logs_branch_date,priority:1"`
	UserID       snowflake.ID      `json:"user_id" gorm:"not null"`
	Type         LogType           `json:"type" gorm:"type:varchar(16);not null"`
	Amount       decimal.Decimal   `json:"amount" gorm:"type:decimal(14,2);not null"`
	Description  string            `json:"description" gorm:"type:text"`
	BusinessDate string            `json:"business_date" gorm:"type:varchar(10);not null;index:idx_cash_logs_branch_date,priority:2"`
	PaymentID    *snowflake.ID     `json:"payment_id,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at" gorm:"not null"`
}

func (CashRegisterLog) TableName() string { return "cash_register_logs" }

type DayStatus string

const (
	DayStatusOpen   DayStatus = "OPEN"
	DayStatusClosed DayStatus = "CLOSED"
)

type Classification string

const (
	ClassificationBalanced Classification = "BALANCED"
	ClassificationWarning  Classification = "WARNING"
	ClassificationCritical Classification = "CRITICAL"
)

// Summary is the reconciliation of a cash day. Actual, Difference and
// Classification stay empty until the day is closed.
type Summary struct {
	OpeningBalance  decimal.Decimal  `json:"opening_balance"`
	TotalIncome     decimal.Decimal  `json:"total_income"`
	TotalExpense    decimal.Decimal  `json:"total_expense"`
	ExpectedBalance decimal.Decimal  `json:"expected_balance"`
	ActualBalance   *decimal.Decimal `json:"actual_balance,omitempty"`
	Difference      *decimal.Decimal `json:"difference,omitempty"`
	Classification  Classification   `json:"classification,omitempty"`
}

// CashDay is derived from the logs of one branch and business date.
type CashDay struct {
	BranchID   snowflake.ID      `json:"branch_id"`
	Date       string            `json:"date"`
	Status     DayStatus         `json:"status"`
	OpeningLog *CashRegisterLog  `json:"opening_log,omitempty"`
	ClosingLog *CashRegisterLog  `json:"closing_log,omitempty"`
	Movements  []CashRegisterLog `json:"movements"`
	Summary    Summary           `json:"summary"`
}

type CloseDayResult struct {
	OpeningLog CashRegisterLog `json:"opening_log"`
	ClosingLog CashRegisterLog `json:"closing_log"`
	Summary    Summary         `json:"summary"`
}
