package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// StaffCommission is owed to a staff member for one paid invoice. The unique
// invoice_id makes calculation idempotent.
type StaffCommission struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceID     snowflake.ID    `json:"invoice_id" gorm:"not null;uniqueIndex:ux_staff_commissions_invoice"`
	StaffID       snowflake.ID    `json:"staff_id" gorm:"not null;index"`
	ServiceID     snowflake.ID    `json:"service_id" gorm:"not null"`
	BranchID      snowflake.ID    `json:"branch_id" gorm:"not null;index"`
	AppliedRuleID snowflake.ID    `json:"applied_rule_id" gorm:"not null"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"`
	InvoiceAmount decimal.Decimal `json:"invoice_amount" gorm:"type:decimal(14,2);not null"`
	Status        Status          `json:"status" gorm:"type:varchar(16);not null"`
	Description   string          `json:"description" gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"not null"`
}

func (StaffCommission) TableName() string { return "staff_commissions" }

// CanTransition reports whether a commission may move from s to next.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && (next == StatusPaid || next == StatusCancelled)
}

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusPaid || s == StatusCancelled
}

type SweepOutcome string

const (
	SweepOutcomeNoRule SweepOutcome = "NO_RULE"
	SweepOutcomeFailed SweepOutcome = "FAILED"
)

// SweepCheck remembers a paid invoice the sweep looked at without creating a
// commission. The sweep leaves it alone until NextCheckAt so invoices that
// are owed something are not starved by ones that never will be.
type SweepCheck struct {
	InvoiceID   snowflake.ID `json:"invoice_id" gorm:"primaryKey"`
	Outcome     SweepOutcome `json:"outcome" gorm:"type:varchar(16);not null"`
	Attempts    int          `json:"attempts" gorm:"not null"`
	LastError   *string      `json:"last_error,omitempty" gorm:"type:text"`
	NextCheckAt time.Time    `json:"next_check_at" gorm:"not null;index"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (SweepCheck) TableName() string { return "commission_sweep_checks" }
