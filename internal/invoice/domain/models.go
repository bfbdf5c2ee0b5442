// Package domain contains the invoice ledger models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "UNPAID"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"
	InvoiceStatusRefunded      InvoiceStatus = "REFUNDED"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusUnpaid, InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusRefunded:
		return true
	default:
		return false
	}
}

// Terminal statuses are only set explicitly and block further payments.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusCancelled || s == InvoiceStatusRefunded
}

type InvoiceSource string

const (
	InvoiceSourceSale        InvoiceSource = "SALE"
	InvoiceSourceAppointment InvoiceSource = "APPOINTMENT"
	InvoiceSourcePackage     InvoiceSource = "PACKAGE"
)

func (s InvoiceSource) Valid() bool {
	return s == InvoiceSourceSale || s == InvoiceSourceAppointment || s == InvoiceSourcePackage
}

// Invoice tracks what a customer owes. Debt is stored alongside the amounts
// and always equals TotalAmount - AmountPaid.
type Invoice struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	BranchID      snowflake.ID    `json:"branch_id" gorm:"not null;index"`
	CustomerID    snowflake.ID    `json:"customer_id" gorm:"not null;index"`
	AppointmentID *snowflake.ID   `json:"appointment_id,omitempty" gorm:"uniqueIndex:ux_invoices_appointment"`
	TotalAmount   decimal.Decimal `json:"total_amount" gorm:"type:decimal(14,2);not null"`
	AmountPaid    decimal.Decimal `json:"amount_paid" gorm:"type:decimal(14,2);not null"`
	Debt          decimal.Decimal `json:"debt" gorm:"type:decimal(14,2);not null"`
	Status        InvoiceStatus   `json:"status" gorm:"type:varchar(16);not null;index"`
	Source        InvoiceSource   `json:"source" gorm:"type:varchar(16);not null"`
	Notes         string          `json:"notes,omitempty" gorm:"type:text"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

type PaymentMethod string

const (
	PaymentMethodCash           PaymentMethod = "CASH"
	PaymentMethodCreditCard     PaymentMethod = "CREDIT_CARD"
	PaymentMethodBankTransfer   PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCustomerCredit PaymentMethod = "CUSTOMER_CREDIT"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCreditCard, PaymentMethodBankTransfer, PaymentMethodCustomerCredit:
		return true
	default:
		return false
	}
}

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Payment belongs to exactly one invoice. A refund keeps the row and marks it.
type Payment struct {
	ID                      snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceID               snowflake.ID    `json:"invoice_id" gorm:"not null;index"`
	Amount                  decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"`
	Method                  PaymentMethod   `json:"method" gorm:"type:varchar(32);not null"`
	Status                  PaymentStatus   `json:"status" gorm:"type:varchar(16);not null"`
	CashRegisterLogID       *snowflake.ID   `json:"cash_register_log_id,omitempty"`
	RefundedAt              *time.Time      `json:"refunded_at,omitempty"`
	RefundReason            *string         `json:"refund_reason,omitempty" gorm:"type:text"`
	RefundedBy              *snowflake.ID   `json:"refunded_by,omitempty"`
	RefundCashRegisterLogID *snowflake.ID   `json:"refund_cash_register_log_id,omitempty"`
	CreatedBy               snowflake.ID    `json:"created_by" gorm:"not null"`
	CreatedAt               time.Time       `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
