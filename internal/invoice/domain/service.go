package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateInvoiceRequest struct {
	CustomerID    snowflake.ID    `json:"customer_id"`
	BranchID      snowflake.ID    `json:"branch_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	AppointmentID *snowflake.ID   `json:"appointment_id"`
	Source        InvoiceSource   `json:"source"`
	Notes         string          `json:"notes"`
}

type ApplyPaymentRequest struct {
	InvoiceID         snowflake.ID    `json:"invoice_id"`
	Amount            decimal.Decimal `json:"amount"`
	Method            PaymentMethod   `json:"method"`
	CashRegisterLogID *snowflake.ID   `json:"cash_register_log_id"`
	UserID            snowflake.ID    `json:"user_id"`
}

type RefundPaymentRequest struct {
	InvoiceID snowflake.ID `json:"invoice_id"`
	PaymentID snowflake.ID `json:"payment_id"`
	Reason    string       `json:"reason"`
	UserID    snowflake.ID `json:"user_id"`
}

// UpdateInvoiceRequest carries manual edits. Nil fields are left unchanged.
type UpdateInvoiceRequest struct {
	InvoiceID   snowflake.ID     `json:"invoice_id"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
	AmountPaid  *decimal.Decimal `json:"amount_paid"`
	Status      *InvoiceStatus   `json:"status"`
	Notes       *string          `json:"notes"`
	UserID      snowflake.ID     `json:"user_id"`
}

type PaymentResult struct {
	Invoice Invoice `json:"invoice"`
	Payment Payment `json:"payment"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Invoice, error)
	ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (*PaymentResult, error)
	RefundPayment(ctx context.Context, req RefundPaymentRequest) (*PaymentResult, error)
	Update(ctx context.Context, req UpdateInvoiceRequest) (*Invoice, error)
	ListPayments(ctx context.Context, invoiceID snowflake.ID) ([]Payment, error)
}

var (
	ErrInvoiceNotFound          = errors.New("invoice_not_found")
	ErrPaymentNotFound          = errors.New("payment_not_found")
	ErrInvalidAmount            = errors.New("invalid_amount")
	ErrInvalidPaymentMethod     = errors.New("invalid_payment_method")
	ErrInvalidSource            = errors.New("invalid_invoice_source")
	ErrInvalidStatus            = errors.New("invalid_invoice_status")
	ErrInvalidUser              = errors.New("invalid_user")
	ErrOverpayment              = errors.New("payment_exceeds_remaining_debt")
	ErrPaidExceedsTotal         = errors.New("amount_paid_exceeds_total")
	ErrTotalBelowPayments       = errors.New("total_below_completed_payments")
	ErrInvoiceClosed            = errors.New("invoice_not_payable")
	ErrPaymentAlreadyRefunded   = errors.New("payment_already_refunded")
	ErrAppointmentInvoiced      = errors.New("appointment_already_invoiced")
	ErrAppointmentCustomerMatch = errors.New("appointment_customer_mismatch")
	ErrCashLogRequiresCash      = errors.New("cash_register_log_requires_cash_method")
)
