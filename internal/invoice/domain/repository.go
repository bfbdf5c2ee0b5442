package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	// LockByID loads the invoice and holds a row lock until the transaction ends.
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByAppointment(ctx context.Context, db *gorm.DB, appointmentID snowflake.ID) (*Invoice, error)
	UpdateAmounts(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindPayment(ctx context.Context, db *gorm.DB, invoiceID, paymentID snowflake.ID) (*Payment, error)
	ListPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Payment, error)
	MarkPaymentRefunded(ctx context.Context, db *gorm.DB, payment *Payment) error
}
