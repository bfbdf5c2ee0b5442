package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/salonbook/internal/invoice/domain"
	"github.com/smallbiznis/salonbook/pkg/db/option"
	"github.com/smallbiznis/salonbook/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	invoices repository.Repository[domain.Invoice]
	payments repository.Repository[domain.Payment]
}

func Provide() domain.Repository {
	return &repo{
		invoices: repository.ProvideStore[domain.Invoice](),
		payments: repository.ProvideStore[domain.Payment](),
	}
}

func (r *repo) InsertInvoice(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, branch_id, customer_id, appointment_id, total_amount, amount_paid,
			debt, status, source, notes, paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.BranchID,
		invoice.CustomerID,
		invoice.AppointmentID,
		invoice.TotalAmount,
		invoice.AmountPaid,
		invoice.Debt,
		invoice.Status,
		invoice.Source,
		invoice.Notes,
		invoice.PaidAt,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.invoices.FindByID(ctx, db, id)
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.invoices.FindByID(ctx, db, id, option.ForUpdate())
}

func (r *repo) FindByAppointment(ctx context.Context, db *gorm.DB, appointmentID snowflake.ID) (*domain.Invoice, error) {
	return r.invoices.FindOne(ctx, db, nil, option.WithWhere("appointment_id = ?", appointmentID))
}

func (r *repo) UpdateAmounts(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET total_amount = ?, amount_paid = ?, debt = ?, status = ?, notes = ?,
		     paid_at = ?, updated_at = ?
		 WHERE id = ?`,
		invoice.TotalAmount,
		invoice.AmountPaid,
		invoice.Debt,
		invoice.Status,
		invoice.Notes,
		invoice.PaidAt,
		invoice.UpdatedAt,
		invoice.ID,
	).Error
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return r.payments.Create(ctx, db, payment)
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, invoiceID, paymentID snowflake.ID) (*domain.Payment, error) {
	return r.payments.FindByID(ctx, db, paymentID, option.WithWhere("invoice_id = ?", invoiceID))
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.Payment, error) {
	items, err := r.payments.Find(ctx, db, nil,
		option.WithWhere("invoice_id = ?", invoiceID),
		option.WithOrder("created_at ASC, id ASC"),
	)
	if err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		if item != nil {
			payments = append(payments, *item)
		}
	}
	return payments, nil
}

func (r *repo) MarkPaymentRefunded(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, refunded_at = ?, refund_reason = ?, refunded_by = ?,
		     refund_cash_register_log_id = ?
		 WHERE id = ?`,
		payment.Status,
		payment.RefundedAt,
		payment.RefundReason,
		payment.RefundedBy,
		payment.RefundCashRegisterLogID,
		payment.ID,
	).Error
}
