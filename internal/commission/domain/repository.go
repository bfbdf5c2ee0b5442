package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIgnoreDuplicate reports false when a commission for the invoice
	// already existed.
	InsertIgnoreDuplicate(ctx context.Context, db *gorm.DB, commission *StaffCommission) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*StaffCommission, error)
	FindByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*StaffCommission, error)
	ListByStaff(ctx context.Context, db *gorm.DB, staffID snowflake.ID, status Status) ([]StaffCommission, error)
	// UpdateStatus moves a commission from one status to another and reports
	// false when the row was not in the expected status.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, at time.Time) (bool, error)
	// ListInvoicesMissingCommission returns paid appointment invoices with no
	// commission, skipping those whose sweep check is not due before now.
	ListInvoicesMissingCommission(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)
	FindSweepCheck(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*SweepCheck, error)
	SaveSweepCheck(ctx context.Context, db *gorm.DB, check *SweepCheck) error
	DeleteSweepCheck(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error
}
