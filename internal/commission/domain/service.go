package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type ListByStaffRequest struct {
	StaffID snowflake.ID
	Status  Status
}

type Service interface {
	// Calculate creates the commission for a paid invoice. It returns nil
	// when nothing is owed and the existing record when one already exists.
	Calculate(ctx context.Context, invoiceID snowflake.ID) (*StaffCommission, error)
	GetByInvoice(ctx context.Context, invoiceID snowflake.ID) (*StaffCommission, error)
	ListByStaff(ctx context.Context, req ListByStaffRequest) ([]StaffCommission, error)
	MarkPaid(ctx context.Context, id snowflake.ID) (*StaffCommission, error)
	Cancel(ctx context.Context, id snowflake.ID) (*StaffCommission, error)
	// SweepMissing calculates commissions for paid invoices that have none.
	SweepMissing(ctx context.Context, limit int) (int, error)
}

var (
	ErrCommissionNotFound = errors.New("commission_not_found")
	ErrInvalidTransition  = errors.New("invalid_commission_transition")
	ErrInvalidStatus      = errors.New("invalid_commission_status")
)
