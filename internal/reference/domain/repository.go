package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository looks up the collaborators owned by other parts of the system.
// Every getter returns nil, nil when the row does not exist.
type Repository interface {
	GetBranch(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Branch, error)
	LockBranch(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Branch, error)
	GetCustomer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	GetStaff(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Staff, error)
	GetService(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SalonService, error)
	GetAppointment(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Appointment, error)
}

var (
	ErrBranchNotFound      = errors.New("branch_not_found")
	ErrCustomerNotFound    = errors.New("customer_not_found")
	ErrStaffNotFound       = errors.New("staff_not_found")
	ErrServiceNotFound     = errors.New("service_not_found")
	ErrAppointmentNotFound = errors.New("appointment_not_found")
)
