package reference

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/salonbook/internal/reference/domain"
	"github.com/smallbiznis/salonbook/pkg/db/option"
	"github.com/smallbiznis/salonbook/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	branches     repository.Repository[domain.Branch]
	customers    repository.Repository[domain.Customer]
	staff        repository.Repository[domain.Staff]
	services     repository.Repository[domain.SalonService]
	appointments repository.Repository[domain.Appointment]
}

func NewRepository() domain.Repository {
	return &repo{
		branches:     repository.ProvideStore[domain.Branch](),
		customers:    repository.ProvideStore[domain.Customer](),
		staff:        repository.ProvideStore[domain.Staff](),
		services:     repository.ProvideStore[domain.SalonService](),
		appointments: repository.ProvideStore[domain.Appointment](),
	}
}

func (r *repo) GetBranch(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Branch, error) {
	return r.branches.FindByID(ctx, db, id)
}

// LockBranch takes a row lock on the branch for the rest of the transaction.
func (r *repo) LockBranch(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Branch, error) {
	return r.branches.FindByID(ctx, db, id, option.ForUpdate())
}

func (r *repo) GetCustomer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	return r.customers.FindByID(ctx, db, id)
}

func (r *repo) GetStaff(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Staff, error) {
	return r.staff.FindByID(ctx, db, id)
}

func (r *repo) GetService(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.SalonService, error) {
	return r.services.FindByID(ctx, db, id)
}

func (r *repo) GetAppointment(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Appointment, error) {
	return r.appointments.FindByID(ctx, db, id)
}
