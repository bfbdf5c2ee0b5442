package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *CommissionRule) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CommissionRule, error)
	List(ctx context.Context, db *gorm.DB, branchID snowflake.ID, activeOnly bool) ([]CommissionRule, error)
	// ListCandidates returns active rules of the branch that could match the
	// staff or service. The in-force window is checked by the caller.
	ListCandidates(ctx context.Context, db *gorm.DB, branchID, staffID, serviceID snowflake.ID) ([]CommissionRule, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
