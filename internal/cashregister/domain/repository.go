package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *CashRegisterLog) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CashRegisterLog, error)
	FindByType(ctx context.Context, db *gorm.DB, branchID snowflake.ID, date string, logType LogType) (*CashRegisterLog, error)
	ListByDay(ctx context.Context, db *gorm.DB, branchID snowflake.ID, date string) ([]*CashRegisterLog, error)
	CountOpenDays(ctx context.Context, db *gorm.DB, date string) (int64, error)
	// LinkPayment sets payment_id on a log that has none and reports whether it did.
	LinkPayment(ctx context.Context, db *gorm.DB, id, paymentID snowflake.ID) (bool, error)
}
