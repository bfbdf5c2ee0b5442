package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/salonbook/internal/cashregister/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.CashRegisterLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CashRegisterLog, error) {
	var entry domain.CashRegisterLog
	err := db.WithContext(ctx).Raw(
		`SELECT id, branch_id, user_id, type, amount, description, business_date,
		 payment_id, metadata, created_at
		 FROM cash_register_logs
		 WHERE id = ?`,
		id,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) FindByType(ctx context.Context, db *gorm.DB, branchID snowflake.ID, date string, logType domain.LogType) (*domain.CashRegisterLog, error) {
	var entry domain.CashRegisterLog
	err := db.WithContext(ctx).Raw(
		`SELECT id, branch_id, user_id, type, amount, description, business_date,
		 payment_id, metadata, created_at
		 FROM cash_register_logs
		 WHERE branch_id = ? AND business_date = ? AND type = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
		branchID,
		date,
		string(logType),
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) ListByDay(ctx context.Context, db *gorm.DB, branchID snowflake.ID, date string) ([]*domain.CashRegisterLog, error) {
	var items []*domain.CashRegisterLog
	err := db.WithContext(ctx).
		Where("branch_id = ? AND business_date = ?", branchID, date).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountOpenDays(ctx context.Context, db *gorm.DB, date string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM cash_register_logs o
		 WHERE o.type = ? AND o.business_date = ?
		 AND NOT EXISTS (
			SELECT 1 FROM cash_register_logs c
			WHERE c.branch_id = o.branch_id
			AND c.business_date = o.business_date
			AND c.type = ?
		 )`,
		string(domain.LogTypeOpening),
		date,
		string(domain.LogTypeClosing),
	).Scan(&count).Error
	return count, err
}

func (r *repo) LinkPayment(ctx context.Context, db *gorm.DB, id, paymentID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE cash_register_logs SET payment_id = ?
		 WHERE id = ? AND payment_id IS NULL`,
		paymentID,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
