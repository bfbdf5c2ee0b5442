package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/salonbook/internal/commission/domain"
	invoicedomain "github.com/smallbiznis/salonbook/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIgnoreDuplicate(ctx context.Context, db *gorm.DB, commission *domain.StaffCommission) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_id"}},
			DoNothing: true,
		}).
		Create(commission)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.StaffCommission, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*domain.StaffCommission, error) {
	return r.findOne(ctx, db, "invoice_id = ?", invoiceID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.StaffCommission, error) {
	var commission domain.StaffCommission
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, staff_id, service_id, branch_id, applied_rule_id,
		 amount, invoice_amount, status, description, created_at, updated_at
		 FROM staff_commissions WHERE `+where,
		arg,
	).Scan(&commission).Error
	if err != nil {
		return nil, err
	}
	if commission.ID == 0 {
		return nil, nil
	}
	return &commission, nil
}

func (r *repo) ListByStaff(ctx context.Context, db *gorm.DB, staffID snowflake.ID, status domain.Status) ([]domain.StaffCommission, error) {
	var items []domain.StaffCommission
	stmt := db.WithContext(ctx).Model(&domain.StaffCommission{}).Where("staff_id = ?", staffID)
	if status != "" {
		stmt = stmt.Where("status = ?", string(status))
	}
	if err := stmt.Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE staff_commissions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), at, id, string(from),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListInvoicesMissingCommission(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = 50
	}
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT i.id FROM invoices i
		 JOIN appointments a ON a.id = i.appointment_id
		 WHERE i.status = ? AND a.staff_id IS NOT NULL AND a.service_id IS NOT NULL
		 AND NOT EXISTS (SELECT 1 FROM staff_commissions c WHERE c.invoice_id = i.id)
		 AND NOT EXISTS (SELECT 1 FROM commission_sweep_checks k WHERE k.invoice_id = i.id AND k.next_check_at > ?)
		 ORDER BY i.paid_at ASC, i.id ASC
		 LIMIT ?`,
		string(invoicedomain.InvoiceStatusPaid), now.UTC(), limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) FindSweepCheck(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*domain.SweepCheck, error) {
	var checks []domain.SweepCheck
	if err := db.WithContext(ctx).Where("invoice_id = ?", invoiceID).Limit(1).Find(&checks).Error; err != nil {
		return nil, err
	}
	if len(checks) == 0 {
		return nil, nil
	}
	return &checks[0], nil
}

func (r *repo) SaveSweepCheck(ctx context.Context, db *gorm.DB, check *domain.SweepCheck) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"outcome", "attempts", "last_error", "next_check_at", "updated_at"}),
		}).
		Create(check).Error
}

func (r *repo) DeleteSweepCheck(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error {
	return db.WithContext(ctx).Where("invoice_id = ?", invoiceID).Delete(&domain.SweepCheck{}).Error
}
