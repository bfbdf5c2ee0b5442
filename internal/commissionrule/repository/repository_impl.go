package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/salonbook/internal/commissionrule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *domain.CommissionRule) error {
	if rule == nil {
		return nil
	}
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CommissionRule, error) {
	var rule domain.CommissionRule
	err := db.WithContext(ctx).Raw(
		`SELECT id, branch_id, rule_type, type, rate, fixed_amount, service_id, staff_id,
		 start_date, end_date, is_active, description, created_at, updated_at
		 FROM commission_rules WHERE id = ?`,
		id,
	).Scan(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == 0 {
		return nil, nil
	}
	return &rule, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, branchID snowflake.ID, activeOnly bool) ([]domain.CommissionRule, error) {
	var rules []domain.CommissionRule
	stmt := db.WithContext(ctx).Model(&domain.CommissionRule{}).Where("branch_id = ?", branchID)
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if err := stmt.Order("created_at DESC, id DESC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) ListCandidates(ctx context.Context, db *gorm.DB, branchID, staffID, serviceID snowflake.ID) ([]domain.CommissionRule, error) {
	var rules []domain.CommissionRule
	err := db.WithContext(ctx).Model(&domain.CommissionRule{}).
		Where("branch_id = ? AND is_active = ?", branchID, true).
		Where(
			"(rule_type = ? OR (rule_type = ? AND service_id = ?) OR (rule_type = ? AND staff_id = ?))",
			string(domain.RuleTypeGeneral),
			string(domain.RuleTypeServiceSpecific), serviceID,
			string(domain.RuleTypeStaffSpecific), staffID,
		).
		Order("created_at DESC, id DESC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE commission_rules SET is_active = ?, updated_at = ? WHERE id = ?`,
		false,
		at,
		id,
	).Error
}
