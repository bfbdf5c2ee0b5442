package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/salonbook/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, q domain.Query) ([]*domain.AuditLog, error) {
	var logs []*domain.AuditLog
	stmt := db.WithContext(ctx).
		Model(&domain.AuditLog{}).
		Scopes(matchQuery(q), afterCursor(q.After)).
		Order("created_at desc, id desc")
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit + 1)
	}
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func matchQuery(q domain.Query) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if q.BranchID != nil {
			db = db.Where("branch_id = ?", *q.BranchID)
		}
		for column, value := range map[string]string{
			"action":      q.Action,
			"target_type": q.TargetType,
			"target_id":   q.TargetID,
			"actor_type":  q.ActorType,
		} {
			if value = strings.TrimSpace(value); value != "" {
				db = db.Where(column+" = ?", value)
			}
		}
		if q.StartAt != nil {
			db = db.Where("created_at >= ?", q.StartAt.UTC())
		}
		if q.EndAt != nil {
			db = db.Where("created_at <= ?", q.EndAt.UTC())
		}
		return db
	}
}

// afterCursor continues a newest-first listing strictly past c.
func afterCursor(c *domain.Cursor) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if c == nil {
			return db
		}
		return db.Where("created_at < ? OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}
}
