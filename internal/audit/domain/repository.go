package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	// List returns up to q.Limit+1 rows so callers can tell whether another
	// page exists.
	List(ctx context.Context, db *gorm.DB, q Query) ([]*AuditLog, error)
}
