package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/salonbook/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic read/write store. The db handle is passed per call
// so callers can run it inside their own transaction.
type Repository[T any] interface {
	FindByID(ctx context.Context, db *gorm.DB, id any, opts ...option.QueryOption) (*T, error)
	Find(ctx context.Context, db *gorm.DB, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, db *gorm.DB, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, db *gorm.DB, resource *T) error
	Count(ctx context.Context, db *gorm.DB, query *T, opts ...option.QueryOption) (int64, error)
}

type store[T any] struct{}

func ProvideStore[T any]() Repository[T] {
	return &store[T]{}
}

func (r *store[T]) FindByID(ctx context.Context, db *gorm.DB, id any, opts ...option.QueryOption) (*T, error) {
	opts = append([]option.QueryOption{option.WithWhere("id = ?", id)}, opts...)
	return r.FindOne(ctx, db, nil, opts...)
}

func (r *store[T]) Find(ctx context.Context, db *gorm.DB, query *T, opts ...option.QueryOption) ([]*T, error) {
	var result []*T
	err := buildQuery(ctx, db, query, opts...).Find(&result).Error
	return result, err
}

func (r *store[T]) FindOne(ctx context.Context, db *gorm.DB, query *T, opts ...option.QueryOption) (*T, error) {
	var result T
	err := buildQuery(ctx, db, query, opts...).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *store[T]) Create(ctx context.Context, db *gorm.DB, resource *T) error {
	return db.WithContext(ctx).Create(resource).Error
}

func (r *store[T]) Count(ctx context.Context, db *gorm.DB, query *T, opts ...option.QueryOption) (int64, error) {
	var count int64
	err := buildQuery(ctx, db, query, opts...).Count(&count).Error
	return count, err
}

func buildQuery[T any](ctx context.Context, db *gorm.DB, filter *T, opts ...option.QueryOption) *gorm.DB {
	stmt := db.WithContext(ctx).Model(new(T))
	if filter != nil {
		stmt = stmt.Where(filter)
	}
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	return stmt
}
