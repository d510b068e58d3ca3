package repository

import (
	"context"

	"github.com/smallbiznis/creatorpay/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic gorm-backed store for lookup-style tables where
// struct-equality filters are enough. Lifecycle tables with compare-and-set
// transitions keep their own raw-SQL repositories instead.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	Count(ctx context.Context, query *T) (int64, error)
	BatchCreate(ctx context.Context, resources []*T) error
}
