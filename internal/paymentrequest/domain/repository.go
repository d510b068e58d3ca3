package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	CreatorID   snowflake.ID
	Status      Status
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Repository persists payment requests. The transition methods are
// compare-and-set: they mutate the row only when its current status still
// allows the transition and report whether a row was updated, so two callers
// racing on the same token or id can never both succeed.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, request *PaymentRequest) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentRequest, error)
	FindByToken(ctx context.Context, db *gorm.DB, token string) (*PaymentRequest, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*PaymentRequest, error)
	ClaimByToken(ctx context.Context, db *gorm.DB, token string, now time.Time) (bool, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error)
	FindDueForPayout(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*PaymentRequest, error)
}
