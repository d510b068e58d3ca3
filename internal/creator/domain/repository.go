package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, creator *Creator) error
	Update(ctx context.Context, db *gorm.DB, creator *Creator) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Creator, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Creator, error)
	FindByHandle(ctx context.Context, db *gorm.DB, handle string) (*Creator, error)
	FindByPayoutAccountID(ctx context.Context, db *gorm.DB, accountID string) (*Creator, error)
	List(ctx context.Context, db *gorm.DB, filter ListCreatorFilter, page pagination.Pagination) ([]*Creator, error)
	UpdatePayoutAccount(ctx context.Context, db *gorm.DB, id snowflake.ID, accountID string, detailsSubmitted, payoutsEnabled bool) error
	HasPaymentRequests(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
