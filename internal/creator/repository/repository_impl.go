package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/creator/domain"
	"github.com/smallbiznis/creatorpay/pkg/db/option"
	"github.com/smallbiznis/creatorpay/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, creator *domain.Creator) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO creators (id, name, email, handle, country_code, business_category, vat_number, company_name,
		 payout_account_id, payout_details_submitted, payouts_enabled, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		creator.ID,
		creator.Name,
		creator.Email,
		creator.Handle,
		creator.CountryCode,
		creator.BusinessCategory,
		creator.VATNumber,
		creator.CompanyName,
		creator.PayoutAccountID,
		creator.PayoutDetailsSubmitted,
		creator.PayoutsEnabled,
		creator.Metadata,
		creator.CreatedAt,
		creator.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, creator *domain.Creator) error {
	return db.WithContext(ctx).Exec(
		`UPDATE creators
		 SET name = ?, country_code = ?, business_category = ?, vat_number = ?, company_name = ?, updated_at = ?
		 WHERE id = ?`,
		creator.Name,
		creator.CountryCode,
		creator.BusinessCategory,
		creator.VATNumber,
		creator.CompanyName,
		creator.UpdatedAt,
		creator.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Creator, error) {
	var creator domain.Creator
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM creators WHERE id = ?`,
		id,
	).Scan(&creator).Error
	if err != nil {
		return nil, err
	}
	if creator.ID == 0 {
		return nil, nil
	}
	return &creator, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Creator, error) {
	var creator domain.Creator
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM creators WHERE email = ?`,
		email,
	).Scan(&creator).Error
	if err != nil {
		return nil, err
	}
	if creator.ID == 0 {
		return nil, nil
	}
	return &creator, nil
}

func (r *repo) FindByHandle(ctx context.Context, db *gorm.DB, handle string) (*domain.Creator, error) {
	var creator domain.Creator
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM creators WHERE handle = ?`,
		handle,
	).Scan(&creator).Error
	if err != nil {
		return nil, err
	}
	if creator.ID == 0 {
		return nil, nil
	}
	return &creator, nil
}

func (r *repo) FindByPayoutAccountID(ctx context.Context, db *gorm.DB, accountID string) (*domain.Creator, error) {
	if accountID == "" {
		return nil, nil
	}
	var creator domain.Creator
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM creators WHERE payout_account_id = ?`,
		accountID,
	).Scan(&creator).Error
	if err != nil {
		return nil, err
	}
	if creator.ID == 0 {
		return nil, nil
	}
	return &creator, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListCreatorFilter, page pagination.Pagination) ([]*domain.Creator, error) {
	var creators []*domain.Creator
	stmt := db.WithContext(ctx).
		Model(&domain.Creator{})
	if filter.Email != "" {
		stmt = stmt.Where("email = ?", filter.Email)
	}
	if filter.CountryCode != "" {
		stmt = stmt.Where("country_code = ?", filter.CountryCode)
	}
	if filter.BusinessCategory != "" {
		stmt = stmt.Where("business_category = ?", filter.BusinessCategory)
	}
	if filter.PayoutsEnabled != nil {
		stmt = stmt.Where("payouts_enabled = ?", *filter.PayoutsEnabled)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *filter.CreatedTo)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&creators).Error
	if err != nil {
		return nil, err
	}
	return creators, nil
}

func (r *repo) UpdatePayoutAccount(ctx context.Context, db *gorm.DB, id snowflake.ID, accountID string, detailsSubmitted, payoutsEnabled bool) error {
	return db.WithContext(ctx).Exec(
		`UPDATE creators
		 SET payout_account_id = ?, payout_details_submitted = ?, payouts_enabled = ?, updated_at = ?
		 WHERE id = ?`,
		accountID,
		detailsSubmitted,
		payoutsEnabled,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) HasPaymentRequests(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payment_requests WHERE creator_id = ?`,
		id,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
