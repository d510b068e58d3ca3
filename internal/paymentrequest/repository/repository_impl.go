package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
	"github.com/smallbiznis/creatorpay/pkg/db/option"
	"github.com/smallbiznis/creatorpay/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, request *domain.PaymentRequest) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_requests (id, creator_id, description, currency, base_amount, vat_rate, vat_amount,
		 total_amount, reverse_charged, vat_explanation, status, claim_token, due_at, paid_at, failure_reason,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		request.ID,
		request.CreatorID,
		request.Description,
		request.Currency,
		request.BaseAmount,
		request.VATRate,
		request.VATAmount,
		request.TotalAmount,
		request.ReverseCharged,
		request.VATExplanation,
		request.Status,
		request.ClaimToken,
		request.DueAt,
		request.PaidAt,
		request.FailureReason,
		request.CreatedAt,
		request.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentRequest, error) {
	var request domain.PaymentRequest
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payment_requests WHERE id = ?`,
		id,
	).Scan(&request).Error
	if err != nil {
		return nil, err
	}
	if request.ID == 0 {
		return nil, nil
	}
	return &request, nil
}

func (r *repo) FindByToken(ctx context.Context, db *gorm.DB, token string) (*domain.PaymentRequest, error) {
	if token == "" {
		return nil, nil
	}
	var request domain.PaymentRequest
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payment_requests WHERE claim_token = ?`,
		token,
	).Scan(&request).Error
	if err != nil {
		return nil, err
	}
	if request.ID == 0 {
		return nil, nil
	}
	return &request, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.PaymentRequest, error) {
	var requests []*domain.PaymentRequest
	stmt := db.WithContext(ctx).
		Model(&domain.PaymentRequest{})
	if filter.CreatorID != 0 {
		stmt = stmt.Where("creator_id = ?", filter.CreatorID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
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
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repo) ClaimByToken(ctx context.Context, db *gorm.DB, token string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_requests
		 SET status = ?, updated_at = ?
		 WHERE claim_token = ? AND status = ?`,
		domain.StatusClaimed,
		now,
		token,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_requests
		 SET status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusPaid,
		paidAt,
		paidAt,
		id,
		domain.StatusPending,
		domain.StatusClaimed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error) {
	var reasonArg any
	if reason != "" {
		reasonArg = reason
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_requests
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusFailed,
		reasonArg,
		now,
		id,
		domain.StatusPending,
		domain.StatusClaimed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindDueForPayout(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.PaymentRequest, error) {
	query := `SELECT pr.* FROM payment_requests pr
	 JOIN creators c ON c.id = pr.creator_id
	 WHERE pr.status = ?
	   AND c.payouts_enabled = ?
	   AND (pr.due_at IS NULL OR pr.due_at <= ?)
	 ORDER BY pr.created_at ASC
	 LIMIT ?`
	if db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE OF pr SKIP LOCKED"
	}

	var requests []*domain.PaymentRequest
	err := db.WithContext(ctx).Raw(
		query,
		domain.StatusClaimed,
		true,
		now,
		limit,
	).Scan(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}
