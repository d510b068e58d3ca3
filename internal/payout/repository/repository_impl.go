package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertTransfer(ctx context.Context, db *gorm.DB, transfer *domain.PayoutTransfer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payout_transfers (
			id, payment_request_id, creator_id, provider, provider_transfer_id,
			amount_minor, currency, status, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		transfer.ID,
		transfer.PaymentRequestID,
		transfer.CreatorID,
		transfer.Provider,
		transfer.ProviderTransferID,
		transfer.AmountMinor,
		transfer.Currency,
		transfer.Status,
		transfer.Error,
		transfer.CreatedAt,
		transfer.UpdatedAt,
	).Error
}

func (r *repo) ListTransfersByRequest(ctx context.Context, db *gorm.DB, paymentRequestID snowflake.ID) ([]domain.PayoutTransfer, error) {
	var transfers []domain.PayoutTransfer
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_request_id, creator_id, provider, provider_transfer_id,
			amount_minor, currency, status, error, created_at, updated_at
		 FROM payout_transfers
		 WHERE payment_request_id = ?
		 ORDER BY created_at ASC, id ASC`,
		paymentRequestID,
	).Scan(&transfers).Error
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

func (r *repo) FindTransferByProviderID(ctx context.Context, db *gorm.DB, provider, providerTransferID string) (*domain.PayoutTransfer, error) {
	var transfer domain.PayoutTransfer
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_request_id, creator_id, provider, provider_transfer_id,
			amount_minor, currency, status, error, created_at, updated_at
		 FROM payout_transfers
		 WHERE provider = ? AND provider_transfer_id = ?
		 LIMIT 1`,
		provider,
		providerTransferID,
	).Scan(&transfer).Error
	if err != nil {
		return nil, err
	}
	if transfer.ID == 0 {
		return nil, nil
	}
	return &transfer, nil
}

func (r *repo) MarkTransferFailed(ctx context.Context, db *gorm.DB, provider, providerTransferID, reason string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payout_transfers
		 SET status = ?, error = ?, updated_at = ?
		 WHERE provider = ? AND provider_transfer_id = ? AND status = ?`,
		domain.TransferStatusFailed,
		reason,
		now,
		provider,
		providerTransferID,
		domain.TransferStatusCreated,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payout_events (
			id, provider, provider_event_id, event_type, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload, received_at, processed_at
		 FROM payout_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payout_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}
