package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertTransfer(ctx context.Context, db *gorm.DB, transfer *PayoutTransfer) error
	ListTransfersByRequest(ctx context.Context, db *gorm.DB, paymentRequestID snowflake.ID) ([]PayoutTransfer, error)
	FindTransferByProviderID(ctx context.Context, db *gorm.DB, provider, providerTransferID string) (*PayoutTransfer, error)
	MarkTransferFailed(ctx context.Context, db *gorm.DB, provider, providerTransferID, reason string, now time.Time) (bool, error)

	// InsertEvent reports false when the (provider, provider_event_id) pair
	// already exists.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
