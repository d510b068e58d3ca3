package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type TransferStatus string

const (
	TransferStatusCreated TransferStatus = "created"
	TransferStatusFailed  TransferStatus = "failed"
)

// PayoutTransfer records one transfer attempt against the processor. Rows are
// written once and never updated from this side; provider-side failures that
// arrive later by webhook are recorded on the row by provider transfer id.
type PayoutTransfer struct {
	ID                 snowflake.ID   `json:"id" gorm:"primaryKey"`
	PaymentRequestID   snowflake.ID   `json:"payment_request_id" gorm:"not null;index"`
	CreatorID          snowflake.ID   `json:"creator_id" gorm:"not null;index"`
	Provider           string         `json:"provider" gorm:"type:varchar(16);not null"`
	ProviderTransferID string         `json:"provider_transfer_id,omitempty" gorm:"type:text"`
	AmountMinor        int64          `json:"amount_minor" gorm:"not null"`
	Currency           string         `json:"currency" gorm:"type:varchar(3);not null"`
	Status             TransferStatus `json:"status" gorm:"type:varchar(16);not null"`
	Error              *string        `json:"error,omitempty" gorm:"type:text"`
	CreatedAt          time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time      `json:"updated_at" gorm:"not null"`
}

func (PayoutTransfer) TableName() string { return "payout_transfers" }

const (
	EventTypeAccountUpdated = "account_updated"
	EventTypeTransferFailed = "transfer_failed"
)

// EventRecord is the dedupe row for incoming payout webhooks. The unique
// (provider, provider_event_id) pair makes redelivery a no-op.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payout_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payout_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payout_events" }

// WebhookEvent is the canonical payout event parsed by provider adapters.
type WebhookEvent struct {
	Provider        string
	ProviderEventID string
	Type            string

	// AccountID is set on account_updated events.
	AccountID        string
	DetailsSubmitted bool
	PayoutsEnabled   bool

	// TransferID and Reference are set on transfer_failed events. Reference
	// carries the payment request id the transfer was created with.
	TransferID    string
	Reference     string
	FailureReason string

	OccurredAt time.Time
	RawPayload []byte
}
