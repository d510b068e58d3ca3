package domain

import (
	"context"
	"errors"
	"net/http"
)

// AccountStatus mirrors the creator's payout columns after a provider call.
type AccountStatus struct {
	CreatorID        string `json:"creator_id"`
	Provider         string `json:"provider"`
	AccountID        string `json:"account_id"`
	DetailsSubmitted bool   `json:"details_submitted"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
}

// Service executes payouts for claimed payment requests. It owns the retry
// policy against the processor; the payment-request state machine only sees
// the final MarkPaid or MarkFailed.
type Service interface {
	EnsureAccount(ctx context.Context, creatorID string) (AccountStatus, error)
	RefreshAccount(ctx context.Context, creatorID string) (AccountStatus, error)
	Process(ctx context.Context, paymentRequestID string) (*PayoutTransfer, error)
}

// WebhookService ingests provider webhook deliveries. Redelivered events are
// acknowledged without reprocessing.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrCreatorNotFound   = errors.New("creator_not_found")
	ErrRequestNotFound   = errors.New("payment_request_not_found")
	ErrNotPayable        = errors.New("request_not_payable")
	ErrPayoutsDisabled   = errors.New("payouts_disabled")
	ErrNoPayoutAccount   = errors.New("payout_account_missing")
	ErrBelowMinimum      = errors.New("amount_below_minimum")
	ErrTransferRejected  = errors.New("transfer_rejected")
	ErrInvalidProvider   = errors.New("invalid_provider")
	ErrProviderNotFound  = errors.New("provider_not_found")
	ErrInvalidSignature  = errors.New("invalid_signature")
	ErrStaleSignature    = errors.New("stale_signature")
	ErrInvalidPayload    = errors.New("invalid_payload")
	ErrInvalidEvent      = errors.New("invalid_event")
	ErrEventIgnored      = errors.New("event_ignored")
	ErrEventProcessed    = errors.New("event_already_processed")
	ErrProcessorDisabled = errors.New("processor_not_configured")
)
