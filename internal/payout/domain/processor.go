package domain

import (
	"context"
	"net/http"
)

// Account is the processor-side payout account for a creator. The two flags
// gate automatic payouts: transfers only run once the provider reports the
// account ready to receive them.
type Account struct {
	ID               string
	DetailsSubmitted bool
	PayoutsEnabled   bool
}

type CreateAccountRequest struct {
	Email       string
	Name        string
	CountryCode string

	// Currency is the platform's default payout currency. Processors that
	// key recipients by currency (Wise) need one before any payment
	// request exists.
	Currency string

	// CreatorID travels in provider metadata so webhook payloads can be
	// traced back without a lookup.
	CreatorID string
}

type TransferRequest struct {
	AccountID   string
	AmountMinor int64
	Currency    string

	// MinorUnit is the exponent AmountMinor was derived with; providers
	// that take major-unit amounts convert back with it.
	MinorUnit int

	// Reference is the payment request id; it round-trips through the
	// provider and comes back on transfer webhooks.
	Reference string

	// IdempotencyKey is stable per payment request, so a transfer retried
	// after a timeout or across worker ticks can never pay twice.
	IdempotencyKey string
}

// Processor is the outbound payout API of one provider. Implementations wrap
// rejections the provider will never accept in ErrTransferRejected; everything
// else is treated as transient and retried.
type Processor interface {
	Name() string
	CreateAccount(ctx context.Context, req CreateAccountRequest) (Account, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
	Transfer(ctx context.Context, req TransferRequest) (string, error)
}

// WebhookAdapter verifies and parses one provider's payout webhooks.
type WebhookAdapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*WebhookEvent, error)
}
