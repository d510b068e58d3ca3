package email

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ClaimLinkEmail carries everything the claim notification template needs.
type ClaimLinkEmail struct {
	To          string
	CreatorName string
	Description string
	TotalAmount decimal.Decimal
	Currency    string
	ClaimURL    string
	DueAt       *time.Time
}

type Provider interface {
	SendClaimLink(ctx context.Context, msg ClaimLinkEmail) error
}

// NoOpProvider keeps deployments without SMTP credentials working; claim
// links are still returned to the admin API caller for manual delivery.
type NoOpProvider struct{}

func (p *NoOpProvider) SendClaimLink(ctx context.Context, msg ClaimLinkEmail) error {
	return nil
}
