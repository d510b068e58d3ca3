package payout

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/payout/adapters"
	"github.com/smallbiznis/creatorpay/internal/payout/adapters/stripe"
	"github.com/smallbiznis/creatorpay/internal/payout/adapters/wise"
	"github.com/smallbiznis/creatorpay/internal/payout/domain"
	"github.com/smallbiznis/creatorpay/internal/payout/repository"
	payoutservice "github.com/smallbiznis/creatorpay/internal/payout/service"
	"github.com/smallbiznis/creatorpay/internal/payout/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewProcessor),
	fx.Provide(NewAdapterRegistry),
	fx.Provide(payoutservice.NewService),
	fx.Provide(webhook.NewService),
)

// NewProcessor selects the outbound adapter named by payout.provider.
// The choice is fixed at startup; switching providers needs a restart so
// in-flight idempotency keys never span two processors.
func NewProcessor(cfg config.Config, holder *config.PayoutConfigHolder, log *zap.Logger) (domain.Processor, error) {
	provider := strings.ToLower(strings.TrimSpace(holder.Get().Provider))
	switch provider {
	case "stripe":
		if cfg.Stripe.SecretKey == "" {
			log.Warn("stripe secret key missing, transfers will fail until configured")
		}
		return stripe.NewProcessor(cfg.Stripe.SecretKey), nil
	case "wise":
		if cfg.Wise.APIToken == "" {
			log.Warn("wise api token missing, transfers will fail until configured")
		}
		return wise.NewProcessor(cfg.Wise.APIToken, cfg.Wise.ProfileID), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, provider)
	}
}

// NewAdapterRegistry registers a webhook adapter for every provider with
// verification credentials, independent of which one sends transfers:
// account updates keep flowing for accounts created under a previous
// provider.
func NewAdapterRegistry(cfg config.Config) *adapters.Registry {
	var list []domain.WebhookAdapter
	if strings.TrimSpace(cfg.Stripe.WebhookSecret) != "" {
		list = append(list, stripe.NewWebhookAdapter(cfg.Stripe.WebhookSecret))
	}
	if strings.TrimSpace(cfg.Wise.WebhookPublicKey) != "" {
		list = append(list, wise.NewWebhookAdapter(cfg.Wise.WebhookPublicKey))
	}
	return adapters.NewRegistry(list...)
}
