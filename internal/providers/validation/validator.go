package validation

import (
	"context"

	"github.com/smallbiznis/creatorpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Submission asks the external document service to check a stored invoice
// against the totals frozen on its payment request. The verdict comes back
// asynchronously through the validation callback endpoint.
type Submission struct {
	InvoiceID     string `json:"invoice_id"`
	StorageRef    string `json:"storage_ref"`
	ExpectedTotal string `json:"expected_total"`
	Currency      string `json:"currency"`
}

type Validator interface {
	Submit(ctx context.Context, sub Submission) error
}

var Module = fx.Module("providers.validation",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Validator {
	if cfg.InvoiceValidatorURL == "" {
		return NewNoOp(log)
	}
	return NewHTTP(cfg.InvoiceValidatorURL, cfg.InvoiceValidatorToken, log)
}
