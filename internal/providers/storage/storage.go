package storage

import (
	"context"
	"errors"
	"io"

	"github.com/smallbiznis/creatorpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ObjectStore persists invoice documents. Keys are slash-separated relative
// paths; Put returns the reference to record on the invoice row.
type ObjectStore interface {
	Put(ctx context.Context, key string, contents io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

var (
	ErrInvalidRef = errors.New("invalid_storage_ref")
	ErrNotFound   = errors.New("object_not_found")
)

var Module = fx.Module("providers.storage",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) ObjectStore {
	return NewLocal(cfg.InvoiceStorageDir, log)
}
