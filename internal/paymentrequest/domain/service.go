package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/pkg/db/pagination"
)

type CreateRequest struct {
	CreatorID   string
	BaseAmount  decimal.Decimal
	Currency    string
	Description string
	DueAt       *time.Time
}

type ListRequest struct {
	PageToken   string
	PageSize    int32
	CreatorID   string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	PaymentRequests []PaymentRequest `json:"payment_requests"`
}

// Service owns the payment-request state machine. Every transition is a
// single conditional update against the store; callers decide retry policy.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (PaymentRequest, error)
	Claim(ctx context.Context, token string) (PaymentRequest, error)
	MarkPaid(ctx context.Context, id string) (PaymentRequest, error)
	MarkFailed(ctx context.Context, id string, reason string) (PaymentRequest, error)
	Get(ctx context.Context, id string) (PaymentRequest, error)
	GetByToken(ctx context.Context, token string) (PaymentRequest, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidStatus   = errors.New("invalid_status")
	ErrCreatorNotFound = errors.New("creator_not_found")
	ErrNotFound        = errors.New("payment_request_not_found")
	ErrInvalidState    = errors.New("invalid_state")
)
