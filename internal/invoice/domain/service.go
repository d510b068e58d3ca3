package domain

import (
	"context"
	"errors"
)

type Service interface {
	AttachUploaded(ctx context.Context, paymentRequestID string, storageRef string) (*Invoice, error)
	Generate(ctx context.Context, paymentRequestID string) (*Invoice, error)
	RecordValidation(ctx context.Context, invoiceID string, verdict string, detail string) (*Invoice, error)
	ListByPaymentRequest(ctx context.Context, paymentRequestID string) ([]Invoice, error)
}

var (
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidStorageRef      = errors.New("invalid_storage_ref")
	ErrInvalidVerdict         = errors.New("invalid_verdict")
	ErrNotFound               = errors.New("invoice_not_found")
	ErrPaymentRequestNotFound = errors.New("payment_request_not_found")
	ErrCreatorNotFound        = errors.New("creator_not_found")
)
