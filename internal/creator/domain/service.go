package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/creatorpay/pkg/db/pagination"
)

type ListCreatorRequest struct {
	PageToken        string
	PageSize         int32
	Email            string
	CountryCode      string
	BusinessCategory string
	PayoutsEnabled   *bool
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
}

type ListCreatorFilter struct {
	Email            string
	CountryCode      string
	BusinessCategory string
	PayoutsEnabled   *bool
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
}

type ListCreatorResponse struct {
	pagination.PageInfo
	Creators []Creator `json:"creators"`
}

type CreateCreatorRequest struct {
	Name             string
	Email            string
	CountryCode      string
	BusinessCategory string
	VATNumber        string
	CompanyName      string
}

// UpdateCreatorRequest carries partial updates; nil fields stay untouched.
// CountryCode and BusinessCategory are only mutable while the creator has no
// payment requests, because VAT values freeze at request creation.
type UpdateCreatorRequest struct {
	ID               string
	Name             *string
	CountryCode      *string
	BusinessCategory *string
	VATNumber        *string
	CompanyName      *string
}

type GetCreatorRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateCreatorRequest) (Creator, error)
	Update(context.Context, UpdateCreatorRequest) (Creator, error)
	List(context.Context, ListCreatorRequest) (ListCreatorResponse, error)
	GetByID(context.Context, GetCreatorRequest) (Creator, error)
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidCountry   = errors.New("invalid_country")
	ErrInvalidCategory  = errors.New("invalid_business_category")
	ErrMissingVATNumber = errors.New("missing_vat_number")
	ErrEmailTaken       = errors.New("email_taken")
	ErrProfileLocked    = errors.New("profile_locked")
	ErrInvalidID        = errors.New("invalid_id")
	ErrNotFound         = errors.New("not_found")
)
