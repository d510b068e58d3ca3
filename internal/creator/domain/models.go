package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/vat"
	"gorm.io/datatypes"
)

type Creator struct {
	ID               snowflake.ID         `gorm:"primaryKey" json:"id"`
	Name             string               `gorm:"not null" json:"name"`
	Email            string               `gorm:"not null;uniqueIndex" json:"email"`
	Handle           string               `gorm:"not null;uniqueIndex" json:"handle"`
	CountryCode      string               `gorm:"type:char(2);not null" json:"country_code"`
	BusinessCategory vat.BusinessCategory `gorm:"not null" json:"business_category"`
	VATNumber        string               `json:"vat_number,omitempty"`
	CompanyName      string               `json:"company_name,omitempty"`

	PayoutAccountID        string `gorm:"index" json:"payout_account_id,omitempty"`
	PayoutDetailsSubmitted bool   `gorm:"not null;default:false" json:"payout_details_submitted"`
	PayoutsEnabled         bool   `gorm:"not null;default:false" json:"payouts_enabled"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}
