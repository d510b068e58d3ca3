package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusClaimed Status = "claimed"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// PaymentRequest carries the VAT values frozen at creation time. They are
// copied from the classifier result and never recomputed, even when the
// creator's country or category changes later.
type PaymentRequest struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	CreatorID      snowflake.ID    `gorm:"index" json:"creator_id"`
	Description    string          `gorm:"type:varchar(512)" json:"description,omitempty"`
	Currency       string          `gorm:"type:varchar(3)" json:"currency"`
	BaseAmount     decimal.Decimal `gorm:"type:decimal(20,6)" json:"base_amount"`
	VATRate        decimal.Decimal `gorm:"type:decimal(10,4)" json:"vat_rate"`
	VATAmount      decimal.Decimal `gorm:"type:decimal(20,6)" json:"vat_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(20,6)" json:"total_amount"`
	ReverseCharged bool            `json:"reverse_charged"`
	VATExplanation string          `gorm:"type:varchar(128)" json:"vat_explanation"`
	Status         Status          `gorm:"type:varchar(16);index" json:"status"`
	ClaimToken     string          `gorm:"type:varchar(64);uniqueIndex" json:"claim_token"`
	DueAt          *time.Time      `json:"due_at,omitempty"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	FailureReason  *string         `gorm:"type:varchar(512)" json:"failure_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (PaymentRequest) TableName() string {
	return "payment_requests"
}
