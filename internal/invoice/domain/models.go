// Package domain contains persistence models for invoice records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Source records where an invoice document came from.
type Source string

const (
	SourceUploaded  Source = "uploaded"
	SourceGenerated Source = "generated"
)

// ValidationStatus is the external validator's verdict on a document.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
)

// Invoice ties a stored document to exactly one payment request. Generated
// documents carry a platform invoice number; uploaded ones keep whatever
// number the external document has, so the column stays nullable.
type Invoice struct {
	ID               snowflake.ID     `gorm:"primaryKey" json:"id"`
	PaymentRequestID snowflake.ID     `gorm:"column:payment_request_id;not null;index" json:"payment_request_id"`
	InvoiceNumber    *string          `gorm:"column:invoice_number;type:text;uniqueIndex:ux_invoices_number" json:"invoice_number,omitempty"`
	Source           Source           `gorm:"type:varchar(16);not null" json:"source"`
	StorageRef       string           `gorm:"column:storage_ref;type:text;not null" json:"storage_ref"`
	ValidationStatus ValidationStatus `gorm:"column:validation_status;type:varchar(16);not null;default:'pending'" json:"validation_status"`
	ValidationDetail *string          `gorm:"column:validation_detail;type:text" json:"validation_detail,omitempty"`
	CreatedAt        time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
