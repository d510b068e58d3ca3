package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

// Document carries everything the renderer needs for a payout invoice.
// Amounts arrive pre-formatted; rendering never does money arithmetic.
type Document struct {
	InvoiceNumber string
	IssuedOn      string

	// Supplier block. Payout invoices are self-billed: the platform issues
	// the document on behalf of the creator receiving the payout.
	CreatorName    string
	CompanyName    string
	CreatorEmail   string
	CreatorCountry string
	VATNumber      string

	// Customer block.
	PlatformName  string
	PlatformEmail string

	Description string
	Subtotal    string
	VATLabel    string
	VATAmount   string
	Total       string
	Note        string
}

type Provider interface {
	GenerateInvoice(ctx context.Context, doc Document) (io.Reader, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)
