package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, doc Document) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, "Self-billed invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		col.New(4),
	)

	m.AddRow(16,
		col.New(6).Add(
			text.New("Invoice number: "+doc.InvoiceNumber, props.Text{Top: 0, Size: 9}),
			text.New("Date of issue: "+doc.IssuedOn, props.Text{Top: 4, Size: 9}),
		),
		col.New(6),
	)

	supplier := []string{doc.CreatorName}
	if doc.CompanyName != "" {
		supplier = append(supplier, doc.CompanyName)
	}
	supplier = append(supplier, doc.CreatorEmail, doc.CreatorCountry)
	if doc.VATNumber != "" {
		supplier = append(supplier, "VAT: "+doc.VATNumber)
	}

	supplierCol := col.New(6).Add(text.New("Supplier", props.Text{Style: fontstyle.Bold, Size: 9}))
	for i, line := range supplier {
		supplierCol.Add(text.New(line, props.Text{Top: float64(5 + i*4), Size: 9}))
	}

	m.AddRow(40,
		supplierCol,
		col.New(6).Add(
			text.New("Billed to", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(doc.PlatformName, props.Text{Top: 5, Size: 9}),
			text.New(doc.PlatformEmail, props.Text{Top: 9, Size: 9}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(8, doc.Description, props.Text{Size: 9}),
		text.NewCol(4, doc.Subtotal, props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Subtotal", props.Text{Size: 9}),
		text.NewCol(3, doc.Subtotal, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, doc.VATLabel, props.Text{Size: 9}),
		text.NewCol(3, doc.VATAmount, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, doc.Total, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if doc.Note != "" {
		m.AddRow(12,
			text.NewCol(12, doc.Note, props.Text{Size: 8, Top: 4}),
		)
	}

	rendered, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(rendered.GetBytes()), nil
}
