package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	"github.com/smallbiznis/creatorpay/internal/config"
	invoicedomain "github.com/smallbiznis/creatorpay/internal/invoice/domain"
	"github.com/smallbiznis/creatorpay/internal/invoice/format"
	"github.com/smallbiznis/creatorpay/internal/providers/pdf"
	"github.com/smallbiznis/creatorpay/internal/providers/storage"
	"github.com/smallbiznis/creatorpay/internal/providers/validation"
	"github.com/smallbiznis/creatorpay/pkg/db/option"
	"github.com/smallbiznis/creatorpay/pkg/money"
	"github.com/smallbiznis/creatorpay/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxNumberAttempts bounds how many invoice numbers Generate tries before
// giving up on a unique-constraint collision.
const maxNumberAttempts = 3

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Cfg       config.Config
	PDF       pdf.Provider
	Store     storage.ObjectStore
	Validator validation.Validator
	AuditSvc  auditdomain.Service `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	cfg         config.Config
	invoicerepo repository.Repository[invoicedomain.Invoice]
	pdf         pdf.Provider
	store       storage.ObjectStore
	validator   validation.Validator
	auditSvc    auditdomain.Service
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		cfg:   p.Cfg,

		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		pdf:         p.PDF,
		store:       p.Store,
		validator:   p.Validator,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) AttachUploaded(ctx context.Context, paymentRequestID string, storageRef string) (*invoicedomain.Invoice, error) {
	requestID, err := parseID(paymentRequestID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	ref := strings.TrimSpace(storageRef)
	if ref == "" {
		return nil, invoicedomain.ErrInvalidStorageRef
	}

	request, err := s.loadPaymentRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, invoicedomain.ErrPaymentRequestNotFound
	}

	now := time.Now().UTC()
	invoice := invoicedomain.Invoice{
		ID:               s.genID.Generate(),
		PaymentRequestID: requestID,
		Source:           invoicedomain.SourceUploaded,
		StorageRef:       ref,
		ValidationStatus: invoicedomain.ValidationPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.invoicerepo.Create(ctx, &invoice); err != nil {
		return nil, err
	}

	// Verdicts come back through the validation callback; a failed
	// submission just leaves the invoice pending.
	if err := s.validator.Submit(ctx, validation.Submission{
		InvoiceID:     invoice.ID.String(),
		StorageRef:    ref,
		ExpectedTotal: request.TotalAmount.StringFixed(2),
		Currency:      request.Currency,
	}); err != nil {
		s.log.Warn("validator submission failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
	}

	s.emitAudit(ctx, "invoice.attached", &invoice, nil)
	s.log.Info("invoice attached",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("payment_request_id", requestID.String()),
	)
	return &invoice, nil
}

func (s *Service) Generate(ctx context.Context, paymentRequestID string) (*invoicedomain.Invoice, error) {
	requestID, err := parseID(paymentRequestID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	request, err := s.loadPaymentRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, invoicedomain.ErrPaymentRequestNotFound
	}

	creator, err := s.loadCreator(ctx, request.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, invoicedomain.ErrCreatorNotFound
	}

	now := time.Now().UTC()

	// The sequence is COUNT(*)+1 over generated invoices, so two concurrent
	// Generate calls (or an uploaded document that already carries the
	// candidate number) can collide on ux_invoices_number. Retry with the
	// sequence bumped past the taken number; recomputing the count alone
	// would mint the same candidate again when the holder is an upload.
	var invoice invoicedomain.Invoice
	for attempt := 0; ; attempt++ {
		seq, err := s.nextSequence(ctx)
		if err != nil {
			return nil, err
		}
		number, err := format.FormatInvoiceNumber(format.DefaultInvoiceNumberTemplate, now, seq+int64(attempt))
		if err != nil {
			return nil, err
		}

		invoiceID := s.genID.Generate()
		document, err := s.pdf.GenerateInvoice(ctx, buildDocument(number, now, s.cfg, request, creator))
		if err != nil {
			return nil, err
		}

		key := fmt.Sprintf("invoices/%s/%s.pdf", requestID, invoiceID)
		ref, err := s.store.Put(ctx, key, document)
		if err != nil {
			return nil, err
		}

		invoice = invoicedomain.Invoice{
			ID:               invoiceID,
			PaymentRequestID: requestID,
			InvoiceNumber:    &number,
			Source:           invoicedomain.SourceGenerated,
			StorageRef:       ref,
			ValidationStatus: invoicedomain.ValidationValid,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		err = s.invoicerepo.Create(ctx, &invoice)
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt+1 >= maxNumberAttempts {
			return nil, err
		}
		s.log.Warn("invoice number taken, retrying",
			zap.String("invoice_number", *invoice.InvoiceNumber),
			zap.String("payment_request_id", requestID.String()),
		)
	}

	s.emitAudit(ctx, "invoice.generated", &invoice, nil)
	s.log.Info("invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", *invoice.InvoiceNumber),
		zap.String("payment_request_id", requestID.String()),
	)
	return &invoice, nil
}

func (s *Service) RecordValidation(ctx context.Context, invoiceID string, verdict string, detail string) (*invoicedomain.Invoice, error) {
	id, err := parseID(invoiceID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	status, err := parseVerdict(verdict)
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: id})
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"validation_status": status,
		"updated_at":        now,
	}
	trimmedDetail := strings.TrimSpace(detail)
	if trimmedDetail != "" {
		updates["validation_detail"] = trimmedDetail
	} else {
		updates["validation_detail"] = nil
	}

	if err := s.invoicerepo.Update(ctx, id.String(), updates); err != nil {
		return nil, err
	}

	updated, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: id})
	if err != nil {
		return nil, err
	}

	extra := map[string]any{"verdict": string(status)}
	if trimmedDetail != "" {
		extra["detail"] = trimmedDetail
	}
	s.emitAudit(ctx, "invoice.validated", updated, extra)
	return updated, nil
}

func (s *Service) ListByPaymentRequest(ctx context.Context, paymentRequestID string) ([]invoicedomain.Invoice, error) {
	requestID, err := parseID(paymentRequestID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	items, err := s.invoicerepo.Find(ctx,
		&invoicedomain.Invoice{PaymentRequestID: requestID},
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	)
	if err != nil {
		return nil, err
	}

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	return invoices, nil
}

// paymentRequestRow mirrors the payment_requests columns this service reads.
type paymentRequestRow struct {
	ID             snowflake.ID    `gorm:"column:id"`
	CreatorID      snowflake.ID    `gorm:"column:creator_id"`
	Description    string          `gorm:"column:description"`
	Currency       string          `gorm:"column:currency"`
	BaseAmount     decimal.Decimal `gorm:"column:base_amount"`
	VATAmount      decimal.Decimal `gorm:"column:vat_amount"`
	TotalAmount    decimal.Decimal `gorm:"column:total_amount"`
	VATRate        decimal.Decimal `gorm:"column:vat_rate"`
	ReverseCharged bool            `gorm:"column:reverse_charged"`
	VATExplanation string          `gorm:"column:vat_explanation"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
}

func (s *Service) loadPaymentRequest(ctx context.Context, id snowflake.ID) (*paymentRequestRow, error) {
	var row paymentRequestRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, creator_id, description, currency, base_amount, vat_amount, total_amount,
		        vat_rate, reverse_charged, vat_explanation, created_at
		 FROM payment_requests WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

type creatorRow struct {
	ID          snowflake.ID `gorm:"column:id"`
	Name        string       `gorm:"column:name"`
	Email       string       `gorm:"column:email"`
	CountryCode string       `gorm:"column:country_code"`
	VATNumber   string       `gorm:"column:vat_number"`
	CompanyName string       `gorm:"column:company_name"`
}

func (s *Service) loadCreator(ctx context.Context, id snowflake.ID) (*creatorRow, error) {
	var row creatorRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, name, email, country_code, vat_number, company_name
		 FROM creators WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (s *Service) nextSequence(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM invoices WHERE source = ?`,
		invoicedomain.SourceGenerated,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

func buildDocument(number string, issuedAt time.Time, cfg config.Config, request *paymentRequestRow, creator *creatorRow) pdf.Document {
	description := strings.TrimSpace(request.Description)
	if description == "" {
		description = "Creator payout"
	}

	vatLabel := fmt.Sprintf("VAT (%s%%)", request.VATRate.Mul(decimal.NewFromInt(100)).String())
	if request.ReverseCharged {
		vatLabel = "VAT (reverse charge)"
	}

	return pdf.Document{
		InvoiceNumber: number,
		IssuedOn:      issuedAt.Format("2006-01-02"),

		CreatorName:    creator.Name,
		CompanyName:    creator.CompanyName,
		CreatorEmail:   creator.Email,
		CreatorCountry: creator.CountryCode,
		VATNumber:      creator.VATNumber,

		PlatformName:  cfg.AppName,
		PlatformEmail: cfg.BaseURL,

		Description: description,
		Subtotal:    money.FormatAmount(request.BaseAmount, request.Currency),
		VATLabel:    vatLabel,
		VATAmount:   money.FormatAmount(request.VATAmount, request.Currency),
		Total:       money.FormatAmount(request.TotalAmount, request.Currency),
		Note:        request.VATExplanation,
	}
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"payment_request_id": invoice.PaymentRequestID.String(),
		"source":             string(invoice.Source),
		"validation_status":  string(invoice.ValidationStatus),
		"storage_ref":        invoice.StorageRef,
	}
	if invoice.InvoiceNumber != nil {
		metadata["invoice_number"] = *invoice.InvoiceNumber
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := invoice.ID.String()
	_ = s.auditSvc.AuditLog(ctx, "", nil, action, "invoice", &targetID, metadata)
}

func parseVerdict(verdict string) (invoicedomain.ValidationStatus, error) {
	switch strings.ToLower(strings.TrimSpace(verdict)) {
	case string(invoicedomain.ValidationValid):
		return invoicedomain.ValidationValid, nil
	case string(invoicedomain.ValidationInvalid):
		return invoicedomain.ValidationInvalid, nil
	default:
		return "", invoicedomain.ErrInvalidVerdict
	}
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidID
	}
	return id, nil
}
