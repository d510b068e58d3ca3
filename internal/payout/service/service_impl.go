package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	"github.com/smallbiznis/creatorpay/internal/config"
	creatordomain "github.com/smallbiznis/creatorpay/internal/creator/domain"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"github.com/smallbiznis/creatorpay/internal/payout/domain"
	requestdomain "github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
	referencedomain "github.com/smallbiznis/creatorpay/internal/reference/domain"
	"github.com/smallbiznis/creatorpay/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// defaultMinorUnit covers currencies missing from the reference table.
const defaultMinorUnit = 2

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          domain.Repository
	CreatorRepo   creatordomain.Repository
	RequestSvc    requestdomain.Service
	ReferenceRepo referencedomain.Repository
	Processor     domain.Processor
	AuditSvc      auditdomain.Service
	Holder        *config.PayoutConfigHolder
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          domain.Repository
	creatorRepo   creatordomain.Repository
	requestSvc    requestdomain.Service
	referenceRepo referencedomain.Repository
	processor     domain.Processor
	auditSvc      auditdomain.Service
	holder        *config.PayoutConfigHolder
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payout.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		creatorRepo:   p.CreatorRepo,
		requestSvc:    p.RequestSvc,
		referenceRepo: p.ReferenceRepo,
		processor:     p.Processor,
		auditSvc:      p.AuditSvc,
		holder:        p.Holder,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Service) EnsureAccount(ctx context.Context, creatorID string) (domain.AccountStatus, error) {
	id, err := parseID(creatorID)
	if err != nil {
		return domain.AccountStatus{}, domain.ErrInvalidID
	}
	creator, err := s.creatorRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.AccountStatus{}, err
	}
	if creator == nil {
		return domain.AccountStatus{}, domain.ErrCreatorNotFound
	}
	if creator.PayoutAccountID != "" {
		return s.refreshAccount(ctx, creator)
	}

	account, err := s.processor.CreateAccount(ctx, domain.CreateAccountRequest{
		Email:       creator.Email,
		Name:        creator.Name,
		CountryCode: creator.CountryCode,
		Currency:    s.holder.Get().DefaultCurrency,
		CreatorID:   creator.ID.String(),
	})
	if err != nil {
		return domain.AccountStatus{}, err
	}

	if err := s.creatorRepo.UpdatePayoutAccount(ctx, s.db, creator.ID, account.ID, account.DetailsSubmitted, account.PayoutsEnabled); err != nil {
		return domain.AccountStatus{}, err
	}

	s.emitAudit(ctx, "payout_account.created", creator.ID, map[string]any{
		"provider":          s.processor.Name(),
		"payout_account_id": account.ID,
	})
	s.log.Info("payout account created",
		zap.String("creator_id", creator.ID.String()),
		zap.String("provider", s.processor.Name()),
		zap.String("payout_account_id", account.ID),
	)
	return s.accountStatus(creator.ID, account), nil
}

func (s *Service) RefreshAccount(ctx context.Context, creatorID string) (domain.AccountStatus, error) {
	id, err := parseID(creatorID)
	if err != nil {
		return domain.AccountStatus{}, domain.ErrInvalidID
	}
	creator, err := s.creatorRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.AccountStatus{}, err
	}
	if creator == nil {
		return domain.AccountStatus{}, domain.ErrCreatorNotFound
	}
	if creator.PayoutAccountID == "" {
		return domain.AccountStatus{}, domain.ErrNoPayoutAccount
	}
	return s.refreshAccount(ctx, creator)
}

func (s *Service) refreshAccount(ctx context.Context, creator *creatordomain.Creator) (domain.AccountStatus, error) {
	account, err := s.processor.GetAccount(ctx, creator.PayoutAccountID)
	if err != nil {
		return domain.AccountStatus{}, err
	}

	if account.DetailsSubmitted != creator.PayoutDetailsSubmitted || account.PayoutsEnabled != creator.PayoutsEnabled {
		if err := s.creatorRepo.UpdatePayoutAccount(ctx, s.db, creator.ID, account.ID, account.DetailsSubmitted, account.PayoutsEnabled); err != nil {
			return domain.AccountStatus{}, err
		}
		s.emitAudit(ctx, "payout_account.refreshed", creator.ID, map[string]any{
			"provider":          s.processor.Name(),
			"payout_account_id": account.ID,
			"details_submitted": account.DetailsSubmitted,
			"payouts_enabled":   account.PayoutsEnabled,
		})
		s.log.Info("payout account capabilities changed",
			zap.String("creator_id", creator.ID.String()),
			zap.Bool("details_submitted", account.DetailsSubmitted),
			zap.Bool("payouts_enabled", account.PayoutsEnabled),
		)
	}
	return s.accountStatus(creator.ID, account), nil
}

func (s *Service) Process(ctx context.Context, paymentRequestID string) (*domain.PayoutTransfer, error) {
	requestID, err := parseID(paymentRequestID)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	request, err := s.requestSvc.Get(ctx, paymentRequestID)
	if err != nil {
		if errors.Is(err, requestdomain.ErrNotFound) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	if request.Status != requestdomain.StatusClaimed {
		return nil, domain.ErrNotPayable
	}

	// A created transfer against a still-claimed request means a previous
	// attempt stopped between the provider call and the bookkeeping. Settle
	// the request instead of transferring again.
	transfers, err := s.repo.ListTransfersByRequest(ctx, s.db, requestID)
	if err != nil {
		return nil, err
	}
	for i := range transfers {
		if transfers[i].Status == domain.TransferStatusCreated {
			if err := s.markPaid(ctx, paymentRequestID); err != nil {
				return nil, err
			}
			return &transfers[i], nil
		}
	}

	creator, err := s.creatorRepo.FindByID(ctx, s.db, request.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, domain.ErrCreatorNotFound
	}
	if creator.PayoutAccountID == "" {
		return nil, domain.ErrNoPayoutAccount
	}
	if !creator.PayoutsEnabled {
		return nil, domain.ErrPayoutsDisabled
	}

	cfg := s.holder.Get()
	if minimum := cfg.Worker.MinimumPayout(); minimum.IsPositive() && request.TotalAmount.LessThan(minimum) {
		return nil, domain.ErrBelowMinimum
	}

	minorUnit := s.currencyExponent(ctx, request.Currency)
	amountMinor := money.ToMinorUnits(request.TotalAmount, minorUnit)
	if amountMinor <= 0 {
		return nil, domain.ErrNotPayable
	}

	transferID, err := s.transferWithRetry(ctx, domain.TransferRequest{
		AccountID:      creator.PayoutAccountID,
		AmountMinor:    amountMinor,
		Currency:       request.Currency,
		MinorUnit:      minorUnit,
		Reference:      request.ID.String(),
		IdempotencyKey: "payout:" + request.ID.String(),
	}, cfg.Worker.MaxAttempts)

	now := time.Now().UTC()
	if err != nil {
		if errors.Is(err, domain.ErrTransferRejected) {
			return s.settleRejection(ctx, &request, creator.ID, amountMinor, rejectionReason(err), now)
		}
		s.recordTransfer(ctx, "error")
		s.log.Error("payout transfer failed",
			zap.String("payment_request_id", request.ID.String()),
			zap.String("provider", s.processor.Name()),
			zap.Error(err),
		)
		return nil, err
	}

	row := &domain.PayoutTransfer{
		ID:                 s.genID.Generate(),
		PaymentRequestID:   request.ID,
		CreatorID:          creator.ID,
		Provider:           s.processor.Name(),
		ProviderTransferID: transferID,
		AmountMinor:        amountMinor,
		Currency:           request.Currency,
		Status:             domain.TransferStatusCreated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.InsertTransfer(ctx, s.db, row); err != nil {
		// Money has already moved; the transfer stays recoverable at the
		// provider, so settle the request rather than abort.
		s.log.Error("payout transfer row not recorded",
			zap.String("payment_request_id", request.ID.String()),
			zap.String("provider_transfer_id", transferID),
			zap.Error(err),
		)
	}
	if err := s.markPaid(ctx, paymentRequestID); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, "payout.succeeded", request.ID, map[string]any{
		"provider":             s.processor.Name(),
		"provider_transfer_id": transferID,
		"amount_minor":         amountMinor,
		"currency":             request.Currency,
	})
	s.recordTransfer(ctx, "created")
	s.log.Info("payout transfer created",
		zap.String("payment_request_id", request.ID.String()),
		zap.String("provider", s.processor.Name()),
		zap.String("provider_transfer_id", transferID),
		zap.Int64("amount_minor", amountMinor),
		zap.String("currency", request.Currency),
	)
	return row, nil
}

func (s *Service) settleRejection(
	ctx context.Context,
	request *requestdomain.PaymentRequest,
	creatorID snowflake.ID,
	amountMinor int64,
	reason string,
	now time.Time,
) (*domain.PayoutTransfer, error) {
	row := &domain.PayoutTransfer{
		ID:               s.genID.Generate(),
		PaymentRequestID: request.ID,
		CreatorID:        creatorID,
		Provider:         s.processor.Name(),
		AmountMinor:      amountMinor,
		Currency:         request.Currency,
		Status:           domain.TransferStatusFailed,
		Error:            &reason,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.InsertTransfer(ctx, s.db, row); err != nil {
		return nil, err
	}
	if _, err := s.requestSvc.MarkFailed(ctx, request.ID.String(), reason); err != nil && !errors.Is(err, requestdomain.ErrInvalidState) {
		return nil, err
	}

	s.emitAudit(ctx, "payout.failed", request.ID, map[string]any{
		"provider": s.processor.Name(),
		"reason":   reason,
	})
	s.recordTransfer(ctx, "rejected")
	s.log.Warn("payout rejected by processor",
		zap.String("payment_request_id", request.ID.String()),
		zap.String("provider", s.processor.Name()),
		zap.String("reason", reason),
	)
	return row, nil
}

// transferWithRetry retries transient processor failures with exponential
// backoff. Rejections and missing credentials are permanent: retrying cannot
// change the answer within one call.
func (s *Service) transferWithRetry(ctx context.Context, req domain.TransferRequest, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	operation := func() (string, error) {
		transferID, err := s.processor.Transfer(ctx, req)
		if err != nil {
			if errors.Is(err, domain.ErrTransferRejected) || errors.Is(err, domain.ErrProcessorDisabled) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return transferID, nil
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
}

// markPaid tolerates losing the race against a concurrent transition; the
// conditional update inside MarkPaid is what guarantees single settlement.
func (s *Service) markPaid(ctx context.Context, paymentRequestID string) error {
	if _, err := s.requestSvc.MarkPaid(ctx, paymentRequestID); err != nil && !errors.Is(err, requestdomain.ErrInvalidState) {
		return err
	}
	return nil
}

func (s *Service) currencyExponent(ctx context.Context, code string) int {
	currency, err := s.referenceRepo.FindCurrency(ctx, code)
	if err != nil {
		s.log.Warn("currency lookup failed, assuming exponent 2",
			zap.String("currency", code),
			zap.Error(err),
		)
		return defaultMinorUnit
	}
	if currency == nil {
		return defaultMinorUnit
	}
	return int(currency.MinorUnit)
}

func (s *Service) accountStatus(creatorID snowflake.ID, account domain.Account) domain.AccountStatus {
	return domain.AccountStatus{
		CreatorID:        creatorID.String(),
		Provider:         s.processor.Name(),
		AccountID:        account.ID,
		DetailsSubmitted: account.DetailsSubmitted,
		PayoutsEnabled:   account.PayoutsEnabled,
	}
}

func (s *Service) emitAudit(ctx context.Context, action string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetType := "creator"
	if strings.HasPrefix(action, "payout.") {
		targetType = "payment_request"
	}
	target := targetID.String()
	_ = s.auditSvc.AuditLog(ctx, "", nil, action, targetType, &target, metadata)
}

func (s *Service) recordTransfer(ctx context.Context, outcome string) {
	s.obsMetrics.RecordPayoutTransfer(ctx, s.processor.Name(), outcome)
}

func rejectionReason(err error) string {
	reason := strings.TrimPrefix(err.Error(), domain.ErrTransferRejected.Error())
	reason = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(reason), ":"))
	if reason == "" {
		return domain.ErrTransferRejected.Error()
	}
	return reason
}

func parseID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, domain.ErrInvalidID
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, domain.ErrInvalidID
	}
	return snowflake.ID(parsed), nil
}
