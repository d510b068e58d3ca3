package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	creatordomain "github.com/smallbiznis/creatorpay/internal/creator/domain"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"github.com/smallbiznis/creatorpay/internal/payout/adapters"
	"github.com/smallbiznis/creatorpay/internal/payout/domain"
	requestdomain "github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	CreatorRepo creatordomain.Repository
	RequestSvc  requestdomain.Service
	AuditSvc    auditdomain.Service
	Adapters    *adapters.Registry
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	creatorRepo creatordomain.Repository
	requestSvc  requestdomain.Service
	auditSvc    auditdomain.Service
	adapters    *adapters.Registry
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) domain.WebhookService {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payout.webhook"),
		genID:       p.GenID,
		repo:        p.Repo,
		creatorRepo: p.CreatorRepo,
		requestSvc:  p.RequestSvc,
		auditSvc:    p.AuditSvc,
		adapters:    p.Adapters,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return domain.ErrInvalidProvider
	}
	adapter, err := s.adapters.Lookup(provider)
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		return domain.ErrInvalidPayload
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, domain.ErrEventIgnored) {
			return nil
		}
		return err
	}
	if err := validateEvent(event); err != nil {
		return err
	}
	event.Provider = provider

	now := time.Now().UTC()
	received := domain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return domain.ErrEventProcessed
		}
	}

	if err := s.processEvent(ctx, event); err != nil {
		return err
	}

	if err := s.repo.MarkEventProcessed(ctx, s.db, stored.ID, now); err != nil {
		return err
	}

	if inserted {
		s.obsMetrics.RecordWebhookEvent(ctx, provider, event.Type)
	}
	return nil
}

func validateEvent(event *domain.WebhookEvent) error {
	if event == nil {
		return domain.ErrInvalidEvent
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return domain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	switch event.Type {
	case domain.EventTypeAccountUpdated:
		if strings.TrimSpace(event.AccountID) == "" {
			return domain.ErrInvalidEvent
		}
	case domain.EventTypeTransferFailed:
		if strings.TrimSpace(event.TransferID) == "" && strings.TrimSpace(event.Reference) == "" {
			return domain.ErrInvalidEvent
		}
	default:
		return domain.ErrInvalidEvent
	}
	return nil
}

func (s *Service) processEvent(ctx context.Context, event *domain.WebhookEvent) error {
	switch event.Type {
	case domain.EventTypeAccountUpdated:
		return s.applyAccountUpdate(ctx, event)
	case domain.EventTypeTransferFailed:
		return s.applyTransferFailure(ctx, event)
	default:
		return domain.ErrInvalidEvent
	}
}

func (s *Service) applyAccountUpdate(ctx context.Context, event *domain.WebhookEvent) error {
	creator, err := s.creatorRepo.FindByPayoutAccountID(ctx, s.db, event.AccountID)
	if err != nil {
		return err
	}
	if creator == nil {
		// Accounts created outside this application also emit updates.
		s.log.Warn("payout account update for unknown account",
			zap.String("provider", event.Provider),
			zap.String("payout_account_id", event.AccountID),
		)
		return nil
	}
	if creator.PayoutDetailsSubmitted == event.DetailsSubmitted && creator.PayoutsEnabled == event.PayoutsEnabled {
		return nil
	}

	if err := s.creatorRepo.UpdatePayoutAccount(ctx, s.db, creator.ID, event.AccountID, event.DetailsSubmitted, event.PayoutsEnabled); err != nil {
		return err
	}

	s.emitAudit(ctx, "payout_account.updated", "creator", creator.ID.String(), map[string]any{
		"provider":          event.Provider,
		"payout_account_id": event.AccountID,
		"details_submitted": event.DetailsSubmitted,
		"payouts_enabled":   event.PayoutsEnabled,
	})
	s.log.Info("payout account capabilities updated",
		zap.String("creator_id", creator.ID.String()),
		zap.String("provider", event.Provider),
		zap.Bool("details_submitted", event.DetailsSubmitted),
		zap.Bool("payouts_enabled", event.PayoutsEnabled),
	)
	return nil
}

// applyTransferFailure records the provider-side failure and, when the
// request has not settled yet, fails it. A request already marked paid stays
// paid: terminal states never transition, so the audit event is the signal
// for manual review.
func (s *Service) applyTransferFailure(ctx context.Context, event *domain.WebhookEvent) error {
	reason := strings.TrimSpace(event.FailureReason)
	if reason == "" {
		reason = domain.EventTypeTransferFailed
	}

	transferID := strings.TrimSpace(event.TransferID)
	if transferID != "" {
		if _, err := s.repo.MarkTransferFailed(ctx, s.db, event.Provider, transferID, reason, time.Now().UTC()); err != nil {
			return err
		}
	}

	requestID, err := s.resolveRequestID(ctx, event)
	if err != nil {
		return err
	}
	if requestID == 0 {
		s.log.Warn("transfer failure not linked to a payment request",
			zap.String("provider", event.Provider),
			zap.String("provider_transfer_id", transferID),
		)
		return nil
	}

	settled := false
	if _, err := s.requestSvc.MarkFailed(ctx, requestID.String(), reason); err != nil {
		switch {
		case errors.Is(err, requestdomain.ErrInvalidState):
			settled = true
		case errors.Is(err, requestdomain.ErrNotFound):
			s.log.Warn("transfer failure references a missing payment request",
				zap.String("provider", event.Provider),
				zap.String("payment_request_id", requestID.String()),
			)
			return nil
		default:
			return err
		}
	}

	s.emitAudit(ctx, "payout.transfer_failed", "payment_request", requestID.String(), map[string]any{
		"provider":             event.Provider,
		"provider_transfer_id": transferID,
		"reason":               reason,
		"needs_review":         settled,
	})
	if settled {
		s.log.Warn("transfer failed after request settled, manual review needed",
			zap.String("provider", event.Provider),
			zap.String("payment_request_id", requestID.String()),
			zap.String("reason", reason),
		)
	} else {
		s.log.Info("payment request failed from transfer webhook",
			zap.String("provider", event.Provider),
			zap.String("payment_request_id", requestID.String()),
			zap.String("reason", reason),
		)
	}
	return nil
}

// resolveRequestID prefers the reference round-tripped through provider
// metadata and falls back to the recorded transfer row.
func (s *Service) resolveRequestID(ctx context.Context, event *domain.WebhookEvent) (snowflake.ID, error) {
	if reference := strings.TrimSpace(event.Reference); reference != "" {
		if parsed, err := strconv.ParseInt(reference, 10, 64); err == nil && parsed > 0 {
			return snowflake.ID(parsed), nil
		}
	}

	transferID := strings.TrimSpace(event.TransferID)
	if transferID == "" {
		return 0, nil
	}
	transfer, err := s.repo.FindTransferByProviderID(ctx, s.db, event.Provider, transferID)
	if err != nil {
		return 0, err
	}
	if transfer == nil {
		return 0, nil
	}
	return transfer.PaymentRequestID, nil
}

func (s *Service) emitAudit(ctx context.Context, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, "", nil, action, targetType, &targetID, metadata)
}
