package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	"github.com/smallbiznis/creatorpay/internal/config"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
	emailprovider "github.com/smallbiznis/creatorpay/internal/providers/email"
	"github.com/smallbiznis/creatorpay/internal/vat"
	"github.com/smallbiznis/creatorpay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Cfg      config.Config
	Repo     domain.Repository
	AuditSvc auditdomain.Service
	Metrics  *obsmetrics.Metrics
	Email    emailprovider.Provider `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	cfg      config.Config
	repo     domain.Repository
	auditSvc auditdomain.Service
	metrics  *obsmetrics.Metrics
	email    emailprovider.Provider
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("paymentrequest.service"),
		genID:    p.GenID,
		cfg:      p.Cfg,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
		email:    p.Email,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.PaymentRequest, error) {
	creatorID, err := parseID(req.CreatorID)
	if err != nil {
		return domain.PaymentRequest{}, domain.ErrInvalidID
	}
	if req.BaseAmount.IsNegative() {
		return domain.PaymentRequest{}, domain.ErrInvalidAmount
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return domain.PaymentRequest{}, err
	}

	creator, err := s.loadCreator(ctx, creatorID)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	if creator == nil {
		return domain.PaymentRequest{}, domain.ErrCreatorNotFound
	}

	// VAT values are frozen here from the creator's current profile and are
	// never touched again, even if the profile changes afterwards.
	result := vat.Classify(req.BaseAmount, creator.CountryCode, vat.BusinessCategory(creator.BusinessCategory))

	token, err := generateToken()
	if err != nil {
		return domain.PaymentRequest{}, err
	}

	now := time.Now().UTC()
	var dueAt *time.Time
	if req.DueAt != nil {
		due := req.DueAt.UTC()
		dueAt = &due
	}

	request := domain.PaymentRequest{
		ID:             s.genID.Generate(),
		CreatorID:      creatorID,
		Description:    strings.TrimSpace(req.Description),
		Currency:       currency,
		BaseAmount:     req.BaseAmount,
		VATRate:        result.Rate,
		VATAmount:      result.VATAmount,
		TotalAmount:    result.Total,
		ReverseCharged: result.ReverseCharged,
		VATExplanation: result.Explanation,
		Status:         domain.StatusPending,
		ClaimToken:     token,
		DueAt:          dueAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &request); err != nil {
		return domain.PaymentRequest{}, err
	}

	s.metrics.RecordVATClassification(ctx, result.Rule)
	s.emitAudit(ctx, "payment_request.created", &request, map[string]any{
		"vat_rate":        request.VATRate.String(),
		"vat_amount":      request.VATAmount.String(),
		"reverse_charged": request.ReverseCharged,
	})
	s.log.Info("payment request created",
		zap.String("payment_request_id", request.ID.String()),
		zap.String("creator_id", creatorID.String()),
		zap.String("total_amount", request.TotalAmount.String()),
		zap.String("currency", currency),
	)

	s.notifyCreator(ctx, creator, &request)
	return request, nil
}

// notifyCreator emails the claim link. Delivery is best effort: the request
// already exists and the link stays available through the admin API.
func (s *Service) notifyCreator(ctx context.Context, creator *creatorRow, request *domain.PaymentRequest) {
	if s.email == nil || creator.Email == "" {
		return
	}
	err := s.email.SendClaimLink(ctx, emailprovider.ClaimLinkEmail{
		To:          creator.Email,
		CreatorName: creator.Name,
		Description: request.Description,
		TotalAmount: request.TotalAmount,
		Currency:    request.Currency,
		ClaimURL:    s.cfg.BaseURL + "/public/claims/" + request.ClaimToken,
		DueAt:       request.DueAt,
	})
	if err != nil {
		s.log.Warn("claim email not sent",
			zap.String("payment_request_id", request.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) Claim(ctx context.Context, token string) (domain.PaymentRequest, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		s.metrics.RecordClaimAttempt(ctx, "not_found")
		return domain.PaymentRequest{}, domain.ErrNotFound
	}

	updated, err := s.repo.ClaimByToken(ctx, s.db, token, time.Now().UTC())
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	if !updated {
		// Either the token is unknown or the request already left pending;
		// load once to tell the two apart.
		request, err := s.repo.FindByToken(ctx, s.db, token)
		if err != nil {
			return domain.PaymentRequest{}, err
		}
		if request == nil {
			s.metrics.RecordClaimAttempt(ctx, "not_found")
			return domain.PaymentRequest{}, domain.ErrNotFound
		}
		s.metrics.RecordClaimAttempt(ctx, "invalid_state")
		return domain.PaymentRequest{}, domain.ErrInvalidState
	}

	request, err := s.repo.FindByToken(ctx, s.db, token)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	if request == nil {
		return domain.PaymentRequest{}, domain.ErrNotFound
	}

	s.metrics.RecordClaimAttempt(ctx, "claimed")
	obsmetrics.Worker().IncRequestTransition(string(domain.StatusPending), string(domain.StatusClaimed))
	s.emitAudit(ctx, "payment_request.claimed", request, map[string]any{
		"previous_status": string(domain.StatusPending),
	})
	s.log.Info("payment request claimed",
		zap.String("payment_request_id", request.ID.String()),
		zap.String("creator_id", request.CreatorID.String()),
	)
	return *request, nil
}

func (s *Service) MarkPaid(ctx context.Context, id string) (domain.PaymentRequest, error) {
	requestID, err := parseID(id)
	if err != nil {
		return domain.PaymentRequest{}, domain.ErrInvalidID
	}

	request, err := s.repo.FindByID(ctx, s.db, requestID)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	if request == nil {
		return domain.PaymentRequest{}, domain.ErrNotFound
	}
	if request.Status.Terminal() {
		return domain.PaymentRequest{}, domain.ErrInvalidState
	}
	previous := request.Status

	updated, err := s.repo.MarkPaid(ctx, s.db, requestID, time.Now().UTC())
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	if !updated {
		// Lost a race against a concurrent transition.
		return domain.PaymentRequest{}, domain.ErrInvalidState
	}

	request, err = s.repo.FindByID(ctx, s.db, requestID)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	if request == nil {
		return domain.PaymentRequest{}, domain.ErrNotFound
	}

	obsmetrics.Worker().IncRequestTransition(string(previous), string(domain.StatusPaid))
	s.emitAudit(ctx, "payment_request.paid", request, map[string]any{
		"previous_status": string(previous),
	})
	s.log.Info("payment request paid",
		zap.String("payment_request_id", request.ID.String()),
		zap.String("previous_status", string(previous)),
	)
	return *request, nil
}

func (s *Service) MarkFailed(ctx context.Context, id string, reason string) (domain.PaymentRequest, error) {
	requestID, err := parseID(id)
	if err != nil {
		return domain.PaymentRequest{}, domain.ErrInvalidID
	}
	reason = strings.TrimSpace(reason)

	request, err := s.repo.FindByID(ctx, s.db, requestID)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	if request == nil {
		return domain.PaymentRequest{}, domain.ErrNotFound
	}
	if request.Status.Terminal() {
		return domain.PaymentRequest{}, domain.ErrInvalidState
	}
	previous := request.Status

	updated, err := s.repo.MarkFailed(ctx, s.db, requestID, reason, time.Now().UTC())
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	if !updated {
		return domain.PaymentRequest{}, domain.ErrInvalidState
	}

	request, err = s.repo.FindByID(ctx, s.db, requestID)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	if request == nil {
		return domain.PaymentRequest{}, domain.ErrNotFound
	}

	obsmetrics.Worker().IncRequestTransition(string(previous), string(domain.StatusFailed))
	metadata := map[string]any{
		"previous_status": string(previous),
	}
	if reason != "" {
		metadata["reason"] = reason
	}
	s.emitAudit(ctx, "payment_request.failed", request, metadata)
	s.log.Info("payment request failed",
		zap.String("payment_request_id", request.ID.String()),
		zap.String("previous_status", string(previous)),
		zap.String("reason", reason),
	)
	return *request, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.PaymentRequest, error) {
	requestID, err := parseID(id)
	if err != nil {
		return domain.PaymentRequest{}, domain.ErrInvalidID
	}
	request, err := s.repo.FindByID(ctx, s.db, requestID)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	if request == nil {
		return domain.PaymentRequest{}, domain.ErrNotFound
	}
	return *request, nil
}

func (s *Service) GetByToken(ctx context.Context, token string) (domain.PaymentRequest, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.PaymentRequest{}, domain.ErrNotFound
	}
	request, err := s.repo.FindByToken(ctx, s.db, token)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	if request == nil {
		return domain.PaymentRequest{}, domain.ErrNotFound
	}
	return *request, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
	}
	if strings.TrimSpace(req.CreatorID) != "" {
		creatorID, err := parseID(req.CreatorID)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidID
		}
		filter.CreatorID = creatorID
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		return domain.ListResponse{}, err
	}
	filter.Status = status

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(request *domain.PaymentRequest) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        request.ID.String(),
			CreatedAt: request.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	requests := make([]domain.PaymentRequest, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		requests = append(requests, *item)
	}

	resp := domain.ListResponse{PaymentRequests: requests}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

type creatorRow struct {
	ID               snowflake.ID `gorm:"column:id"`
	Name             string       `gorm:"column:name"`
	Email            string       `gorm:"column:email"`
	CountryCode      string       `gorm:"column:country_code"`
	BusinessCategory string       `gorm:"column:business_category"`
}

func (s *Service) loadCreator(ctx context.Context, id snowflake.ID) (*creatorRow, error) {
	var row creatorRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, name, email, country_code, business_category FROM creators WHERE id = ?`,
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

func (s *Service) emitAudit(ctx context.Context, action string, request *domain.PaymentRequest, extra map[string]any) {
	if s.auditSvc == nil || request == nil {
		return
	}
	metadata := map[string]any{
		"creator_id":   request.CreatorID.String(),
		"currency":     request.Currency,
		"base_amount":  request.BaseAmount.String(),
		"total_amount": request.TotalAmount.String(),
		"status":       string(request.Status),
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := request.ID.String()
	_ = s.auditSvc.AuditLog(ctx, "", nil, action, "payment_request", &targetID, metadata)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func normalizeCurrency(raw string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if currency == "" {
		return "EUR", nil
	}
	if len(currency) != 3 {
		return "", domain.ErrInvalidCurrency
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", domain.ErrInvalidCurrency
		}
	}
	return currency, nil
}

func parseStatus(raw string) (domain.Status, error) {
	status := domain.Status(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case "", domain.StatusPending, domain.StatusClaimed, domain.StatusPaid, domain.StatusFailed:
		return status, nil
	}
	return "", domain.ErrInvalidStatus
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
