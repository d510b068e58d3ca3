package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	creatordomain "github.com/smallbiznis/creatorpay/internal/creator/domain"
	"github.com/smallbiznis/creatorpay/internal/observability/logger"
	requestdomain "github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
	"github.com/smallbiznis/creatorpay/pkg/money"
	"go.uber.org/zap"
)

// claimView is what a creator sees when they open their claim link. It
// exposes no identifiers beyond the token the caller already holds.
type claimView struct {
	Status         string     `json:"status"`
	CreatorName    string     `json:"creator_name"`
	CompanyName    string     `json:"company_name,omitempty"`
	Description    string     `json:"description,omitempty"`
	Currency       string     `json:"currency"`
	BaseAmount     string     `json:"base_amount"`
	VATRate        string     `json:"vat_rate"`
	VATAmount      string     `json:"vat_amount"`
	TotalAmount    string     `json:"total_amount"`
	ReverseCharged bool       `json:"reverse_charged"`
	VATExplanation string     `json:"vat_explanation"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

func (s *Server) GetClaim(c *gin.Context) {
	token := strings.TrimSpace(c.Param("claim_token"))
	if token == "" {
		AbortWithError(c, requestdomain.ErrNotFound)
		return
	}

	if !s.allowClaim(c, s.claimViewLimiter, claimRateKey(token, c.ClientIP())) {
		return
	}

	resp, err := s.requestSvc.GetByToken(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.buildClaimView(c, resp)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) AcceptClaim(c *gin.Context) {
	token := strings.TrimSpace(c.Param("claim_token"))
	if token == "" {
		AbortWithError(c, requestdomain.ErrNotFound)
		return
	}

	if !s.allowClaim(c, s.claimAcceptLimiter, claimRateKey(token, c.ClientIP())) {
		s.obsMetrics.RecordClaimAttempt(c.Request.Context(), "rate_limited")
		return
	}

	resp, err := s.requestSvc.Claim(c.Request.Context(), token)
	if err != nil {
		s.obsMetrics.RecordClaimAttempt(c.Request.Context(), claimOutcome(err))
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordClaimAttempt(c.Request.Context(), "accepted")

	view, err := s.buildClaimView(c, resp)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

// allowClaim runs both throttles: the per-instance sliding window, then the
// shared redis bucket. Redis trouble fails open because the in-memory
// limiter already holds the line for this instance.
func (s *Server) allowClaim(c *gin.Context, local *rateLimiter, key string) bool {
	if !local.Allow(key) {
		s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), c.FullPath(), "instance-window")
		AbortWithError(c, ErrRateLimited)
		return false
	}

	if s.claimLimiter.Enabled() {
		result, err := s.claimLimiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("claim rate limit check failed", zap.Error(err))
		} else if !result.Allowed {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), c.FullPath(), "shared-bucket")
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			}
			AbortWithError(c, ErrRateLimited)
			return false
		}
	}

	s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), c.FullPath())
	return true
}

func (s *Server) buildClaimView(c *gin.Context, request requestdomain.PaymentRequest) (claimView, error) {
	creator, err := s.creatorSvc.GetByID(c.Request.Context(), creatordomain.GetCreatorRequest{
		ID: request.CreatorID.String(),
	})
	if err != nil {
		return claimView{}, err
	}

	return claimView{
		Status:         string(request.Status),
		CreatorName:    creator.Name,
		CompanyName:    creator.CompanyName,
		Description:    request.Description,
		Currency:       request.Currency,
		BaseAmount:     money.FormatAmount(request.BaseAmount, request.Currency),
		VATRate:        request.VATRate.String(),
		VATAmount:      money.FormatAmount(request.VATAmount, request.Currency),
		TotalAmount:    money.FormatAmount(request.TotalAmount, request.Currency),
		ReverseCharged: request.ReverseCharged,
		VATExplanation: request.VATExplanation,
		DueAt:          request.DueAt,
		PaidAt:         request.PaidAt,
	}, nil
}

func claimRateKey(token, clientIP string) string {
	return token + "|" + clientIP
}

func claimOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, requestdomain.ErrNotFound):
		return "not_found"
	case errors.Is(err, requestdomain.ErrInvalidState):
		return "conflict"
	default:
		return "error"
	}
}
