package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	requestdomain "github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
)

type createPaymentRequestRequest struct {
	CreatorID   string          `json:"creator_id"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	DueAt       string          `json:"due_at"`
}

type markFailedRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CreatePaymentRequest(c *gin.Context) {
	var req createPaymentRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dueAt, err := parseOptionalTime(req.DueAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("due_at", "invalid_due_at", "invalid due_at"))
		return
	}

	resp, err := s.requestSvc.Create(c.Request.Context(), requestdomain.CreateRequest{
		CreatorID:   strings.TrimSpace(req.CreatorID),
		BaseAmount:  req.BaseAmount,
		Currency:    strings.TrimSpace(req.Currency),
		Description: strings.TrimSpace(req.Description),
		DueAt:       dueAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp, "claim_url": s.claimURL(resp.ClaimToken)})
}

func (s *Server) ListPaymentRequests(c *gin.Context) {
	var query struct {
		PageToken   string `form:"page_token"`
		PageSize    int32  `form:"page_size"`
		CreatorID   string `form:"creator_id"`
		Status      string `form:"status"`
		CreatedFrom string `form:"created_from"`
		CreatedTo   string `form:"created_to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	createdFrom, err := parseOptionalTime(query.CreatedFrom, false)
	if err != nil {
		AbortWithError(c, newValidationError("created_from", "invalid_created_from", "invalid created_from"))
		return
	}

	createdTo, err := parseOptionalTime(query.CreatedTo, true)
	if err != nil {
		AbortWithError(c, newValidationError("created_to", "invalid_created_to", "invalid created_to"))
		return
	}

	resp, err := s.requestSvc.List(c.Request.Context(), requestdomain.ListRequest{
		PageToken:   strings.TrimSpace(query.PageToken),
		PageSize:    query.PageSize,
		CreatorID:   strings.TrimSpace(query.CreatorID),
		Status:      strings.TrimSpace(query.Status),
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPaymentRequestByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("request_id"))
	resp, err := s.requestSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MarkPaymentRequestPaid(c *gin.Context) {
	id := strings.TrimSpace(c.Param("request_id"))
	resp, err := s.requestSvc.MarkPaid(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MarkPaymentRequestFailed(c *gin.Context) {
	var req markFailedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		AbortWithError(c, newValidationError("reason", "required", "reason is required"))
		return
	}

	id := strings.TrimSpace(c.Param("request_id"))
	resp, err := s.requestSvc.MarkFailed(c.Request.Context(), id, reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ProcessPayout runs a payout synchronously for one claimed request. The
// worker does the same thing on a schedule; this endpoint exists so an
// operator can push a single request through without waiting for the next
// tick.
func (s *Server) ProcessPayout(c *gin.Context) {
	id := strings.TrimSpace(c.Param("request_id"))
	transfer, err := s.payoutSvc.Process(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": transfer})
}

func (s *Server) claimURL(token string) string {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	return base + "/public/claims/" + token
}
