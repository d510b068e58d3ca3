package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	creatordomain "github.com/smallbiznis/creatorpay/internal/creator/domain"
)

type createCreatorRequest struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	CountryCode      string `json:"country_code"`
	BusinessCategory string `json:"business_category"`
	VATNumber        string `json:"vat_number"`
	CompanyName      string `json:"company_name"`
}

type updateCreatorRequest struct {
	Name             *string `json:"name"`
	CountryCode      *string `json:"country_code"`
	BusinessCategory *string `json:"business_category"`
	VATNumber        *string `json:"vat_number"`
	CompanyName      *string `json:"company_name"`
}

func (s *Server) CreateCreator(c *gin.Context) {
	var req createCreatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.creatorSvc.Create(c.Request.Context(), creatordomain.CreateCreatorRequest{
		Name:             strings.TrimSpace(req.Name),
		Email:            strings.TrimSpace(req.Email),
		CountryCode:      strings.TrimSpace(req.CountryCode),
		BusinessCategory: strings.TrimSpace(req.BusinessCategory),
		VATNumber:        strings.TrimSpace(req.VATNumber),
		CompanyName:      strings.TrimSpace(req.CompanyName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), "", nil, "creator.created", "creator", &targetID, map[string]any{
			"email":             resp.Email,
			"country_code":      resp.CountryCode,
			"business_category": string(resp.BusinessCategory),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCreators(c *gin.Context) {
	var query struct {
		PageToken        string `form:"page_token"`
		PageSize         int32  `form:"page_size"`
		Email            string `form:"email"`
		CountryCode      string `form:"country_code"`
		BusinessCategory string `form:"business_category"`
		PayoutsEnabled   string `form:"payouts_enabled"`
		CreatedFrom      string `form:"created_from"`
		CreatedTo        string `form:"created_to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payoutsEnabled, err := parseOptionalBool(query.PayoutsEnabled)
	if err != nil {
		AbortWithError(c, newValidationError("payouts_enabled", "invalid_payouts_enabled", "invalid payouts_enabled"))
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

	resp, err := s.creatorSvc.List(c.Request.Context(), creatordomain.ListCreatorRequest{
		PageToken:        strings.TrimSpace(query.PageToken),
		PageSize:         query.PageSize,
		Email:            strings.TrimSpace(query.Email),
		CountryCode:      strings.TrimSpace(query.CountryCode),
		BusinessCategory: strings.TrimSpace(query.BusinessCategory),
		PayoutsEnabled:   payoutsEnabled,
		CreatedFrom:      createdFrom,
		CreatedTo:        createdTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCreatorByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("creator_id"))
	resp, err := s.creatorSvc.GetByID(c.Request.Context(), creatordomain.GetCreatorRequest{ID: id})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateCreator(c *gin.Context) {
	var req updateCreatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.creatorSvc.Update(c.Request.Context(), creatordomain.UpdateCreatorRequest{
		ID:               strings.TrimSpace(c.Param("creator_id")),
		Name:             req.Name,
		CountryCode:      req.CountryCode,
		BusinessCategory: req.BusinessCategory,
		VATNumber:        req.VATNumber,
		CompanyName:      req.CompanyName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), "", nil, "creator.updated", "creator", &targetID, map[string]any{
			"country_code":      resp.CountryCode,
			"business_category": string(resp.BusinessCategory),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) EnsurePayoutAccount(c *gin.Context) {
	id := strings.TrimSpace(c.Param("creator_id"))
	status, err := s.payoutSvc.EnsureAccount(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}

func (s *Server) RefreshPayoutAccount(c *gin.Context) {
	id := strings.TrimSpace(c.Param("creator_id"))
	status, err := s.payoutSvc.RefreshAccount(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}
