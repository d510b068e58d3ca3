package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type attachInvoiceRequest struct {
	StorageRef string `json:"storage_ref"`
}

type invoiceValidationRequest struct {
	Verdict string `json:"verdict"`
	Detail  string `json:"detail"`
}

// AttachInvoice records an externally uploaded invoice document against a
// payment request. The document itself lives in storage; only the reference
// is kept here.
func (s *Server) AttachInvoice(c *gin.Context) {
	var req attachInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	requestID := strings.TrimSpace(c.Param("request_id"))
	resp, err := s.invoiceSvc.AttachUploaded(c.Request.Context(), requestID, strings.TrimSpace(req.StorageRef))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GenerateInvoice(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("request_id"))
	resp, err := s.invoiceSvc.Generate(c.Request.Context(), requestID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPaymentRequestInvoices(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("request_id"))
	resp, err := s.invoiceSvc.ListByPaymentRequest(c.Request.Context(), requestID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RecordInvoiceValidation is the callback endpoint for the external invoice
// validator.
func (s *Server) RecordInvoiceValidation(c *gin.Context) {
	var req invoiceValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoiceID := strings.TrimSpace(c.Param("invoice_id"))
	resp, err := s.invoiceSvc.RecordValidation(c.Request.Context(), invoiceID, strings.TrimSpace(req.Verdict), strings.TrimSpace(req.Detail))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
