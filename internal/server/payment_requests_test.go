package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creatorpay/internal/config"
	payoutdomain "github.com/smallbiznis/creatorpay/internal/payout/domain"
)

type fakePayoutService struct {
	transfer   *payoutdomain.PayoutTransfer
	processErr error
	processed  []string
}

func (f *fakePayoutService) EnsureAccount(ctx context.Context, creatorID string) (payoutdomain.AccountStatus, error) {
	_ = ctx
	return payoutdomain.AccountStatus{CreatorID: creatorID}, nil
}

func (f *fakePayoutService) RefreshAccount(ctx context.Context, creatorID string) (payoutdomain.AccountStatus, error) {
	_ = ctx
	return payoutdomain.AccountStatus{CreatorID: creatorID}, nil
}

func (f *fakePayoutService) Process(ctx context.Context, paymentRequestID string) (*payoutdomain.PayoutTransfer, error) {
	_ = ctx
	f.processed = append(f.processed, paymentRequestID)
	if f.processErr != nil {
		return nil, f.processErr
	}
	return f.transfer, nil
}

func newRequestsTestServer(srv *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/payment-requests", srv.CreatePaymentRequest)
	router.POST("/api/payment-requests/:request_id/mark-failed", srv.MarkPaymentRequestFailed)
	router.POST("/api/payment-requests/:request_id/payout", srv.ProcessPayout)
	return router
}

func TestCreatePaymentRequestReturnsClaimLink(t *testing.T) {
	router := newRequestsTestServer(&Server{
		cfg:        config.Config{BaseURL: "https://pay.example.com"},
		requestSvc: &fakeRequestService{request: dutchRequest()},
	})

	payload := `{"creator_id":"7","base_amount":"100","currency":"EUR","description":"March sponsorship"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payment-requests", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		ClaimURL string `json:"claim_url"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ClaimURL != "https://pay.example.com/public/claims/tok_abc" {
		t.Fatalf("unexpected claim url %q", body.ClaimURL)
	}
}

func TestMarkPaymentRequestFailedRequiresReason(t *testing.T) {
	router := newRequestsTestServer(&Server{
		requestSvc: &fakeRequestService{request: dutchRequest()},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/payment-requests/42/mark-failed", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}

	var body struct {
		Code   string `json:"code"`
		Errors []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %q", body.Code)
	}
	if len(body.Errors) != 1 || body.Errors[0].Field != "reason" {
		t.Fatalf("expected reason field error, got %+v", body.Errors)
	}
}

func TestProcessPayoutMapsGuardsToConflict(t *testing.T) {
	payoutSvc := &fakePayoutService{processErr: payoutdomain.ErrNoPayoutAccount}
	router := newRequestsTestServer(&Server{payoutSvc: payoutSvc})

	req := httptest.NewRequest(http.MethodPost, "/api/payment-requests/42/payout", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Code != "payout_account_missing" {
		t.Fatalf("expected payout_account_missing, got %q", body.Code)
	}
}

func TestProcessPayoutReturnsTransfer(t *testing.T) {
	payoutSvc := &fakePayoutService{
		transfer: &payoutdomain.PayoutTransfer{
			Provider:           "stripe",
			ProviderTransferID: "tr_123",
			AmountMinor:        12100,
			Currency:           "EUR",
			Status:             payoutdomain.TransferStatusCreated,
		},
	}
	router := newRequestsTestServer(&Server{payoutSvc: payoutSvc})

	req := httptest.NewRequest(http.MethodPost, "/api/payment-requests/42/payout", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(payoutSvc.processed) != 1 || payoutSvc.processed[0] != "42" {
		t.Fatalf("expected process call for request 42, got %v", payoutSvc.processed)
	}
}
