package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	creatordomain "github.com/smallbiznis/creatorpay/internal/creator/domain"
	requestdomain "github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
	"github.com/smallbiznis/creatorpay/internal/vat"
)

type fakeRequestService struct {
	request    requestdomain.PaymentRequest
	getErr     error
	claimErr   error
	claimCalls int
}

func (f *fakeRequestService) Create(ctx context.Context, req requestdomain.CreateRequest) (requestdomain.PaymentRequest, error) {
	_ = ctx
	_ = req
	return f.request, nil
}

func (f *fakeRequestService) Claim(ctx context.Context, token string) (requestdomain.PaymentRequest, error) {
	f.claimCalls++
	_ = ctx
	_ = token
	if f.claimErr != nil {
		return requestdomain.PaymentRequest{}, f.claimErr
	}
	claimed := f.request
	claimed.Status = requestdomain.StatusClaimed
	return claimed, nil
}

func (f *fakeRequestService) MarkPaid(ctx context.Context, id string) (requestdomain.PaymentRequest, error) {
	_ = ctx
	_ = id
	return f.request, nil
}

func (f *fakeRequestService) MarkFailed(ctx context.Context, id string, reason string) (requestdomain.PaymentRequest, error) {
	_ = ctx
	_ = id
	_ = reason
	return f.request, nil
}

func (f *fakeRequestService) Get(ctx context.Context, id string) (requestdomain.PaymentRequest, error) {
	_ = ctx
	_ = id
	return f.request, f.getErr
}

func (f *fakeRequestService) GetByToken(ctx context.Context, token string) (requestdomain.PaymentRequest, error) {
	_ = ctx
	_ = token
	if f.getErr != nil {
		return requestdomain.PaymentRequest{}, f.getErr
	}
	return f.request, nil
}

func (f *fakeRequestService) List(ctx context.Context, req requestdomain.ListRequest) (requestdomain.ListResponse, error) {
	_ = ctx
	_ = req
	return requestdomain.ListResponse{}, nil
}

type fakeCreatorService struct {
	creator creatordomain.Creator
}

func (f *fakeCreatorService) Create(ctx context.Context, req creatordomain.CreateCreatorRequest) (creatordomain.Creator, error) {
	_ = ctx
	_ = req
	return f.creator, nil
}

func (f *fakeCreatorService) Update(ctx context.Context, req creatordomain.UpdateCreatorRequest) (creatordomain.Creator, error) {
	_ = ctx
	_ = req
	return f.creator, nil
}

func (f *fakeCreatorService) List(ctx context.Context, req creatordomain.ListCreatorRequest) (creatordomain.ListCreatorResponse, error) {
	_ = ctx
	_ = req
	return creatordomain.ListCreatorResponse{}, nil
}

func (f *fakeCreatorService) GetByID(ctx context.Context, req creatordomain.GetCreatorRequest) (creatordomain.Creator, error) {
	_ = ctx
	_ = req
	return f.creator, nil
}

func dutchRequest() requestdomain.PaymentRequest {
	return requestdomain.PaymentRequest{
		ID:             snowflake.ID(42),
		CreatorID:      snowflake.ID(7),
		Description:    "March sponsorship",
		Currency:       "EUR",
		BaseAmount:     decimal.RequireFromString("100"),
		VATRate:        decimal.RequireFromString("0.21"),
		VATAmount:      decimal.RequireFromString("21"),
		TotalAmount:    decimal.RequireFromString("121"),
		VATExplanation: "Dutch VAT 21% applied",
		Status:         requestdomain.StatusPending,
		ClaimToken:     "tok_abc",
	}
}

func newClaimsTestServer(requestSvc requestdomain.Service) (*Server, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	srv := &Server{
		requestSvc: requestSvc,
		creatorSvc: &fakeCreatorService{
			creator: creatordomain.Creator{
				ID:               snowflake.ID(7),
				Name:             "Anna de Vries",
				CompanyName:      "De Vries Media BV",
				CountryCode:      "NL",
				BusinessCategory: vat.CategoryVATRegistered,
			},
		},
		claimViewLimiter:   newRateLimiter(30, time.Minute),
		claimAcceptLimiter: newRateLimiter(5, time.Minute),
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/public/claims/:claim_token", srv.GetClaim)
	router.POST("/public/claims/:claim_token/accept", srv.AcceptClaim)
	return srv, router
}

func TestGetClaimRendersFormattedView(t *testing.T) {
	_, router := newClaimsTestServer(&fakeRequestService{request: dutchRequest()})

	req := httptest.NewRequest(http.MethodGet, "/public/claims/tok_abc", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Data claimView `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if body.Data.CreatorName != "Anna de Vries" {
		t.Fatalf("expected creator name in view, got %q", body.Data.CreatorName)
	}
	if body.Data.TotalAmount != "121.00 EUR" {
		t.Fatalf("expected formatted total, got %q", body.Data.TotalAmount)
	}
	if body.Data.VATAmount != "21.00 EUR" {
		t.Fatalf("expected formatted vat amount, got %q", body.Data.VATAmount)
	}
	if body.Data.VATExplanation == "" {
		t.Fatal("expected vat explanation in view")
	}
}

func TestGetClaimUnknownTokenReturns404(t *testing.T) {
	_, router := newClaimsTestServer(&fakeRequestService{getErr: requestdomain.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/public/claims/tok_missing", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Code != "payment_request_not_found" {
		t.Fatalf("expected payment_request_not_found, got %q", body.Code)
	}
}

func TestAcceptClaimReturnsClaimedView(t *testing.T) {
	svc := &fakeRequestService{request: dutchRequest()}
	_, router := newClaimsTestServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/public/claims/tok_abc/accept", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.claimCalls != 1 {
		t.Fatalf("expected one claim call, got %d", svc.claimCalls)
	}

	var body struct {
		Data claimView `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Status != string(requestdomain.StatusClaimed) {
		t.Fatalf("expected claimed status, got %q", body.Data.Status)
	}
}

func TestAcceptClaimConflictOnReclaim(t *testing.T) {
	_, router := newClaimsTestServer(&fakeRequestService{claimErr: requestdomain.ErrInvalidState})

	req := httptest.NewRequest(http.MethodPost, "/public/claims/tok_abc/accept", nil)
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
	if body.Code != "invalid_state" {
		t.Fatalf("expected invalid_state, got %q", body.Code)
	}
}

func TestAcceptClaimRateLimited(t *testing.T) {
	srv, router := newClaimsTestServer(&fakeRequestService{request: dutchRequest()})
	srv.claimAcceptLimiter = newRateLimiter(1, time.Minute)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/public/claims/tok_abc/accept", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first accept to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/public/claims/tok_abc/accept", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
}
