package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/apikey"
	apikeydomain "github.com/smallbiznis/creatorpay/internal/apikey/domain"
	"github.com/smallbiznis/creatorpay/internal/audit"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	"github.com/smallbiznis/creatorpay/internal/authorization"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/cloudmetrics"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/creator"
	creatordomain "github.com/smallbiznis/creatorpay/internal/creator/domain"
	"github.com/smallbiznis/creatorpay/internal/invoice"
	invoicedomain "github.com/smallbiznis/creatorpay/internal/invoice/domain"
	"github.com/smallbiznis/creatorpay/internal/observability"
	"github.com/smallbiznis/creatorpay/internal/paymentrequest"
	requestdomain "github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
	"github.com/smallbiznis/creatorpay/internal/payout"
	payoutdomain "github.com/smallbiznis/creatorpay/internal/payout/domain"
	"github.com/smallbiznis/creatorpay/internal/providers"
	"github.com/smallbiznis/creatorpay/internal/ratelimit"
	"github.com/smallbiznis/creatorpay/internal/reference"
	referencedomain "github.com/smallbiznis/creatorpay/internal/reference/domain"
	"github.com/smallbiznis/creatorpay/internal/seed"
	"github.com/smallbiznis/creatorpay/internal/server"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type testEnv struct {
	app     *fx.App
	server  *server.Server
	db      *gorm.DB
	baseURL string
	apiKey  string
	httpSrv *httptest.Server
}

var env *testEnv

var emailSeq int64

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/healthz")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_APIKeyAuthentication(t *testing.T) {
	client := newHTTPClient()

	resp, body := doJSON(t, client, http.MethodGet, env.baseURL+"/api/creators", nil, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 with valid key, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/api/creators", nil, map[string]string{
		"Authorization": "Bearer cp_live_key_invalid",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for invalid key, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/api/creators", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without key, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_DutchVATLifecycle(t *testing.T) {
	client := newHTTPClient()
	creatorID := createCreator(t, client, "NL", "vat_registered", "NL123456789B01")

	request, claimURL := createPaymentRequest(t, client, creatorID, "100", "EUR")
	if request.Status != "pending" {
		t.Fatalf("expected pending request, got %s", request.Status)
	}
	if !request.VATRate.Equal(decimal.RequireFromString("0.21")) {
		t.Fatalf("expected vat rate 0.21, got %s", request.VATRate)
	}
	if !request.VATAmount.Equal(decimal.NewFromInt(21)) {
		t.Fatalf("expected vat amount 21, got %s", request.VATAmount)
	}
	if !request.TotalAmount.Equal(decimal.NewFromInt(121)) {
		t.Fatalf("expected total 121, got %s", request.TotalAmount)
	}
	if request.ReverseCharged {
		t.Fatalf("domestic dutch supply must not be reverse charged")
	}
	if request.ClaimToken == "" {
		t.Fatalf("expected claim token on admin response")
	}
	if !strings.HasSuffix(claimURL, "/public/claims/"+request.ClaimToken) {
		t.Fatalf("unexpected claim url: %s", claimURL)
	}

	view := getClaimView(t, client, request.ClaimToken, http.StatusOK)
	if view.Status != "pending" {
		t.Fatalf("expected pending claim view, got %s", view.Status)
	}
	if view.TotalAmount != "121.00 EUR" {
		t.Fatalf("expected total 121.00 EUR, got %s", view.TotalAmount)
	}
	if view.VATAmount != "21.00 EUR" {
		t.Fatalf("expected vat 21.00 EUR, got %s", view.VATAmount)
	}
	if view.VATRate != "0.21" {
		t.Fatalf("expected vat rate 0.21, got %s", view.VATRate)
	}
	if view.CreatorName == "" {
		t.Fatalf("expected creator name on claim view")
	}

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/public/claims/"+request.ClaimToken+"/accept", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept claim failed: %d: %s", resp.StatusCode, string(body))
	}
	accepted := decodeClaimView(t, body)
	if accepted.Status != "claimed" {
		t.Fatalf("expected claimed after accept, got %s", accepted.Status)
	}

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/public/claims/"+request.ClaimToken+"/accept", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for second accept, got %d: %s", resp.StatusCode, string(body))
	}
	if code := decodeErrorCode(t, body); code != "invalid_state" {
		t.Fatalf("expected invalid_state, got %s", code)
	}

	paid := transitionPaymentRequest(t, client, request.ID, "mark-paid", nil, http.StatusOK)
	if paid.Status != "paid" {
		t.Fatalf("expected paid, got %s", paid.Status)
	}
	if paid.PaidAt == nil {
		t.Fatalf("expected paid_at to be set")
	}
	if !paid.TotalAmount.Equal(request.TotalAmount) {
		t.Fatalf("total changed across transitions: %s vs %s", paid.TotalAmount, request.TotalAmount)
	}

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/api/payment-requests/"+request.ID+"/mark-paid", nil, adminHeaders())
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for double mark-paid, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_ReverseChargeAndOutsideScope(t *testing.T) {
	client := newHTTPClient()

	germanID := createCreator(t, client, "DE", "vat_registered", "DE123456789")
	german, _ := createPaymentRequest(t, client, germanID, "250", "EUR")
	if !german.VATRate.IsZero() || !german.VATAmount.IsZero() {
		t.Fatalf("expected zero vat for reverse charge, got rate %s amount %s", german.VATRate, german.VATAmount)
	}
	if !german.ReverseCharged {
		t.Fatalf("expected reverse charge for EU business outside NL")
	}
	if !german.TotalAmount.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("expected total equal to base, got %s", german.TotalAmount)
	}
	if german.VATExplanation == "" {
		t.Fatalf("expected vat explanation")
	}

	usID := createCreator(t, client, "US", "individual", "")
	us, _ := createPaymentRequest(t, client, usID, "250", "USD")
	if !us.VATRate.IsZero() || !us.VATAmount.IsZero() {
		t.Fatalf("expected zero vat outside EU, got rate %s amount %s", us.VATRate, us.VATAmount)
	}
	if us.ReverseCharged {
		t.Fatalf("non-EU supply must not be reverse charged")
	}
	if !us.TotalAmount.Equal(us.BaseAmount) {
		t.Fatalf("expected total equal to base, got %s", us.TotalAmount)
	}
}

func TestE2E_ProfileLockedAfterFirstRequest(t *testing.T) {
	client := newHTTPClient()
	creatorID := createCreator(t, client, "NL", "individual", "")

	patch := map[string]any{"country_code": "DE"}
	resp, body := doJSON(t, client, http.MethodPatch, env.baseURL+"/api/creators/"+creatorID, patch, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected country change before first request, got %d: %s", resp.StatusCode, string(body))
	}

	createPaymentRequest(t, client, creatorID, "50", "EUR")

	resp, body = doJSON(t, client, http.MethodPatch, env.baseURL+"/api/creators/"+creatorID, map[string]any{"country_code": "FR"}, adminHeaders())
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 after first request, got %d: %s", resp.StatusCode, string(body))
	}
	if code := decodeErrorCode(t, body); code != "profile_locked" {
		t.Fatalf("expected profile_locked, got %s", code)
	}

	resp, body = doJSON(t, client, http.MethodPatch, env.baseURL+"/api/creators/"+creatorID, map[string]any{"name": "Renamed Creator"}, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected rename to stay allowed, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_MarkFailedRequiresReason(t *testing.T) {
	client := newHTTPClient()
	creatorID := createCreator(t, client, "NL", "individual", "")
	request, _ := createPaymentRequest(t, client, creatorID, "40", "EUR")

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/api/payment-requests/"+request.ID+"/mark-failed", map[string]any{}, adminHeaders())
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without reason, got %d: %s", resp.StatusCode, string(body))
	}

	failed := transitionPaymentRequest(t, client, request.ID, "mark-failed", map[string]any{"reason": "bank details rejected"}, http.StatusOK)
	if failed.Status != "failed" {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	if failed.FailureReason == nil || *failed.FailureReason != "bank details rejected" {
		t.Fatalf("expected failure reason to be recorded")
	}

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/public/claims/"+request.ClaimToken+"/accept", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 accepting a failed request, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_GeneratedInvoice(t *testing.T) {
	client := newHTTPClient()
	creatorID := createCreator(t, client, "NL", "vat_registered", "NL987654321B01")
	request, _ := createPaymentRequest(t, client, creatorID, "300", "EUR")

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/api/payment-requests/"+request.ID+"/invoices/generate", nil, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate invoice failed: %d: %s", resp.StatusCode, string(body))
	}
	var generated struct {
		Data struct {
			ID               string  `json:"id"`
			Source           string  `json:"source"`
			InvoiceNumber    *string `json:"invoice_number"`
			StorageRef       string  `json:"storage_ref"`
			ValidationStatus string  `json:"validation_status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &generated); err != nil {
		t.Fatalf("decode invoice response: %v", err)
	}
	if generated.Data.Source != "generated" {
		t.Fatalf("expected generated source, got %s", generated.Data.Source)
	}
	if generated.Data.ValidationStatus != "valid" {
		t.Fatalf("platform invoices are trusted, got %s", generated.Data.ValidationStatus)
	}
	if generated.Data.InvoiceNumber == nil || *generated.Data.InvoiceNumber == "" {
		t.Fatalf("expected invoice number")
	}
	if generated.Data.StorageRef == "" {
		t.Fatalf("expected storage ref")
	}

	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/api/payment-requests/"+request.ID+"/invoices", nil, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list invoices failed: %d: %s", resp.StatusCode, string(body))
	}
	var listed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("decode invoice list: %v", err)
	}
	if len(listed.Data) != 1 || listed.Data[0].ID != generated.Data.ID {
		t.Fatalf("expected exactly the generated invoice, got %+v", listed.Data)
	}
}

func TestE2E_ReferenceData(t *testing.T) {
	client := newHTTPClient()

	resp, body := doJSON(t, client, http.MethodGet, env.baseURL+"/api/countries", nil, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list countries failed: %d: %s", resp.StatusCode, string(body))
	}
	var countries struct {
		Data []struct {
			Code     string `json:"code"`
			EUMember bool   `json:"eu_member"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &countries); err != nil {
		t.Fatalf("decode countries: %v", err)
	}
	byCode := map[string]bool{}
	for _, c := range countries.Data {
		byCode[c.Code] = c.EUMember
	}
	if eu, ok := byCode["NL"]; !ok || !eu {
		t.Fatalf("expected NL as EU member, got %+v", byCode["NL"])
	}
	if eu, ok := byCode["US"]; !ok || eu {
		t.Fatalf("expected US outside the EU")
	}

	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/api/currencies", nil, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list currencies failed: %d: %s", resp.StatusCode, string(body))
	}
	var currencies struct {
		Data []struct {
			Code      string `json:"code"`
			MinorUnit int16  `json:"minor_unit"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &currencies); err != nil {
		t.Fatalf("decode currencies: %v", err)
	}
	found := false
	for _, c := range currencies.Data {
		if c.Code == "EUR" {
			found = true
			if c.MinorUnit != 2 {
				t.Fatalf("expected EUR minor unit 2, got %d", c.MinorUnit)
			}
		}
	}
	if !found {
		t.Fatalf("expected EUR in currencies")
	}
}

func TestE2E_AuditTrail(t *testing.T) {
	client := newHTTPClient()
	creatorID := createCreator(t, client, "NL", "individual", "")

	resp, body := doJSON(t, client, http.MethodGet, env.baseURL+"/api/audit-logs?page_size=100", nil, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list audit logs failed: %d: %s", resp.StatusCode, string(body))
	}
	var payload struct {
		Data struct {
			AuditLogs []struct {
				Action   string  `json:"action"`
				TargetID *string `json:"target_id"`
			} `json:"audit_logs"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode audit logs: %v", err)
	}
	for _, entry := range payload.Data.AuditLogs {
		if entry.Action == "creator.created" && entry.TargetID != nil && *entry.TargetID == creatorID {
			return
		}
	}
	t.Fatalf("expected creator.created audit entry for %s", creatorID)
}

func TestE2E_ViewerRoleIsReadOnly(t *testing.T) {
	client := newHTTPClient()

	req := map[string]any{"name": "e2e-viewer", "role": "viewer"}
	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/api/api-keys", req, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create viewer key failed: %d: %s", resp.StatusCode, string(body))
	}
	var created struct {
		Data struct {
			APIKey string `json:"api_key"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode api key response: %v", err)
	}
	if created.Data.APIKey == "" {
		t.Fatalf("expected plaintext key in create response")
	}
	viewerHeaders := map[string]string{"Authorization": "Bearer " + created.Data.APIKey}

	resp, body = doJSON(t, client, http.MethodGet, env.baseURL+"/api/creators", nil, viewerHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected viewer to read creators, got %d: %s", resp.StatusCode, string(body))
	}

	createReq := map[string]any{
		"name":              "Blocked Creator",
		"email":             uniqueEmail("blocked"),
		"country_code":      "NL",
		"business_category": "individual",
	}
	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/api/creators", createReq, viewerHeaders)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer write, got %d: %s", resp.StatusCode, string(body))
	}
	if code := decodeErrorCode(t, body); code != "forbidden" {
		t.Fatalf("expected forbidden, got %s", code)
	}
}

type paymentRequestPayload struct {
	ID             string          `json:"id"`
	CreatorID      string          `json:"creator_id"`
	Status         string          `json:"status"`
	Currency       string          `json:"currency"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	VATRate        decimal.Decimal `json:"vat_rate"`
	VATAmount      decimal.Decimal `json:"vat_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ReverseCharged bool            `json:"reverse_charged"`
	VATExplanation string          `json:"vat_explanation"`
	ClaimToken     string          `json:"claim_token"`
	PaidAt         *time.Time      `json:"paid_at"`
	FailureReason  *string         `json:"failure_reason"`
}

type claimViewPayload struct {
	Status      string `json:"status"`
	CreatorName string `json:"creator_name"`
	BaseAmount  string `json:"base_amount"`
	VATRate     string `json:"vat_rate"`
	VATAmount   string `json:"vat_amount"`
	TotalAmount string `json:"total_amount"`
}

func startEnv() (*testEnv, error) {
	storageDir, err := os.MkdirTemp("", "creatorpay-e2e-invoices-")
	if err != nil {
		return nil, err
	}
	setEnvIfEmpty("INVOICE_STORAGE_DIR", storageDir)

	var (
		srv       *server.Server
		dbConn    *gorm.DB
		apiKeySvc apikeydomain.Service
	)

	app := fx.New(
		observability.Module,
		config.Module,
		clock.Module,
		cloudmetrics.Module,
		ratelimit.Module,
		providers.Module,
		authorization.Module,
		audit.Module,
		apikey.Module,
		creator.Module,
		paymentrequest.Module,
		invoice.Module,
		payout.Module,
		reference.Module,
		fx.Provide(newTestDB),
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn, &apiKeySvc),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	if err := seed.EnsureReferenceData(dbConn); err != nil {
		app.Stop(context.Background())
		return nil, err
	}

	secret, err := apiKeySvc.Create(context.Background(), apikeydomain.CreateRequest{
		Name:   "e2e-admin",
		Role:   apikeydomain.RoleAdmin,
		Scopes: []string{apikeydomain.ScopeAdminAPI},
	})
	if err != nil {
		app.Stop(context.Background())
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:     app,
		server:  srv,
		db:      dbConn,
		baseURL: httpSrv.URL,
		apiKey:  secret.APIKey,
		httpSrv: httpSrv,
	}, nil
}

// newTestDB stands in for db.Module: the suite runs against in-memory
// sqlite so it needs no postgres and migrates through the models directly.
func newTestDB() (*gorm.DB, error) {
	conn, err := db.NewTest()
	if err != nil {
		return nil, err
	}
	err = conn.AutoMigrate(
		&creatordomain.Creator{},
		&requestdomain.PaymentRequest{},
		&invoicedomain.Invoice{},
		&payoutdomain.PayoutTransfer{},
		&payoutdomain.EventRecord{},
		&apikeydomain.APIKey{},
		&auditdomain.AuditLog{},
		&referencedomain.Country{},
		&referencedomain.Currency{},
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
}

func setDefaultEnv() {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("OTEL_ENABLED", "false")
	setEnvIfEmpty("BASE_URL", "http://pay.creatorpay.test")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func adminHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + env.apiKey}
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, atomic.AddInt64(&emailSeq, 1))
}

func createCreator(t *testing.T, client *http.Client, country, category, vatNumber string) string {
	t.Helper()

	req := map[string]any{
		"name":              "E2E Creator",
		"email":             uniqueEmail("creator"),
		"country_code":      country,
		"business_category": category,
	}
	if vatNumber != "" {
		req["vat_number"] = vatNumber
		req["company_name"] = "E2E Studio"
	}

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/api/creators", req, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create creator failed: %d: %s", resp.StatusCode, string(body))
	}
	var payload struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode creator response: %v", err)
	}
	if payload.Data.ID == "" {
		t.Fatalf("expected creator id")
	}
	return payload.Data.ID
}

func createPaymentRequest(t *testing.T, client *http.Client, creatorID, baseAmount, currency string) (paymentRequestPayload, string) {
	t.Helper()

	req := map[string]any{
		"creator_id":  creatorID,
		"base_amount": baseAmount,
		"currency":    currency,
		"description": "E2E collaboration",
	}
	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/api/payment-requests", req, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create payment request failed: %d: %s", resp.StatusCode, string(body))
	}
	var payload struct {
		Data     paymentRequestPayload `json:"data"`
		ClaimURL string                `json:"claim_url"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode payment request response: %v", err)
	}
	if payload.Data.ID == "" {
		t.Fatalf("expected payment request id")
	}
	return payload.Data, payload.ClaimURL
}

func transitionPaymentRequest(t *testing.T, client *http.Client, requestID, action string, reqBody map[string]any, wantStatus int) paymentRequestPayload {
	t.Helper()

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/api/payment-requests/"+requestID+"/"+action, reqBody, adminHeaders())
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s returned %d, want %d: %s", action, resp.StatusCode, wantStatus, string(body))
	}
	var payload struct {
		Data paymentRequestPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode %s response: %v", action, err)
	}
	return payload.Data
}

func getClaimView(t *testing.T, client *http.Client, token string, wantStatus int) claimViewPayload {
	t.Helper()

	resp, body := doJSON(t, client, http.MethodGet, env.baseURL+"/public/claims/"+token, nil, nil)
	if resp.StatusCode != wantStatus {
		t.Fatalf("claim view returned %d, want %d: %s", resp.StatusCode, wantStatus, string(body))
	}
	return decodeClaimView(t, body)
}

func decodeClaimView(t *testing.T, body []byte) claimViewPayload {
	t.Helper()

	var payload struct {
		Data claimViewPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode claim view: %v", err)
	}
	return payload.Data
}

func decodeErrorCode(t *testing.T, body []byte) string {
	t.Helper()

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return payload.Code
}

func doJSON(t *testing.T, client *http.Client, method, reqURL string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}
