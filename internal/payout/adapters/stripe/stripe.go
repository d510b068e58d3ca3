package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/creatorpay/internal/payout/domain"
)

const (
	providerName = "stripe"
	apiBaseURL   = "https://api.stripe.com"
)

type stripeAccount struct {
	ID               string `json:"id"`
	DetailsSubmitted bool   `json:"details_submitted"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
}

type stripeTransfer struct {
	ID string `json:"id"`
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string { return e.Message }

// Transient reports whether the request is worth repeating. Rate limits and
// server errors are; the rest of the 4xx range means Stripe will keep
// refusing the same request.
func (e *apiError) Transient() bool {
	return e.Status == http.StatusRequestTimeout ||
		e.Status == http.StatusTooManyRequests ||
		e.Status >= http.StatusInternalServerError
}

// Processor executes payouts through Stripe Connect: one express account per
// creator, transfers against the account id.
type Processor struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

func NewProcessor(secretKey string) *Processor {
	return &Processor{
		secretKey: strings.TrimSpace(secretKey),
		baseURL:   apiBaseURL,
		client:    &http.Client{Timeout: 12 * time.Second},
	}
}

func (p *Processor) Name() string { return providerName }

func (p *Processor) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	values := url.Values{}
	values.Set("type", "express")
	values.Set("email", strings.TrimSpace(req.Email))
	values.Set("country", strings.ToUpper(strings.TrimSpace(req.CountryCode)))
	values.Set("business_type", "individual")
	values.Set("capabilities[transfers][requested]", "true")
	idempotencyKey := ""
	if req.CreatorID != "" {
		values.Set("metadata[creator_id]", req.CreatorID)
		idempotencyKey = "creator:" + req.CreatorID
	}

	var account stripeAccount
	if err := p.doRequest(ctx, http.MethodPost, "/v1/accounts", values, idempotencyKey, &account); err != nil {
		return domain.Account{}, err
	}
	if account.ID == "" {
		return domain.Account{}, errors.New("stripe_response_invalid")
	}
	return toAccount(account), nil
}

func (p *Processor) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.Account{}, domain.ErrNoPayoutAccount
	}

	var account stripeAccount
	if err := p.doRequest(ctx, http.MethodGet, "/v1/accounts/"+accountID, nil, "", &account); err != nil {
		return domain.Account{}, err
	}
	if account.ID == "" {
		return domain.Account{}, errors.New("stripe_response_invalid")
	}
	return toAccount(account), nil
}

func (p *Processor) Transfer(ctx context.Context, req domain.TransferRequest) (string, error) {
	if strings.TrimSpace(req.AccountID) == "" {
		return "", domain.ErrNoPayoutAccount
	}
	if req.AmountMinor <= 0 {
		return "", errors.New("transfer amount must be positive")
	}

	values := url.Values{}
	values.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	values.Set("currency", strings.ToLower(strings.TrimSpace(req.Currency)))
	values.Set("destination", strings.TrimSpace(req.AccountID))
	values.Set("transfer_group", req.Reference)
	values.Set("metadata[payment_request_id]", req.Reference)

	var transfer stripeTransfer
	if err := p.doRequest(ctx, http.MethodPost, "/v1/transfers", values, req.IdempotencyKey, &transfer); err != nil {
		var stripeErr *apiError
		if errors.As(err, &stripeErr) && !stripeErr.Transient() {
			return "", fmt.Errorf("%w: %s", domain.ErrTransferRejected, stripeErr.Message)
		}
		return "", err
	}
	if transfer.ID == "" {
		return "", errors.New("stripe_response_invalid")
	}
	return transfer.ID, nil
}

func (p *Processor) doRequest(
	ctx context.Context,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
	out any,
) error {
	if p.secretKey == "" {
		return domain.ErrProcessorDisabled
	}
	var bodyReader *strings.Reader
	if values != nil {
		bodyReader = strings.NewReader(values.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil {
			return &apiError{Status: resp.StatusCode, Message: "stripe_request_failed"}
		}
		message := strings.TrimSpace(stripeErr.Error.Message)
		if message == "" {
			message = "stripe_request_failed"
		}
		return &apiError{Status: resp.StatusCode, Message: message}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func toAccount(account stripeAccount) domain.Account {
	return domain.Account{
		ID:               account.ID,
		DetailsSubmitted: account.DetailsSubmitted,
		PayoutsEnabled:   account.PayoutsEnabled,
	}
}
