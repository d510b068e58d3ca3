package wise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smallbiznis/creatorpay/internal/payout/domain"
	"github.com/smallbiznis/creatorpay/pkg/money"
)

const (
	providerName = "wise"
	apiBaseURL   = "https://api.wise.com"
)

// transactionNamespace seeds the deterministic customerTransactionId. Wise
// requires a UUID there, so the stable idempotency key is hashed into one
// instead of being sent verbatim.
const transactionNamespace = "creatorpay/transfers/"

type wiseRecipient struct {
	ID     int64 `json:"id"`
	Active *bool `json:"active"`
}

type wiseQuote struct {
	ID int64 `json:"id"`
}

type wiseTransfer struct {
	ID int64 `json:"id"`
}

type wiseErrorResponse struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	ErrorDescription string `json:"error_description"`
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string { return e.Message }

// Transient reports whether the request is worth repeating. Rate limits and
// server errors are; the rest of the 4xx range means Wise will keep refusing
// the same request.
func (e *apiError) Transient() bool {
	return e.Status == http.StatusRequestTimeout ||
		e.Status == http.StatusTooManyRequests ||
		e.Status >= http.StatusInternalServerError
}

// Processor executes payouts through Wise: one email recipient per creator,
// then a fixed-target quote and a transfer against it. Wise collects the
// recipient's bank details out of band, so email recipients are payable as
// soon as they exist.
type Processor struct {
	apiToken  string
	profileID int64
	baseURL   string
	client    *http.Client
}

func NewProcessor(apiToken, profileID string) *Processor {
	parsed, _ := strconv.ParseInt(strings.TrimSpace(profileID), 10, 64)
	return &Processor{
		apiToken:  strings.TrimSpace(apiToken),
		profileID: parsed,
		baseURL:   apiBaseURL,
		client:    &http.Client{Timeout: 12 * time.Second},
	}
}

func (p *Processor) Name() string { return providerName }

func (p *Processor) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	body := map[string]any{
		"profile":           p.profileID,
		"accountHolderName": strings.TrimSpace(req.Name),
		"currency":          strings.ToUpper(strings.TrimSpace(req.Currency)),
		"type":              "email",
		"details": map[string]any{
			"email": strings.TrimSpace(req.Email),
		},
	}

	var recipient wiseRecipient
	if err := p.doRequest(ctx, http.MethodPost, "/v1/accounts", body, &recipient); err != nil {
		return domain.Account{}, err
	}
	if recipient.ID == 0 {
		return domain.Account{}, errors.New("wise_response_invalid")
	}
	return toAccount(recipient), nil
}

func (p *Processor) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.Account{}, domain.ErrNoPayoutAccount
	}

	var recipient wiseRecipient
	if err := p.doRequest(ctx, http.MethodGet, "/v1/accounts/"+accountID, nil, &recipient); err != nil {
		return domain.Account{}, err
	}
	if recipient.ID == 0 {
		return domain.Account{}, errors.New("wise_response_invalid")
	}
	return toAccount(recipient), nil
}

func (p *Processor) Transfer(ctx context.Context, req domain.TransferRequest) (string, error) {
	accountID, err := strconv.ParseInt(strings.TrimSpace(req.AccountID), 10, 64)
	if err != nil || accountID == 0 {
		return "", domain.ErrNoPayoutAccount
	}
	if req.AmountMinor <= 0 {
		return "", errors.New("transfer amount must be positive")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	amount := money.FromMinorUnits(req.AmountMinor, req.MinorUnit)

	var quote wiseQuote
	quoteBody := map[string]any{
		"profile":      p.profileID,
		"source":       currency,
		"target":       currency,
		"rateType":     "FIXED",
		"targetAmount": json.Number(amount.String()),
	}
	if err := p.doRequest(ctx, http.MethodPost, "/v1/quotes", quoteBody, &quote); err != nil {
		return "", classifyTransferError(err)
	}
	if quote.ID == 0 {
		return "", errors.New("wise_response_invalid")
	}

	var transfer wiseTransfer
	transferBody := map[string]any{
		"targetAccount":         accountID,
		"quote":                 quote.ID,
		"customerTransactionId": transactionID(req.IdempotencyKey),
		"details": map[string]any{
			"reference": req.Reference,
		},
	}
	if err := p.doRequest(ctx, http.MethodPost, "/v1/transfers", transferBody, &transfer); err != nil {
		return "", classifyTransferError(err)
	}
	if transfer.ID == 0 {
		return "", errors.New("wise_response_invalid")
	}
	return strconv.FormatInt(transfer.ID, 10), nil
}

// classifyTransferError wraps permanent refusals in ErrTransferRejected. A
// 409 means the customerTransactionId was already used: the transfer may
// have gone through on a previous attempt that timed out, so the request
// must stay claimed for review instead of being failed.
func classifyTransferError(err error) error {
	var wiseErr *apiError
	if !errors.As(err, &wiseErr) {
		return err
	}
	if wiseErr.Transient() || wiseErr.Status == http.StatusConflict {
		return err
	}
	return fmt.Errorf("%w: %s", domain.ErrTransferRejected, wiseErr.Message)
}

// transactionID derives the UUID Wise requires from the stable idempotency
// key. Same key, same UUID, so retries collide at Wise instead of paying
// twice.
func transactionID(idempotencyKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(transactionNamespace+idempotencyKey)).String()
}

func (p *Processor) doRequest(ctx context.Context, method, path string, body, out any) error {
	if p.apiToken == "" {
		return domain.ErrProcessorDisabled
	}

	var bodyReader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(encoded)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var wiseErr wiseErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&wiseErr); err != nil {
			return &apiError{Status: resp.StatusCode, Message: "wise_request_failed"}
		}
		message := wiseErr.ErrorDescription
		if len(wiseErr.Errors) > 0 && strings.TrimSpace(wiseErr.Errors[0].Message) != "" {
			message = wiseErr.Errors[0].Message
		}
		if strings.TrimSpace(message) == "" {
			message = "wise_request_failed"
		}
		return &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(message)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func toAccount(recipient wiseRecipient) domain.Account {
	active := recipient.Active == nil || *recipient.Active
	return domain.Account{
		ID:               strconv.FormatInt(recipient.ID, 10),
		DetailsSubmitted: active,
		PayoutsEnabled:   active,
	}
}
