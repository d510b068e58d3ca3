package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/creatorpay/internal/payout/domain"
)

const signatureTolerance = 5 * time.Minute

// WebhookAdapter verifies Stripe-Signature headers (HMAC-SHA256 over
// "timestamp.payload") and maps Connect events onto payout events.
type WebhookAdapter struct {
	secret string
}

func NewWebhookAdapter(secret string) *WebhookAdapter {
	return &WebhookAdapter{secret: strings.TrimSpace(secret)}
}

func (a *WebhookAdapter) Provider() string { return providerName }

func (a *WebhookAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.secret == "" {
		return domain.ErrInvalidSignature
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	issued, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	age := time.Since(time.Unix(issued, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return domain.ErrStaleSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

func (a *WebhookAdapter) Parse(ctx context.Context, payload []byte) (*domain.WebhookEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "account.updated":
		return a.parseAccountUpdated(event, payload)
	case "transfer.failed", "transfer.reversed", "payout.failed":
		return a.parseTransferFailed(event, payload)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeAccountObject struct {
	ID               string `json:"id"`
	DetailsSubmitted bool   `json:"details_submitted"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	Created          int64  `json:"created"`
}

type stripeTransferObject struct {
	ID             string            `json:"id"`
	Created        int64             `json:"created"`
	FailureCode    string            `json:"failure_code"`
	FailureMessage string            `json:"failure_message"`
	Metadata       map[string]string `json:"metadata"`
}

func (a *WebhookAdapter) parseAccountUpdated(event stripeEvent, payload []byte) (*domain.WebhookEvent, error) {
	var account stripeAccountObject
	if err := json.Unmarshal(event.Data.Object, &account); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(account.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.WebhookEvent{
		Provider:         providerName,
		ProviderEventID:  event.ID,
		Type:             domain.EventTypeAccountUpdated,
		AccountID:        account.ID,
		DetailsSubmitted: account.DetailsSubmitted,
		PayoutsEnabled:   account.PayoutsEnabled,
		OccurredAt:       timestamp(account.Created, event.Created),
		RawPayload:       payload,
	}, nil
}

func (a *WebhookAdapter) parseTransferFailed(event stripeEvent, payload []byte) (*domain.WebhookEvent, error) {
	var transfer stripeTransferObject
	if err := json.Unmarshal(event.Data.Object, &transfer); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(transfer.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	reason := strings.TrimSpace(transfer.FailureMessage)
	if reason == "" {
		reason = strings.TrimSpace(transfer.FailureCode)
	}
	if reason == "" {
		reason = strings.TrimSpace(event.Type)
	}

	return &domain.WebhookEvent{
		Provider:        providerName,
		ProviderEventID: event.ID,
		Type:            domain.EventTypeTransferFailed,
		TransferID:      transfer.ID,
		Reference:       strings.TrimSpace(transfer.Metadata["payment_request_id"]),
		FailureReason:   reason,
		OccurredAt:      timestamp(transfer.Created, event.Created),
		RawPayload:      payload,
	}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
