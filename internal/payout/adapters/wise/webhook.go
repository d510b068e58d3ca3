package wise

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/creatorpay/internal/payout/domain"
)

// WebhookAdapter verifies X-Signature-SHA256 headers (RSA-SHA256 over the raw
// payload, against the public key Wise publishes) and maps transfer
// state-change events onto payout events.
type WebhookAdapter struct {
	publicKey *rsa.PublicKey
}

func NewWebhookAdapter(publicKeyPEM string) *WebhookAdapter {
	return &WebhookAdapter{publicKey: parsePublicKey(publicKeyPEM)}
}

func (a *WebhookAdapter) Provider() string { return providerName }

func (a *WebhookAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.publicKey == nil {
		return domain.ErrInvalidSignature
	}
	sigHeader := strings.TrimSpace(headers.Get("X-Signature-SHA256"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	signature, err := base64.StdEncoding.DecodeString(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(a.publicKey, crypto.SHA256, digest[:], signature); err != nil {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *WebhookAdapter) Parse(ctx context.Context, payload []byte) (*domain.WebhookEvent, error) {
	var event wiseEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	switch strings.TrimSpace(event.EventType) {
	case "transfers#state-change":
		return a.parseStateChange(event, payload)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type wiseEvent struct {
	Data      wiseEventData `json:"data"`
	EventType string        `json:"event_type"`
	SentAt    string        `json:"sent_at"`
}

type wiseEventData struct {
	Resource      wiseEventResource `json:"resource"`
	CurrentState  string            `json:"current_state"`
	PreviousState string            `json:"previous_state"`
	OccurredAt    string            `json:"occurred_at"`
}

type wiseEventResource struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Profile int64  `json:"profile_id"`
}

// parseStateChange surfaces terminal failure states as transfer_failed
// events. Wise delivers no per-event id, so the dedupe key is derived from
// the transfer and the state it moved to; redeliveries of the same
// transition collapse onto one event row.
func (a *WebhookAdapter) parseStateChange(event wiseEvent, payload []byte) (*domain.WebhookEvent, error) {
	if event.Data.Resource.ID == 0 {
		return nil, domain.ErrInvalidEvent
	}

	state := strings.TrimSpace(event.Data.CurrentState)
	switch state {
	case "funds_refunded", "cancelled", "charged_back":
	default:
		return nil, domain.ErrEventIgnored
	}

	return &domain.WebhookEvent{
		Provider:        providerName,
		ProviderEventID: fmt.Sprintf("%s:%d:%s", event.EventType, event.Data.Resource.ID, state),
		Type:            domain.EventTypeTransferFailed,
		TransferID:      strconv.FormatInt(event.Data.Resource.ID, 10),
		FailureReason:   state,
		OccurredAt:      parseTime(event.Data.OccurredAt, event.SentAt),
		RawPayload:      payload,
	}, nil
}

func parsePublicKey(publicKeyPEM string) *rsa.PublicKey {
	block, _ := pem.Decode([]byte(strings.TrimSpace(publicKeyPEM)))
	if block == nil {
		return nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil
	}
	return key
}

func parseTime(primary string, fallback string) time.Time {
	for _, value := range []string{primary, fallback} {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Now().UTC()
}
