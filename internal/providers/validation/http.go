package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type HTTPValidator struct {
	baseURL string
	token   string
	client  *http.Client
	log     *zap.Logger
}

func NewHTTP(baseURL, token string, log *zap.Logger) *HTTPValidator {
	return &HTTPValidator{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: 12 * time.Second},
		log:     log.Named("validation.http"),
	}
}

func (v *HTTPValidator) Submit(ctx context.Context, sub Submission) error {
	if v.baseURL == "" {
		return errors.New("validator_not_configured")
	}

	payload, err := json.Marshal(sub)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/validations", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if v.token != "" {
		req.Header.Set("Authorization", "Bearer "+v.token)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
			return errors.New("validator_request_failed")
		}
		message := strings.TrimSpace(failure.Message)
		if message == "" {
			message = "validator_request_failed"
		}
		return errors.New(message)
	}

	v.log.Debug("validation submitted",
		zap.String("invoice_id", sub.InvoiceID),
		zap.String("storage_ref", sub.StorageRef),
	)
	return nil
}
