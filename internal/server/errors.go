package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/creatorpay/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	"github.com/smallbiznis/creatorpay/internal/authorization"
	creatordomain "github.com/smallbiznis/creatorpay/internal/creator/domain"
	invoicedomain "github.com/smallbiznis/creatorpay/internal/invoice/domain"
	payoutdomain "github.com/smallbiznis/creatorpay/internal/payout/domain"
	requestdomain "github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrInternal           = errors.New("internal_error")
)

// ErrorHandlingMiddleware renders the last handler error after the chain
// finishes. Handlers never write error bodies themselves; they attach the
// error via AbortWithError and the mapping here keeps the wire format in
// one place.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, payloadFor("internal_error")
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Code:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Code:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(err.Error()),
					Code:    err.Error(),
					Message: humanize(err.Error()),
				},
			},
		}
	case isConflictError(err):
		return http.StatusConflict, payloadFor(err.Error())
	case isNotFoundError(err):
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return http.StatusNotFound, payloadFor("not_found")
		}
		return http.StatusNotFound, payloadFor(err.Error())
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, payoutdomain.ErrInvalidSignature),
		errors.Is(err, payoutdomain.ErrStaleSignature):
		return http.StatusUnauthorized, payloadFor("unauthorized")
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, payloadFor("forbidden")
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, payloadFor("rate_limited")
	case errors.Is(err, payoutdomain.ErrTransferRejected):
		return http.StatusBadGateway, payloadFor("transfer_rejected")
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, payoutdomain.ErrProcessorDisabled):
		return http.StatusServiceUnavailable, payloadFor("service_unavailable")
	default:
		return http.StatusInternalServerError, payloadFor("internal_error")
	}
}

// classifyErrorForLog feeds the request logger; it never exposes anything
// a response would not.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status == http.StatusBadRequest:
		return "validation_error", payload.Code
	case status == http.StatusNotFound:
		return "not_found", payload.Code
	case status == http.StatusConflict:
		return "conflict", payload.Code
	case status == http.StatusUnauthorized:
		return "unauthorized", payload.Code
	case status == http.StatusForbidden:
		return "forbidden", payload.Code
	case status == http.StatusTooManyRequests:
		return "rate_limited", payload.Code
	case status >= http.StatusInternalServerError:
		return "internal_error", payload.Code
	default:
		return "error", payload.Code
	}
}

func payloadFor(code string) errorPayload {
	return errorPayload{
		Code:    code,
		Message: humanize(code),
	}
}

func humanize(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), "_", " ")
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case errors.Is(err, creatordomain.ErrInvalidName),
		errors.Is(err, creatordomain.ErrInvalidEmail),
		errors.Is(err, creatordomain.ErrInvalidCountry),
		errors.Is(err, creatordomain.ErrInvalidCategory),
		errors.Is(err, creatordomain.ErrMissingVATNumber),
		errors.Is(err, creatordomain.ErrInvalidID):
		return true
	case errors.Is(err, requestdomain.ErrInvalidID),
		errors.Is(err, requestdomain.ErrInvalidAmount),
		errors.Is(err, requestdomain.ErrInvalidCurrency),
		errors.Is(err, requestdomain.ErrInvalidStatus):
		return true
	case errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidStorageRef),
		errors.Is(err, invoicedomain.ErrInvalidVerdict):
		return true
	case errors.Is(err, apikeydomain.ErrInvalidName),
		errors.Is(err, apikeydomain.ErrInvalidRole),
		errors.Is(err, apikeydomain.ErrInvalidKeyID):
		return true
	case errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	case errors.Is(err, payoutdomain.ErrInvalidID),
		errors.Is(err, payoutdomain.ErrInvalidProvider),
		errors.Is(err, payoutdomain.ErrInvalidPayload),
		errors.Is(err, payoutdomain.ErrInvalidEvent):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, requestdomain.ErrInvalidState):
		return true
	case errors.Is(err, creatordomain.ErrEmailTaken),
		errors.Is(err, creatordomain.ErrProfileLocked):
		return true
	case errors.Is(err, payoutdomain.ErrNotPayable),
		errors.Is(err, payoutdomain.ErrPayoutsDisabled),
		errors.Is(err, payoutdomain.ErrNoPayoutAccount),
		errors.Is(err, payoutdomain.ErrBelowMinimum):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, creatordomain.ErrNotFound),
		errors.Is(err, requestdomain.ErrNotFound),
		errors.Is(err, requestdomain.ErrCreatorNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrPaymentRequestNotFound),
		errors.Is(err, invoicedomain.ErrCreatorNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, payoutdomain.ErrCreatorNotFound),
		errors.Is(err, payoutdomain.ErrRequestNotFound),
		errors.Is(err, payoutdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if field, ok := strings.CutPrefix(code, "invalid_"); ok {
		return field
	}
	if field, ok := strings.CutPrefix(code, "missing_"); ok {
		return field
	}
	return ""
}
