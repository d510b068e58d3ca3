package validation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubmitPostsSubmission(t *testing.T) {
	var got Submission
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/validations", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	v := NewHTTP(srv.URL+"/", "secret-token", zap.NewNop())
	err := v.Submit(context.Background(), Submission{
		InvoiceID:     "42",
		StorageRef:    "invoices/7/42.pdf",
		ExpectedTotal: "121.00",
		Currency:      "EUR",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", auth)
	assert.Equal(t, "42", got.InvoiceID)
	assert.Equal(t, "invoices/7/42.pdf", got.StorageRef)
	assert.Equal(t, "121.00", got.ExpectedTotal)
	assert.Equal(t, "EUR", got.Currency)
}

func TestSubmitSurfacesServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "unsupported file type"})
	}))
	defer srv.Close()

	v := NewHTTP(srv.URL, "", zap.NewNop())
	err := v.Submit(context.Background(), Submission{InvoiceID: "42"})
	require.Error(t, err)
	assert.Equal(t, "unsupported file type", err.Error())
}
