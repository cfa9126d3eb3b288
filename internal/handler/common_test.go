package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premium-collections/internal/errors"
)

var errNotify = errors.ErrNotificationFailed.WithDetails("settlement endpoint returned 500")

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		status      int
		code        string
		wantDetails bool
	}{
		{"validation", errors.ErrInvalidAmount.WithDetails("amount must be exactly 5000 KES"), http.StatusBadRequest, "invalid_amount", true},
		{"not ready", errors.ErrTransactionNotReady, http.StatusConflict, "transaction_not_ready", false},
		{"timeout", errors.ErrChannelTimeout, http.StatusGatewayTimeout, "channel_timeout", false},
		{"ledger", errors.ErrIdempotencyStore, http.StatusServiceUnavailable, "idempotency_store_error", false},
		{"plain error", fmt.Errorf("pq: connection reset"), http.StatusInternalServerError, "internal_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.wantDetails, resp.Error.Details != "")
		})
	}
}
