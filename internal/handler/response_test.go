package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"validation", model.ErrInvalidAmount, http.StatusBadRequest, "invalid amount"},
		{"wrapped validation", fmt.Errorf("transfer: %w", model.ErrSameAccount), http.StatusBadRequest, "transfer: source and destination accounts must be different"},
		{"not found", model.ErrLoanNotFound, http.StatusNotFound, "loan not found"},
		{"state", model.ErrInvalidState, http.StatusConflict, "operation not allowed in current loan state"},
		{"insufficient funds", model.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient funds"},
		{"authorization", model.ErrNotPermitted, http.StatusForbidden, "not permitted"},
		{"busy", model.ErrBusy, http.StatusServiceUnavailable, "resource busy, retry later"},
		{"consistency", fmt.Errorf("%w: balance_after mismatch", model.ErrLedgerInconsistency), http.StatusInternalServerError, "internal ledger fault"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, message := statusFor(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMessage, message)
		})
	}
}

func TestWriteLedgerError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	req := httptest.NewRequest(http.MethodPost, "/v1/transfers", nil)

	busy := httptest.NewRecorder()
	writeLedgerError(busy, logger, req, model.ErrBusy)
	assert.Equal(t, http.StatusServiceUnavailable, busy.Code)
	assert.Equal(t, RetryAfterSeconds, busy.Header().Get("Retry-After"))
	assert.Empty(t, hook.AllEntries())

	fault := httptest.NewRecorder()
	writeLedgerError(fault, logger, req, model.ErrLedgerInconsistency)
	assert.Equal(t, http.StatusInternalServerError, fault.Code)
	assert.Equal(t, "internal ledger fault", errorMessage(t, fault))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "/v1/transfers", hook.LastEntry().Data["path"])
}
