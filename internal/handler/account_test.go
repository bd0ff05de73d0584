package handler

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

func TestHealthNeedsNoToken(t *testing.T) {
	a := newAPI(t, false)
	rec := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccountLifecycle(t *testing.T) {
	a := newAPI(t, false)
	customer := uuid.New()
	token := a.token(t, customer.String(), false)

	rec := a.do(t, http.MethodPost, "/v1/accounts", token, map[string]string{
		"account_type": "CHECKING",
		"currency":     "kes",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	account := decodeBody[model.Account](t, rec)
	assert.Equal(t, customer, account.CustomerID)
	assert.Equal(t, "KES", account.Currency)
	assert.Regexp(t, `^NO\d{14}$`, account.AccountNumber)
	path := "/v1/accounts/" + account.ID.String()

	rec = a.do(t, http.MethodPost, path+"/deposits", token, map[string]string{"amount": "100", "description": "salary"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	deposit := decodeBody[model.Transaction](t, rec)
	assert.Equal(t, model.TransactionTypeDeposit, deposit.Type)
	assert.True(t, deposit.BalanceBefore.IsZero())
	assert.True(t, deposit.BalanceAfter.Equal(decimal.NewFromInt(100)))

	rec = a.do(t, http.MethodPost, path+"/withdrawals", token, map[string]string{"amount": "500"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient funds", errorMessage(t, rec))

	rec = a.do(t, http.MethodPost, path+"/withdrawals", token, map[string]string{"amount": "40"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodGet, path+"/balance", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decodeBody[model.AccountBalance](t, rec)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(60)))

	rec = a.do(t, http.MethodGet, path+"/statement?limit=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	statement := decodeBody[[]model.Transaction](t, rec)
	require.Len(t, statement, 1)
	assert.Equal(t, model.TransactionTypeWithdrawal, statement[0].Type)

	rec = a.do(t, http.MethodGet, path+"/statement", token, nil)
	assert.Len(t, decodeBody[[]model.Transaction](t, rec), 2)

	rec = a.do(t, http.MethodGet, "/v1/accounts", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.Account](t, rec), 1)

	rec = a.do(t, http.MethodGet, "/v1/transactions/"+deposit.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, deposit.ID, decodeBody[model.Transaction](t, rec).ID)
}

func TestAccountAccessControl(t *testing.T) {
	a := newAPI(t, false)
	owner := uuid.New()
	account := a.seedAccount(t, owner, "50")
	path := "/v1/accounts/" + account.ID.String()

	stranger := a.token(t, uuid.NewString(), false)
	officer := a.token(t, "officer-1", true)

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, path},
		{http.MethodGet, path + "/balance"},
		{http.MethodGet, path + "/statement"},
		{http.MethodPost, path + "/withdrawals"},
		{http.MethodGet, "/v1/accounts?customer_id=" + owner.String()},
	} {
		rec := a.do(t, req.method, req.path, stranger, map[string]string{"amount": "10"})
		assert.Equal(t, http.StatusForbidden, rec.Code, req.path)
		assert.Equal(t, "not permitted", errorMessage(t, rec))
	}
	assert.True(t, a.balance(t, account.ID).Equal(decimal.NewFromInt(50)))

	rec := a.do(t, http.MethodGet, path, officer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, path+"/fees", a.token(t, owner.String(), false), map[string]string{"amount": "1"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "customers cannot charge fees")

	rec = a.do(t, http.MethodPost, path+"/fees", officer, map[string]string{"amount": "2.50", "description": "monthly fee"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, model.TransactionTypeFee, decodeBody[model.Transaction](t, rec).Type)

	rec = a.do(t, http.MethodPost, path+"/interest", officer, map[string]string{"amount": "0.75"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, a.balance(t, account.ID).Equal(decimal.RequireFromString("48.25")))
}

func TestAccountRequestErrors(t *testing.T) {
	a := newAPI(t, false)
	customer := uuid.New()
	token := a.token(t, customer.String(), false)
	account := a.seedAccount(t, customer, "10")
	path := "/v1/accounts/" + account.ID.String()

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
	}{
		{"malformed account id", http.MethodGet, "/v1/accounts/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown account", http.MethodGet, "/v1/accounts/" + uuid.NewString(), nil, http.StatusNotFound},
		{"zero deposit", http.MethodPost, path + "/deposits", map[string]string{"amount": "0"}, http.StatusBadRequest},
		{"sub-cent deposit", http.MethodPost, path + "/deposits", map[string]string{"amount": "0.001"}, http.StatusBadRequest},
		{"garbage body", http.MethodPost, path + "/deposits", "nope", http.StatusBadRequest},
		{"bad statement limit", http.MethodGet, path + "/statement?limit=ten", nil, http.StatusBadRequest},
		{"unsupported account type", http.MethodPost, "/v1/accounts", map[string]string{"account_type": "LOAN", "currency": "KES"}, http.StatusBadRequest},
		{"unknown transaction", http.MethodGet, "/v1/transactions/TXN0", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, tt.method, tt.path, token, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
	assert.True(t, a.balance(t, account.ID).Equal(decimal.NewFromInt(10)))
}

func TestReverse(t *testing.T) {
	a := newAPI(t, false)
	customer := uuid.New()
	token := a.token(t, customer.String(), false)
	officer := a.token(t, "officer-1", true)
	account := a.seedAccount(t, customer, "0")

	rec := a.do(t, http.MethodPost, "/v1/accounts/"+account.ID.String()+"/deposits", token, map[string]string{"amount": "25"})
	require.Equal(t, http.StatusCreated, rec.Code)
	deposit := decodeBody[model.Transaction](t, rec)

	rec = a.do(t, http.MethodPost, "/v1/transactions/"+deposit.ID+"/reverse", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/transactions/"+deposit.ID+"/reverse", officer, map[string]string{"description": "bounced"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reversals := decodeBody[[]model.Transaction](t, rec)
	require.Len(t, reversals, 1)
	assert.Equal(t, deposit.ID, reversals[0].ReversalOf)
	assert.Equal(t, model.DirectionDebit, reversals[0].Direction)
	assert.True(t, a.balance(t, account.ID).IsZero())

	rec = a.do(t, http.MethodPost, "/v1/transactions/"+deposit.ID+"/reverse", officer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
