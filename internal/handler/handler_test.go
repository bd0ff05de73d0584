package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/simonkvalheim/fjord-ledger/internal/auth"
	"github.com/simonkvalheim/fjord-ledger/internal/idgen"
	"github.com/simonkvalheim/fjord-ledger/internal/journal"
	"github.com/simonkvalheim/fjord-ledger/internal/ledger"
	"github.com/simonkvalheim/fjord-ledger/internal/loan"
	"github.com/simonkvalheim/fjord-ledger/internal/lock"
	"github.com/simonkvalheim/fjord-ledger/internal/middleware"
	"github.com/simonkvalheim/fjord-ledger/internal/model"
	"github.com/simonkvalheim/fjord-ledger/internal/processor"
	"github.com/simonkvalheim/fjord-ledger/internal/queue"
	"github.com/simonkvalheim/fjord-ledger/internal/repository"
)

type api struct {
	router    http.Handler
	tokens    *auth.Service
	store     *repository.MemoryStore
	publisher *queue.Publisher
	worker    *queue.Worker
}

// newAPI builds the full HTTP stack over the in-memory store. With async set, transfers go
// through a miniredis-backed queue.
func newAPI(t *testing.T, async bool) *api {
	t.Helper()
	logger, _ := test.NewNullLogger()

	ids, err := idgen.NewSnowflake(9)
	require.NoError(t, err)

	store := repository.NewMemoryStore()
	locks := lock.NewLocal(2 * time.Second)
	poster := ledger.NewPoster(journal.New(ids, nil, logger))
	svc := ledger.NewService(store, locks, poster, logger, 20)
	transfers := processor.NewTransferProcessor(store, locks, poster, logger)
	engine := loan.NewEngine(store, locks, poster, ids, logger)
	tokens := auth.NewService(auth.DefaultConfig("handler-test-secret"))

	a := &api{tokens: tokens, store: store}
	if async {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		a.publisher = queue.NewPublisher(client)
		a.worker = queue.NewWorker(client, transfers, logger)
	}

	health := func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
	a.router = NewRouter(logger, middleware.NewAuthMiddleware(tokens, logger), health,
		NewAccountHandler(svc, logger),
		NewTransferHandler(svc, transfers, a.publisher, logger),
		NewLoanHandler(engine, svc, logger),
	)
	return a
}

func (a *api) token(t *testing.T, subject string, elevated bool) string {
	t.Helper()
	token, _, err := a.tokens.Issue(subject, elevated, time.Hour)
	require.NoError(t, err)
	return token
}

func (a *api) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// seedAccount inserts an ACTIVE KES account for customer directly into the store
func (a *api) seedAccount(t *testing.T, customer uuid.UUID, balance string) *model.Account {
	t.Helper()
	now := time.Now().UTC()
	account := &model.Account{
		ID:            uuid.New(),
		CustomerID:    customer,
		AccountNumber: "NO" + uuid.NewString()[:14],
		AccountType:   model.AccountTypeChecking,
		Currency:      "KES",
		Balance:       decimal.RequireFromString(balance),
		Status:        model.AccountStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, a.store.CreateAccount(context.Background(), account))
	return account
}

func (a *api) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	account, err := a.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["error"]
}
