package processor

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonkvalheim/fjord-ledger/internal/idgen"
	"github.com/simonkvalheim/fjord-ledger/internal/journal"
	"github.com/simonkvalheim/fjord-ledger/internal/ledger"
	"github.com/simonkvalheim/fjord-ledger/internal/lock"
	"github.com/simonkvalheim/fjord-ledger/internal/model"
	"github.com/simonkvalheim/fjord-ledger/internal/repository"
)

type fixture struct {
	store     *repository.MemoryStore
	processor *TransferProcessor
	ledger    *ledger.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ids, err := idgen.NewSnowflake(2)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	store := repository.NewMemoryStore()
	locks := lock.NewLocal(5 * time.Second)
	poster := ledger.NewPoster(journal.New(ids, nil, logger))

	return &fixture{
		store:     store,
		processor: NewTransferProcessor(store, locks, poster, logger),
		ledger:    ledger.NewService(store, locks, poster, logger, 0),
	}
}

func (f *fixture) account(t *testing.T, balance, currency string, status model.AccountStatus) *model.Account {
	t.Helper()
	now := time.Now().UTC()
	account := &model.Account{
		ID:            uuid.New(),
		CustomerID:    uuid.New(),
		AccountNumber: "NO" + gofakeit.Numerify("##############"),
		AccountType:   model.AccountTypeChecking,
		Currency:      currency,
		Balance:       decimal.RequireFromString(balance),
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.store.CreateAccount(context.Background(), account))
	return account
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	account, err := f.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func (f *fixture) entries(t *testing.T, id uuid.UUID) []model.Transaction {
	t.Helper()
	txns, err := f.store.ListTransactions(context.Background(), id, repository.MaxStatementLimit)
	require.NoError(t, err)
	return txns
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestValidatePair(t *testing.T) {
	active := func(balance, currency string) *model.Account {
		return &model.Account{Balance: d(balance), Currency: currency, Status: model.AccountStatusActive}
	}
	frozen := &model.Account{Balance: d("100"), Currency: "NOK", Status: model.AccountStatusFrozen}

	tests := []struct {
		name    string
		source  *model.Account
		dest    *model.Account
		amount  string
		wantErr error
	}{
		{"sufficient funds - exact", active("100.00", "NOK"), active("0", "NOK"), "100.00", nil},
		{"sufficient funds - more than needed", active("150.00", "NOK"), active("0", "NOK"), "100.00", nil},
		{"insufficient funds", active("50.00", "NOK"), active("0", "NOK"), "100.00", model.ErrInsufficientFunds},
		{"zero balance", active("0", "NOK"), active("0", "NOK"), "0.01", model.ErrInsufficientFunds},
		{"small amount", active("0.01", "NOK"), active("0", "NOK"), "0.01", nil},
		{"currency mismatch", active("100", "NOK"), active("0", "SEK"), "1", model.ErrCurrencyMismatch},
		{"frozen source", frozen, active("0", "NOK"), "1", model.ErrAccountInactive},
		{"frozen destination", active("100", "NOK"), frozen, "1", model.ErrAccountInactive},
		{"too precise", active("100", "JPY"), active("0", "JPY"), "1.5", model.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePair(tt.source, tt.dest, d(tt.amount))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTransfer_MovesMoneyAndLinksLegs(t *testing.T) {
	f := newFixture(t)
	from := f.account(t, "100", "KES", model.AccountStatusActive)
	to := f.account(t, "0", "KES", model.AccountStatusActive)

	result, err := f.processor.Transfer(context.Background(), from.ID, to.ID, d("30"), "rent share")
	require.NoError(t, err)

	assert.True(t, f.balance(t, from.ID).Equal(d("70")))
	assert.True(t, f.balance(t, to.ID).Equal(d("30")))

	debit, credit := result.Debit, result.Credit
	assert.Equal(t, model.TransactionTypeTransfer, debit.Type)
	assert.Equal(t, model.TransactionTypeTransfer, credit.Type)
	assert.Equal(t, model.DirectionDebit, debit.Direction)
	assert.Equal(t, model.DirectionCredit, credit.Direction)
	assert.Equal(t, credit.ID, debit.Reference)
	assert.Equal(t, debit.ID, credit.Reference)
	assert.True(t, debit.Signed().Add(credit.Signed()).IsZero(), "legs must sum to zero")
	assert.NoError(t, journal.Verify(debit))
	assert.NoError(t, journal.Verify(credit))

	require.Len(t, f.entries(t, from.ID), 1)
	require.Len(t, f.entries(t, to.ID), 1)
}

func TestTransfer_RejectionsWriteNothing(t *testing.T) {
	f := newFixture(t)
	rich := f.account(t, "100", "NOK", model.AccountStatusActive)
	poor := f.account(t, "5", "NOK", model.AccountStatusActive)
	swedish := f.account(t, "100", "SEK", model.AccountStatusActive)
	frozen := f.account(t, "100", "NOK", model.AccountStatusFrozen)

	tests := []struct {
		name     string
		from, to uuid.UUID
		amount   string
		wantErr  error
		wantKind model.ErrorKind
	}{
		{"same account", rich.ID, rich.ID, "1", model.ErrSameAccount, model.KindValidation},
		{"zero amount", rich.ID, poor.ID, "0", model.ErrInvalidAmount, model.KindValidation},
		{"insufficient funds", poor.ID, rich.ID, "50", model.ErrInsufficientFunds, model.KindInsufficientFunds},
		{"currency mismatch", rich.ID, swedish.ID, "1", model.ErrCurrencyMismatch, model.KindValidation},
		{"frozen destination", rich.ID, frozen.ID, "1", model.ErrAccountInactive, model.KindState},
		{"unknown destination", rich.ID, uuid.New(), "1", model.ErrAccountNotFound, model.KindNotFound},
		{"unknown source", uuid.New(), rich.ID, "1", model.ErrAccountNotFound, model.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.processor.Transfer(context.Background(), tt.from, tt.to, d(tt.amount), "")
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, model.KindOf(err))
		})
	}

	for _, account := range []*model.Account{rich, poor, swedish, frozen} {
		assert.True(t, f.balance(t, account.ID).Equal(account.Balance))
		assert.Empty(t, f.entries(t, account.ID))
	}
}

func TestTransfer_ConcurrentOpposingTransfersConserveMoney(t *testing.T) {
	f := newFixture(t)
	accounts := []*model.Account{
		f.account(t, "500", "NOK", model.AccountStatusActive),
		f.account(t, "500", "NOK", model.AccountStatusActive),
		f.account(t, "500", "NOK", model.AccountStatusActive),
	}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		from := accounts[i%3]
		to := accounts[(i+1+rand.Intn(2))%3]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.processor.Transfer(context.Background(), from.ID, to.ID, d("7"), "")
			if err != nil {
				assert.ErrorIs(t, err, model.ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	total := decimal.Zero
	for _, account := range accounts {
		balance := f.balance(t, account.ID)
		assert.False(t, balance.IsNegative())
		total = total.Add(balance)

		for _, txn := range f.entries(t, account.ID) {
			assert.NoError(t, journal.Verify(&txn))
		}
	}
	assert.True(t, total.Equal(d("1500")), "money was created or destroyed: %s", total)
}

func TestTransfer_ReversingOneLegReversesBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.account(t, "100", "NOK", model.AccountStatusActive)
	to := f.account(t, "0", "NOK", model.AccountStatusActive)

	result, err := f.processor.Transfer(ctx, from.ID, to.ID, d("30"), "")
	require.NoError(t, err)

	reversals, err := f.ledger.Reverse(ctx, model.System, result.Credit.ID, "mistaken transfer")
	require.NoError(t, err)
	require.Len(t, reversals, 2)

	assert.True(t, f.balance(t, from.ID).Equal(d("100")))
	assert.True(t, f.balance(t, to.ID).Equal(d("0")))

	for _, id := range []string{result.Debit.ID, result.Credit.ID} {
		txn, err := f.store.GetTransaction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusReversed, txn.Status)
	}

	sum := decimal.Zero
	for _, rev := range reversals {
		assert.True(t, rev.IsReversal())
		sum = sum.Add(rev.Signed())
	}
	assert.True(t, sum.IsZero())

	_, err = f.ledger.Reverse(ctx, model.System, result.Debit.ID, "")
	assert.ErrorIs(t, err, model.ErrAlreadyReversed)
}

// recordingStore notes the order accounts are read for update
type recordingStore struct {
	*repository.MemoryStore
	mu   sync.Mutex
	read []uuid.UUID
}

type recordingTx struct {
	repository.Tx
	store *recordingStore
}

func (s *recordingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.MemoryStore.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, &recordingTx{Tx: tx, store: s})
	})
}

func (t *recordingTx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	t.store.mu.Lock()
	t.store.read = append(t.store.read, id)
	t.store.mu.Unlock()
	return t.Tx.GetAccountForUpdate(ctx, id)
}

func TestTransfer_ReadsAccountsInIDOrder(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "100", "KES", model.AccountStatusActive)
	b := f.account(t, "100", "KES", model.AccountStatusActive)
	low, high := a.ID, b.ID
	if high.String() < low.String() {
		low, high = high, low
	}

	ids, err := idgen.NewSnowflake(4)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	store := &recordingStore{MemoryStore: f.store}
	processor := NewTransferProcessor(store, lock.NewLocal(time.Second), ledger.NewPoster(journal.New(ids, nil, logger)), logger)
	ctx := context.Background()

	for _, dir := range [][2]uuid.UUID{{low, high}, {high, low}} {
		store.read = nil
		_, err := processor.Transfer(ctx, dir[0], dir[1], d("10"), "")
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(store.read), 2)
		assert.Equal(t, []uuid.UUID{low, high}, store.read[:2], "from %s to %s", dir[0], dir[1])
	}
	assert.True(t, f.balance(t, a.ID).Equal(d("100")))
	assert.True(t, f.balance(t, b.ID).Equal(d("100")))
}
