package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

// MemoryStore keeps the ledger in process memory. It is used when no DATABASE_URL is
// configured and by the service tests.
type MemoryStore struct {
	mu sync.RWMutex

	accounts     map[uuid.UUID]model.Account
	transactions map[string]model.Transaction
	// byAccount holds transaction ids per account in commit order
	byAccount map[uuid.UUID][]string
	loans     map[string]model.Loan
	payments  map[string][]model.LoanPayment
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[uuid.UUID]model.Account),
		transactions: make(map[string]model.Transaction),
		byAccount:    make(map[uuid.UUID][]string),
		loans:        make(map[string]model.Loan),
		payments:     make(map[string][]model.LoanPayment),
	}
}

// RunInTx runs fn against a staging area and publishes its writes in one step if fn succeeds
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memoryTx{
		store:        s,
		accounts:     make(map[uuid.UUID]model.Account),
		transactions: make(map[string]model.Transaction),
		loans:        make(map[string]model.Loan),
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range tx.inserted {
		if _, exists := s.transactions[id]; exists {
			return fmt.Errorf("failed to commit: duplicate transaction id %s", id)
		}
	}

	for id, account := range tx.accounts {
		s.accounts[id] = account
	}
	for _, id := range tx.inserted {
		txn := tx.transactions[id]
		s.byAccount[txn.AccountID] = append(s.byAccount[txn.AccountID], id)
	}
	// staged entries include rows updated in place, such as reversed entries
	for id, txn := range tx.transactions {
		s.transactions[id] = txn
	}
	for id, loan := range tx.loans {
		s.loans[id] = loan
	}
	for _, payment := range tx.payments {
		s.payments[payment.LoanID] = append(s.payments[payment.LoanID], payment)
	}

	return nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return model.ErrDuplicate
	}
	for _, existing := range s.accounts {
		if existing.AccountNumber == account.AccountNumber {
			return model.ErrDuplicate
		}
	}

	s.accounts[account.ID] = *account
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return &account, nil
}

func (s *MemoryStore) ListAccountsByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := []model.Account{}
	for _, account := range s.accounts {
		if account.CustomerID == customerID {
			accounts = append(accounts, account)
		}
	}
	sortAccounts(accounts)
	return accounts, nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, model.ErrTransactionNotFound
	}
	return &txn, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error) {
	limit = NormalizeLimit(limit, DefaultStatementLimit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byAccount[accountID]
	txns := make([]model.Transaction, 0, min(limit, len(ids)))
	for i := len(ids) - 1; i >= 0 && len(txns) < limit; i-- {
		txns = append(txns, s.transactions[ids[i]])
	}
	return txns, nil
}

func (s *MemoryStore) CreateLoan(ctx context.Context, loan *model.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.loans[loan.ID]; exists {
		return model.ErrDuplicate
	}
	s.loans[loan.ID] = *loan
	return nil
}

func (s *MemoryStore) GetLoan(ctx context.Context, id string) (*model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loan, ok := s.loans[id]
	if !ok {
		return nil, model.ErrLoanNotFound
	}
	return &loan, nil
}

func (s *MemoryStore) ListLoansByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loans := []model.Loan{}
	for _, loan := range s.loans {
		if loan.CustomerID == customerID {
			loans = append(loans, loan)
		}
	}
	sortLoans(loans)
	return loans, nil
}

func (s *MemoryStore) ListLoanPayments(ctx context.Context, loanID string) ([]model.LoanPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.payments[loanID]
	payments := make([]model.LoanPayment, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		payments = append(payments, stored[i])
	}
	return payments, nil
}

// memoryTx reads through to the store and keeps its own writes private until commit
type memoryTx struct {
	store *MemoryStore

	accounts     map[uuid.UUID]model.Account
	transactions map[string]model.Transaction
	inserted     []string
	loans        map[string]model.Loan
	payments     []model.LoanPayment
}

func (t *memoryTx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	if account, ok := t.accounts[id]; ok {
		return &account, nil
	}
	return t.store.GetAccount(ctx, id)
}

func (t *memoryTx) UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, updatedAt time.Time) error {
	account, err := t.GetAccountForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if balance.IsNegative() {
		return fmt.Errorf("failed to update balance of %s: negative balance", id)
	}
	account.Balance = balance
	account.UpdatedAt = updatedAt
	t.accounts[id] = *account
	return nil
}

func (t *memoryTx) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	if _, ok := t.transactions[txn.ID]; ok {
		return fmt.Errorf("failed to insert transaction: duplicate id %s", txn.ID)
	}
	t.transactions[txn.ID] = *txn
	t.inserted = append(t.inserted, txn.ID)
	return nil
}

func (t *memoryTx) GetTransactionForUpdate(ctx context.Context, id string) (*model.Transaction, error) {
	if txn, ok := t.transactions[id]; ok {
		return &txn, nil
	}
	return t.store.GetTransaction(ctx, id)
}

func (t *memoryTx) MarkTransactionReversed(ctx context.Context, id string) error {
	txn, err := t.GetTransactionForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if txn.Status != model.TransactionStatusCompleted {
		return model.ErrAlreadyReversed
	}
	txn.Status = model.TransactionStatusReversed
	t.transactions[id] = *txn
	return nil
}

func (t *memoryTx) GetLoanForUpdate(ctx context.Context, id string) (*model.Loan, error) {
	if loan, ok := t.loans[id]; ok {
		return &loan, nil
	}
	return t.store.GetLoan(ctx, id)
}

func (t *memoryTx) UpdateLoan(ctx context.Context, loan *model.Loan) error {
	if _, err := t.GetLoanForUpdate(ctx, loan.ID); err != nil {
		return err
	}
	t.loans[loan.ID] = *loan
	return nil
}

func (t *memoryTx) InsertLoanPayment(ctx context.Context, payment *model.LoanPayment) error {
	t.payments = append(t.payments, *payment)
	return nil
}

func sortAccounts(accounts []model.Account) {
	slices.SortFunc(accounts, func(a, b model.Account) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.AccountNumber, b.AccountNumber)
	})
}

// sortLoans orders newest applications first
func sortLoans(loans []model.Loan) {
	slices.SortFunc(loans, func(a, b model.Loan) int {
		return strings.Compare(b.ID, a.ID)
	})
}
