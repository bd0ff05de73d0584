package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

// DefaultStatementLimit is used when a caller asks for zero or an out-of-range number of entries
const (
	DefaultStatementLimit = 20
	MaxStatementLimit     = 1000
)

// Tx is one atomic unit of work. Every write made through a Tx becomes visible together
// when RunInTx returns nil, or not at all.
//
// Callers are expected to hold the exclusive boundaries (internal/lock) of every account and
// loan they mutate for the lifetime of the Tx.
type Tx interface {
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error)
	UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, updatedAt time.Time) error

	InsertTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransactionForUpdate(ctx context.Context, id string) (*model.Transaction, error)
	// MarkTransactionReversed moves a COMPLETED entry to REVERSED, the only status change
	// the journal allows after completion.
	MarkTransactionReversed(ctx context.Context, id string) error

	GetLoanForUpdate(ctx context.Context, id string) (*model.Loan, error)
	UpdateLoan(ctx context.Context, loan *model.Loan) error
	InsertLoanPayment(ctx context.Context, payment *model.LoanPayment) error
}

// Store is the persistence boundary of the ledger
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error)
	ListAccountsByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.Account, error)

	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	// ListTransactions returns the most recent entries of an account first
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error)

	CreateLoan(ctx context.Context, loan *model.Loan) error
	GetLoan(ctx context.Context, id string) (*model.Loan, error)
	ListLoansByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.Loan, error)
	// ListLoanPayments returns the most recent payments first
	ListLoanPayments(ctx context.Context, loanID string) ([]model.LoanPayment, error)
}

// NormalizeLimit clamps a statement limit into [1, MaxStatementLimit]
func NormalizeLimit(limit, fallback int) int {
	if fallback <= 0 || fallback > MaxStatementLimit {
		fallback = DefaultStatementLimit
	}
	if limit <= 0 || limit > MaxStatementLimit {
		return fallback
	}
	return limit
}
