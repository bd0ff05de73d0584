package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

// PostgreSQL error codes that mean "try again later"
const (
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

const (
	accountColumns = `id, customer_id, account_number, account_type, currency, balance, status, created_at, updated_at`

	transactionColumns = `id, account_id, type, direction, amount, balance_before, balance_after, description, status, reference, reversal_of, created_at`

	loanColumns = `id, customer_id, account_id, loan_type, currency, principal_amount, interest_rate, term_months,
		monthly_payment, outstanding_balance, status, application_date, approval_date, approved_by, disbursement_date, notes`

	paymentColumns = `id, loan_id, amount, principal_paid, interest_paid, balance_after, transaction_id, payment_date`
)

// PostgresStore persists the ledger in PostgreSQL
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore creates a new PostgresStore. Row locks taken inside RunInTx wait at most
// lockTimeout before the unit of work fails with model.ErrBusy.
func NewPostgresStore(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

// RunInTx runs fn inside one database transaction
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	dbTx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer dbTx.Rollback(ctx)

	if s.lockTimeout > 0 {
		// SET LOCAL does not accept bind parameters
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := dbTx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	if err := fn(ctx, &postgresTx{tx: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}

	return nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account *model.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.Exec(ctx, query,
		account.ID,
		account.CustomerID,
		account.AccountNumber,
		account.AccountType,
		account.Currency,
		account.Balance,
		account.Status,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicate
		}
		return fmt.Errorf("failed to create account: %w", mapError(err))
	}

	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(s.db.QueryRow(ctx, query, id))
}

func (s *PostgresStore) ListAccountsByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE customer_id = $1
		ORDER BY created_at, account_number
	`

	rows, err := s.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}

	return accounts, rows.Err()
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(s.db.QueryRow(ctx, query, id))
}

func (s *PostgresStore) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error) {
	limit = NormalizeLimit(limit, DefaultStatementLimit)

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txns := []model.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}

	return txns, rows.Err()
}

func (s *PostgresStore) CreateLoan(ctx context.Context, loan *model.Loan) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.db.Exec(ctx, query,
		loan.ID,
		loan.CustomerID,
		loan.AccountID,
		loan.LoanType,
		loan.Currency,
		loan.PrincipalAmount,
		loan.InterestRate,
		loan.TermMonths,
		loan.MonthlyPayment,
		loan.OutstandingBalance,
		loan.Status,
		loan.ApplicationDate,
		loan.ApprovalDate,
		loan.ApprovedBy,
		loan.DisbursementDate,
		loan.Notes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicate
		}
		return fmt.Errorf("failed to create loan: %w", mapError(err))
	}

	return nil
}

func (s *PostgresStore) GetLoan(ctx context.Context, id string) (*model.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	return scanLoan(s.db.QueryRow(ctx, query, id))
}

func (s *PostgresStore) ListLoansByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE customer_id = $1
		ORDER BY id DESC
	`

	rows, err := s.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	loans := []model.Loan{}
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *loan)
	}

	return loans, rows.Err()
}

func (s *PostgresStore) ListLoanPayments(ctx context.Context, loanID string) ([]model.LoanPayment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM loan_payments
		WHERE loan_id = $1
		ORDER BY payment_date DESC, id DESC
	`

	rows, err := s.db.Query(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loan payments: %w", err)
	}
	defer rows.Close()

	payments := []model.LoanPayment{}
	for rows.Next() {
		var p model.LoanPayment
		err := rows.Scan(
			&p.ID,
			&p.LoanID,
			&p.Amount,
			&p.PrincipalPaid,
			&p.InterestPaid,
			&p.BalanceAfter,
			&p.TransactionID,
			&p.PaymentDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan payment: %w", err)
		}
		payments = append(payments, p)
	}

	return payments, rows.Err()
}

// postgresTx implements Tx on a single pgx transaction
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccount(t.tx.QueryRow(ctx, query, id))
}

func (t *postgresTx) UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, updatedAt time.Time) error {
	query := `UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3`

	result, err := t.tx.Exec(ctx, query, balance, updatedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", mapError(err))
	}
	if result.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

func (t *postgresTx) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := t.tx.Exec(ctx, query,
		txn.ID,
		txn.AccountID,
		txn.Type,
		txn.Direction,
		txn.Amount,
		txn.BalanceBefore,
		txn.BalanceAfter,
		txn.Description,
		txn.Status,
		txn.Reference,
		txn.ReversalOf,
		txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", mapError(err))
	}
	return nil
}

func (t *postgresTx) GetTransactionForUpdate(ctx context.Context, id string) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	return scanTransaction(t.tx.QueryRow(ctx, query, id))
}

func (t *postgresTx) MarkTransactionReversed(ctx context.Context, id string) error {
	query := `UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3`

	result, err := t.tx.Exec(ctx, query, model.TransactionStatusReversed, id, model.TransactionStatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to mark transaction reversed: %w", mapError(err))
	}
	if result.RowsAffected() == 0 {
		return model.ErrAlreadyReversed
	}
	return nil
}

func (t *postgresTx) GetLoanForUpdate(ctx context.Context, id string) (*model.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`
	return scanLoan(t.tx.QueryRow(ctx, query, id))
}

func (t *postgresTx) UpdateLoan(ctx context.Context, loan *model.Loan) error {
	query := `
		UPDATE loans
		SET monthly_payment = $1, outstanding_balance = $2, status = $3,
			approval_date = $4, approved_by = $5, disbursement_date = $6, notes = $7
		WHERE id = $8
	`

	result, err := t.tx.Exec(ctx, query,
		loan.MonthlyPayment,
		loan.OutstandingBalance,
		loan.Status,
		loan.ApprovalDate,
		loan.ApprovedBy,
		loan.DisbursementDate,
		loan.Notes,
		loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", mapError(err))
	}
	if result.RowsAffected() == 0 {
		return model.ErrLoanNotFound
	}
	return nil
}

func (t *postgresTx) InsertLoanPayment(ctx context.Context, p *model.LoanPayment) error {
	query := `
		INSERT INTO loan_payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := t.tx.Exec(ctx, query,
		p.ID,
		p.LoanID,
		p.Amount,
		p.PrincipalPaid,
		p.InterestPaid,
		p.BalanceAfter,
		p.TransactionID,
		p.PaymentDate,
	)
	if err != nil {
		return fmt.Errorf("failed to insert loan payment: %w", mapError(err))
	}
	return nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	account := &model.Account{}
	err := row.Scan(
		&account.ID,
		&account.CustomerID,
		&account.AccountNumber,
		&account.AccountType,
		&account.Currency,
		&account.Balance,
		&account.Status,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", mapError(err))
	}
	return account, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	txn := &model.Transaction{}
	err := row.Scan(
		&txn.ID,
		&txn.AccountID,
		&txn.Type,
		&txn.Direction,
		&txn.Amount,
		&txn.BalanceBefore,
		&txn.BalanceAfter,
		&txn.Description,
		&txn.Status,
		&txn.Reference,
		&txn.ReversalOf,
		&txn.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", mapError(err))
	}
	return txn, nil
}

func scanLoan(row pgx.Row) (*model.Loan, error) {
	loan := &model.Loan{}
	err := row.Scan(
		&loan.ID,
		&loan.CustomerID,
		&loan.AccountID,
		&loan.LoanType,
		&loan.Currency,
		&loan.PrincipalAmount,
		&loan.InterestRate,
		&loan.TermMonths,
		&loan.MonthlyPayment,
		&loan.OutstandingBalance,
		&loan.Status,
		&loan.ApplicationDate,
		&loan.ApprovalDate,
		&loan.ApprovedBy,
		&loan.DisbursementDate,
		&loan.Notes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", mapError(err))
	}
	return loan, nil
}

// mapError turns lock contention into model.ErrBusy and leaves other errors untouched
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
		return fmt.Errorf("%w: %s", model.ErrBusy, pgErr.Message)
	}
	return err
}

// isUniqueViolation checks if the error is a unique constraint violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
