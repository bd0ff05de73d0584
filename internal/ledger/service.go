package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/lock"
	"github.com/simonkvalheim/fjord-ledger/internal/model"
	"github.com/simonkvalheim/fjord-ledger/internal/repository"
)

// accountNumberAttempts bounds retries when a generated account number is already taken
const accountNumberAttempts = 5

// Service exposes single-account ledger operations
type Service struct {
	store          repository.Store
	locks          lock.Locker
	poster         *Poster
	log            logrus.FieldLogger
	statementLimit int
}

// NewService creates a new ledger Service. statementLimit is the number of entries returned
// when a statement is requested without a usable limit.
func NewService(store repository.Store, locks lock.Locker, poster *Poster, log logrus.FieldLogger, statementLimit int) *Service {
	return &Service{
		store:          store,
		locks:          locks,
		poster:         poster,
		log:            log,
		statementLimit: repository.NormalizeLimit(statementLimit, repository.DefaultStatementLimit),
	}
}

// Deposit credits amount to the account
func (s *Service) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (*model.Transaction, error) {
	return s.Credit(ctx, accountID, amount, model.TransactionTypeDeposit, description, "")
}

// Withdraw debits amount from the account
func (s *Service) Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (*model.Transaction, error) {
	return s.Debit(ctx, accountID, amount, model.TransactionTypeWithdrawal, description, "")
}

// ChargeFee debits a fee from the account
func (s *Service) ChargeFee(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (*model.Transaction, error) {
	return s.Debit(ctx, accountID, amount, model.TransactionTypeFee, description, "")
}

// PostInterest credits earned interest to the account
func (s *Service) PostInterest(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (*model.Transaction, error) {
	return s.Credit(ctx, accountID, amount, model.TransactionTypeInterest, description, "")
}

// Debit takes amount out of an account as one entry of a debit type
func (s *Service) Debit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, txType model.TransactionType, description, reference string) (*model.Transaction, error) {
	return s.single(ctx, accountID, amount, txType, model.DirectionDebit, description, reference)
}

// Credit adds amount to an account as one entry of a credit type
func (s *Service) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, txType model.TransactionType, description, reference string) (*model.Transaction, error) {
	return s.single(ctx, accountID, amount, txType, model.DirectionCredit, description, reference)
}

func (s *Service) single(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, txType model.TransactionType, direction model.Direction, description, reference string) (*model.Transaction, error) {
	if natural, ok := txType.NaturalDirection(); !ok || natural != direction {
		return nil, model.ErrInvalidRequest
	}
	if !amount.IsPositive() {
		return nil, model.ErrInvalidAmount
	}

	release, err := s.locks.Acquire(ctx, lock.AccountKey(accountID))
	if err != nil {
		return nil, err
	}
	defer release()

	var txn *model.Transaction
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		txn, err = s.poster.Post(ctx, tx, Posting{
			AccountID:   accountID,
			Type:        txType,
			Direction:   direction,
			Amount:      amount,
			Description: description,
			Reference:   reference,
		})
		return err
	})
	if err != nil {
		s.logFailure(err, logrus.Fields{"account_id": accountID, "type": txType, "amount": amount.String()})
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"account_id":     accountID,
		"type":           txType,
		"amount":         amount.String(),
	}).Info("posted ledger entry")
	return txn, nil
}

// Statement returns the most recent entries of an account, newest first
func (s *Service) Statement(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, accountID, repository.NormalizeLimit(limit, s.statementLimit))
}

// Transaction returns a journal entry on an account visible to actor
func (s *Service) Transaction(ctx context.Context, actor model.Actor, id string) (*model.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Elevated {
		if _, err := s.GetAccount(ctx, actor, txn.AccountID); err != nil {
			return nil, err
		}
	}
	return txn, nil
}

// Reverse compensates a COMPLETED entry. The entry becomes REVERSED and an entry of the
// same type with the opposite direction is appended. Reversing either leg of a transfer
// reverses both legs. Loan disbursements and repayments cannot be reversed here.
func (s *Service) Reverse(ctx context.Context, actor model.Actor, transactionID, description string) ([]model.Transaction, error) {
	if !actor.Elevated {
		return nil, model.ErrNotPermitted
	}

	original, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if original.IsReversal() {
		return nil, model.ErrInvalidRequest
	}
	// loan entries are settled through the loan engine, which keeps the loan in step
	if original.Type == model.TransactionTypeLoanDisbursement || original.Type == model.TransactionTypeLoanRepayment {
		return nil, model.ErrInvalidRequest
	}

	ids := []string{original.ID}
	keys := []lock.Key{lock.AccountKey(original.AccountID)}
	if original.Type == model.TransactionTypeTransfer && original.Reference != "" {
		counterpart, err := s.store.GetTransaction(ctx, original.Reference)
		if err != nil {
			return nil, fmt.Errorf("failed to load counterpart leg %s: %w", original.Reference, err)
		}
		ids = append(ids, counterpart.ID)
		keys = append(keys, lock.AccountKey(counterpart.AccountID))
	}

	if description == "" {
		description = "Reversal of " + original.ID
	}

	release, err := s.locks.Acquire(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	var reversals []model.Transaction
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		reversals = reversals[:0]
		for _, id := range ids {
			entry, err := tx.GetTransactionForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if entry.Status != model.TransactionStatusCompleted {
				return model.ErrAlreadyReversed
			}
			if err := tx.MarkTransactionReversed(ctx, id); err != nil {
				return err
			}

			txn, err := s.poster.Post(ctx, tx, Posting{
				AccountID:   entry.AccountID,
				Type:        entry.Type,
				Direction:   entry.Direction.Opposite(),
				Amount:      entry.Amount,
				Description: description,
				Reference:   entry.ID,
				ReversalOf:  entry.ID,
			})
			if err != nil {
				return err
			}
			reversals = append(reversals, *txn)
		}
		return nil
	})
	if err != nil {
		s.logFailure(err, logrus.Fields{"transaction_id": transactionID})
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"reversed_by":    actor.ID,
		"entries":        len(reversals),
	}).Info("reversed ledger entry")
	return reversals, nil
}

// OpenAccount creates an empty ACTIVE account. Customers may only open accounts for themselves.
func (s *Service) OpenAccount(ctx context.Context, actor model.Actor, req model.OpenAccountRequest) (*model.Account, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !owns(actor, req.CustomerID) {
		return nil, model.ErrNotPermitted
	}

	now := s.poster.Journal().Now()
	account := &model.Account{
		ID:          uuid.New(),
		CustomerID:  req.CustomerID,
		AccountType: req.AccountType,
		Currency:    strings.ToUpper(req.Currency),
		Balance:     decimal.Zero,
		Status:      model.AccountStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for attempt := 1; ; attempt++ {
		account.AccountNumber = generateAccountNumber()
		err := s.store.CreateAccount(ctx, account)
		if err == nil {
			break
		}
		if !errors.Is(err, model.ErrDuplicate) || attempt == accountNumberAttempts {
			return nil, err
		}
	}

	s.log.WithFields(logrus.Fields{
		"account_id":  account.ID,
		"customer_id": account.CustomerID,
		"currency":    account.Currency,
	}).Info("opened account")
	return account, nil
}

// GetAccount returns an account visible to actor
func (s *Service) GetAccount(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Account, error) {
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owns(actor, account.CustomerID) {
		return nil, model.ErrNotPermitted
	}
	return account, nil
}

// Balance returns the current balance of an account visible to actor
func (s *Service) Balance(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.AccountBalance, error) {
	account, err := s.GetAccount(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return &model.AccountBalance{
		AccountID: account.ID,
		Balance:   account.Balance,
		Currency:  account.Currency,
		Status:    account.Status,
		AsOf:      s.poster.Journal().Now(),
	}, nil
}

// ListAccounts returns a customer's accounts
func (s *Service) ListAccounts(ctx context.Context, actor model.Actor, customerID uuid.UUID) ([]model.Account, error) {
	if !owns(actor, customerID) {
		return nil, model.ErrNotPermitted
	}
	return s.store.ListAccountsByCustomer(ctx, customerID)
}

// logFailure logs consistency faults loudly and everything else at debug level
func (s *Service) logFailure(err error, fields logrus.Fields) {
	entry := s.log.WithFields(fields).WithError(err)
	switch model.KindOf(err) {
	case model.KindConsistency, model.KindUnknown:
		entry.Error("ledger operation failed")
	default:
		entry.Debug("ledger operation rejected")
	}
}

// owns reports whether actor may act on resources of customerID
func owns(actor model.Actor, customerID uuid.UUID) bool {
	return actor.Elevated || actor.ID == customerID.String()
}

// generateAccountNumber creates a Norwegian-style account number: NO + 2 check digits + 12 digits
func generateAccountNumber() string {
	return fmt.Sprintf("NO%02d%012d", rand.Intn(100), rand.Int63n(1_000_000_000_000))
}
