// Package ledger owns account balances. Every change to a balance goes through Post, which
// applies the debit or credit to a locked account and journals it in the same unit of work.
package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simonkvalheim/fjord-ledger/internal/journal"
	"github.com/simonkvalheim/fjord-ledger/internal/model"
	"github.com/simonkvalheim/fjord-ledger/internal/repository"
)

// ApplyDebit returns the account after taking amount out of it
func ApplyDebit(account model.Account, amount decimal.Decimal) (model.Account, error) {
	if !account.IsActive() {
		return account, model.ErrAccountInactive
	}
	if err := model.ValidateAmount(amount, account.Currency); err != nil {
		return account, err
	}
	if account.Balance.LessThan(amount) {
		return account, model.ErrInsufficientFunds
	}
	account.Balance = account.Balance.Sub(amount)
	return account, nil
}

// ApplyCredit returns the account after adding amount to it
func ApplyCredit(account model.Account, amount decimal.Decimal) (model.Account, error) {
	if !account.IsActive() {
		return account, model.ErrAccountInactive
	}
	if err := model.ValidateAmount(amount, account.Currency); err != nil {
		return account, err
	}
	account.Balance = account.Balance.Add(amount)
	return account, nil
}

// Posting is one balance change to be applied inside a unit of work
type Posting struct {
	// ID is an optional pre-reserved transaction id
	ID          string
	AccountID   uuid.UUID
	Type        model.TransactionType
	Direction   model.Direction
	Amount      decimal.Decimal
	Description string
	Reference   string
	ReversalOf  string
}

// Poster applies postings. It needs the account's exclusive boundary to be held by the caller.
type Poster struct {
	journal *journal.Journal
}

// NewPoster creates a Poster writing through j
func NewPoster(j *journal.Journal) *Poster {
	return &Poster{journal: j}
}

// Journal exposes the journal postings are written to
func (p *Poster) Journal() *journal.Journal {
	return p.journal
}

// Post reads the account in tx, applies the change, stores the new balance and journals it.
// Exactly one account row and one transaction row are written.
func (p *Poster) Post(ctx context.Context, tx repository.Tx, posting Posting) (*model.Transaction, error) {
	account, err := tx.GetAccountForUpdate(ctx, posting.AccountID)
	if err != nil {
		return nil, err
	}

	var updated model.Account
	switch posting.Direction {
	case model.DirectionDebit:
		updated, err = ApplyDebit(*account, posting.Amount)
	case model.DirectionCredit:
		updated, err = ApplyCredit(*account, posting.Amount)
	default:
		return nil, model.ErrInvalidRequest
	}
	if err != nil {
		return nil, err
	}

	txn, err := p.journal.Append(ctx, tx, journal.Entry{
		ID:            posting.ID,
		AccountID:     account.ID,
		Type:          posting.Type,
		Direction:     posting.Direction,
		Amount:        posting.Amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  updated.Balance,
		Description:   posting.Description,
		Reference:     posting.Reference,
		ReversalOf:    posting.ReversalOf,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.UpdateAccountBalance(ctx, account.ID, updated.Balance, txn.CreatedAt); err != nil {
		return nil, err
	}
	return txn, nil
}
