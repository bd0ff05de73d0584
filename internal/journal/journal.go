// Package journal appends entries to the transaction journal.
//
// Every entry is checked before it is written: the amount is positive, the direction matches
// the transaction type and balance_after equals balance_before plus the signed amount. A
// failed check means the caller computed a balance wrongly, so the entry is refused with
// model.ErrLedgerInconsistency and the enclosing unit of work is expected to roll back.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/idgen"
	"github.com/simonkvalheim/fjord-ledger/internal/model"
	"github.com/simonkvalheim/fjord-ledger/internal/repository"
)

// Entry describes one journal row before it receives an id and timestamp
type Entry struct {
	// ID may be reserved up front with Journal.ReserveID, e.g. so two transfer legs
	// can reference each other. Left empty, Append assigns one.
	ID            string
	AccountID     uuid.UUID
	Type          model.TransactionType
	Direction     model.Direction
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	Reference     string
	ReversalOf    string
	// Pending records the entry as PENDING instead of COMPLETED
	Pending bool
}

// Journal writes verified entries through a repository.Tx
type Journal struct {
	ids idgen.Generator
	now func() time.Time
	log logrus.FieldLogger
}

// New creates a Journal. A nil clock means time.Now.
func New(ids idgen.Generator, clock func() time.Time, log logrus.FieldLogger) *Journal {
	if clock == nil {
		clock = time.Now
	}
	return &Journal{ids: ids, now: clock, log: log}
}

// ReserveID issues a transaction id without writing anything
func (j *Journal) ReserveID() string {
	return j.ids.NewTransactionID()
}

// Now returns the journal clock's current time in UTC
func (j *Journal) Now() time.Time {
	return j.now().UTC()
}

// Append verifies e and inserts it in tx
func (j *Journal) Append(ctx context.Context, tx repository.Tx, e Entry) (*model.Transaction, error) {
	id := e.ID
	if id == "" {
		id = j.ids.NewTransactionID()
	}

	status := model.TransactionStatusCompleted
	if e.Pending {
		status = model.TransactionStatusPending
	}

	txn := &model.Transaction{
		ID:            id,
		AccountID:     e.AccountID,
		Type:          e.Type,
		Direction:     e.Direction,
		Amount:        e.Amount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Description:   e.Description,
		Status:        status,
		Reference:     e.Reference,
		ReversalOf:    e.ReversalOf,
		CreatedAt:     j.Now(),
	}

	if err := Verify(txn); err != nil {
		j.log.WithFields(logrus.Fields{
			"transaction_id": txn.ID,
			"account_id":     txn.AccountID,
			"type":           txn.Type,
			"direction":      txn.Direction,
			"amount":         txn.Amount.String(),
			"balance_before": txn.BalanceBefore.String(),
			"balance_after":  txn.BalanceAfter.String(),
		}).WithError(err).Error("refusing inconsistent journal entry")
		return nil, err
	}

	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Verify checks a single entry's arithmetic and type/direction pairing
func Verify(txn *model.Transaction) error {
	if !txn.Amount.IsPositive() {
		return inconsistent("amount %s is not positive", txn.Amount)
	}
	if txn.Direction != model.DirectionDebit && txn.Direction != model.DirectionCredit {
		return inconsistent("unknown direction %q", txn.Direction)
	}
	if !txn.Type.Valid() {
		return inconsistent("unknown transaction type %q", txn.Type)
	}

	if natural, ok := txn.Type.NaturalDirection(); ok {
		want := natural
		if txn.IsReversal() {
			want = natural.Opposite()
		}
		if txn.Direction != want {
			return inconsistent("%s entry must be %s, got %s", txn.Type, want, txn.Direction)
		}
	}

	if txn.BalanceAfter.IsNegative() {
		return inconsistent("balance after %s is negative", txn.BalanceAfter)
	}
	if want := txn.BalanceBefore.Add(txn.Signed()); !txn.BalanceAfter.Equal(want) {
		return inconsistent("balance after %s, expected %s", txn.BalanceAfter, want)
	}
	return nil
}

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrLedgerInconsistency, fmt.Sprintf(format, args...))
}
