package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/simonkvalheim/fjord-ledger/internal/ledger"
	"github.com/simonkvalheim/fjord-ledger/internal/lock"
	"github.com/simonkvalheim/fjord-ledger/internal/model"
	"github.com/simonkvalheim/fjord-ledger/internal/repository"
)

var tracer = otel.Tracer("fjord-ledger/processor")

// TransferProcessor moves money between two accounts as one atomic unit:
// both legs are written or neither is
type TransferProcessor struct {
	store  repository.Store
	locks  lock.Locker
	poster *ledger.Poster
	log    logrus.FieldLogger
}

// NewTransferProcessor creates a new TransferProcessor
func NewTransferProcessor(store repository.Store, locks lock.Locker, poster *ledger.Poster, log logrus.FieldLogger) *TransferProcessor {
	return &TransferProcessor{store: store, locks: locks, poster: poster, log: log}
}

// Transfer debits from and credits to by amount. Both accounts are locked in id order for
// the whole check-and-write, so concurrent transfers in opposite directions cannot deadlock.
// Each returned leg references the other.
func (p *TransferProcessor) Transfer(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal, description string) (*model.TransferResult, error) {
	ctx, span := tracer.Start(ctx, "Transfer", trace.WithAttributes(
		attribute.String("from_account_id", from.String()),
		attribute.String("to_account_id", to.String()),
		attribute.String("amount", amount.String()),
	))
	defer span.End()

	if from == to {
		return nil, recordError(span, model.ErrSameAccount)
	}
	if !amount.IsPositive() {
		return nil, recordError(span, model.ErrInvalidAmount)
	}

	release, err := p.locks.Acquire(ctx, lock.AccountKey(from), lock.AccountKey(to))
	if err != nil {
		return nil, recordError(span, err)
	}
	defer release()

	var result model.TransferResult
	err = p.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		source, dest, err := lockPair(ctx, tx, from, to)
		if err != nil {
			return err
		}
		if err := validatePair(source, dest, amount); err != nil {
			return err
		}

		debitID := p.poster.Journal().ReserveID()
		creditID := p.poster.Journal().ReserveID()

		result.Debit, err = p.poster.Post(ctx, tx, ledger.Posting{
			ID:          debitID,
			AccountID:   from,
			Type:        model.TransactionTypeTransfer,
			Direction:   model.DirectionDebit,
			Amount:      amount,
			Description: description,
			Reference:   creditID,
		})
		if err != nil {
			return fmt.Errorf("debit leg: %w", err)
		}

		result.Credit, err = p.poster.Post(ctx, tx, ledger.Posting{
			ID:          creditID,
			AccountID:   to,
			Type:        model.TransactionTypeTransfer,
			Direction:   model.DirectionCredit,
			Amount:      amount,
			Description: description,
			Reference:   debitID,
		})
		if err != nil {
			return fmt.Errorf("credit leg: %w", err)
		}
		return nil
	})

	fields := logrus.Fields{
		"from_account_id": from,
		"to_account_id":   to,
		"amount":          amount.String(),
	}
	if err != nil {
		entry := p.log.WithFields(fields).WithError(err)
		if k := model.KindOf(err); k == model.KindConsistency || k == model.KindUnknown {
			entry.Error("transfer failed")
		} else {
			entry.Debug("transfer rejected")
		}
		return nil, recordError(span, err)
	}

	span.SetAttributes(
		attribute.String("debit_transaction_id", result.Debit.ID),
		attribute.String("credit_transaction_id", result.Credit.ID),
	)
	p.log.WithFields(fields).
		WithField("debit_transaction_id", result.Debit.ID).
		WithField("credit_transaction_id", result.Credit.ID).
		Info("transfer completed")
	return &result, nil
}

// lockPair reads both accounts for update in ascending id order, the same order lock.Order
// uses, so row locks in the store never wait on each other in a cycle
func lockPair(ctx context.Context, tx repository.Tx, from, to uuid.UUID) (source, dest *model.Account, err error) {
	first, second := from, to
	if strings.Compare(to.String(), from.String()) < 0 {
		first, second = to, from
	}

	a, err := tx.GetAccountForUpdate(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	b, err := tx.GetAccountForUpdate(ctx, second)
	if err != nil {
		return nil, nil, err
	}
	if first == from {
		return a, b, nil
	}
	return b, a, nil
}

// validatePair runs every business check before the first leg is written
func validatePair(source, dest *model.Account, amount decimal.Decimal) error {
	if !source.IsActive() || !dest.IsActive() {
		return model.ErrAccountInactive
	}
	if source.Currency != dest.Currency {
		return model.ErrCurrencyMismatch
	}
	if err := model.ValidateAmount(amount, source.Currency); err != nil {
		return err
	}
	if source.Balance.LessThan(amount) {
		return model.ErrInsufficientFunds
	}
	return nil
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
