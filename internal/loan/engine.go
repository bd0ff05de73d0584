// Package loan runs installment loans through their lifecycle:
//
//	PENDING -> APPROVED -> DISBURSED -> ACTIVE -> PAID
//	                                          \-> DEFAULTED
//	PENDING -> REJECTED
//
// Disbursement and repayment move money through the ledger in the same unit of work as the
// loan state change.
package loan

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

	"github.com/simonkvalheim/fjord-ledger/internal/idgen"
	"github.com/simonkvalheim/fjord-ledger/internal/ledger"
	"github.com/simonkvalheim/fjord-ledger/internal/lock"
	"github.com/simonkvalheim/fjord-ledger/internal/model"
	"github.com/simonkvalheim/fjord-ledger/internal/repository"
)

var tracer = otel.Tracer("fjord-ledger/loan")

// Engine applies loan operations
type Engine struct {
	store  repository.Store
	locks  lock.Locker
	poster *ledger.Poster
	ids    idgen.Generator
	log    logrus.FieldLogger
}

// NewEngine creates a new loan Engine
func NewEngine(store repository.Store, locks lock.Locker, poster *ledger.Poster, ids idgen.Generator, log logrus.FieldLogger) *Engine {
	return &Engine{store: store, locks: locks, poster: poster, ids: ids, log: log}
}

// Apply records a PENDING loan for the applicant's own account
func (e *Engine) Apply(ctx context.Context, actor model.Actor, app model.LoanApplication) (*model.Loan, error) {
	principal, rate, err := app.Validate()
	if err != nil {
		return nil, err
	}
	if !actor.Elevated && actor.ID != app.CustomerID.String() {
		return nil, model.ErrNotPermitted
	}

	account, err := e.store.GetAccount(ctx, app.AccountID)
	if err != nil {
		return nil, err
	}
	if account.CustomerID != app.CustomerID {
		return nil, model.ErrInvalidRequest
	}
	if !account.IsActive() {
		return nil, model.ErrAccountInactive
	}
	if err := model.ValidateAmount(principal, account.Currency); err != nil {
		return nil, model.ErrInvalidLoanTerm
	}

	loan := &model.Loan{
		ID:                 e.ids.NewLoanID(),
		CustomerID:         app.CustomerID,
		AccountID:          app.AccountID,
		LoanType:           app.LoanType,
		Currency:           account.Currency,
		PrincipalAmount:    principal,
		InterestRate:       rate,
		TermMonths:         app.TermMonths,
		MonthlyPayment:     decimal.Zero,
		OutstandingBalance: decimal.Zero,
		Status:             model.LoanStatusPending,
		ApplicationDate:    e.poster.Journal().Now(),
		Notes:              app.Notes,
	}
	if err := e.store.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"loan_id":     loan.ID,
		"customer_id": loan.CustomerID,
		"principal":   principal.String(),
	}).Info("loan application received")
	return loan, nil
}

// Approve moves a PENDING loan to APPROVED and fixes its monthly payment
func (e *Engine) Approve(ctx context.Context, loanID string, actor model.Actor) (*model.Loan, error) {
	if !actor.Elevated {
		return nil, model.ErrNotPermitted
	}

	ctx, span := tracer.Start(ctx, "ApproveLoan", trace.WithAttributes(attribute.String("loan_id", loanID)))
	defer span.End()

	loan, err := e.transition(ctx, loanID, func(loan *model.Loan) error {
		if loan.Status != model.LoanStatusPending {
			return model.ErrInvalidState
		}
		now := e.poster.Journal().Now()
		loan.Status = model.LoanStatusApproved
		loan.OutstandingBalance = loan.PrincipalAmount
		loan.MonthlyPayment = MonthlyPayment(loan.PrincipalAmount, loan.InterestRate, loan.TermMonths, loan.Currency)
		loan.ApprovalDate = &now
		loan.ApprovedBy = actor.ID
		return nil
	})
	if err != nil {
		return nil, recordError(span, err)
	}

	e.log.WithFields(logrus.Fields{
		"loan_id":         loan.ID,
		"approved_by":     actor.ID,
		"monthly_payment": loan.MonthlyPayment.String(),
	}).Info("loan approved")
	return loan, nil
}

// Reject moves a PENDING loan to REJECTED, appending reason to its notes
func (e *Engine) Reject(ctx context.Context, loanID string, actor model.Actor, reason string) (*model.Loan, error) {
	if !actor.Elevated {
		return nil, model.ErrNotPermitted
	}

	loan, err := e.transition(ctx, loanID, func(loan *model.Loan) error {
		if loan.Status != model.LoanStatusPending {
			return model.ErrInvalidState
		}
		loan.Status = model.LoanStatusRejected
		if reason = strings.TrimSpace(reason); reason != "" {
			loan.Notes = strings.TrimSpace(loan.Notes + "\nRejected: " + reason)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{"loan_id": loan.ID, "rejected_by": actor.ID}).Info("loan rejected")
	return loan, nil
}

// MarkDefaulted moves a DISBURSED or ACTIVE loan to DEFAULTED. The outstanding balance is kept.
func (e *Engine) MarkDefaulted(ctx context.Context, loanID string, actor model.Actor) (*model.Loan, error) {
	if !actor.Elevated {
		return nil, model.ErrNotPermitted
	}

	loan, err := e.transition(ctx, loanID, func(loan *model.Loan) error {
		if !loan.AcceptsPayments() {
			return model.ErrInvalidState
		}
		loan.Status = model.LoanStatusDefaulted
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"loan_id":     loan.ID,
		"outstanding": loan.OutstandingBalance.String(),
	}).Warn("loan marked as defaulted")
	return loan, nil
}

// transition applies change to the locked loan and stores it
func (e *Engine) transition(ctx context.Context, loanID string, change func(*model.Loan) error) (*model.Loan, error) {
	release, err := e.locks.Acquire(ctx, lock.LoanKey(loanID))
	if err != nil {
		return nil, err
	}
	defer release()

	var loan *model.Loan
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		loan, err = tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if err := change(loan); err != nil {
			return err
		}
		return tx.UpdateLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Disburse pays the principal of an APPROVED loan into its account and marks it DISBURSED,
// both in one unit of work
func (e *Engine) Disburse(ctx context.Context, loanID string, actor model.Actor) (*model.Loan, *model.Transaction, error) {
	if !actor.Elevated {
		return nil, nil, model.ErrNotPermitted
	}

	ctx, span := tracer.Start(ctx, "DisburseLoan", trace.WithAttributes(attribute.String("loan_id", loanID)))
	defer span.End()

	current, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, nil, recordError(span, err)
	}

	release, err := e.locks.Acquire(ctx, lock.LoanKey(loanID), lock.AccountKey(current.AccountID))
	if err != nil {
		return nil, nil, recordError(span, err)
	}
	defer release()

	var (
		loan *model.Loan
		txn  *model.Transaction
	)
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		loan, err = tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != model.LoanStatusApproved {
			return model.ErrInvalidState
		}

		txn, err = e.poster.Post(ctx, tx, ledger.Posting{
			AccountID:   loan.AccountID,
			Type:        model.TransactionTypeLoanDisbursement,
			Direction:   model.DirectionCredit,
			Amount:      loan.PrincipalAmount,
			Description: fmt.Sprintf("Disbursement of loan %s", loan.ID),
			Reference:   loan.ID,
		})
		if err != nil {
			return err
		}

		disbursed := txn.CreatedAt
		loan.Status = model.LoanStatusDisbursed
		loan.DisbursementDate = &disbursed
		return tx.UpdateLoan(ctx, loan)
	})
	if err != nil {
		e.logFailure(err, logrus.Fields{"loan_id": loanID, "operation": "disburse"})
		return nil, nil, recordError(span, err)
	}

	span.SetAttributes(attribute.String("transaction_id", txn.ID))
	e.log.WithFields(logrus.Fields{
		"loan_id":        loan.ID,
		"account_id":     loan.AccountID,
		"transaction_id": txn.ID,
		"amount":         loan.PrincipalAmount.String(),
	}).Info("loan disbursed")
	return loan, txn, nil
}

// ApplyPayment applies a repayment to a DISBURSED or ACTIVE loan. Interest for the period is
// paid first and the rest reduces the outstanding balance. When sourceAccountID is set the
// amount is debited from that account in the same unit of work.
func (e *Engine) ApplyPayment(ctx context.Context, loanID string, amount decimal.Decimal, sourceAccountID *uuid.UUID) (*model.LoanPayment, error) {
	ctx, span := tracer.Start(ctx, "ApplyLoanPayment", trace.WithAttributes(
		attribute.String("loan_id", loanID),
		attribute.String("amount", amount.String()),
	))
	defer span.End()

	if !amount.IsPositive() {
		return nil, recordError(span, model.ErrInvalidAmount)
	}

	keys := []lock.Key{lock.LoanKey(loanID)}
	if sourceAccountID != nil {
		keys = append(keys, lock.AccountKey(*sourceAccountID))
	}
	release, err := e.locks.Acquire(ctx, keys...)
	if err != nil {
		return nil, recordError(span, err)
	}
	defer release()

	var payment *model.LoanPayment
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		loan, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if !loan.AcceptsPayments() {
			return model.ErrInvalidState
		}
		if err := model.ValidateAmount(amount, loan.Currency); err != nil {
			return err
		}

		interestDue := PeriodInterest(loan.OutstandingBalance, loan.InterestRate, loan.Currency)
		if amount.GreaterThan(loan.OutstandingBalance.Add(interestDue)) {
			return model.ErrInvalidAmount
		}
		interest, principal := Split(loan.OutstandingBalance, loan.InterestRate, amount, loan.Currency)

		payment = &model.LoanPayment{
			ID:            e.ids.NewPaymentID(),
			LoanID:        loan.ID,
			Amount:        amount,
			PrincipalPaid: principal,
			InterestPaid:  interest,
			BalanceAfter:  loan.OutstandingBalance.Sub(principal),
			PaymentDate:   e.poster.Journal().Now(),
		}

		if sourceAccountID != nil {
			source, err := tx.GetAccountForUpdate(ctx, *sourceAccountID)
			if err != nil {
				return err
			}
			if source.Currency != loan.Currency {
				return model.ErrCurrencyMismatch
			}

			txn, err := e.poster.Post(ctx, tx, ledger.Posting{
				AccountID:   *sourceAccountID,
				Type:        model.TransactionTypeLoanRepayment,
				Direction:   model.DirectionDebit,
				Amount:      amount,
				Description: fmt.Sprintf("Repayment of loan %s", loan.ID),
				Reference:   loan.ID,
			})
			if err != nil {
				return err
			}
			payment.TransactionID = txn.ID
			payment.PaymentDate = txn.CreatedAt
		}

		loan.OutstandingBalance = payment.BalanceAfter
		switch {
		case loan.OutstandingBalance.IsZero():
			loan.Status = model.LoanStatusPaid
		case loan.Status == model.LoanStatusDisbursed:
			loan.Status = model.LoanStatusActive
		}

		if err := tx.InsertLoanPayment(ctx, payment); err != nil {
			return err
		}
		return tx.UpdateLoan(ctx, loan)
	})
	if err != nil {
		e.logFailure(err, logrus.Fields{"loan_id": loanID, "operation": "payment", "amount": amount.String()})
		return nil, recordError(span, err)
	}

	span.SetAttributes(attribute.String("payment_id", payment.ID))
	e.log.WithFields(logrus.Fields{
		"loan_id":        loanID,
		"payment_id":     payment.ID,
		"principal_paid": payment.PrincipalPaid.String(),
		"interest_paid":  payment.InterestPaid.String(),
		"balance_after":  payment.BalanceAfter.String(),
	}).Info("loan payment applied")
	return payment, nil
}

// Get returns a loan visible to actor
func (e *Engine) Get(ctx context.Context, actor model.Actor, loanID string) (*model.Loan, error) {
	loan, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !actor.Elevated && actor.ID != loan.CustomerID.String() {
		return nil, model.ErrNotPermitted
	}
	return loan, nil
}

// List returns a customer's loans, newest first
func (e *Engine) List(ctx context.Context, actor model.Actor, customerID uuid.UUID) ([]model.Loan, error) {
	if !actor.Elevated && actor.ID != customerID.String() {
		return nil, model.ErrNotPermitted
	}
	return e.store.ListLoansByCustomer(ctx, customerID)
}

// Payments returns the repayment history of a loan, newest first
func (e *Engine) Payments(ctx context.Context, actor model.Actor, loanID string) ([]model.LoanPayment, error) {
	if _, err := e.Get(ctx, actor, loanID); err != nil {
		return nil, err
	}
	return e.store.ListLoanPayments(ctx, loanID)
}

// RepaymentSchedule returns the amortization table of a loan. Installments are due monthly
// from the disbursement date, or from today for loans not yet disbursed.
func (e *Engine) RepaymentSchedule(ctx context.Context, actor model.Actor, loanID string) ([]model.Installment, error) {
	loan, err := e.Get(ctx, actor, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status == model.LoanStatusRejected {
		return nil, model.ErrInvalidState
	}

	start := e.poster.Journal().Now()
	if loan.DisbursementDate != nil {
		start = *loan.DisbursementDate
	}
	return Schedule(loan, start), nil
}

func (e *Engine) logFailure(err error, fields logrus.Fields) {
	entry := e.log.WithFields(fields).WithError(err)
	switch model.KindOf(err) {
	case model.KindConsistency, model.KindUnknown:
		entry.Error("loan operation failed")
	default:
		entry.Debug("loan operation rejected")
	}
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
