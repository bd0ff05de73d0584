package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the business reason for a journal entry
type TransactionType string

const (
	TransactionTypeDeposit          TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal       TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer         TransactionType = "TRANSFER"
	TransactionTypeLoanDisbursement TransactionType = "LOAN_DISBURSEMENT"
	TransactionTypeLoanRepayment    TransactionType = "LOAN_REPAYMENT"
	TransactionTypeFee              TransactionType = "FEE"
	TransactionTypeInterest         TransactionType = "INTEREST"
)

// Direction is the side of the account an entry hits
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// Opposite returns the other side
func (d Direction) Opposite() Direction {
	if d == DirectionDebit {
		return DirectionCredit
	}
	return DirectionDebit
}

// TransactionStatus represents the current status of a journal entry
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusReversed  TransactionStatus = "REVERSED"
)

// NaturalDirection returns the direction a type always posts in.
// TRANSFER has none: the source leg debits and the destination leg credits.
func (t TransactionType) NaturalDirection() (Direction, bool) {
	switch t {
	case TransactionTypeDeposit, TransactionTypeLoanDisbursement, TransactionTypeInterest:
		return DirectionCredit, true
	case TransactionTypeWithdrawal, TransactionTypeLoanRepayment, TransactionTypeFee:
		return DirectionDebit, true
	}
	return "", false
}

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	if t == TransactionTypeTransfer {
		return true
	}
	_, ok := t.NaturalDirection()
	return ok
}

// Transaction is one immutable journal entry against a single account
type Transaction struct {
	ID            string            `json:"id"`
	AccountID     uuid.UUID         `json:"account_id"`
	Type          TransactionType   `json:"type"`
	Direction     Direction         `json:"direction"`
	Amount        decimal.Decimal   `json:"amount"`
	BalanceBefore decimal.Decimal   `json:"balance_before"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	Description   string            `json:"description"`
	Status        TransactionStatus `json:"status"`
	Reference     string            `json:"reference,omitempty"`
	ReversalOf    string            `json:"reversal_of,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Signed returns the amount with the sign of its direction (credits positive)
func (t *Transaction) Signed() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// IsReversal reports whether this entry compensates an earlier one
func (t *Transaction) IsReversal() bool {
	return t.ReversalOf != ""
}

// TransferRequest is the payload for moving money between two accounts
type TransferRequest struct {
	FromAccountID uuid.UUID `json:"from_account_id"`
	ToAccountID   uuid.UUID `json:"to_account_id"`
	Amount        string    `json:"amount"`
	Description   string    `json:"description,omitempty"`
}

// Validate checks if the transfer request is valid
func (r TransferRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.FromAccountID, validation.By(requiredUUID)),
		validation.Field(&r.ToAccountID, validation.By(requiredUUID)),
		validation.Field(&r.Amount, validation.Required),
		validation.Field(&r.Description, validation.Length(0, 255)),
	)
	if err != nil {
		return ErrInvalidRequest
	}
	if r.FromAccountID == r.ToAccountID {
		return ErrSameAccount
	}
	if _, err := ParseAmount(r.Amount); err != nil {
		return err
	}
	return nil
}

// requiredUUID rejects uuid.Nil, which ozzo's Required treats as present
func requiredUUID(value interface{}) error {
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return validation.NewError("validation_required_uuid", "must be a non-nil uuid")
	}
	return nil
}

// MovementRequest is the payload for a single-leg deposit or withdrawal
type MovementRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

// Validate checks if the movement request is valid
func (r MovementRequest) Validate() error {
	if err := validation.Validate(r.Description, validation.Length(0, 255)); err != nil {
		return ErrInvalidRequest
	}
	_, err := ParseAmount(r.Amount)
	return err
}

// TransferResult holds both legs of a completed transfer
type TransferResult struct {
	Debit  *Transaction `json:"debit_transaction"`
	Credit *Transaction `json:"credit_transaction"`
}
