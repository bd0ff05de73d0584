package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType represents the type of bank account
type AccountType string

const (
	AccountTypeSavings      AccountType = "SAVINGS"
	AccountTypeChecking     AccountType = "CHECKING"
	AccountTypeBusiness     AccountType = "BUSINESS"
	AccountTypeFixedDeposit AccountType = "FIXED_DEPOSIT"
)

// AccountStatus represents the current status of an account
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "ACTIVE"
	AccountStatusFrozen AccountStatus = "FROZEN"
	AccountStatusClosed AccountStatus = "CLOSED"
)

// Account represents a bank account.
// Balance is only ever changed through the ledger's debit and credit primitives.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	AccountNumber string          `json:"account_number"`
	AccountType   AccountType     `json:"account_type"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	Status        AccountStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsActive reports whether the account accepts balance mutations
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// OpenAccountRequest is the payload for opening a new account
type OpenAccountRequest struct {
	CustomerID  uuid.UUID   `json:"customer_id"`
	AccountType AccountType `json:"account_type"`
	Currency    string      `json:"currency"`
}

// Validate checks if the open request is valid
func (r OpenAccountRequest) Validate() error {
	if r.AccountType != AccountTypeSavings &&
		r.AccountType != AccountTypeChecking &&
		r.AccountType != AccountTypeBusiness &&
		r.AccountType != AccountTypeFixedDeposit {
		return ErrInvalidAccountType
	}

	if err := validation.Validate(r.Currency, validation.Required, validation.Length(3, 3)); err != nil {
		return ErrInvalidCurrency
	}

	if r.CustomerID == uuid.Nil {
		return ErrInvalidRequest
	}

	return nil
}

// AccountBalance represents an account's current balance
type AccountBalance struct {
	AccountID uuid.UUID       `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Status    AccountStatus   `json:"status"`
	AsOf      time.Time       `json:"as_of"`
}
