package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanType represents the product a loan was issued under
type LoanType string

const (
	LoanTypePersonal  LoanType = "PERSONAL"
	LoanTypeBusiness  LoanType = "BUSINESS"
	LoanTypeMortgage  LoanType = "MORTGAGE"
	LoanTypeAuto      LoanType = "AUTO"
	LoanTypeEducation LoanType = "EDUCATION"
)

// LoanStatus represents a state in the loan lifecycle
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "PENDING"
	LoanStatusApproved  LoanStatus = "APPROVED"
	LoanStatusDisbursed LoanStatus = "DISBURSED"
	LoanStatusActive    LoanStatus = "ACTIVE"
	LoanStatusPaid      LoanStatus = "PAID"
	LoanStatusDefaulted LoanStatus = "DEFAULTED"
	LoanStatusRejected  LoanStatus = "REJECTED"
)

// MinimumPrincipal is the smallest principal a loan can be applied for
var MinimumPrincipal = decimal.NewFromInt(1)

// InterestRatePlaces is the number of decimals an annual rate is stored with
const InterestRatePlaces int32 = 4

// Loan is an installment loan paid out to and repaid from one account
type Loan struct {
	ID                 string          `json:"id"`
	CustomerID         uuid.UUID       `json:"customer_id"`
	AccountID          uuid.UUID       `json:"account_id"`
	LoanType           LoanType        `json:"loan_type"`
	Currency           string          `json:"currency"`
	PrincipalAmount    decimal.Decimal `json:"principal_amount"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	TermMonths         int             `json:"term_months"`
	MonthlyPayment     decimal.Decimal `json:"monthly_payment"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	Status             LoanStatus      `json:"status"`
	ApplicationDate    time.Time       `json:"application_date"`
	ApprovalDate       *time.Time      `json:"approval_date,omitempty"`
	ApprovedBy         string          `json:"approved_by,omitempty"`
	DisbursementDate   *time.Time      `json:"disbursement_date,omitempty"`
	Notes              string          `json:"notes,omitempty"`
}

// AcceptsPayments reports whether repayments may be applied
func (l *Loan) AcceptsPayments() bool {
	return l.Status == LoanStatusDisbursed || l.Status == LoanStatusActive
}

// IsClosed reports whether the loan reached a terminal state
func (l *Loan) IsClosed() bool {
	switch l.Status {
	case LoanStatusPaid, LoanStatusDefaulted, LoanStatusRejected:
		return true
	}
	return false
}

// LoanPayment records one repayment split into principal and interest
type LoanPayment struct {
	ID            string          `json:"id"`
	LoanID        string          `json:"loan_id"`
	Amount        decimal.Decimal `json:"amount"`
	PrincipalPaid decimal.Decimal `json:"principal_paid"`
	InterestPaid  decimal.Decimal `json:"interest_paid"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	TransactionID string          `json:"transaction_id,omitempty"`
	PaymentDate   time.Time       `json:"payment_date"`
}

// LoanApplication is the payload for applying for a loan
type LoanApplication struct {
	CustomerID      uuid.UUID `json:"customer_id"`
	AccountID       uuid.UUID `json:"account_id"`
	LoanType        LoanType  `json:"loan_type"`
	PrincipalAmount string    `json:"principal_amount"`
	InterestRate    string    `json:"interest_rate"`
	TermMonths      int       `json:"term_months"`
	Notes           string    `json:"notes,omitempty"`
}

// Validate checks the application and returns the parsed principal and rate
func (a LoanApplication) Validate() (principal, rate decimal.Decimal, err error) {
	err = validation.ValidateStruct(&a,
		validation.Field(&a.CustomerID, validation.By(requiredUUID)),
		validation.Field(&a.AccountID, validation.By(requiredUUID)),
		validation.Field(&a.LoanType, validation.Required, validation.In(
			LoanTypePersonal, LoanTypeBusiness, LoanTypeMortgage, LoanTypeAuto, LoanTypeEducation,
		)),
		validation.Field(&a.PrincipalAmount, validation.Required),
		validation.Field(&a.InterestRate, validation.Required),
		validation.Field(&a.TermMonths, validation.Required, validation.Min(1), validation.Max(600)),
		validation.Field(&a.Notes, validation.Length(0, 1000)),
	)
	if err != nil {
		return decimal.Zero, decimal.Zero, ErrInvalidLoanTerm
	}

	principal, err = decimal.NewFromString(a.PrincipalAmount)
	if err != nil || principal.LessThan(MinimumPrincipal) {
		return decimal.Zero, decimal.Zero, ErrInvalidLoanTerm
	}

	rate, err = decimal.NewFromString(a.InterestRate)
	if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) ||
		!rate.Equal(rate.Truncate(InterestRatePlaces)) {
		return decimal.Zero, decimal.Zero, ErrInvalidLoanTerm
	}

	return principal, rate, nil
}

// PaymentRequest is the payload for applying a loan repayment
type PaymentRequest struct {
	Amount          string     `json:"amount"`
	SourceAccountID *uuid.UUID `json:"source_account_id,omitempty"`
}

// Installment is one row of an amortization schedule
type Installment struct {
	Number           int             `json:"number"`
	DueDate          time.Time       `json:"due_date"`
	Payment          decimal.Decimal `json:"payment"`
	Principal        decimal.Decimal `json:"principal"`
	Interest         decimal.Decimal `json:"interest"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}
