package model

import "errors"

// ErrorKind classifies ledger errors so callers can react without matching messages
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindState
	KindInsufficientFunds
	KindAuthorization
	KindConsistency
	KindBusy
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindAuthorization:
		return "authorization"
	case KindConsistency:
		return "consistency"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Error is a ledger error with a kind. Sentinels below are compared with errors.Is.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf returns the kind of the first ledger error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the operation may succeed if attempted again unchanged
func IsRetryable(err error) bool {
	return KindOf(err) == KindBusy
}

var (
	// Account errors
	ErrAccountNotFound    = newError(KindNotFound, "account not found")
	ErrAccountInactive    = newError(KindState, "account is not active")
	ErrInvalidAccountType = newError(KindValidation, "invalid account type: must be SAVINGS, CHECKING, BUSINESS or FIXED_DEPOSIT")
	ErrInvalidCurrency    = newError(KindValidation, "invalid currency: must be 3-letter ISO code")

	// Transaction errors
	ErrInvalidAmount           = newError(KindValidation, "invalid amount")
	ErrInsufficientFunds       = newError(KindInsufficientFunds, "insufficient funds")
	ErrSameAccount             = newError(KindValidation, "source and destination accounts must be different")
	ErrCurrencyMismatch        = newError(KindValidation, "currency mismatch between accounts")
	ErrTransactionNotFound     = newError(KindNotFound, "transaction not found")
	ErrAlreadyReversed         = newError(KindState, "transaction is not in a reversible state")
	ErrLedgerInconsistency     = newError(KindConsistency, "ledger inconsistency")
	ErrInvalidRequest          = newError(KindValidation, "invalid request")
	ErrTransferRequestNotFound = newError(KindNotFound, "transfer request not found")

	// Loan errors
	ErrLoanNotFound    = newError(KindNotFound, "loan not found")
	ErrInvalidState    = newError(KindState, "operation not allowed in current loan state")
	ErrInvalidLoanTerm = newError(KindValidation, "invalid loan terms")

	// Access errors
	ErrNotPermitted = newError(KindAuthorization, "not permitted")

	// ErrDuplicate is returned when a unique identifier such as an account number is already taken
	ErrDuplicate = newError(KindState, "record already exists")

	// ErrBusy is returned when an exclusive boundary could not be acquired in time
	ErrBusy = newError(KindBusy, "resource busy, retry later")
)
